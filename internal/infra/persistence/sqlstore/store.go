package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"talentcore/internal/schema/sqlbundle"
	"talentcore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const applicationColumns = `id, job_id, talent_id, status, version, cover_letter, resume_url, custom_q_a,
	last_activity_at, created_at, deleted_at, deleted_by, anonymized_at`

const historyColumns = `id, application_id, seq, old_status, new_status, changed_by, notes, changed_at`

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Store persists applications and their status history in two tables.
type Store struct {
	db      *sql.DB
	dialect Dialect
	engine  *domain.RulesEngine
	nowFn   func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// New wraps an open database. The caller keeps ownership of dialect-specific
// connection settings; Close releases db.
func New(db *sql.DB, dialect Dialect, engine *domain.RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		db:      db,
		dialect: dialect,
		engine:  engine,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate applies the dialect's DDL bundle. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range sqlbundle.SplitStatements(s.dialect.DDL) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: execute ddl: %w", s.dialect.Name, err)
		}
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// RulesEngine exposes the configured engine.
func (s *Store) RulesEngine() *domain.RulesEngine { return s.engine }

// RunInTransaction executes fn inside a database transaction, evaluates the
// rules engine over the recorded changes, and commits only when both pass.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (res domain.Result, retErr error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Result{}, fmt.Errorf("%s: begin tx: %w", s.dialect.Name, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()

	tx := &transaction{ctx: ctx, q: sqlTx, store: s, now: s.nowFn()}
	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	res, err = s.engine.Evaluate(ctx, tx.Snapshot(), tx.changes)
	if err != nil {
		return domain.Result{}, err
	}
	if res.HasBlocking() {
		return res, domain.RuleViolationError{Result: res}
	}
	if err := sqlTx.Commit(); err != nil {
		return domain.Result{}, fmt.Errorf("%s: commit: %w", s.dialect.Name, err)
	}
	committed = true
	return res, nil
}

// View runs fn inside a transaction that is always rolled back.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin view: %w", s.dialect.Name, err)
	}
	defer func() { _ = sqlTx.Rollback() }()
	return fn(view{ctx: ctx, q: sqlTx, store: s})
}

// GetApplication loads an application, including soft-deleted ones.
func (s *Store) GetApplication(ctx context.Context, id string) (domain.Application, bool, error) {
	return s.findApplication(ctx, s.db, id)
}

// ListHistory returns entries ascending by changed_at, then sequence.
func (s *Store) ListHistory(ctx context.Context, applicationID string) ([]domain.StatusHistoryEntry, error) {
	var out []domain.StatusHistoryEntry
	err := s.streamHistory(ctx, s.db, applicationID, func(e domain.StatusHistoryEntry) error {
		out = append(out, e)
		return nil
	})
	return out, err
}

// StreamHistory visits entries row by row. With Dialect.BufferStreams the
// rows are read and released first, so fn may call back into the store.
func (s *Store) StreamHistory(ctx context.Context, applicationID string, fn func(domain.StatusHistoryEntry) error) error {
	if !s.dialect.BufferStreams {
		return s.streamHistory(ctx, s.db, applicationID, fn)
	}
	var entries []domain.StatusHistoryEntry
	if err := s.streamHistory(ctx, s.db, applicationID, func(e domain.StatusHistoryEntry) error {
		entries = append(entries, e)
		return nil
	}); err != nil {
		return err
	}
	for _, e := range entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// ListRetentionCandidates returns terminal, non-anonymized applications idle since cutoff.
func (s *Store) ListRetentionCandidates(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	query := `SELECT id FROM applications
		WHERE status IN (?, ?, ?) AND anonymized_at IS NULL AND last_activity_at <= ?
		ORDER BY last_activity_at, id`
	args := []any{string(domain.StatusHired), string(domain.StatusRejected), string(domain.StatusWithdrawn), s.dialect.Time(cutoff)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: select retention candidates: %w", s.dialect.Name, err)
	}
	defer func() { _ = rows.Close() }()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: scan retention candidate: %w", s.dialect.Name, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate retention candidates: %w", s.dialect.Name, err)
	}
	return ids, nil
}

func (s *Store) findApplication(ctx context.Context, q queryer, id string) (domain.Application, bool, error) {
	row := q.QueryRowContext(ctx, s.dialect.Rebind(`SELECT `+applicationColumns+` FROM applications WHERE id = ?`), id)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Application{}, false, nil
	}
	if err != nil {
		return domain.Application{}, false, fmt.Errorf("%s: load application %s: %w", s.dialect.Name, id, err)
	}
	return app, true, nil
}

func (s *Store) streamHistory(ctx context.Context, q queryer, applicationID string, fn func(domain.StatusHistoryEntry) error) error {
	rows, err := q.QueryContext(ctx, s.dialect.Rebind(`SELECT `+historyColumns+` FROM application_status_history
		WHERE application_id = ? ORDER BY changed_at, seq`), applicationID)
	if err != nil {
		return fmt.Errorf("%s: select history: %w", s.dialect.Name, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return fmt.Errorf("%s: scan history: %w", s.dialect.Name, err)
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%s: iterate history: %w", s.dialect.Name, err)
	}
	return nil
}

type view struct {
	ctx   context.Context
	q     queryer
	store *Store
}

func (v view) FindApplication(id string) (domain.Application, bool, error) {
	return v.store.findApplication(v.ctx, v.q, id)
}

func (v view) ListHistory(applicationID string) ([]domain.StatusHistoryEntry, error) {
	var out []domain.StatusHistoryEntry
	err := v.store.streamHistory(v.ctx, v.q, applicationID, func(e domain.StatusHistoryEntry) error {
		out = append(out, e)
		return nil
	})
	return out, err
}

type transaction struct {
	ctx     context.Context
	q       queryer
	store   *Store
	now     time.Time
	changes []domain.Change
}

func (tx *transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

func (tx *transaction) exec(query string, args ...any) (sql.Result, error) {
	return tx.q.ExecContext(tx.ctx, tx.store.dialect.Rebind(query), args...)
}

func (tx *transaction) Snapshot() domain.TransactionView {
	return view{ctx: tx.ctx, q: tx.q, store: tx.store}
}

func (tx *transaction) Now() time.Time { return tx.now }

func (tx *transaction) FindApplication(id string) (domain.Application, bool, error) {
	return tx.store.findApplication(tx.ctx, tx.q, id)
}

func (tx *transaction) FindApplicationByCandidate(jobID, talentID string) (domain.Application, bool, error) {
	row := tx.q.QueryRowContext(tx.ctx, tx.store.dialect.Rebind(`SELECT `+applicationColumns+` FROM applications
		WHERE job_id = ? AND talent_id = ?`), jobID, talentID)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Application{}, false, nil
	}
	if err != nil {
		return domain.Application{}, false, fmt.Errorf("%s: load candidacy: %w", tx.store.dialect.Name, err)
	}
	return app, true, nil
}

func (tx *transaction) CreateApplication(a domain.Application) (domain.Application, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.Status = domain.StatusNew
	a.Version = 0
	a.CreatedAt = tx.now
	a.LastActivityAt = tx.now
	a.DeletedAt, a.DeletedBy, a.AnonymizedAt = nil, nil, nil
	qa, err := encodeCustomQA(a.CustomQA)
	if err != nil {
		return domain.Application{}, err
	}
	d := tx.store.dialect
	if _, err := tx.exec(`INSERT INTO applications (`+applicationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.JobID, a.TalentID, string(a.Status), a.Version, nullString(a.CoverLetter), nullString(a.ResumeURL), qa,
		d.Time(a.LastActivityAt), d.Time(a.CreatedAt), nil, nil, nil); err != nil {
		if d.isUniqueViolation(err) {
			return domain.Application{}, domain.NewMutationError(domain.ErrDuplicateApplication, a.ID, "talent %s already applied to job %s", a.TalentID, a.JobID)
		}
		return domain.Application{}, fmt.Errorf("%s: insert application: %w", d.Name, err)
	}
	tx.recordChange(domain.Change{Entity: domain.EntityApplication, Action: domain.ActionCreate, After: domain.CloneApplication(a)})
	return a, nil
}

func (tx *transaction) CompareAndSwapStatus(id string, expectedVersion int64, mutation domain.StatusMutation) (domain.Application, error) {
	before, ok, err := tx.FindApplication(id)
	if err != nil {
		return domain.Application{}, err
	}
	if !ok || before.IsDeleted() {
		return domain.Application{}, domain.NewMutationError(domain.ErrNotFound, id, "")
	}
	if before.Version != expectedVersion {
		return domain.Application{}, domain.NewMutationError(domain.ErrVersionConflict, id, "expected version %d, stored %d", expectedVersion, before.Version)
	}
	res, err := tx.exec(`UPDATE applications SET status = ?, last_activity_at = ?, version = version + 1
		WHERE id = ? AND version = ? AND deleted_at IS NULL`,
		string(mutation.Status), tx.store.dialect.Time(mutation.LastActivityAt), id, expectedVersion)
	if err != nil {
		return domain.Application{}, fmt.Errorf("%s: update status: %w", tx.store.dialect.Name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Application{}, fmt.Errorf("%s: rows affected: %w", tx.store.dialect.Name, err)
	}
	if affected == 0 {
		return domain.Application{}, domain.NewMutationError(domain.ErrVersionConflict, id, "expected version %d no longer current", expectedVersion)
	}
	after, _, err := tx.FindApplication(id)
	if err != nil {
		return domain.Application{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityApplication, Action: domain.ActionUpdate, Before: before, After: domain.CloneApplication(after)})
	return after, nil
}

func (tx *transaction) AppendHistory(entry domain.StatusHistoryEntry) (domain.StatusHistoryEntry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = tx.now
	}
	var old any
	if entry.OldStatus != nil {
		old = string(*entry.OldStatus)
	}
	if _, err := tx.exec(`INSERT INTO application_status_history (`+historyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ApplicationID, entry.Sequence, old, string(entry.NewStatus), entry.ChangedBy,
		nullString(entry.Notes), tx.store.dialect.Time(entry.ChangedAt)); err != nil {
		return domain.StatusHistoryEntry{}, fmt.Errorf("%s: insert history: %w", tx.store.dialect.Name, err)
	}
	tx.recordChange(domain.Change{Entity: domain.EntityStatusHistory, Action: domain.ActionAppend, After: domain.CloneHistoryEntry(entry)})
	return entry, nil
}

func (tx *transaction) SoftDeleteApplication(id, deletedBy string) (domain.Application, error) {
	before, ok, err := tx.FindApplication(id)
	if err != nil {
		return domain.Application{}, err
	}
	if !ok {
		return domain.Application{}, domain.NewMutationError(domain.ErrNotFound, id, "")
	}
	if before.IsDeleted() {
		return before, nil
	}
	if _, err := tx.exec(`UPDATE applications SET deleted_at = ?, deleted_by = ? WHERE id = ? AND deleted_at IS NULL`,
		tx.store.dialect.Time(tx.now), deletedBy, id); err != nil {
		return domain.Application{}, fmt.Errorf("%s: soft delete: %w", tx.store.dialect.Name, err)
	}
	after, _, err := tx.FindApplication(id)
	if err != nil {
		return domain.Application{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityApplication, Action: domain.ActionDelete, Before: before, After: domain.CloneApplication(after)})
	return after, nil
}

func (tx *transaction) AnonymizeApplication(id string) (domain.Application, error) {
	before, ok, err := tx.FindApplication(id)
	if err != nil {
		return domain.Application{}, err
	}
	if !ok {
		return domain.Application{}, domain.NewMutationError(domain.ErrNotFound, id, "")
	}
	if before.IsAnonymized() {
		return before, nil
	}
	if _, err := tx.exec(`UPDATE applications SET anonymized_at = ?, cover_letter = NULL, resume_url = NULL, custom_q_a = NULL
		WHERE id = ? AND anonymized_at IS NULL`, tx.store.dialect.Time(tx.now), id); err != nil {
		return domain.Application{}, fmt.Errorf("%s: anonymize application: %w", tx.store.dialect.Name, err)
	}
	if _, err := tx.exec(`UPDATE application_status_history SET notes = NULL WHERE application_id = ?`, id); err != nil {
		return domain.Application{}, fmt.Errorf("%s: scrub history notes: %w", tx.store.dialect.Name, err)
	}
	after, _, err := tx.FindApplication(id)
	if err != nil {
		return domain.Application{}, err
	}
	tx.recordChange(domain.Change{Entity: domain.EntityApplication, Action: domain.ActionAnonymize, Before: before, After: domain.CloneApplication(after)})
	return after, nil
}

func scanApplication(row rowScanner) (domain.Application, error) {
	var (
		app                      domain.Application
		status                   string
		cover, resume, deletedBy sql.NullString
		qa                       []byte
		lastActivity, createdAt  scanTime
		deletedAt, anonymizedAt  scanTime
	)
	if err := row.Scan(&app.ID, &app.JobID, &app.TalentID, &status, &app.Version, &cover, &resume, &qa,
		&lastActivity, &createdAt, &deletedAt, &deletedBy, &anonymizedAt); err != nil {
		return domain.Application{}, err
	}
	app.Status = domain.Status(status)
	app.CoverLetter = stringPtr(cover)
	app.ResumeURL = stringPtr(resume)
	app.DeletedBy = stringPtr(deletedBy)
	app.LastActivityAt = lastActivity.Time
	app.CreatedAt = createdAt.Time
	app.DeletedAt = deletedAt.ptr()
	app.AnonymizedAt = anonymizedAt.ptr()
	if len(qa) > 0 {
		var decoded domain.CustomQA
		if err := json.Unmarshal(qa, &decoded); err != nil {
			return domain.Application{}, fmt.Errorf("decode custom_q_a: %w", err)
		}
		app.CustomQA = &decoded
	}
	return app, nil
}

func scanHistory(row rowScanner) (domain.StatusHistoryEntry, error) {
	var (
		entry      domain.StatusHistoryEntry
		old, notes sql.NullString
		newStatus  string
		changedAt  scanTime
	)
	if err := row.Scan(&entry.ID, &entry.ApplicationID, &entry.Sequence, &old, &newStatus, &entry.ChangedBy, &notes, &changedAt); err != nil {
		return domain.StatusHistoryEntry{}, err
	}
	if old.Valid {
		s := domain.Status(old.String)
		entry.OldStatus = &s
	}
	entry.NewStatus = domain.Status(newStatus)
	entry.Notes = stringPtr(notes)
	entry.ChangedAt = changedAt.Time
	return entry, nil
}

func encodeCustomQA(qa *domain.CustomQA) (any, error) {
	if qa == nil {
		return nil, nil
	}
	data, err := json.Marshal(qa)
	if err != nil {
		return nil, fmt.Errorf("encode custom_q_a: %w", err)
	}
	return string(data), nil
}

func nullString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
