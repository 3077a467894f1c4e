// Package memory provides an in-memory implementation of the lifecycle
// persistence store used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"talentcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Application aliases domain.Application.
	Application = domain.Application
	// StatusHistoryEntry aliases domain.StatusHistoryEntry.
	StatusHistoryEntry = domain.StatusHistoryEntry
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	applications map[string]Application
	history      map[string][]StatusHistoryEntry
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Applications map[string]Application          `json:"applications"`
	History      map[string][]StatusHistoryEntry `json:"history"`
}

func newMemoryState() memoryState {
	return memoryState{
		applications: make(map[string]Application),
		history:      make(map[string][]StatusHistoryEntry),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.applications {
		cloned.applications[k] = domain.CloneApplication(v)
	}
	for k, entries := range s.history {
		cloned.history[k] = cloneEntries(entries)
	}
	return cloned
}

func cloneEntries(entries []StatusHistoryEntry) []StatusHistoryEntry {
	out := make([]StatusHistoryEntry, len(entries))
	for i, e := range entries {
		out[i] = domain.CloneHistoryEntry(e)
	}
	return out
}

// Store provides an in-memory transactional store. Transactions run against
// a private copy of the state which replaces the committed state only when
// the transaction function and the rules engine both succeed.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
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

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState clones the current store state.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cloned := s.state.clone()
	return Snapshot{Applications: cloned.applications, History: cloned.history}
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	state := memoryState{applications: snapshot.Applications, history: snapshot.History}
	if state.applications == nil {
		state.applications = map[string]Application{}
	}
	if state.history == nil {
		state.history = map[string][]StatusHistoryEntry{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state.clone()
}

// RulesEngine exposes the configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	return s.engine
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// FindApplication retrieves an application by ID from the snapshot.
func (v transactionView) FindApplication(id string) (Application, bool, error) {
	a, ok := v.state.applications[id]
	if !ok {
		return Application{}, false, nil
	}
	return domain.CloneApplication(a), true, nil
}

// ListHistory returns the ordered history for an application.
func (v transactionView) ListHistory(applicationID string) ([]StatusHistoryEntry, error) {
	return sortedEntries(v.state.history[applicationID]), nil
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	view := newTransactionView(&tx.state)
	res, err := s.engine.Evaluate(ctx, view, tx.changes)
	if err != nil {
		return Result{}, err
	}
	if res.HasBlocking() {
		return res, domain.RuleViolationError{Result: res}
	}

	s.state = tx.state
	return res, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// Now returns the timestamp fixed for this transaction.
func (tx *transaction) Now() time.Time { return tx.now }

// FindApplication exposes application lookup within the transaction scope.
func (tx *transaction) FindApplication(id string) (Application, bool, error) {
	return newTransactionView(&tx.state).FindApplication(id)
}

// FindApplicationByCandidate finds the application a talent holds for a job.
func (tx *transaction) FindApplicationByCandidate(jobID, talentID string) (Application, bool, error) {
	for _, a := range tx.state.applications {
		if a.JobID == jobID && a.TalentID == talentID {
			return domain.CloneApplication(a), true, nil
		}
	}
	return Application{}, false, nil
}

// CreateApplication stores a new application in status new at version 0.
func (tx *transaction) CreateApplication(a Application) (Application, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, exists := tx.state.applications[a.ID]; exists {
		return Application{}, fmt.Errorf("application %q already exists", a.ID)
	}
	for _, existing := range tx.state.applications {
		if existing.JobID == a.JobID && existing.TalentID == a.TalentID {
			return Application{}, domain.NewMutationError(domain.ErrDuplicateApplication, existing.ID, "talent %s already applied to job %s", a.TalentID, a.JobID)
		}
	}
	a.Status = domain.StatusNew
	a.Version = 0
	a.CreatedAt = tx.now
	a.LastActivityAt = tx.now
	a.DeletedAt, a.DeletedBy, a.AnonymizedAt = nil, nil, nil
	tx.state.applications[a.ID] = domain.CloneApplication(a)
	tx.recordChange(Change{Entity: domain.EntityApplication, Action: domain.ActionCreate, After: domain.CloneApplication(a)})
	return domain.CloneApplication(a), nil
}

// CompareAndSwapStatus applies the status mutation only when the stored version matches.
func (tx *transaction) CompareAndSwapStatus(id string, expectedVersion int64, mutation domain.StatusMutation) (Application, error) {
	current, ok := tx.state.applications[id]
	if !ok || current.IsDeleted() {
		return Application{}, domain.NewMutationError(domain.ErrNotFound, id, "")
	}
	if current.Version != expectedVersion {
		return Application{}, domain.NewMutationError(domain.ErrVersionConflict, id, "expected version %d, stored %d", expectedVersion, current.Version)
	}
	before := domain.CloneApplication(current)
	current.Status = mutation.Status
	current.LastActivityAt = mutation.LastActivityAt
	current.Version = expectedVersion + 1
	tx.state.applications[id] = domain.CloneApplication(current)
	tx.recordChange(Change{Entity: domain.EntityApplication, Action: domain.ActionUpdate, Before: before, After: domain.CloneApplication(current)})
	return domain.CloneApplication(current), nil
}

// AppendHistory records an immutable history entry.
func (tx *transaction) AppendHistory(entry StatusHistoryEntry) (StatusHistoryEntry, error) {
	if _, ok := tx.state.applications[entry.ApplicationID]; !ok {
		return StatusHistoryEntry{}, domain.NewMutationError(domain.ErrNotFound, entry.ApplicationID, "history append")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	for _, existing := range tx.state.history[entry.ApplicationID] {
		if existing.Sequence == entry.Sequence {
			return StatusHistoryEntry{}, fmt.Errorf("history sequence %d already recorded for application %q", entry.Sequence, entry.ApplicationID)
		}
	}
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = tx.now
	}
	tx.state.history[entry.ApplicationID] = append(tx.state.history[entry.ApplicationID], domain.CloneHistoryEntry(entry))
	tx.recordChange(Change{Entity: domain.EntityStatusHistory, Action: domain.ActionAppend, After: domain.CloneHistoryEntry(entry)})
	return domain.CloneHistoryEntry(entry), nil
}

// SoftDeleteApplication marks the application read-only. Repeated calls keep the first marker.
func (tx *transaction) SoftDeleteApplication(id, deletedBy string) (Application, error) {
	current, ok := tx.state.applications[id]
	if !ok {
		return Application{}, domain.NewMutationError(domain.ErrNotFound, id, "")
	}
	if current.IsDeleted() {
		return domain.CloneApplication(current), nil
	}
	before := domain.CloneApplication(current)
	now := tx.now
	by := deletedBy
	current.DeletedAt = &now
	current.DeletedBy = &by
	tx.state.applications[id] = domain.CloneApplication(current)
	tx.recordChange(Change{Entity: domain.EntityApplication, Action: domain.ActionDelete, Before: before, After: domain.CloneApplication(current)})
	return domain.CloneApplication(current), nil
}

// AnonymizeApplication erases content fields and history notes.
func (tx *transaction) AnonymizeApplication(id string) (Application, error) {
	current, ok := tx.state.applications[id]
	if !ok {
		return Application{}, domain.NewMutationError(domain.ErrNotFound, id, "")
	}
	if current.IsAnonymized() {
		return domain.CloneApplication(current), nil
	}
	before := domain.CloneApplication(current)
	now := tx.now
	current.AnonymizedAt = &now
	current.CoverLetter = nil
	current.ResumeURL = nil
	current.CustomQA = nil
	tx.state.applications[id] = domain.CloneApplication(current)
	entries := tx.state.history[id]
	for i := range entries {
		entries[i].Notes = nil
	}
	tx.recordChange(Change{Entity: domain.EntityApplication, Action: domain.ActionAnonymize, Before: before, After: domain.CloneApplication(current)})
	return domain.CloneApplication(current), nil
}

// Read helpers ---------------------------------------------------------------

// GetApplication retrieves an application by ID from committed state,
// including soft-deleted records.
func (s *Store) GetApplication(ctx context.Context, id string) (Application, bool, error) {
	if err := ctx.Err(); err != nil {
		return Application{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.applications[id]
	if !ok {
		return Application{}, false, nil
	}
	return domain.CloneApplication(a), true, nil
}

// ListHistory returns the committed history ordered by changed_at, then sequence.
func (s *Store) ListHistory(ctx context.Context, applicationID string) ([]StatusHistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedEntries(s.state.history[applicationID]), nil
}

// StreamHistory visits the committed history in order. The entries are
// copied under the read lock so fn may call back into the store.
func (s *Store) StreamHistory(ctx context.Context, applicationID string, fn func(StatusHistoryEntry) error) error {
	entries, err := s.ListHistory(ctx, applicationID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// ListRetentionCandidates returns terminal, non-anonymized applications idle since cutoff.
func (s *Store) ListRetentionCandidates(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var matches []Application
	for _, a := range s.state.applications {
		if domain.IsTerminal(a.Status) && !a.IsAnonymized() && !a.LastActivityAt.After(cutoff) {
			matches = append(matches, a)
		}
	}
	s.mu.RUnlock()
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].LastActivityAt.Equal(matches[j].LastActivityAt) {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].LastActivityAt.Before(matches[j].LastActivityAt)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	ids := make([]string, len(matches))
	for i, a := range matches {
		ids[i] = a.ID
	}
	return ids, nil
}

func sortedEntries(entries []StatusHistoryEntry) []StatusHistoryEntry {
	out := cloneEntries(entries)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ChangedAt.Equal(out[j].ChangedAt) {
			return out[i].Sequence < out[j].Sequence
		}
		return out[i].ChangedAt.Before(out[j].ChangedAt)
	})
	return out
}
