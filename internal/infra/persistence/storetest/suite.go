// Package storetest holds the behavioural checks every domain.PersistentStore
// implementation must pass. Store packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"talentcore/pkg/domain"
)

// Factory builds a fresh, empty store whose transactions are stamped by now.
type Factory func(t *testing.T, engine *domain.RulesEngine, now func() time.Time) domain.PersistentStore

// Clock is a settable time source shared by a store and its test.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

// NewClock starts a clock at t.
func NewClock(t time.Time) *Clock { return &Clock{t: t.UTC()} }

// Now returns the current reading.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// Run executes the conformance suite against stores built by factory.
func Run(t *testing.T, factory Factory) {
	t.Helper()
	cases := []struct {
		name string
		fn   func(t *testing.T, factory Factory)
	}{
		{"CreateStartsAtVersionZero", testCreate},
		{"DuplicateCandidacyRejected", testDuplicateCandidacy},
		{"CompareAndSwapAdvancesVersion", testCompareAndSwap},
		{"StaleVersionConflicts", testStaleVersion},
		{"MissingAndDeletedAreNotFound", testNotFound},
		{"FailedTransactionRollsBack", testRollback},
		{"HistoryOrderedByTimeThenSequence", testHistoryOrder},
		{"StreamCallbackMayReadStore", testStreamReentrant},
		{"DuplicateHistorySequenceRejected", testDuplicateSequence},
		{"SoftDeleteIsIdempotent", testSoftDelete},
		{"AnonymizeScrubsContent", testAnonymize},
		{"RetentionCandidates", testRetentionCandidates},
		{"BlockingRuleAbortsCommit", testBlockingRule},
		{"ConcurrentSwapsHaveOneWinner", testConcurrentSwap},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) { tc.fn(t, factory) })
	}
}

func seed(t *testing.T, store domain.PersistentStore, app domain.Application) domain.Application {
	t.Helper()
	var created domain.Application
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateApplication(app)
		return err
	}); err != nil {
		t.Fatalf("create application: %v", err)
	}
	return created
}

func swap(store domain.PersistentStore, id string, version int64, status domain.Status, actor string, notes *string) (domain.Application, error) {
	var out domain.Application
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		before, ok, err := tx.FindApplication(id)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NewMutationError(domain.ErrNotFound, id, "")
		}
		after, err := tx.CompareAndSwapStatus(id, version, domain.StatusMutation{Status: status, LastActivityAt: tx.Now()})
		if err != nil {
			return err
		}
		old := before.Status
		if _, err := tx.AppendHistory(domain.StatusHistoryEntry{
			ApplicationID: id,
			Sequence:      after.Version,
			OldStatus:     &old,
			NewStatus:     status,
			ChangedBy:     actor,
			Notes:         notes,
			ChangedAt:     tx.Now(),
		}); err != nil {
			return err
		}
		out = after
		return nil
	})
	return out, err
}

func strPtr(s string) *string { return &s }

func testCreate(t *testing.T, factory Factory) {
	clock := NewClock(epoch)
	store := factory(t, nil, clock.Now)
	app := seed(t, store, domain.Application{
		JobID:       "job-1",
		TalentID:    "talent-1",
		CoverLetter: strPtr("hello"),
		CustomQA:    &domain.CustomQA{SchemaVersion: 1, Answers: map[string]string{"visa": "yes"}},
	})
	if app.ID == "" || app.Status != domain.StatusNew || app.Version != 0 {
		t.Fatalf("unexpected created application %+v", app)
	}
	got, ok, err := store.GetApplication(context.Background(), app.ID)
	if err != nil || !ok {
		t.Fatalf("get application: ok=%v err=%v", ok, err)
	}
	if !got.LastActivityAt.Equal(epoch) || !got.CreatedAt.Equal(epoch) {
		t.Fatalf("expected timestamps at %v, got %+v", epoch, got)
	}
	if got.CoverLetter == nil || *got.CoverLetter != "hello" {
		t.Fatalf("cover letter not persisted: %+v", got.CoverLetter)
	}
	if got.CustomQA == nil || got.CustomQA.Answers["visa"] != "yes" {
		t.Fatalf("custom answers not persisted: %+v", got.CustomQA)
	}
	history, err := store.ListHistory(context.Background(), app.ID)
	if err != nil || len(history) != 0 {
		t.Fatalf("expected no history on creation, got %d (%v)", len(history), err)
	}
}

// testDuplicateCandidacy bypasses the service read-check, as a concurrent
// submit that lost the race would, and expects the store to classify the
// constraint failure.
func testDuplicateCandidacy(t *testing.T, factory Factory) {
	store := factory(t, nil, NewClock(epoch).Now)
	first := seed(t, store, domain.Application{JobID: "job-1", TalentID: "talent-1"})
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateApplication(domain.Application{JobID: "job-1", TalentID: "talent-1"})
		return err
	})
	if !errors.Is(err, domain.ErrDuplicateApplication) {
		t.Fatalf("expected ErrDuplicateApplication, got %v", err)
	}
	if code := domain.ErrorCode(err); code != "duplicate_application" {
		t.Fatalf("expected duplicate_application code, got %s", code)
	}
	if _, ok, err := store.GetApplication(context.Background(), first.ID); err != nil || !ok {
		t.Fatalf("first application must survive, ok=%v err=%v", ok, err)
	}
	other := seed(t, store, domain.Application{JobID: "job-2", TalentID: "talent-1"})
	if other.ID == first.ID {
		t.Fatalf("another job must be accepted as a new candidacy")
	}
}

func testCompareAndSwap(t *testing.T, factory Factory) {
	clock := NewClock(epoch)
	store := factory(t, nil, clock.Now)
	app := seed(t, store, domain.Application{JobID: "job-1", TalentID: "talent-1"})
	clock.Advance(time.Hour)

	after, err := swap(store, app.ID, 0, domain.StatusInReview, "recruiter-1", nil)
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	if after.Version != 1 || after.Status != domain.StatusInReview {
		t.Fatalf("unexpected application after swap %+v", after)
	}
	got, _, _ := store.GetApplication(context.Background(), app.ID)
	if got.Version != 1 || !got.LastActivityAt.Equal(epoch.Add(time.Hour)) {
		t.Fatalf("stored application not advanced: %+v", got)
	}
}

func testStaleVersion(t *testing.T, factory Factory) {
	store := factory(t, nil, NewClock(epoch).Now)
	app := seed(t, store, domain.Application{JobID: "job-1", TalentID: "talent-1"})
	if _, err := swap(store, app.ID, 0, domain.StatusInReview, "recruiter-1", nil); err != nil {
		t.Fatalf("first swap: %v", err)
	}
	_, err := swap(store, app.ID, 0, domain.StatusInterview, "recruiter-2", nil)
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	got, _, _ := store.GetApplication(context.Background(), app.ID)
	if got.Status != domain.StatusInReview || got.Version != 1 {
		t.Fatalf("conflicting swap must not change state: %+v", got)
	}
	history, _ := store.ListHistory(context.Background(), app.ID)
	if len(history) != 1 {
		t.Fatalf("expected exactly one history row, got %d", len(history))
	}
}

func testNotFound(t *testing.T, factory Factory) {
	store := factory(t, nil, NewClock(epoch).Now)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CompareAndSwapStatus("missing", 0, domain.StatusMutation{Status: domain.StatusInReview, LastActivityAt: tx.Now()})
		return err
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for missing application, got %v", err)
	}

	app := seed(t, store, domain.Application{JobID: "job-1", TalentID: "talent-1"})
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.SoftDeleteApplication(app.ID, "admin-1")
		return err
	}); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CompareAndSwapStatus(app.ID, 0, domain.StatusMutation{Status: domain.StatusInReview, LastActivityAt: tx.Now()})
		return err
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for deleted application, got %v", err)
	}
}

func testRollback(t *testing.T, factory Factory) {
	store := factory(t, nil, NewClock(epoch).Now)
	app := seed(t, store, domain.Application{JobID: "job-1", TalentID: "talent-1"})
	boom := errors.New("boom")
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CompareAndSwapStatus(app.ID, 0, domain.StatusMutation{Status: domain.StatusRejected, LastActivityAt: tx.Now()}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected transaction error, got %v", err)
	}
	got, _, _ := store.GetApplication(context.Background(), app.ID)
	if got.Status != domain.StatusNew || got.Version != 0 {
		t.Fatalf("failed transaction leaked state: %+v", got)
	}
}

func testHistoryOrder(t *testing.T, factory Factory) {
	clock := NewClock(epoch)
	store := factory(t, nil, clock.Now)
	app := seed(t, store, domain.Application{JobID: "job-1", TalentID: "talent-1"})
	statuses := []domain.Status{domain.StatusInReview, domain.StatusInterview, domain.StatusOffer}
	for i, status := range statuses {
		if i == 2 {
			clock.Advance(time.Minute)
		}
		if _, err := swap(store, app.ID, int64(i), status, "recruiter-1", strPtr("note")); err != nil {
			t.Fatalf("swap %d: %v", i, err)
		}
	}
	history, err := store.ListHistory(context.Background(), app.ID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != len(statuses) {
		t.Fatalf("expected %d entries, got %d", len(statuses), len(history))
	}
	for i, entry := range history {
		if entry.NewStatus != statuses[i] || entry.Sequence != int64(i+1) {
			t.Fatalf("entry %d out of order: %+v", i, entry)
		}
		if i > 0 && *entry.OldStatus != history[i-1].NewStatus {
			t.Fatalf("history chain broken at %d", i)
		}
	}
	var streamed int
	if err := store.StreamHistory(context.Background(), app.ID, func(domain.StatusHistoryEntry) error {
		streamed++
		return nil
	}); err != nil || streamed != len(statuses) {
		t.Fatalf("stream visited %d entries (%v)", streamed, err)
	}
}

func testStreamReentrant(t *testing.T, factory Factory) {
	store := factory(t, nil, NewClock(epoch).Now)
	app := seed(t, store, domain.Application{JobID: "job-1", TalentID: "talent-1"})
	for i, status := range []domain.Status{domain.StatusInReview, domain.StatusInterview} {
		if _, err := swap(store, app.ID, int64(i), status, "recruiter-1", nil); err != nil {
			t.Fatalf("swap %d: %v", i, err)
		}
	}
	stop := errors.New("stop")
	done := make(chan error, 1)
	var visited int
	go func() {
		done <- store.StreamHistory(context.Background(), app.ID, func(entry domain.StatusHistoryEntry) error {
			current, ok, err := store.GetApplication(context.Background(), entry.ApplicationID)
			if err != nil || !ok || current.Version != 2 {
				return fmt.Errorf("read inside stream: %+v ok=%v err=%v", current, ok, err)
			}
			if _, err := store.ListHistory(context.Background(), entry.ApplicationID); err != nil {
				return err
			}
			visited++
			if visited == 2 {
				return stop
			}
			return nil
		})
	}()
	select {
	case err := <-done:
		if !errors.Is(err, stop) || visited != 2 {
			t.Fatalf("expected callback error after 2 entries, got %v after %d", err, visited)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream callback blocked reading the store")
	}
}

func testDuplicateSequence(t *testing.T, factory Factory) {
	store := factory(t, nil, NewClock(epoch).Now)
	app := seed(t, store, domain.Application{JobID: "job-1", TalentID: "talent-1"})
	if _, err := swap(store, app.ID, 0, domain.StatusInReview, "recruiter-1", nil); err != nil {
		t.Fatalf("swap: %v", err)
	}
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.AppendHistory(domain.StatusHistoryEntry{ApplicationID: app.ID, Sequence: 1, NewStatus: domain.StatusInterview, ChangedBy: "x", ChangedAt: tx.Now()})
		return err
	})
	if err == nil {
		t.Fatalf("expected duplicate sequence to fail")
	}
}

func testSoftDelete(t *testing.T, factory Factory) {
	clock := NewClock(epoch)
	store := factory(t, nil, clock.Now)
	app := seed(t, store, domain.Application{JobID: "job-1", TalentID: "talent-1"})
	del := func() domain.Application {
		var out domain.Application
		if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
			var err error
			out, err = tx.SoftDeleteApplication(app.ID, "admin-1")
			return err
		}); err != nil {
			t.Fatalf("soft delete: %v", err)
		}
		return out
	}
	first := del()
	clock.Advance(time.Hour)
	second := del()
	if first.DeletedAt == nil || second.DeletedAt == nil || !first.DeletedAt.Equal(*second.DeletedAt) {
		t.Fatalf("soft delete should keep the first marker: %v vs %v", first.DeletedAt, second.DeletedAt)
	}
	got, ok, err := store.GetApplication(context.Background(), app.ID)
	if err != nil || !ok || !got.IsDeleted() || got.DeletedBy == nil || *got.DeletedBy != "admin-1" {
		t.Fatalf("deleted application should remain readable: %+v ok=%v err=%v", got, ok, err)
	}
}

func testAnonymize(t *testing.T, factory Factory) {
	clock := NewClock(epoch)
	store := factory(t, nil, clock.Now)
	app := seed(t, store, domain.Application{
		JobID:       "job-1",
		TalentID:    "talent-1",
		CoverLetter: strPtr("cover"),
		ResumeURL:   strPtr("https://cdn.example/resume.pdf"),
		CustomQA:    &domain.CustomQA{SchemaVersion: 1, Answers: map[string]string{"q": "a"}},
	})
	if _, err := swap(store, app.ID, 0, domain.StatusRejected, "recruiter-1", strPtr("not a fit")); err != nil {
		t.Fatalf("swap: %v", err)
	}
	anonymize := func() domain.Application {
		var out domain.Application
		if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
			var err error
			out, err = tx.AnonymizeApplication(app.ID)
			return err
		}); err != nil {
			t.Fatalf("anonymize: %v", err)
		}
		return out
	}
	first := anonymize()
	clock.Advance(time.Hour)
	second := anonymize()
	if first.AnonymizedAt == nil || !first.AnonymizedAt.Equal(*second.AnonymizedAt) {
		t.Fatalf("anonymize should be idempotent: %v vs %v", first.AnonymizedAt, second.AnonymizedAt)
	}
	got, _, _ := store.GetApplication(context.Background(), app.ID)
	if got.CoverLetter != nil || got.ResumeURL != nil || got.CustomQA != nil {
		t.Fatalf("content not erased: %+v", got)
	}
	if got.Status != domain.StatusRejected || got.Version != 1 || got.TalentID != "talent-1" {
		t.Fatalf("identity fields must survive anonymization: %+v", got)
	}
	history, _ := store.ListHistory(context.Background(), app.ID)
	if len(history) != 1 || history[0].Notes != nil || history[0].NewStatus != domain.StatusRejected {
		t.Fatalf("history notes not scrubbed: %+v", history)
	}
}

func testRetentionCandidates(t *testing.T, factory Factory) {
	clock := NewClock(epoch)
	store := factory(t, nil, clock.Now)
	seed(t, store, domain.Application{JobID: "job-1", TalentID: "talent-open"})
	oldest := seed(t, store, domain.Application{JobID: "job-1", TalentID: "talent-old"})
	if _, err := swap(store, oldest.ID, 0, domain.StatusRejected, "r", nil); err != nil {
		t.Fatalf("reject oldest: %v", err)
	}
	clock.Advance(24 * time.Hour)
	newer := seed(t, store, domain.Application{JobID: "job-2", TalentID: "talent-new"})
	if _, err := swap(store, newer.ID, 0, domain.StatusHired, "r", nil); err != nil {
		t.Fatalf("hire newer: %v", err)
	}
	clock.Advance(24 * time.Hour)
	recent := seed(t, store, domain.Application{JobID: "job-3", TalentID: "talent-recent"})
	if _, err := swap(store, recent.ID, 0, domain.StatusWithdrawn, "talent-recent", nil); err != nil {
		t.Fatalf("withdraw recent: %v", err)
	}

	cutoff := epoch.Add(24 * time.Hour)
	ids, err := store.ListRetentionCandidates(context.Background(), cutoff, 0)
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(ids) != 2 || ids[0] != oldest.ID || ids[1] != newer.ID {
		t.Fatalf("expected [%s %s], got %v", oldest.ID, newer.ID, ids)
	}
	limited, err := store.ListRetentionCandidates(context.Background(), cutoff, 1)
	if err != nil || len(limited) != 1 || limited[0] != oldest.ID {
		t.Fatalf("expected limit to keep oldest, got %v (%v)", limited, err)
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.AnonymizeApplication(oldest.ID)
		return err
	}); err != nil {
		t.Fatalf("anonymize: %v", err)
	}
	ids, _ = store.ListRetentionCandidates(context.Background(), cutoff, 0)
	if len(ids) != 1 || ids[0] != newer.ID {
		t.Fatalf("anonymized applications must drop out, got %v", ids)
	}
}

type blockAll struct{}

func (blockAll) Name() string { return "block_all" }

func (blockAll) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, c := range changes {
		if c.Action == domain.ActionUpdate {
			res.Violations = append(res.Violations, domain.Violation{Rule: "block_all", Severity: domain.SeverityBlock, Message: "updates disabled"})
		}
	}
	return res, nil
}

func testBlockingRule(t *testing.T, factory Factory) {
	engine := domain.NewRulesEngine()
	engine.Register(blockAll{})
	store := factory(t, engine, NewClock(epoch).Now)
	app := seed(t, store, domain.Application{JobID: "job-1", TalentID: "talent-1"})
	_, err := swap(store, app.ID, 0, domain.StatusInReview, "r", nil)
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	got, _, _ := store.GetApplication(context.Background(), app.ID)
	if got.Version != 0 {
		t.Fatalf("blocked transaction committed: %+v", got)
	}
}

func testConcurrentSwap(t *testing.T, factory Factory) {
	store := factory(t, nil, NewClock(epoch).Now)
	app := seed(t, store, domain.Application{JobID: "job-1", TalentID: "talent-1"})
	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   int
		conflicts int
		other     []error
	)
	start := make(chan struct{})
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := swap(store, app.ID, 0, domain.StatusInReview, "recruiter", nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, domain.ErrVersionConflict):
				conflicts++
			default:
				other = append(other, err)
			}
		}()
	}
	close(start)
	wg.Wait()
	if len(other) > 0 {
		t.Fatalf("unexpected errors: %v", other)
	}
	if winners != 1 || conflicts != writers-1 {
		t.Fatalf("expected one winner and %d conflicts, got %d/%d", writers-1, winners, conflicts)
	}
	history, _ := store.ListHistory(context.Background(), app.ID)
	if len(history) != 1 {
		t.Fatalf("expected one history row, got %d", len(history))
	}
}
