package core

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"talentcore/internal/infra/persistence/sqlite"
	"talentcore/pkg/domain"
)

func TestSubmitThenFirstTransition(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	app := submit(t, svc)
	if app.Status != domain.StatusNew || app.Version != 0 {
		t.Fatalf("expected new application at version 0, got %s v%d", app.Status, app.Version)
	}

	change, err := svc.UpdateStatus(ctx, StatusUpdate{ApplicationID: app.ID, ExpectedVersion: 0, NewStatus: domain.StatusInReview, Actor: recruiter})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if change.Application.Status != domain.StatusInReview || change.Application.Version != 1 {
		t.Fatalf("unexpected application after update: %+v", change.Application)
	}
	history, err := svc.ListHistory(ctx, app.ID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one history row, got %d", len(history))
	}
	entry := history[0]
	if entry.OldStatus == nil || *entry.OldStatus != domain.StatusNew || entry.NewStatus != domain.StatusInReview {
		t.Fatalf("unexpected history entry %+v", entry)
	}
	if entry.ChangedBy != recruiter.ID || entry.Sequence != 1 {
		t.Fatalf("expected entry by %s with sequence 1, got %+v", recruiter.ID, entry)
	}
	if !change.Application.LastActivityAt.Equal(entry.ChangedAt) {
		t.Fatalf("expected last activity %v to match change time %v", change.Application.LastActivityAt, entry.ChangedAt)
	}
}

func TestUpdateStatusRejections(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	app := submit(t, svc)
	app = advance(t, svc, app, recruiter, domain.StatusInReview, "")

	cases := []struct {
		name string
		req  StatusUpdate
		kind error
	}{
		{"unknown application", StatusUpdate{ApplicationID: "missing", ExpectedVersion: 0, NewStatus: domain.StatusOffer, Actor: recruiter}, domain.ErrNotFound},
		{"stale version", StatusUpdate{ApplicationID: app.ID, ExpectedVersion: 0, NewStatus: domain.StatusOffer, Actor: recruiter}, domain.ErrVersionConflict},
		{"future version", StatusUpdate{ApplicationID: app.ID, ExpectedVersion: 7, NewStatus: domain.StatusOffer, Actor: recruiter}, domain.ErrVersionConflict},
		{"no-op", StatusUpdate{ApplicationID: app.ID, ExpectedVersion: 1, NewStatus: domain.StatusInReview, Actor: recruiter}, domain.ErrInvalidTransition},
		{"back to new", StatusUpdate{ApplicationID: app.ID, ExpectedVersion: 1, NewStatus: domain.StatusNew, Actor: admin}, domain.ErrInvalidTransition},
		{"unknown status", StatusUpdate{ApplicationID: app.ID, ExpectedVersion: 1, NewStatus: "ghosted", Actor: recruiter}, domain.ErrInvalidTransition},
		{"talent promotes self", StatusUpdate{ApplicationID: app.ID, ExpectedVersion: 1, NewStatus: domain.StatusOffer, Actor: owner}, domain.ErrForbidden},
		{"other talent withdraws", StatusUpdate{ApplicationID: app.ID, ExpectedVersion: 1, NewStatus: domain.StatusWithdrawn, Actor: stranger}, domain.ErrForbidden},
		{"business withdraws", StatusUpdate{ApplicationID: app.ID, ExpectedVersion: 1, NewStatus: domain.StatusWithdrawn, Actor: recruiter}, domain.ErrForbidden},
		{"unknown role", StatusUpdate{ApplicationID: app.ID, ExpectedVersion: 1, NewStatus: domain.StatusOffer, Actor: Actor{ID: "x", Role: "guest"}}, domain.ErrForbidden},
		{"anonymous actor", StatusUpdate{ApplicationID: app.ID, ExpectedVersion: 1, NewStatus: domain.StatusOffer, Actor: Actor{Role: domain.RoleAdmin}}, domain.ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.UpdateStatus(ctx, tc.req)
			expectKind(t, err, tc.kind)
		})
	}

	current, err := svc.GetApplication(ctx, app.ID)
	if err != nil {
		t.Fatalf("get application: %v", err)
	}
	if current.Version != 1 || current.Status != domain.StatusInReview {
		t.Fatalf("rejected updates must not change state, got %s v%d", current.Status, current.Version)
	}
	history, _ := svc.ListHistory(ctx, app.ID)
	if len(history) != 1 {
		t.Fatalf("rejected updates must not append history, got %d rows", len(history))
	}
}

func TestTerminalApplicationsAreLocked(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	app := submit(t, svc)
	app = advance(t, svc, app, owner, domain.StatusWithdrawn, "found another role")

	for _, actor := range []Actor{recruiter, admin, owner} {
		_, err := svc.UpdateStatus(ctx, StatusUpdate{ApplicationID: app.ID, ExpectedVersion: app.Version, NewStatus: domain.StatusInReview, Actor: actor})
		expectKind(t, err, domain.ErrAlreadyTerminal)
	}
}

func TestDraftApplicationCanBeClosedDirectly(t *testing.T) {
	svc, _ := newTestService(t)
	app := submit(t, svc)
	rejected := advance(t, svc, app, recruiter, domain.StatusRejected, "position filled")
	if rejected.Status != domain.StatusRejected || rejected.Version != 1 {
		t.Fatalf("expected rejected v1, got %s v%d", rejected.Status, rejected.Version)
	}
}

func TestHistoryChainsStatuses(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	app := submit(t, svc)
	for _, to := range []domain.Status{domain.StatusInReview, domain.StatusInterview, domain.StatusOffer, domain.StatusHired} {
		clock.Advance(time.Hour)
		app = advance(t, svc, app, recruiter, to, "")
	}
	if app.Version != 4 {
		t.Fatalf("expected version 4, got %d", app.Version)
	}
	history, err := svc.ListHistory(ctx, app.ID)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != int(app.Version) {
		t.Fatalf("expected %d rows, got %d", app.Version, len(history))
	}
	if *history[0].OldStatus != domain.StatusNew {
		t.Fatalf("expected chain to start at new, got %s", *history[0].OldStatus)
	}
	for i := 0; i+1 < len(history); i++ {
		if history[i].NewStatus != *history[i+1].OldStatus {
			t.Fatalf("chain broken at %d: %s then %s", i, history[i].NewStatus, *history[i+1].OldStatus)
		}
		if history[i].ChangedAt.After(history[i+1].ChangedAt) {
			t.Fatalf("history not chronological at %d", i)
		}
	}
	if history[len(history)-1].NewStatus != app.Status {
		t.Fatalf("last entry %s does not match current status %s", history[len(history)-1].NewStatus, app.Status)
	}

	var streamed int
	if err := svc.StreamHistory(ctx, app.ID, func(StatusHistoryEntry) error { streamed++; return nil }); err != nil {
		t.Fatalf("stream history: %v", err)
	}
	if streamed != len(history) {
		t.Fatalf("expected %d streamed entries, got %d", len(history), streamed)
	}
	if _, err := svc.ListHistory(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown application history, got %v", err)
	}
}

func TestConcurrentUpdatesExactlyOneWins(t *testing.T) {
	memorySvc, _ := newTestService(t)
	sqliteStore, err := sqlite.NewStore(filepath.Join(t.TempDir(), "race.db"), NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqliteSvc := NewService(sqliteStore)
	t.Cleanup(func() { _ = sqliteSvc.Close() })

	for name, svc := range map[string]*Service{"memory": memorySvc, "sqlite": sqliteSvc} {
		t.Run(name, func(t *testing.T) {
			app := submit(t, svc)
			app = advance(t, svc, app, recruiter, domain.StatusInReview, "")

			const writers = 8
			var (
				wg        sync.WaitGroup
				mu        sync.Mutex
				successes int
				conflicts int
			)
			start := make(chan struct{})
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					_, err := svc.UpdateStatus(context.Background(), StatusUpdate{
						ApplicationID:   app.ID,
						ExpectedVersion: app.Version,
						NewStatus:       domain.StatusInterview,
						Actor:           recruiter,
					})
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						successes++
					case errors.Is(err, domain.ErrVersionConflict):
						conflicts++
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			close(start)
			wg.Wait()

			if successes != 1 || conflicts != writers-1 {
				t.Fatalf("expected 1 success and %d conflicts, got %d and %d", writers-1, successes, conflicts)
			}
			current, err := svc.GetApplication(context.Background(), app.ID)
			if err != nil {
				t.Fatalf("get application: %v", err)
			}
			if current.Version != 2 || current.Status != domain.StatusInterview {
				t.Fatalf("expected interview v2, got %s v%d", current.Status, current.Version)
			}
			history, _ := svc.ListHistory(context.Background(), app.ID)
			if len(history) != 2 {
				t.Fatalf("expected 2 history rows, got %d", len(history))
			}
		})
	}
}

func TestSubmitApplicationValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	submit(t, svc)

	_, err := svc.SubmitApplication(ctx, Submission{JobID: "job-1", TalentID: owner.ID})
	expectKind(t, err, domain.ErrDuplicateApplication)

	_, err = svc.SubmitApplication(ctx, Submission{JobID: " ", TalentID: owner.ID})
	expectKind(t, err, domain.ErrInvalidSubmission)

	_, err = svc.SubmitApplication(ctx, Submission{JobID: "job-2", TalentID: owner.ID, CustomQA: &domain.CustomQA{SchemaVersion: 9}})
	expectKind(t, err, domain.ErrInvalidCustomQA)
	if domain.ErrorCode(err) != "invalid_submission" {
		t.Fatalf("expected invalid_submission code, got %s", domain.ErrorCode(err))
	}
}

func TestSoftDeleteApplication(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	app := submit(t, svc)

	_, err := svc.SoftDeleteApplication(ctx, app.ID, owner)
	expectKind(t, err, domain.ErrInvalidTransition)

	app = advance(t, svc, app, owner, domain.StatusWithdrawn, "")

	_, err = svc.SoftDeleteApplication(ctx, app.ID, recruiter)
	expectKind(t, err, domain.ErrForbidden)
	_, err = svc.SoftDeleteApplication(ctx, app.ID, stranger)
	expectKind(t, err, domain.ErrForbidden)
	_, err = svc.SoftDeleteApplication(ctx, "missing", admin)
	expectKind(t, err, domain.ErrNotFound)

	deleted, err := svc.SoftDeleteApplication(ctx, app.ID, owner)
	if err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if deleted.DeletedAt == nil || deleted.DeletedBy == nil || *deleted.DeletedBy != owner.ID {
		t.Fatalf("expected deletion marker by owner, got %+v", deleted)
	}
	again, err := svc.SoftDeleteApplication(ctx, app.ID, admin)
	if err != nil {
		t.Fatalf("repeat soft delete: %v", err)
	}
	if !again.DeletedAt.Equal(*deleted.DeletedAt) || *again.DeletedBy != owner.ID {
		t.Fatalf("repeat delete must keep the first marker, got %+v", again)
	}

	_, err = svc.GetApplication(ctx, app.ID)
	expectKind(t, err, domain.ErrNotFound)
	_, err = svc.UpdateStatus(ctx, StatusUpdate{ApplicationID: app.ID, ExpectedVersion: app.Version, NewStatus: domain.StatusInReview, Actor: admin})
	expectKind(t, err, domain.ErrNotFound)
	history, err := svc.ListHistory(ctx, app.ID)
	if err != nil || len(history) != 1 {
		t.Fatalf("history of deleted application should stay readable, got %d rows, %v", len(history), err)
	}
}

func TestServiceRecordsOutcomes(t *testing.T) {
	recorder := newCountingRecorder()
	tracer := NewJSONTracer(nil)
	svc, _ := newTestService(t, WithMetricsRecorder(recorder), WithTracer(tracer))
	ctx := context.Background()
	app := submit(t, svc)
	advance(t, svc, app, recruiter, domain.StatusInReview, "")
	_, _ = svc.UpdateStatus(ctx, StatusUpdate{ApplicationID: app.ID, ExpectedVersion: 0, NewStatus: domain.StatusOffer, Actor: recruiter})

	if recorder.count(OpUpdateStatus+"/ok") != 1 || recorder.count(OpUpdateStatus+"/version_conflict") != 1 {
		t.Fatalf("unexpected outcomes %+v", recorder.outcomes)
	}
	spans := tracer.Spans()
	if len(spans) != 3 {
		t.Fatalf("expected 3 spans, got %d", len(spans))
	}
	if spans[2].Outcome != "version_conflict" || spans[2].Error == "" {
		t.Fatalf("expected conflict span, got %+v", spans[2])
	}
}

func TestCanceledContextLeavesStateUntouched(t *testing.T) {
	svc, _ := newTestService(t)
	app := submit(t, svc)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.UpdateStatus(ctx, StatusUpdate{ApplicationID: app.ID, ExpectedVersion: 0, NewStatus: domain.StatusInReview, Actor: recruiter}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	current, _ := svc.GetApplication(context.Background(), app.ID)
	if current.Version != 0 {
		t.Fatalf("expected untouched version, got %d", current.Version)
	}
}
