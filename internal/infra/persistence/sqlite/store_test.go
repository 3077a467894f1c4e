package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"talentcore/internal/infra/persistence/sqlstore"
	"talentcore/internal/infra/persistence/storetest"
	"talentcore/pkg/domain"
)

func TestSQLiteStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T, engine *domain.RulesEngine, now func() time.Time) domain.PersistentStore {
		store, err := NewStore(filepath.Join(t.TempDir(), "talentcore.db"), engine, sqlstore.WithClock(now))
		if err != nil {
			t.Fatalf("open sqlite store: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "talentcore.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var id string
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		app, err := tx.CreateApplication(domain.Application{JobID: "job-1", TalentID: "talent-1"})
		id = app.ID
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if reopened.Path() != path {
		t.Fatalf("unexpected path %q", reopened.Path())
	}
	app, ok, err := reopened.GetApplication(context.Background(), id)
	if err != nil || !ok || app.JobID != "job-1" {
		t.Fatalf("expected persisted application, got %+v ok=%v err=%v", app, ok, err)
	}
}

func TestSQLiteRejectsDuplicateCandidacy(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "talentcore.db"), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = store.Close() }()
	create := func() error {
		_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
			_, err := tx.CreateApplication(domain.Application{JobID: "job-1", TalentID: "talent-1"})
			return err
		})
		return err
	}
	if err := create(); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := create(); !errors.Is(err, domain.ErrDuplicateApplication) {
		t.Fatalf("expected unique constraint on (job_id, talent_id) to map to ErrDuplicateApplication, got %v", err)
	}
}
