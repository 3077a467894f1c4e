package core

import (
	"context"
	"testing"

	"talentcore/internal/infra/persistence/memory"
	"talentcore/pkg/domain"
)

func TestLifecycleTransitionBlocksTerminalExit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(NewRulesEngine())
	rule := LifecycleTransitionRule()

	before := domain.Application{ID: "a1", Status: domain.StatusRejected, Version: 3}
	after := domain.Application{ID: "a1", Status: domain.StatusInReview, Version: 4}

	_ = store.View(ctx, func(v domain.TransactionView) error {
		res, err := rule.Evaluate(ctx, v, []domain.Change{{
			Entity: domain.EntityApplication,
			Action: domain.ActionUpdate,
			Before: before,
			After:  after,
		}})
		if err != nil {
			t.Fatalf("evaluate lifecycle rule: %v", err)
		}
		if !res.HasBlocking() {
			t.Fatalf("expected lifecycle transition violation when leaving terminal state")
		}
		return nil
	})
}

func TestLifecycleTransitionInvalidState(t *testing.T) {
	ctx := context.Background()
	rule := LifecycleTransitionRule()
	res, err := rule.Evaluate(ctx, nil, []domain.Change{{
		Entity: domain.EntityApplication,
		Action: domain.ActionCreate,
		After:  domain.Application{ID: "a1", Status: domain.Status("ghosted")},
	}})
	if err != nil {
		t.Fatalf("evaluate lifecycle rule: %v", err)
	}
	if len(res.Violations) != 1 || res.Violations[0].EntityID != "a1" {
		t.Fatalf("expected one violation for invalid status, got %+v", res.Violations)
	}
}

func TestLifecycleTransitionAllowsTerminalMetadataChanges(t *testing.T) {
	ctx := context.Background()
	rule := LifecycleTransitionRule()
	before := domain.Application{ID: "a1", Status: domain.StatusHired, Version: 5}
	after := before
	after.CoverLetter = nil
	res, err := rule.Evaluate(ctx, nil, []domain.Change{
		{Entity: domain.EntityApplication, Action: domain.ActionAnonymize, Before: before, After: after},
		{Entity: domain.EntityStatusHistory, Action: domain.ActionAppend, After: domain.StatusHistoryEntry{}},
	})
	if err != nil {
		t.Fatalf("evaluate lifecycle rule: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Fatalf("expected no violations, got %+v", res.Violations)
	}
}
