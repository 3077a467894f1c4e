package core

import (
	"context"
	"fmt"

	"talentcore/pkg/domain"
)

const lifecycleTransitionRuleName = "lifecycle_transition"

// LifecycleTransitionRule blocks unknown statuses and any change that moves an
// application out of a terminal status.
func LifecycleTransitionRule() domain.Rule {
	return lifecycleTransitionRule{}
}

type lifecycleTransitionRule struct{}

func (lifecycleTransitionRule) Name() string { return lifecycleTransitionRuleName }

func (lifecycleTransitionRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityApplication {
			continue
		}
		after, ok := change.After.(domain.Application)
		if !ok {
			continue
		}
		if !domain.IsKnownStatus(after.Status) {
			res.Violations = append(res.Violations, blockApplication(after.ID,
				fmt.Sprintf("application %s is set to invalid status %s", after.ID, after.Status)))
			continue
		}
		before, ok := change.Before.(domain.Application)
		if !ok || !domain.IsTerminal(before.Status) {
			continue
		}
		if after.Status != before.Status {
			res.Violations = append(res.Violations, blockApplication(after.ID,
				fmt.Sprintf("cannot move application %s from terminal status %s to %s", after.ID, before.Status, after.Status)))
		}
	}
	return res, nil
}

func blockApplication(id, message string) domain.Violation {
	return domain.Violation{
		Rule:     lifecycleTransitionRuleName,
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   domain.EntityApplication,
		EntityID: id,
	}
}
