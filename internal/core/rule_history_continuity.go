package core

import (
	"context"
	"fmt"

	"talentcore/pkg/domain"
)

const historyContinuityRuleName = "history_continuity"

// HistoryContinuityRule requires every status update in a transaction to be
// paired with exactly one history entry describing it, and every history
// entry to describe an update from the same transaction.
func HistoryContinuityRule() domain.Rule {
	return historyContinuityRule{}
}

type historyContinuityRule struct{}

func (historyContinuityRule) Name() string { return historyContinuityRuleName }

type historyKey struct {
	applicationID string
	sequence      int64
}

func (historyContinuityRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	updates := map[historyKey]domain.Change{}
	entries := map[historyKey]domain.StatusHistoryEntry{}
	var order []historyKey
	for _, change := range changes {
		switch {
		case change.Entity == domain.EntityApplication && change.Action == domain.ActionUpdate:
			after, ok := change.After.(domain.Application)
			if !ok {
				continue
			}
			key := historyKey{after.ID, after.Version}
			updates[key] = change
			order = append(order, key)
		case change.Entity == domain.EntityStatusHistory && change.Action == domain.ActionAppend:
			entry, ok := change.After.(domain.StatusHistoryEntry)
			if !ok {
				continue
			}
			key := historyKey{entry.ApplicationID, entry.Sequence}
			if _, dup := entries[key]; dup {
				return blockHistory(entry.ApplicationID, fmt.Sprintf("history sequence %d recorded twice for application %s", entry.Sequence, entry.ApplicationID)), nil
			}
			entries[key] = entry
			if _, seen := updates[key]; !seen {
				order = append(order, key)
			}
		}
	}

	res := domain.Result{}
	for _, key := range order {
		update, hasUpdate := updates[key]
		entry, hasEntry := entries[key]
		switch {
		case hasUpdate && !hasEntry:
			res.Merge(blockHistory(key.applicationID, fmt.Sprintf("status update to version %d of application %s has no history entry", key.sequence, key.applicationID)))
		case hasEntry && !hasUpdate:
			res.Merge(blockHistory(key.applicationID, fmt.Sprintf("history entry %d of application %s has no matching status update", key.sequence, key.applicationID)))
		case hasEntry && hasUpdate:
			before, _ := update.Before.(domain.Application)
			after, _ := update.After.(domain.Application)
			if entry.OldStatus == nil || *entry.OldStatus != before.Status || entry.NewStatus != after.Status {
				res.Merge(blockHistory(key.applicationID, fmt.Sprintf("history entry %d of application %s does not describe %s -> %s", key.sequence, key.applicationID, before.Status, after.Status)))
			}
		}
	}
	return res, nil
}

func blockHistory(id, message string) domain.Result {
	return domain.Result{Violations: []domain.Violation{{
		Rule:     historyContinuityRuleName,
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   domain.EntityStatusHistory,
		EntityID: id,
	}}}
}
