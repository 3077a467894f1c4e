// Package domain defines the application lifecycle entities, the status
// registry, and the persistence and rule-evaluation contracts shared by
// talentcore's stores and services.
package domain

import "time"

// EntityType identifies the type of record captured in Change entries.
type EntityType string

// Supported entity type identifiers.
const (
	// EntityApplication identifies an application record.
	EntityApplication EntityType = "application"
	// EntityStatusHistory identifies a status history entry.
	EntityStatusHistory EntityType = "status_history"
)

// Status is a position in the hiring funnel.
type Status string

// Canonical application statuses.
const (
	StatusNew       Status = "new"
	StatusInReview  Status = "in_review"
	StatusInterview Status = "interview"
	StatusOffer     Status = "offer"
	StatusHired     Status = "hired"
	StatusRejected  Status = "rejected"
	StatusWithdrawn Status = "withdrawn"
)

// Role is the trusted actor role supplied by the auth collaborator.
type Role string

// Recognised actor roles.
const (
	RoleTalent   Role = "talent"
	RoleBusiness Role = "business"
	RoleAdmin    Role = "admin"
)

// Actor identifies who is performing an operation.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Application is one talent's candidacy for one job.
type Application struct {
	ID             string     `json:"id"`
	JobID          string     `json:"job_id"`
	TalentID       string     `json:"talent_id"`
	Status         Status     `json:"status"`
	Version        int64      `json:"version"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	CoverLetter    *string    `json:"cover_letter"`
	ResumeURL      *string    `json:"resume_url"`
	CustomQA       *CustomQA  `json:"custom_q_a"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	DeletedBy      *string    `json:"deleted_by,omitempty"`
	AnonymizedAt   *time.Time `json:"anonymized_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// IsDeleted reports whether the application was soft deleted.
func (a Application) IsDeleted() bool { return a.DeletedAt != nil }

// IsAnonymized reports whether personal content has been erased.
func (a Application) IsAnonymized() bool { return a.AnonymizedAt != nil }

// StatusHistoryEntry is one immutable record of a realized transition.
// Sequence equals the application version the transition produced and
// orders entries sharing a ChangedAt timestamp.
type StatusHistoryEntry struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	Sequence      int64     `json:"sequence"`
	OldStatus     *Status   `json:"old_status"`
	NewStatus     Status    `json:"new_status"`
	ChangedBy     string    `json:"changed_by"`
	Notes         *string   `json:"notes"`
	ChangedAt     time.Time `json:"changed_at"`
}

// StatusMutation carries the fields a conditional status update writes.
type StatusMutation struct {
	Status         Status
	LastActivityAt time.Time
}

// CloneApplication returns a deep copy so callers never share pointers with store state.
func CloneApplication(a Application) Application {
	cp := a
	cp.CoverLetter = cloneString(a.CoverLetter)
	cp.ResumeURL = cloneString(a.ResumeURL)
	cp.DeletedBy = cloneString(a.DeletedBy)
	cp.DeletedAt = cloneTime(a.DeletedAt)
	cp.AnonymizedAt = cloneTime(a.AnonymizedAt)
	if a.CustomQA != nil {
		qa := a.CustomQA.Clone()
		cp.CustomQA = &qa
	}
	return cp
}

// CloneHistoryEntry returns a deep copy of a history entry.
func CloneHistoryEntry(e StatusHistoryEntry) StatusHistoryEntry {
	cp := e
	if e.OldStatus != nil {
		old := *e.OldStatus
		cp.OldStatus = &old
	}
	cp.Notes = cloneString(e.Notes)
	return cp
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

// Change records a mutation performed within a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Supported change actions.
const (
	ActionCreate    Action = "create"
	ActionUpdate    Action = "update"
	ActionAppend    Action = "append"
	ActionDelete    Action = "soft_delete"
	ActionAnonymize Action = "anonymize"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn allows commit but is surfaced in the Result.
	SeverityWarn Severity = "warn"
)

// Violation describes a rule finding.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}
