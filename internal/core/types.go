package core

import "talentcore/pkg/domain"

type (
	Application        = domain.Application
	StatusHistoryEntry = domain.StatusHistoryEntry
	Status             = domain.Status
	Actor              = domain.Actor
	Change             = domain.Change
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
	RulesEngine        = domain.RulesEngine
)

// StatusUpdate is a request to move an application to NewStatus. The
// caller must supply the version it last read.
type StatusUpdate struct {
	ApplicationID   string
	ExpectedVersion int64
	NewStatus       Status
	Actor           Actor
	Notes           *string
}

// StatusChange is the committed outcome of a successful StatusUpdate.
type StatusChange struct {
	Application Application        `json:"application"`
	Entry       StatusHistoryEntry `json:"history_entry"`
}

// Submission carries a talent's new application.
type Submission struct {
	JobID       string
	TalentID    string
	CoverLetter *string
	ResumeURL   *string
	CustomQA    *domain.CustomQA
}

// SweepReport summarises one retention sweep.
type SweepReport struct {
	Candidates int `json:"candidates"`
	Anonymized int `json:"anonymized"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}
