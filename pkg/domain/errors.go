package domain

import (
	"errors"
	"fmt"
)

// Mutation error taxonomy. Every failed lifecycle operation wraps exactly one
// of these so callers can branch with errors.Is.
var (
	// ErrVersionConflict means another mutation committed first; re-read and retry.
	ErrVersionConflict = errors.New("version conflict")
	// ErrInvalidTransition means the requested status change is not a valid transition.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrForbidden means the actor's role or ownership does not permit the change.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound means the application is missing or soft deleted.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyTerminal means the application is in a terminal status.
	ErrAlreadyTerminal = errors.New("already terminal")
)

var (
	// ErrDuplicateApplication means the talent already applied to the job.
	ErrDuplicateApplication = errors.New("duplicate application")
	// ErrInvalidSubmission means a new application is missing required fields.
	ErrInvalidSubmission = errors.New("invalid submission")
)

// MutationError carries the failing application and a human-readable detail.
type MutationError struct {
	Kind          error
	ApplicationID string
	Detail        string
}

// NewMutationError wraps kind with context.
func NewMutationError(kind error, applicationID, format string, args ...any) *MutationError {
	return &MutationError{Kind: kind, ApplicationID: applicationID, Detail: fmt.Sprintf(format, args...)}
}

func (e *MutationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("application %s: %v", e.ApplicationID, e.Kind)
	}
	return fmt.Sprintf("application %s: %v: %s", e.ApplicationID, e.Kind, e.Detail)
}

// Unwrap exposes the sentinel kind.
func (e *MutationError) Unwrap() error { return e.Kind }

// IsRetriable reports whether a caller may re-read and resubmit.
func IsRetriable(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// ErrorCode returns the stable machine-readable code for err, as used in API
// responses and metric labels. Unclassified errors map to "internal".
func ErrorCode(err error) string {
	var violation RuleViolationError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrVersionConflict):
		return "version_conflict"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyTerminal):
		return "already_terminal"
	case errors.Is(err, ErrDuplicateApplication):
		return "duplicate_application"
	case errors.Is(err, ErrInvalidSubmission), errors.Is(err, ErrInvalidCustomQA):
		return "invalid_submission"
	case errors.As(err, &violation):
		return "rule_violation"
	default:
		return "internal"
	}
}
