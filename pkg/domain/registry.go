package domain

// Decision is the outcome of a registry check.
type Decision string

// Registry decisions.
const (
	Allowed           Decision = "allowed"
	InvalidTransition Decision = "invalid_transition"
	Forbidden         Decision = "forbidden"
	AlreadyTerminal   Decision = "already_terminal"
)

// Err maps a decision to its sentinel error; Allowed maps to nil.
func (d Decision) Err() error {
	switch d {
	case Allowed:
		return nil
	case InvalidTransition:
		return ErrInvalidTransition
	case Forbidden:
		return ErrForbidden
	case AlreadyTerminal:
		return ErrAlreadyTerminal
	default:
		return ErrInvalidTransition
	}
}

var knownStatuses = toStatusSet(
	StatusNew,
	StatusInReview,
	StatusInterview,
	StatusOffer,
	StatusHired,
	StatusRejected,
	StatusWithdrawn,
)

var terminalStatuses = toStatusSet(StatusHired, StatusRejected, StatusWithdrawn)

// roleTargets lists, per role, the statuses that role may move an application into.
var roleTargets = map[Role]map[Status]struct{}{
	RoleTalent:   toStatusSet(StatusWithdrawn),
	RoleBusiness: toStatusSet(StatusInReview, StatusInterview, StatusOffer, StatusHired, StatusRejected),
	RoleAdmin:    toStatusSet(StatusInReview, StatusInterview, StatusOffer, StatusHired, StatusRejected),
}

// Statuses returns the registry's state set in funnel order.
func Statuses() []Status {
	return []Status{StatusNew, StatusInReview, StatusInterview, StatusOffer, StatusHired, StatusRejected, StatusWithdrawn}
}

// IsKnownStatus reports whether s is a member of the state set.
func IsKnownStatus(s Status) bool {
	_, ok := knownStatuses[s]
	return ok
}

// IsTerminal reports whether s permits no outgoing transitions.
func IsTerminal(s Status) bool {
	_, ok := terminalStatuses[s]
	return ok
}

// IsKnownRole reports whether r is a recognised actor role.
func IsKnownRole(r Role) bool {
	_, ok := roleTargets[r]
	return ok
}

// Validate decides whether actorRole may move an application from current to
// requested. isOwner only matters for talent actors. The check is pure.
func Validate(current, requested Status, actorRole Role, isOwner bool) Decision {
	if !IsKnownStatus(requested) || requested == StatusNew {
		return InvalidTransition
	}
	if IsTerminal(current) {
		return AlreadyTerminal
	}
	targets, ok := roleTargets[actorRole]
	if !ok {
		return Forbidden
	}
	if _, ok := targets[requested]; !ok {
		return Forbidden
	}
	if actorRole == RoleTalent && !isOwner {
		return Forbidden
	}
	if requested == current {
		return InvalidTransition
	}
	return Allowed
}

func toStatusSet(values ...Status) map[Status]struct{} {
	set := make(map[Status]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
