package domain

import (
	"context"
	"time"
)

// StatusTopic is the broadcast topic family for status change events.
const StatusTopic = "application-status"

// EventStatusChanged is the only event type emitted today.
const EventStatusChanged = "status_changed"

// StatusChangedEvent is published once per committed status mutation.
type StatusChangedEvent struct {
	Type          string    `json:"type"`
	ApplicationID string    `json:"application_id"`
	OldStatus     Status    `json:"old_status"`
	NewStatus     Status    `json:"new_status"`
	ChangedAt     time.Time `json:"changed_at"`
	JobTitle      string    `json:"job_title"`
}

// TopicFor returns the topic viewers of one application subscribe to.
func TopicFor(applicationID string) string {
	return StatusTopic + ":" + applicationID
}

// Publisher fans events out to subscribed viewers. Delivery is at most once;
// an error means the event was dropped.
type Publisher interface {
	Publish(ctx context.Context, topic string, event StatusChangedEvent) error
}

// ExternalNotifier dispatches out-of-band notifications (email, messaging).
type ExternalNotifier interface {
	Notify(ctx context.Context, event StatusChangedEvent) error
}

// JobSummary is the slice of job metadata the core needs.
type JobSummary struct {
	ID          string
	Title       string
	RecruiterID string
}

// JobDirectory resolves job metadata owned by the job listing collaborator.
type JobDirectory interface {
	LookupJob(ctx context.Context, jobID string) (JobSummary, error)
}
