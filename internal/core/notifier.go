package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"talentcore/pkg/domain"
)

const (
	defaultPublishTimeout  = 2 * time.Second
	defaultExternalTimeout = 10 * time.Second

	channelPublisher = "publisher"
	channelExternal  = "external"

	resultDelivered = "delivered"
	resultFailed    = "failed"
)

// Notifier publishes status change events after commit. Delivery is best
// effort: failures are logged and counted but never reported to the caller.
type Notifier struct {
	publisher       domain.Publisher
	external        domain.ExternalNotifier
	jobs            domain.JobDirectory
	logger          *zap.Logger
	recorder        NotificationRecorder
	publishTimeout  time.Duration
	externalTimeout time.Duration
	wg              sync.WaitGroup
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithExternalNotifier adds an out-of-band hook dispatched on its own goroutine.
func WithExternalNotifier(external domain.ExternalNotifier) NotifierOption {
	return func(n *Notifier) { n.external = external }
}

// WithJobDirectory resolves job titles for event payloads.
func WithJobDirectory(jobs domain.JobDirectory) NotifierOption {
	return func(n *Notifier) { n.jobs = jobs }
}

// WithNotifierLogger sets the logger used for delivery failures.
func WithNotifierLogger(logger *zap.Logger) NotifierOption {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithNotificationRecorder counts delivery outcomes.
func WithNotificationRecorder(recorder NotificationRecorder) NotifierOption {
	return func(n *Notifier) {
		if recorder != nil {
			n.recorder = recorder
		}
	}
}

// WithTimeouts overrides the publish and external dispatch deadlines.
func WithTimeouts(publish, external time.Duration) NotifierOption {
	return func(n *Notifier) {
		if publish > 0 {
			n.publishTimeout = publish
		}
		if external > 0 {
			n.externalTimeout = external
		}
	}
}

// NewNotifier constructs a notifier around the primary publisher, which may be nil.
func NewNotifier(publisher domain.Publisher, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		publisher:       publisher,
		logger:          zap.NewNop(),
		recorder:        noopMetrics{},
		publishTimeout:  defaultPublishTimeout,
		externalTimeout: defaultExternalTimeout,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// StatusChanged emits exactly one event for a committed change. The caller's
// cancellation does not abort delivery of an already committed change.
func (n *Notifier) StatusChanged(ctx context.Context, change StatusChange) {
	if n == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	event := n.event(ctx, change)

	if n.publisher != nil {
		pubCtx, cancel := context.WithTimeout(ctx, n.publishTimeout)
		err := n.publisher.Publish(pubCtx, domain.TopicFor(event.ApplicationID), event)
		cancel()
		n.record(channelPublisher, event, err)
	}

	if n.external != nil {
		n.wg.Add(1)
		go n.dispatchExternal(ctx, event)
	}
}

// Wait blocks until in-flight external dispatches finish.
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}

func (n *Notifier) dispatchExternal(ctx context.Context, event domain.StatusChangedEvent) {
	defer n.wg.Done()
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("external notifier panic: %v", r)
		}
		n.record(channelExternal, event, err)
	}()
	extCtx, cancel := context.WithTimeout(ctx, n.externalTimeout)
	defer cancel()
	err = n.external.Notify(extCtx, event)
}

func (n *Notifier) event(ctx context.Context, change StatusChange) domain.StatusChangedEvent {
	event := domain.StatusChangedEvent{
		Type:          domain.EventStatusChanged,
		ApplicationID: change.Application.ID,
		NewStatus:     change.Entry.NewStatus,
		ChangedAt:     change.Entry.ChangedAt,
	}
	if change.Entry.OldStatus != nil {
		event.OldStatus = *change.Entry.OldStatus
	}
	if n.jobs != nil {
		job, err := n.lookupJob(ctx, change.Application.JobID)
		if err != nil {
			n.logger.Warn("job lookup failed",
				zap.String("application_id", change.Application.ID),
				zap.String("job_id", change.Application.JobID),
				zap.Error(err))
		} else {
			event.JobTitle = job.Title
		}
	}
	return event
}

// lookupJob bounds the directory call by the publish timeout, including
// directories that ignore their context.
func (n *Notifier) lookupJob(ctx context.Context, jobID string) (domain.JobSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, n.publishTimeout)
	defer cancel()
	type result struct {
		job domain.JobSummary
		err error
	}
	done := make(chan result, 1)
	go func() {
		var res result
		defer func() {
			if r := recover(); r != nil {
				res.err = fmt.Errorf("job directory panic: %v", r)
			}
			done <- res
		}()
		res.job, res.err = n.jobs.LookupJob(ctx, jobID)
	}()
	select {
	case res := <-done:
		return res.job, res.err
	case <-ctx.Done():
		return domain.JobSummary{}, fmt.Errorf("lookup job %s: %w", jobID, ctx.Err())
	}
}

func (n *Notifier) record(channel string, event domain.StatusChangedEvent, err error) {
	if err == nil {
		n.recorder.Notification(channel, resultDelivered)
		return
	}
	n.recorder.Notification(channel, resultFailed)
	n.logger.Warn("status change notification failed",
		zap.String("channel", channel),
		zap.String("application_id", event.ApplicationID),
		zap.String("new_status", string(event.NewStatus)),
		zap.Error(err))
}
