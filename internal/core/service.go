package core

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	blobcore "talentcore/internal/infra/blob/core"
	"talentcore/internal/infra/persistence/memory"
	"talentcore/pkg/domain"
)

// DefaultRetention is how long a terminal application keeps its personal
// content after its last activity.
const DefaultRetention = 180 * 24 * time.Hour

// Operation names used for metrics, traces and logs.
const (
	OpSubmitApplication = "submit_application"
	OpUpdateStatus      = "update_status"
	OpGetApplication    = "get_application"
	OpListHistory       = "list_history"
	OpSoftDelete        = "soft_delete_application"
	OpAnonymize         = "anonymize_application"
	OpSweepRetention    = "sweep_retention"
)

// Service exposes the application lifecycle operations over an injected store.
type Service struct {
	store     PersistentStore
	clock     Clock
	logger    *zap.Logger
	metrics   MetricsRecorder
	tracer    Tracer
	notifier  *Notifier
	archive   blobcore.Store
	retention time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for retention eligibility.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder sets the operation metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

// WithTracer sets the span factory wrapped around every operation.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithNotifier sets the post-commit change notifier.
func WithNotifier(notifier *Notifier) Option {
	return func(s *Service) { s.notifier = notifier }
}

// WithArchive enables the audit export written after anonymization.
func WithArchive(archive blobcore.Store) Option {
	return func(s *Service) { s.archive = archive }
}

// WithRetention overrides DefaultRetention.
func WithRetention(retention time.Duration) Option {
	return func(s *Service) {
		if retention > 0 {
			s.retention = retention
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:     store,
		clock:     ClockFunc(time.Now),
		logger:    zap.NewNop(),
		metrics:   noopMetrics{},
		tracer:    noopTracer{},
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service and in-memory store with the given
// rules engine. The store shares the service clock.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	s := NewService(nil, opts...)
	s.store = memory.NewStore(engine, memory.WithClock(s.clock.Now))
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// Retention returns the configured retention window.
func (s *Service) Retention() time.Duration {
	return s.retention
}

// Close waits for in-flight notifications and releases the store.
func (s *Service) Close() error {
	s.notifier.Wait()
	return s.store.Close()
}

func (s *Service) run(ctx context.Context, op, applicationID string, fn func(context.Context) error) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := fn(ctx)
	span.End(err)
	outcome := domain.ErrorCode(err)
	s.metrics.Observe(ctx, op, outcome, time.Since(start))
	switch outcome {
	case "ok":
		s.logger.Debug("operation completed", zap.String("operation", op), zap.String("application_id", applicationID))
	case "internal", "rule_violation":
		s.logger.Error("operation failed", zap.String("operation", op), zap.String("application_id", applicationID), zap.Error(err))
	default:
		s.logger.Info("operation rejected", zap.String("operation", op), zap.String("application_id", applicationID), zap.String("outcome", outcome), zap.Error(err))
	}
	return err
}

// SubmitApplication creates a talent's application in status new at version
// 0. A talent holds at most one application per job.
func (s *Service) SubmitApplication(ctx context.Context, sub Submission) (Application, error) {
	var created Application
	err := s.run(ctx, OpSubmitApplication, "", func(ctx context.Context) error {
		sub.JobID = strings.TrimSpace(sub.JobID)
		sub.TalentID = strings.TrimSpace(sub.TalentID)
		if sub.JobID == "" || sub.TalentID == "" {
			return domain.NewMutationError(domain.ErrInvalidSubmission, "", "job_id and talent_id are required")
		}
		if sub.CustomQA != nil {
			if err := sub.CustomQA.Validate(); err != nil {
				return err
			}
		}
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			existing, ok, err := tx.FindApplicationByCandidate(sub.JobID, sub.TalentID)
			if err != nil {
				return err
			}
			if ok {
				return domain.NewMutationError(domain.ErrDuplicateApplication, existing.ID, "talent %s already applied to job %s", sub.TalentID, sub.JobID)
			}
			created, err = tx.CreateApplication(Application{
				JobID:       sub.JobID,
				TalentID:    sub.TalentID,
				CoverLetter: sub.CoverLetter,
				ResumeURL:   sub.ResumeURL,
				CustomQA:    sub.CustomQA,
			})
			return err
		})
		return err
	})
	if err != nil {
		return Application{}, err
	}
	return created, nil
}

// UpdateStatus moves an application to a new status when the caller's
// expected version is current and the registry allows the change. The status
// write and its history entry commit together; the change event is published
// after commit and its failure never fails the call.
func (s *Service) UpdateStatus(ctx context.Context, req StatusUpdate) (StatusChange, error) {
	var change StatusChange
	err := s.run(ctx, OpUpdateStatus, req.ApplicationID, func(ctx context.Context) error {
		if req.Actor.ID == "" {
			return domain.NewMutationError(domain.ErrForbidden, req.ApplicationID, "actor id is required")
		}
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			current, ok, err := tx.FindApplication(req.ApplicationID)
			if err != nil {
				return err
			}
			if !ok || current.IsDeleted() {
				return domain.NewMutationError(domain.ErrNotFound, req.ApplicationID, "")
			}
			if current.Version != req.ExpectedVersion {
				return domain.NewMutationError(domain.ErrVersionConflict, req.ApplicationID, "expected version %d, current %d", req.ExpectedVersion, current.Version)
			}
			isOwner := current.TalentID == req.Actor.ID
			if err := domain.Validate(current.Status, req.NewStatus, req.Actor.Role, isOwner).Err(); err != nil {
				return domain.NewMutationError(err, req.ApplicationID, "%s -> %s by %s", current.Status, req.NewStatus, req.Actor.Role)
			}
			now := tx.Now()
			updated, err := tx.CompareAndSwapStatus(req.ApplicationID, req.ExpectedVersion, domain.StatusMutation{
				Status:         req.NewStatus,
				LastActivityAt: now,
			})
			if err != nil {
				return err
			}
			old := current.Status
			entry, err := tx.AppendHistory(StatusHistoryEntry{
				ApplicationID: req.ApplicationID,
				Sequence:      updated.Version,
				OldStatus:     &old,
				NewStatus:     req.NewStatus,
				ChangedBy:     req.Actor.ID,
				Notes:         req.Notes,
				ChangedAt:     now,
			})
			if err != nil {
				return err
			}
			change = StatusChange{Application: updated, Entry: entry}
			return nil
		})
		return err
	})
	if err != nil {
		return StatusChange{}, err
	}
	s.notifier.StatusChanged(ctx, change)
	return change, nil
}

// GetApplication returns the committed application. Soft-deleted
// applications are reported as not found.
func (s *Service) GetApplication(ctx context.Context, id string) (Application, error) {
	var app Application
	err := s.run(ctx, OpGetApplication, id, func(ctx context.Context) error {
		found, ok, err := s.store.GetApplication(ctx, id)
		if err != nil {
			return err
		}
		if !ok || found.IsDeleted() {
			return domain.NewMutationError(domain.ErrNotFound, id, "")
		}
		app = found
		return nil
	})
	return app, err
}

// ListHistory returns the audit trail in chronological order. The trail of a
// soft-deleted application stays readable.
func (s *Service) ListHistory(ctx context.Context, id string) ([]StatusHistoryEntry, error) {
	var entries []StatusHistoryEntry
	err := s.run(ctx, OpListHistory, id, func(ctx context.Context) error {
		if err := s.requireApplication(ctx, id); err != nil {
			return err
		}
		var err error
		entries, err = s.store.ListHistory(ctx, id)
		return err
	})
	return entries, err
}

// StreamHistory visits the audit trail in ListHistory order.
func (s *Service) StreamHistory(ctx context.Context, id string, fn func(StatusHistoryEntry) error) error {
	return s.run(ctx, OpListHistory, id, func(ctx context.Context) error {
		if err := s.requireApplication(ctx, id); err != nil {
			return err
		}
		return s.store.StreamHistory(ctx, id, fn)
	})
}

func (s *Service) requireApplication(ctx context.Context, id string) error {
	_, ok, err := s.store.GetApplication(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NewMutationError(domain.ErrNotFound, id, "")
	}
	return nil
}

// SoftDeleteApplication hides a terminal application from the mutator and
// readers. Admins and the owning talent may delete; repeated calls return
// the existing marker.
func (s *Service) SoftDeleteApplication(ctx context.Context, id string, actor Actor) (Application, error) {
	var deleted Application
	err := s.run(ctx, OpSoftDelete, id, func(ctx context.Context) error {
		if actor.ID == "" {
			return domain.NewMutationError(domain.ErrForbidden, id, "actor id is required")
		}
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			current, ok, err := tx.FindApplication(id)
			if err != nil {
				return err
			}
			if !ok {
				return domain.NewMutationError(domain.ErrNotFound, id, "")
			}
			switch {
			case actor.Role == domain.RoleAdmin:
			case actor.Role == domain.RoleTalent && actor.ID == current.TalentID:
			default:
				return domain.NewMutationError(domain.ErrForbidden, id, "%s may not delete this application", actor.Role)
			}
			if current.IsDeleted() {
				deleted = current
				return nil
			}
			if !domain.IsTerminal(current.Status) {
				return domain.NewMutationError(domain.ErrInvalidTransition, id, "cannot delete application in status %s", current.Status)
			}
			deleted, err = tx.SoftDeleteApplication(id, actor.ID)
			return err
		})
		return err
	})
	if err != nil {
		return Application{}, err
	}
	return deleted, nil
}

// AnonymizeApplication erases personal content once the application is
// terminal and past the retention window. It reports false for applications
// that are not yet eligible and true once content is gone, including when it
// was already anonymized.
func (s *Service) AnonymizeApplication(ctx context.Context, id string) (bool, error) {
	var (
		anonymized bool
		exported   *AuditExport
	)
	err := s.run(ctx, OpAnonymize, id, func(ctx context.Context) error {
		_, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
			current, ok, err := tx.FindApplication(id)
			if err != nil {
				return err
			}
			if !ok {
				return domain.NewMutationError(domain.ErrNotFound, id, "")
			}
			if current.IsAnonymized() {
				anonymized = true
				return nil
			}
			if !s.eligible(current) {
				return nil
			}
			scrubbed, err := tx.AnonymizeApplication(id)
			if err != nil {
				return err
			}
			history, err := tx.Snapshot().ListHistory(id)
			if err != nil {
				return err
			}
			anonymized = true
			exported = &AuditExport{Application: scrubbed, History: history}
			return nil
		})
		return err
	})
	if err != nil {
		return false, err
	}
	if exported != nil {
		s.exportAudit(ctx, exported.Application, exported.History)
	}
	return anonymized, nil
}

func (s *Service) eligible(app Application) bool {
	if !domain.IsTerminal(app.Status) {
		return false
	}
	return !app.LastActivityAt.Add(s.retention).After(s.clock.Now())
}

// SweepRetention anonymizes up to limit eligible applications (limit <= 0
// means no limit). Individual failures are counted and do not stop the sweep.
func (s *Service) SweepRetention(ctx context.Context, limit int) (SweepReport, error) {
	var report SweepReport
	err := s.run(ctx, OpSweepRetention, "", func(ctx context.Context) error {
		cutoff := s.clock.Now().Add(-s.retention)
		ids, err := s.store.ListRetentionCandidates(ctx, cutoff, limit)
		if err != nil {
			return err
		}
		report.Candidates = len(ids)
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			done, err := s.AnonymizeApplication(ctx, id)
			switch {
			case err != nil:
				report.Failed++
			case done:
				report.Anonymized++
			default:
				report.Skipped++
			}
		}
		return nil
	})
	if err == nil {
		s.logger.Info("retention sweep finished",
			zap.Int("candidates", report.Candidates),
			zap.Int("anonymized", report.Anonymized),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed))
	}
	return report, err
}
