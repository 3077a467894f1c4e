package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"talentcore/internal/infra/persistence/storetest"
	"talentcore/pkg/domain"
)

var (
	recruiter = Actor{ID: "recruiter-1", Role: domain.RoleBusiness}
	admin     = Actor{ID: "admin-1", Role: domain.RoleAdmin}
	owner     = Actor{ID: "talent-1", Role: domain.RoleTalent}
	stranger  = Actor{ID: "talent-2", Role: domain.RoleTalent}
)

func newTestService(t *testing.T, opts ...Option) (*Service, *storetest.Clock) {
	t.Helper()
	clock := storetest.NewClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	opts = append([]Option{WithClock(ClockFunc(clock.Now))}, opts...)
	return NewInMemoryService(NewDefaultRulesEngine(), opts...), clock
}

func submit(t *testing.T, svc *Service) Application {
	t.Helper()
	cover := "I would love to join."
	app, err := svc.SubmitApplication(context.Background(), Submission{
		JobID:       "job-1",
		TalentID:    owner.ID,
		CoverLetter: &cover,
		CustomQA:    &domain.CustomQA{SchemaVersion: domain.CustomQASchemaVersion, Answers: map[string]string{"why": "growth"}},
	})
	if err != nil {
		t.Fatalf("submit application: %v", err)
	}
	return app
}

func advance(t *testing.T, svc *Service, app Application, actor Actor, to domain.Status, notes string) Application {
	t.Helper()
	req := StatusUpdate{ApplicationID: app.ID, ExpectedVersion: app.Version, NewStatus: to, Actor: actor}
	if notes != "" {
		req.Notes = &notes
	}
	change, err := svc.UpdateStatus(context.Background(), req)
	if err != nil {
		t.Fatalf("update %s -> %s: %v", app.Status, to, err)
	}
	return change.Application
}

func expectKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []domain.StatusChangedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event domain.StatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Events() []domain.StatusChangedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.StatusChangedEvent(nil), p.events...)
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
	notified map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{outcomes: map[string]int{}, notified: map[string]int{}}
}

func (r *countingRecorder) Observe(_ context.Context, op, outcome string, _ time.Duration) {
	r.mu.Lock()
	r.outcomes[op+"/"+outcome]++
	r.mu.Unlock()
}

func (r *countingRecorder) Notification(channel, result string) {
	r.mu.Lock()
	r.notified[channel+"/"+result]++
	r.mu.Unlock()
}

func (r *countingRecorder) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.outcomes[key]; ok {
		return n
	}
	return r.notified[key]
}
