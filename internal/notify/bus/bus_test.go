package bus

import (
	"context"
	"errors"
	"testing"

	"talentcore/pkg/domain"
)

func TestPublishRoutesByTopic(t *testing.T) {
	b := New(4)
	one := b.Subscribe(domain.TopicFor("a1"))
	two := b.Subscribe(domain.TopicFor("a2"))
	all := b.Subscribe(domain.StatusTopic)
	defer one.Close()
	defer two.Close()
	defer all.Close()

	event := domain.StatusChangedEvent{Type: domain.EventStatusChanged, ApplicationID: "a1", NewStatus: domain.StatusOffer}
	if err := b.Publish(context.Background(), domain.TopicFor("a1"), event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := <-one.C(); got != event {
		t.Fatalf("unexpected event %+v", got)
	}
	if got := <-all.C(); got.ApplicationID != "a1" {
		t.Fatalf("base topic subscriber missed event, got %+v", got)
	}
	select {
	case got := <-two.C():
		t.Fatalf("unrelated subscriber received %+v", got)
	default:
	}
}

func TestPublishDropsWhenSubscriberIsFull(t *testing.T) {
	b := New(1)
	sub := b.Subscribe("application-status:a1")
	defer sub.Close()
	topic := domain.TopicFor("a1")
	if err := b.Publish(context.Background(), topic, domain.StatusChangedEvent{ApplicationID: "a1"}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	err := b.Publish(context.Background(), topic, domain.StatusChangedEvent{ApplicationID: "a1"})
	if !errors.Is(err, ErrDropped) {
		t.Fatalf("expected dropped error, got %v", err)
	}
	if b.Dropped() != 1 {
		t.Fatalf("expected 1 dropped delivery, got %d", b.Dropped())
	}
}

func TestCloseUnsubscribes(t *testing.T) {
	b := New(0)
	sub := b.Subscribe("t")
	if b.Subscribers("t") != 1 {
		t.Fatalf("expected one subscriber")
	}
	sub.Close()
	sub.Close()
	if b.Subscribers("t") != 0 {
		t.Fatalf("expected subscriber removed")
	}
	if _, open := <-sub.C(); open {
		t.Fatalf("expected closed channel")
	}
	if err := b.Publish(context.Background(), "t", domain.StatusChangedEvent{}); err != nil {
		t.Fatalf("publish with no subscribers: %v", err)
	}
}

func TestPublishHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := New(1).Publish(ctx, "t", domain.StatusChangedEvent{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}
