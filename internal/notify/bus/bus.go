// Package bus is the in-process fan-out for status change events. Subscribers
// receive events on buffered channels; a subscriber that falls behind loses
// events instead of stalling the publisher.
package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"talentcore/pkg/domain"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 16

// ErrDropped reports that at least one subscriber missed the event.
var ErrDropped = errors.New("event dropped for slow subscriber")

// Bus implements domain.Publisher in memory.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]map[*Subscription]struct{}
	buffer  int
	dropped atomic.Int64
}

var _ domain.Publisher = (*Bus)(nil)

// Subscription delivers events for one topic until closed.
type Subscription struct {
	topic string
	ch    chan domain.StatusChangedEvent
	bus   *Bus
	once  sync.Once
}

// New builds a bus with the given per-subscriber buffer (<= 0 uses DefaultBuffer).
func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{subs: make(map[string]map[*Subscription]struct{}), buffer: buffer}
}

// Subscribe registers interest in a topic. Subscribing to the base topic
// domain.StatusTopic receives events for every application.
func (b *Bus) Subscribe(topic string) *Subscription {
	sub := &Subscription{topic: topic, ch: make(chan domain.StatusChangedEvent, b.buffer), bus: b}
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*Subscription]struct{})
	}
	b.subs[topic][sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Publish delivers event to subscribers of topic and of its base topic.
func (b *Bus) Publish(ctx context.Context, topic string, event domain.StatusChangedEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	topics := []string{topic}
	if base, _, ok := strings.Cut(topic, ":"); ok {
		topics = append(topics, base)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	var missed int
	for _, t := range topics {
		for sub := range b.subs[t] {
			select {
			case sub.ch <- event:
			default:
				missed++
			}
		}
	}
	if missed > 0 {
		b.dropped.Add(int64(missed))
		return fmt.Errorf("%w: %d subscriber(s) on %s", ErrDropped, missed, topic)
	}
	return nil
}

// Dropped returns the number of deliveries lost to full buffers.
func (b *Bus) Dropped() int64 { return b.dropped.Load() }

// Subscribers returns the number of live subscriptions on topic.
func (b *Bus) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string { return s.topic }

// C returns the delivery channel. It is closed by Close.
func (s *Subscription) C() <-chan domain.StatusChangedEvent { return s.ch }

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs[s.topic], s)
		if len(s.bus.subs[s.topic]) == 0 {
			delete(s.bus.subs, s.topic)
		}
		s.bus.mu.Unlock()
		close(s.ch)
	})
}
