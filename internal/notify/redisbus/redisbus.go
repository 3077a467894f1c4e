// Package redisbus carries status change events between talentcore
// instances over Redis pub/sub.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"talentcore/pkg/domain"
)

// Publisher sends events to the Redis channel named after the topic.
type Publisher struct {
	client redis.UniversalClient
	prefix string
}

var _ domain.Publisher = (*Publisher)(nil)

// NewPublisher wraps client. A non-empty prefix namespaces channel names.
func NewPublisher(client redis.UniversalClient, prefix string) *Publisher {
	return &Publisher{client: client, prefix: strings.TrimSuffix(prefix, ":")}
}

// Channel maps a topic to its Redis channel.
func (p *Publisher) Channel(topic string) string {
	if p.prefix == "" {
		return topic
	}
	return p.prefix + ":" + topic
}

// Publish encodes event as JSON and publishes it.
func (p *Publisher) Publish(ctx context.Context, topic string, event domain.StatusChangedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.client.Publish(ctx, p.Channel(topic), payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

// Relay subscribes to every status topic in Redis and republishes decoded
// events to a local publisher, typically the in-process bus feeding
// WebSocket viewers. It returns when ctx is done.
func (p *Publisher) Relay(ctx context.Context, local domain.Publisher, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	pubsub := p.client.PSubscribe(ctx, p.Channel(domain.StatusTopic)+":*")
	defer func() { _ = pubsub.Close() }()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := p.forward(ctx, local, msg.Channel, msg.Payload); err != nil {
				logger.Warn("redis relay dropped event", zap.String("channel", msg.Channel), zap.Error(err))
			}
		}
	}
}

func (p *Publisher) forward(ctx context.Context, local domain.Publisher, channel, payload string) error {
	var event domain.StatusChangedEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	topic := channel
	if p.prefix != "" {
		topic = strings.TrimPrefix(channel, p.prefix+":")
	}
	return local.Publish(ctx, topic, event)
}
