package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"pbxcore/pkg/domain"
)

// RedisPublisher pushes events onto Redis pub/sub channels so sibling
// services observe lifecycle changes without polling. Channel name is
// "<prefix>.<topic>".
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

// NewRedisPublisher wraps an existing client. An empty prefix defaults to
// "pbxcore".
func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = "pbxcore"
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

// Publish serializes the event as JSON and publishes it. Failures surface as
// DeliveryError; the caller decides whether to log or escalate.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return domain.DeliveryError{Topic: ev.Topic, Err: err}
	}
	channel := fmt.Sprintf("%s.%s", p.prefix, ev.Topic)
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return domain.DeliveryError{Topic: ev.Topic, Err: err}
	}
	return nil
}
