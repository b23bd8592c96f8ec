// Package redisbus publishes job events on Redis pub/sub channels named
// <prefix>:<owner_id>.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/phrazzld/sketchpad-api/internal/events"
	"github.com/redis/go-redis/v9"
)

// Client is the part of redis.Cmdable the publisher uses.
type Client interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Publisher is an events.EventHandler that forwards events to Redis.
type Publisher struct {
	client Client
	prefix string
	logger *slog.Logger
}

var _ events.EventHandler = (*Publisher)(nil)

// NewClient parses url (redis://...) and returns a client. The caller owns
// its lifecycle.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// NewPublisher creates a publisher writing under prefix.
func NewPublisher(client Client, prefix string, logger *slog.Logger) *Publisher {
	return &Publisher{
		client: client,
		prefix: prefix,
		logger: logger.With("component", "redis_publisher"),
	}
}

// Channel returns the channel events for event's owner are published on.
func (p *Publisher) Channel(event *events.JobEvent) string {
	return p.prefix + ":" + event.OwnerID.String()
}

// HandleEvent publishes event as JSON. The receiver count is logged at debug
// level; zero listeners is not an error.
func (p *Publisher) HandleEvent(ctx context.Context, event *events.JobEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode job event: %w", err)
	}

	channel := p.Channel(event)
	receivers, err := p.client.Publish(ctx, channel, data).Result()
	if err != nil {
		p.logger.Error("failed to publish job event",
			"channel", channel,
			"job_id", event.JobID,
			"error", err)
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	p.logger.Debug("published job event",
		"channel", channel,
		"job_id", event.JobID,
		"receivers", receivers)
	return nil
}
