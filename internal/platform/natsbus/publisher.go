// Package natsbus publishes job events to NATS. Each owner has its own
// subject, <prefix>.<owner_id>, so consumers can subscribe per user or to
// <prefix>.> for everything.
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/phrazzld/sketchpad-api/internal/events"
)

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Publisher is an events.EventHandler that forwards events to NATS.
type Publisher struct {
	conn   Conn
	prefix string
	logger *slog.Logger
}

var _ events.EventHandler = (*Publisher)(nil)

// Connect dials the NATS server at url and keeps reconnecting forever.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("sketchpad-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return nc, nil
}

// NewPublisher creates a publisher writing under prefix.
func NewPublisher(conn Conn, prefix string, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		prefix: prefix,
		logger: logger.With("component", "nats_publisher"),
	}
}

// Subject returns the subject events for event's owner are published on.
func (p *Publisher) Subject(event *events.JobEvent) string {
	return p.prefix + "." + event.OwnerID.String()
}

// HandleEvent publishes event as JSON.
func (p *Publisher) HandleEvent(_ context.Context, event *events.JobEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode job event: %w", err)
	}

	subject := p.Subject(event)
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Error("failed to publish job event",
			"subject", subject,
			"job_id", event.JobID,
			"error", err)
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}
