package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sketchpad-api/internal/domain"
	"github.com/phrazzld/sketchpad-api/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	subject string
	data    []byte
	err     error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.subject = subject
	c.data = data
	return c.err
}

func testEvent() *events.JobEvent {
	return &events.JobEvent{
		ID:         uuid.New(),
		JobID:      uuid.New(),
		OwnerID:    uuid.MustParse("6f1c2d9e-8a2b-4c1e-9f00-3d2a1b0c9e8f"),
		Kind:       domain.KindCanvasGeneration,
		Status:     domain.JobStatusCompleted,
		Result:     json.RawMessage(`{"shapes":[{"type":"rect","x":0,"y":0}]}`),
		Version:    4,
		OccurredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestPublisher_HandleEvent(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "sketchpad.jobs", slog.New(slog.NewTextHandler(io.Discard, nil)))
	event := testEvent()

	require.NoError(t, p.HandleEvent(context.Background(), event))
	assert.Equal(t, "sketchpad.jobs.6f1c2d9e-8a2b-4c1e-9f00-3d2a1b0c9e8f", conn.subject)

	var decoded events.JobEvent
	require.NoError(t, json.Unmarshal(conn.data, &decoded))
	assert.Equal(t, event.JobID, decoded.JobID)
	assert.Equal(t, domain.JobStatusCompleted, decoded.Status)
	assert.JSONEq(t, string(event.Result), string(decoded.Result))
}

func TestPublisher_PublishError(t *testing.T) {
	boom := errors.New("nats: connection closed")
	p := NewPublisher(&fakeConn{err: boom}, "jobs", slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := p.HandleEvent(context.Background(), testEvent())
	assert.ErrorIs(t, err, boom)
}
