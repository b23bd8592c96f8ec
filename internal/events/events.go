package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sketchpad-api/internal/domain"
)

// JobEvent announces that a job reached a new state. It is published once
// per status-changing write and carries enough for a client to render the
// change without a follow-up read.
type JobEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	JobID   uuid.UUID        `json:"job_id"`
	OwnerID uuid.UUID        `json:"owner_id"`
	Kind    domain.Kind      `json:"kind"`
	Status  domain.JobStatus `json:"status"`

	// Result is the stored result bytes, present only for completed jobs.
	Result json.RawMessage `json:"result,omitempty"`

	// Error is the recorded failure, present only for failed jobs.
	Error *domain.JobError `json:"error,omitempty"`

	AttemptCount int   `json:"attempt_count"`
	Version      int64 `json:"version"`

	// OccurredAt is the job's updated_at at the time of the transition.
	OccurredAt time.Time `json:"occurred_at"`
}

// NewJobEvent builds the event describing job's current state.
func NewJobEvent(job *domain.Job) *JobEvent {
	e := &JobEvent{
		ID:           uuid.New(),
		JobID:        job.ID,
		OwnerID:      job.OwnerID,
		Kind:         job.Kind,
		Status:       job.Status,
		AttemptCount: job.AttemptCount,
		Version:      job.Version,
		OccurredAt:   job.UpdatedAt,
	}
	if job.Status == domain.JobStatusCompleted && len(job.Result) > 0 {
		e.Result = append(json.RawMessage(nil), job.Result...)
	}
	if job.Error != nil {
		jobErr := *job.Error
		e.Error = &jobErr
	}
	return e
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *JobEvent) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, event *JobEvent) error

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *JobEvent) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows the job engine to publish transitions without knowing which
// transports are configured.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *JobEvent) error
}
