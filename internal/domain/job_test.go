package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func validCanvasPayload() json.RawMessage {
	return json.RawMessage(`{"canvas_id":"` + uuid.NewString() + `","prompt":"a lighthouse at dusk","width":800,"height":600}`)
}

func newTestJob(t *testing.T) *Job {
	t.Helper()
	job, err := NewJob(uuid.New(), KindCanvasGeneration, validCanvasPayload(), 5, 3, time.Now())
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	return job
}

func TestNewJob(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job, err := NewJob(owner, KindCanvasGeneration, validCanvasPayload(), 10, 3, now)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if job.ID == uuid.Nil {
		t.Error("Expected non-nil UUID, got nil UUID")
	}
	if job.OwnerID != owner {
		t.Errorf("Expected owner %s, got %s", owner, job.OwnerID)
	}
	if job.Status != JobStatusQueued {
		t.Errorf("Expected status %s, got %s", JobStatusQueued, job.Status)
	}
	if job.AttemptCount != 0 || job.Version != 0 {
		t.Errorf("Expected zero attempt_count and version, got %d and %d", job.AttemptCount, job.Version)
	}
	if !job.NextAttemptAt.Equal(now) {
		t.Errorf("Expected next_attempt_at %v, got %v", now, job.NextAttemptAt)
	}

	var payload CanvasGenerationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		t.Fatalf("Expected normalized payload, got %v", err)
	}
	if payload.MaxShapes != DefaultMaxShapes {
		t.Errorf("Expected default max_shapes %d, got %d", DefaultMaxShapes, payload.MaxShapes)
	}
}

func TestNewJobValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		owner       uuid.UUID
		kind        Kind
		payload     json.RawMessage
		priority    int
		maxAttempts int
		field       string
	}{
		{"missing owner", uuid.Nil, KindCanvasGeneration, validCanvasPayload(), 0, 3, "owner_id"},
		{"unknown kind", uuid.New(), Kind("video_render"), validCanvasPayload(), 0, 3, "kind"},
		{"priority too high", uuid.New(), KindCanvasGeneration, validCanvasPayload(), MaxPriority + 1, 3, "priority"},
		{"zero attempts", uuid.New(), KindCanvasGeneration, validCanvasPayload(), 0, 0, "max_attempts"},
		{"empty payload", uuid.New(), KindCanvasGeneration, nil, 0, 3, "payload"},
		{"malformed payload", uuid.New(), KindCanvasGeneration, json.RawMessage(`{"prompt":`), 0, 3, "payload"},
		{"unknown field", uuid.New(), KindCanvasGeneration,
			json.RawMessage(`{"canvas_id":"` + uuid.NewString() + `","prompt":"x","width":1,"height":1,"color":"red"}`), 0, 3, "payload"},
		{"missing canvas", uuid.New(), KindCanvasGeneration,
			json.RawMessage(`{"prompt":"x","width":1,"height":1}`), 0, 3, "payload.canvas_id"},
		{"bad style", uuid.New(), KindCanvasGeneration,
			json.RawMessage(`{"canvas_id":"` + uuid.NewString() + `","prompt":"x","width":1,"height":1,"style":"oil"}`), 0, 3, "payload.Style"},
		{"zero width", uuid.New(), KindCanvasGeneration,
			json.RawMessage(`{"canvas_id":"` + uuid.NewString() + `","prompt":"x","width":0,"height":1}`), 0, 3, "payload.Width"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewJob(tt.owner, tt.kind, tt.payload, tt.priority, tt.maxAttempts, time.Now())
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("Expected validation error, got %v", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected *ValidationError, got %T", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Expected field %q, got %q", tt.field, verr.Field)
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	allowed := map[[2]JobStatus]bool{
		{JobStatusQueued, JobStatusProcessing}:     true,
		{JobStatusQueued, JobStatusCancelled}:      true,
		{JobStatusQueued, JobStatusQueued}:         true,
		{JobStatusProcessing, JobStatusProcessing}: true,
		{JobStatusProcessing, JobStatusCompleted}:  true,
		{JobStatusProcessing, JobStatusFailed}:     true,
		{JobStatusProcessing, JobStatusCancelled}:  true,
		{JobStatusProcessing, JobStatusQueued}:     true,
		{JobStatusFailed, JobStatusQueued}:         true,
	}

	for _, from := range AllJobStatuses {
		for _, to := range AllJobStatuses {
			want := allowed[[2]JobStatus{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCheckMutation(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	worker := "worker-1"

	t.Run("claim", func(t *testing.T) {
		t.Parallel()
		before := newTestJob(t)
		after := before.Clone()
		after.Status = JobStatusProcessing
		after.ClaimedBy = &worker
		after.ClaimExpiresAt = &now
		after.AttemptCount = 1
		if err := CheckMutation(before, after); err != nil {
			t.Errorf("Expected claim to be valid, got %v", err)
		}
	})

	t.Run("completed with error is rejected", func(t *testing.T) {
		t.Parallel()
		before := newTestJob(t)
		before.Status = JobStatusProcessing
		before.ClaimedBy = &worker
		before.ClaimExpiresAt = &now
		after := before.Clone()
		after.Status = JobStatusCompleted
		after.ClaimedBy = nil
		after.ClaimExpiresAt = nil
		after.FinishedAt = &now
		after.Result = json.RawMessage(`{}`)
		after.Error = &JobError{Code: "x", Message: "y"}
		if err := CheckMutation(before, after); !errors.Is(err, ErrInvariant) {
			t.Errorf("Expected invariant error, got %v", err)
		}
	})

	t.Run("failed with result is rejected", func(t *testing.T) {
		t.Parallel()
		before := newTestJob(t)
		before.Status = JobStatusProcessing
		before.ClaimedBy = &worker
		before.ClaimExpiresAt = &now
		after := before.Clone()
		after.Status = JobStatusFailed
		after.ClaimedBy = nil
		after.ClaimExpiresAt = nil
		after.FinishedAt = &now
		after.Result = json.RawMessage(`{}`)
		after.Error = &JobError{Code: "x", Message: "y"}
		if err := CheckMutation(before, after); !errors.Is(err, ErrInvariant) {
			t.Errorf("Expected invariant error, got %v", err)
		}
	})

	t.Run("terminal is immutable", func(t *testing.T) {
		t.Parallel()
		before := newTestJob(t)
		before.Status = JobStatusCancelled
		before.FinishedAt = &now
		after := before.Clone()
		after.Priority = 99
		if err := CheckMutation(before, after); !errors.Is(err, ErrTerminalState) {
			t.Errorf("Expected terminal state error, got %v", err)
		}
	})

	t.Run("manual retry leaves failed", func(t *testing.T) {
		t.Parallel()
		before := newTestJob(t)
		before.Status = JobStatusFailed
		before.FinishedAt = &now
		before.AttemptCount = 3
		before.Error = &JobError{Code: "timeout", Message: "timed out"}
		after := before.Clone()
		after.Status = JobStatusQueued
		after.Error = nil
		after.FinishedAt = nil
		after.MaxAttempts = 6
		if err := CheckMutation(before, after); err != nil {
			t.Errorf("Expected manual retry to be valid, got %v", err)
		}
	})

	t.Run("payload is immutable", func(t *testing.T) {
		t.Parallel()
		before := newTestJob(t)
		after := before.Clone()
		after.Payload = validCanvasPayload()
		if err := CheckMutation(before, after); !errors.Is(err, ErrImmutableField) {
			t.Errorf("Expected immutable field error, got %v", err)
		}
	})

	t.Run("attempts cannot exceed max", func(t *testing.T) {
		t.Parallel()
		before := newTestJob(t)
		after := before.Clone()
		after.AttemptCount = after.MaxAttempts + 1
		if err := CheckMutation(before, after); !errors.Is(err, ErrInvariant) {
			t.Errorf("Expected invariant error, got %v", err)
		}
	})
}

func TestIsClaimable(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	job := newTestJob(t)
	job.NextAttemptAt = now

	if !job.IsClaimable(now) {
		t.Error("Expected queued job to be claimable")
	}
	if job.IsClaimable(now.Add(-time.Second)) {
		t.Error("Expected job to wait for next_attempt_at")
	}

	job.AttemptCount = job.MaxAttempts
	if job.IsClaimable(now) {
		t.Error("Expected exhausted job not to be claimable")
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	job := newTestJob(t)
	worker := "w"
	job.ClaimedBy = &worker
	clone := job.Clone()

	clone.Payload[0] = 'X'
	*clone.ClaimedBy = "other"

	if job.Payload[0] == 'X' {
		t.Error("Expected payload to be copied")
	}
	if *job.ClaimedBy != "w" {
		t.Error("Expected claimed_by to be copied")
	}
}

func TestParseJobStatus(t *testing.T) {
	t.Parallel()

	if s, err := ParseJobStatus("failed"); err != nil || s != JobStatusFailed {
		t.Errorf("Expected failed, got %q, %v", s, err)
	}
	if _, err := ParseJobStatus("retrying"); !errors.Is(err, ErrInvalidJobStatus) {
		t.Errorf("Expected ErrInvalidJobStatus, got %v", err)
	}
}
