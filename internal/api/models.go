package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sketchpad-api/internal/domain"
	"github.com/phrazzld/sketchpad-api/internal/store"
)

// SubmitJobRequest defines the payload for POST /jobs.
type SubmitJobRequest struct {
	Kind    string          `json:"kind"    validate:"required"`
	Payload json.RawMessage `json:"payload" validate:"required"`
	// Priority defaults to 0 when omitted.
	Priority *int `json:"priority,omitempty"`
}

// SubmitJobResponse is returned with 202 Accepted.
type SubmitJobResponse struct {
	JobID  uuid.UUID        `json:"job_id"`
	Status domain.JobStatus `json:"status"`
}

// JobResponse is the client projection of a job. It leaves out the payload,
// the result bytes and the claim bookkeeping.
type JobResponse struct {
	JobID           uuid.UUID        `json:"job_id"`
	Kind            domain.Kind      `json:"kind"`
	Status          domain.JobStatus `json:"status"`
	Priority        int              `json:"priority"`
	AttemptCount    int              `json:"attempt_count"`
	MaxAttempts     int              `json:"max_attempts"`
	Error           *domain.JobError `json:"error,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	StartedAt       *time.Time       `json:"started_at,omitempty"`
	FinishedAt      *time.Time       `json:"finished_at,omitempty"`
	NextAttemptAt   time.Time        `json:"next_attempt_at"`
	CancelRequested bool             `json:"cancel_requested"`
}

// JobListResponse is returned by GET /jobs.
type JobListResponse struct {
	Jobs   []JobResponse `json:"jobs"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// StatsResponse aggregates jobs by status.
type StatsResponse struct {
	Counts            map[domain.JobStatus]int64 `json:"counts"`
	Total             int64                      `json:"total"`
	AverageDurationMS int64                      `json:"average_duration_ms"`
	FailureRate       float64                    `json:"failure_rate"`
}

// OpsStatsResponse is returned by GET /api/ops/stats.
type OpsStatsResponse struct {
	StatsResponse
	EventsDropped int64 `json:"events_dropped"`
}

// SweepResponse is returned by POST /api/ops/sweep.
type SweepResponse struct {
	Removed int `json:"removed"`
}

func jobToResponse(job *domain.Job) JobResponse {
	return JobResponse{
		JobID:           job.ID,
		Kind:            job.Kind,
		Status:          job.Status,
		Priority:        job.Priority,
		AttemptCount:    job.AttemptCount,
		MaxAttempts:     job.MaxAttempts,
		Error:           job.Error,
		CreatedAt:       job.CreatedAt,
		StartedAt:       job.StartedAt,
		FinishedAt:      job.FinishedAt,
		NextAttemptAt:   job.NextAttemptAt,
		CancelRequested: job.CancelRequested,
	}
}

func statsToResponse(stats *store.JobStats) StatsResponse {
	counts := make(map[domain.JobStatus]int64, len(domain.AllJobStatuses))
	for _, status := range domain.AllJobStatuses {
		counts[status] = stats.Counts[status]
	}
	return StatsResponse{
		Counts:            counts,
		Total:             stats.Total,
		AverageDurationMS: stats.AverageDuration.Milliseconds(),
		FailureRate:       stats.FailureRate,
	}
}
