package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

// Possible job status values
const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// AllJobStatuses lists every status in lifecycle order.
var AllJobStatuses = []JobStatus{
	JobStatusQueued,
	JobStatusProcessing,
	JobStatusCompleted,
	JobStatusFailed,
	JobStatusCancelled,
}

// Limits applied to new jobs.
const (
	MinPriority    = -1000
	MaxPriority    = 1000
	MaxMaxAttempts = 25
)

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no automatic transition may leave s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// ParseJobStatus converts a string into a JobStatus.
func ParseJobStatus(s string) (JobStatus, error) {
	status := JobStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidJobStatus, s)
	}
	return status, nil
}

// transitions holds the edges of the job state machine. failed -> queued is
// the manual retry edge and the only way out of a terminal state.
var transitions = map[JobStatus][]JobStatus{
	JobStatusQueued:     {JobStatusProcessing, JobStatusCancelled},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed, JobStatusCancelled, JobStatusQueued},
	JobStatusFailed:     {JobStatusQueued},
}

// CanTransition reports whether a job may move from one status to another.
// Staying in the same non-terminal status is allowed (lease renewal,
// cancellation requests).
func CanTransition(from, to JobStatus) bool {
	if from == to {
		return !from.IsTerminal()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// JobError is the structured, user-facing summary recorded on a failed job.
type JobError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Attempt   int    `json:"attempt"`
}

// Job is a unit of deferred canvas work with durable state.
type Job struct {
	ID              uuid.UUID       `json:"id"`
	OwnerID         uuid.UUID       `json:"owner_id"`
	Kind            Kind            `json:"kind"`
	Status          JobStatus       `json:"status"`
	Priority        int             `json:"priority"`
	Payload         json.RawMessage `json:"payload"`
	Result          json.RawMessage `json:"result,omitempty"`
	Error           *JobError       `json:"error,omitempty"`
	AttemptCount    int             `json:"attempt_count"`
	MaxAttempts     int             `json:"max_attempts"`
	ClaimedBy       *string         `json:"claimed_by,omitempty"`
	ClaimExpiresAt  *time.Time      `json:"claim_expires_at,omitempty"`
	NextAttemptAt   time.Time       `json:"next_attempt_at"`
	CancelRequested bool            `json:"cancel_requested"`
	ManualRetries   int             `json:"manual_retries"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	FinishedAt      *time.Time      `json:"finished_at,omitempty"`
	Version         int64           `json:"version"`
}

// NewJob creates a queued job for owner after checking the payload against
// the schema registered for kind. The stored payload is the normalized
// encoding of the decoded value.
func NewJob(
	ownerID uuid.UUID,
	kind Kind,
	payload json.RawMessage,
	priority int,
	maxAttempts int,
	now time.Time,
) (*Job, error) {
	if ownerID == uuid.Nil {
		return nil, NewValidationError("owner_id", "is required", ErrInvalidID)
	}
	if priority < MinPriority || priority > MaxPriority {
		return nil, NewValidationError("priority",
			fmt.Sprintf("must be between %d and %d", MinPriority, MaxPriority), nil)
	}
	if maxAttempts < 1 || maxAttempts > MaxMaxAttempts {
		return nil, NewValidationError("max_attempts",
			fmt.Sprintf("must be between 1 and %d", MaxMaxAttempts), nil)
	}

	decoded, err := DecodePayload(kind, payload)
	if err != nil {
		return nil, err
	}
	normalized, err := json.Marshal(decoded)
	if err != nil {
		return nil, NewValidationError("payload", "could not be encoded", ErrInvalidFormat)
	}

	now = now.UTC()
	job := &Job{
		ID:            uuid.New(),
		OwnerID:       ownerID,
		Kind:          kind,
		Status:        JobStatusQueued,
		Priority:      priority,
		Payload:       normalized,
		MaxAttempts:   maxAttempts,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}
	return job, nil
}

// Validate checks the structural invariants of the job record.
func (j *Job) Validate() error {
	if j.ID == uuid.Nil {
		return fmt.Errorf("%w: id is empty", ErrInvariant)
	}
	if j.OwnerID == uuid.Nil {
		return fmt.Errorf("%w: owner_id is empty", ErrInvariant)
	}
	if !j.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, j.Kind)
	}
	if !j.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidJobStatus, j.Status)
	}
	if len(j.Payload) == 0 {
		return fmt.Errorf("%w: payload is empty", ErrInvariant)
	}
	if j.MaxAttempts < 1 {
		return fmt.Errorf("%w: max_attempts must be positive", ErrInvariant)
	}
	if j.AttemptCount < 0 || j.AttemptCount > j.MaxAttempts {
		return fmt.Errorf("%w: attempt_count %d outside [0, %d]", ErrInvariant, j.AttemptCount, j.MaxAttempts)
	}

	processing := j.Status == JobStatusProcessing
	if (j.ClaimedBy != nil) != processing {
		return fmt.Errorf("%w: claimed_by must be set only while processing", ErrInvariant)
	}
	if processing && j.ClaimExpiresAt == nil {
		return fmt.Errorf("%w: processing job has no lease", ErrInvariant)
	}
	if (len(j.Result) > 0) != (j.Status == JobStatusCompleted) {
		return fmt.Errorf("%w: result must be set only when completed", ErrInvariant)
	}
	if (j.Error != nil) != (j.Status == JobStatusFailed) {
		return fmt.Errorf("%w: error must be set only when failed", ErrInvariant)
	}
	if j.Status.IsTerminal() && j.FinishedAt == nil {
		return fmt.Errorf("%w: terminal job has no finished_at", ErrInvariant)
	}
	return nil
}

// CheckMutation verifies that after is a legal successor of before: the
// status change is an edge of the state machine, creation-time fields are
// untouched, and the result is internally consistent.
func CheckMutation(before, after *Job) error {
	if before.Status.IsTerminal() && !(before.Status == JobStatusFailed && after.Status == JobStatusQueued) {
		return fmt.Errorf("%w: %s", ErrTerminalState, before.Status)
	}
	if !CanTransition(before.Status, after.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, before.Status, after.Status)
	}
	if before.ID != after.ID ||
		before.OwnerID != after.OwnerID ||
		before.Kind != after.Kind ||
		!before.CreatedAt.Equal(after.CreatedAt) ||
		!bytes.Equal(before.Payload, after.Payload) {
		return ErrImmutableField
	}
	return after.Validate()
}

// IsClaimable reports whether a worker may start the job at now.
func (j *Job) IsClaimable(now time.Time) bool {
	return j.Status == JobStatusQueued &&
		!j.NextAttemptAt.After(now) &&
		j.AttemptCount < j.MaxAttempts
}

// Duration returns the wall time between the first start and finish, if both are known.
func (j *Job) Duration() (time.Duration, bool) {
	if j.StartedAt == nil || j.FinishedAt == nil {
		return 0, false
	}
	return j.FinishedAt.Sub(*j.StartedAt), true
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Payload = cloneBytes(j.Payload)
	c.Result = cloneBytes(j.Result)
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	if j.ClaimedBy != nil {
		s := *j.ClaimedBy
		c.ClaimedBy = &s
	}
	c.ClaimExpiresAt = cloneTime(j.ClaimExpiresAt)
	c.StartedAt = cloneTime(j.StartedAt)
	c.FinishedAt = cloneTime(j.FinishedAt)
	return &c
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
