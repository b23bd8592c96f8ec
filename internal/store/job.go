package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sketchpad-api/internal/domain"
)

// Mutation edits a copy of the current job record. Returning an error aborts
// the swap and leaves the stored record untouched.
type Mutation func(job *domain.Job) error

// ListFilter narrows ListByOwner results.
type ListFilter struct {
	// Statuses restricts results to these statuses. Empty means all.
	Statuses []domain.JobStatus
	// Limit caps the number of results. Zero uses DefaultListLimit.
	Limit int
	// Offset skips the first results.
	Offset int
}

// List limits
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Normalize clamps the limit and offset into their valid ranges.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Matches reports whether status passes the status filter.
func (f ListFilter) Matches(status domain.JobStatus) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// JobStats aggregates job counts and timings.
type JobStats struct {
	Counts          map[domain.JobStatus]int64 `json:"counts"`
	Total           int64                      `json:"total"`
	AverageDuration time.Duration              `json:"average_duration_ns"`
	FailureRate     float64                    `json:"failure_rate"`
}

// NewJobStats builds stats from per-status counts and the average duration
// of completed jobs. The failure rate is failed / (completed + failed).
func NewJobStats(counts map[domain.JobStatus]int64, avg time.Duration) *JobStats {
	stats := &JobStats{
		Counts:          make(map[domain.JobStatus]int64, len(domain.AllJobStatuses)),
		AverageDuration: avg,
	}
	for _, s := range domain.AllJobStatuses {
		stats.Counts[s] = counts[s]
		stats.Total += counts[s]
	}
	finished := stats.Counts[domain.JobStatusCompleted] + stats.Counts[domain.JobStatusFailed]
	if finished > 0 {
		stats.FailureRate = float64(stats.Counts[domain.JobStatusFailed]) / float64(finished)
	}
	return stats
}

// JobStore is the durable record of job state and the only shared mutable
// resource of the job engine. All changes after creation go through
// CompareAndSwap.
type JobStore interface {
	// Create persists a new job. The job must be queued with version 0.
	// Returns ErrJobExists if the ID is already taken.
	Create(ctx context.Context, job *domain.Job) error

	// Get returns the job with the given ID, or ErrJobNotFound.
	Get(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// ListByOwner returns the owner's jobs ordered by created_at descending.
	ListByOwner(ctx context.Context, ownerID uuid.UUID, filter ListFilter) ([]*domain.Job, error)

	// CompareAndSwap applies mutate to the job if its version equals
	// expectedVersion. The transition is checked with domain.CheckMutation,
	// then the version is incremented and the new record returned.
	// Returns ErrConflict on a version mismatch and ErrJobNotFound if the
	// job does not exist.
	CompareAndSwap(ctx context.Context, id uuid.UUID, expectedVersion int64, mutate Mutation) (*domain.Job, error)

	// Reap returns processing jobs whose lease expired before staleBefore.
	Reap(ctx context.Context, staleBefore time.Time) ([]*domain.Job, error)

	// FindClaimable returns up to limit queued jobs eligible at now, highest
	// priority first and oldest first within a priority.
	FindClaimable(ctx context.Context, now time.Time, limit int) ([]*domain.Job, error)

	// Stats aggregates jobs for one owner, or for all owners when ownerID is nil.
	Stats(ctx context.Context, ownerID *uuid.UUID) (*JobStats, error)

	// Sweep removes terminal jobs finished before finishedBefore and returns
	// how many were removed.
	Sweep(ctx context.Context, finishedBefore time.Time) (int, error)
}

// ApplyMutation runs mutate on a copy of current and validates the result.
// Store implementations share it so every backend enforces the same state
// machine. The returned job has its version and updated_at advanced.
func ApplyMutation(current *domain.Job, mutate Mutation, now time.Time) (*domain.Job, error) {
	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	if err := domain.CheckMutation(current, next); err != nil {
		return nil, NewStoreError("job", "compare_and_swap", "mutation rejected",
			fmt.Errorf("%w: %w", ErrInvalidEntity, err))
	}
	next.Version = current.Version + 1
	next.UpdatedAt = now.UTC()
	return next, nil
}
