// Package memory provides an in-process job store. It is safe for
// concurrent use and backs unit tests and the memory database driver.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sketchpad-api/internal/domain"
	"github.com/phrazzld/sketchpad-api/internal/store"
)

var _ store.JobStore = (*JobStore)(nil)

// JobStore keeps jobs in a map guarded by a RWMutex. Every read returns a
// copy, so callers never share state with the store.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*domain.Job
	now  func() time.Time
}

// Option configures a JobStore.
type Option func(*JobStore)

// WithClock overrides the time source used for updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *JobStore) { s.now = now }
}

// NewJobStore returns an empty store.
func NewJobStore(opts ...Option) *JobStore {
	s := &JobStore{
		jobs: make(map[uuid.UUID]*domain.Job),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create implements store.JobStore.
func (s *JobStore) Create(_ context.Context, job *domain.Job) error {
	if job.Status != domain.JobStatusQueued || job.Version != 0 {
		return store.NewStoreError("job", "create", "new jobs must be queued at version 0", store.ErrInvalidEntity)
	}
	if err := job.Validate(); err != nil {
		return store.NewStoreError("job", "create", "invalid job", fmt.Errorf("%w: %w", store.ErrInvalidEntity, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return store.ErrJobExists
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Get implements store.JobStore.
func (s *JobStore) Get(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	return job.Clone(), nil
}

// ListByOwner implements store.JobStore.
func (s *JobStore) ListByOwner(_ context.Context, ownerID uuid.UUID, filter store.ListFilter) ([]*domain.Job, error) {
	filter = filter.Normalize()

	s.mu.RLock()
	matched := make([]*domain.Job, 0)
	for _, job := range s.jobs {
		if job.OwnerID == ownerID && filter.Matches(job.Status) {
			matched = append(matched, job.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	if filter.Offset >= len(matched) {
		return []*domain.Job{}, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[filter.Offset:end], nil
}

// CompareAndSwap implements store.JobStore.
func (s *JobStore) CompareAndSwap(
	_ context.Context,
	id uuid.UUID,
	expectedVersion int64,
	mutate store.Mutation,
) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	if current.Version != expectedVersion {
		return nil, store.ErrConflict
	}

	next, err := store.ApplyMutation(current, mutate, s.now())
	if err != nil {
		return nil, err
	}
	s.jobs[id] = next
	return next.Clone(), nil
}

// Reap implements store.JobStore.
func (s *JobStore) Reap(_ context.Context, staleBefore time.Time) ([]*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stale := make([]*domain.Job, 0)
	for _, job := range s.jobs {
		if job.Status == domain.JobStatusProcessing &&
			job.ClaimExpiresAt != nil &&
			job.ClaimExpiresAt.Before(staleBefore) {
			stale = append(stale, job.Clone())
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		return stale[i].ClaimExpiresAt.Before(*stale[j].ClaimExpiresAt)
	})
	return stale, nil
}

// FindClaimable implements store.JobStore.
func (s *JobStore) FindClaimable(_ context.Context, now time.Time, limit int) ([]*domain.Job, error) {
	s.mu.RLock()
	eligible := make([]*domain.Job, 0)
	for _, job := range s.jobs {
		if job.IsClaimable(now) {
			eligible = append(eligible, job.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Priority != eligible[j].Priority {
			return eligible[i].Priority > eligible[j].Priority
		}
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})

	if limit > 0 && len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible, nil
}

// Stats implements store.JobStore.
func (s *JobStore) Stats(_ context.Context, ownerID *uuid.UUID) (*store.JobStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[domain.JobStatus]int64)
	var total time.Duration
	var completed int64
	for _, job := range s.jobs {
		if ownerID != nil && job.OwnerID != *ownerID {
			continue
		}
		counts[job.Status]++
		if job.Status == domain.JobStatusCompleted {
			if d, ok := job.Duration(); ok {
				total += d
				completed++
			}
		}
	}

	var avg time.Duration
	if completed > 0 {
		avg = total / time.Duration(completed)
	}
	return store.NewJobStats(counts, avg), nil
}

// Sweep implements store.JobStore.
func (s *JobStore) Sweep(_ context.Context, finishedBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, job := range s.jobs {
		if job.Status.IsTerminal() && job.FinishedAt != nil && job.FinishedAt.Before(finishedBefore) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored jobs.
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
