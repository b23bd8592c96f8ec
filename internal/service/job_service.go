package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sketchpad-api/internal/domain"
	"github.com/phrazzld/sketchpad-api/internal/store"
	"github.com/phrazzld/sketchpad-api/internal/task"
)

// maxWriteAttempts bounds the read-modify-write loop of Cancel and Retry.
const maxWriteAttempts = 5

// SubmitRequest is a new job as accepted from a client.
type SubmitRequest struct {
	Kind     domain.Kind
	Payload  json.RawMessage
	Priority int
}

// JobServiceConfig holds the attempt budgets applied by the service.
type JobServiceConfig struct {
	// MaxAttempts is the automatic attempt budget of a new job.
	MaxAttempts int
	// ManualRetryBudget is how many attempts a manual retry grants.
	ManualRetryBudget int
}

// RetentionTrigger runs the retention sweep on demand.
type RetentionTrigger interface {
	Sweep(ctx context.Context) (int, error)
}

// JobService is the client-facing surface of the job engine. Every call
// except GlobalStats and Sweep is scoped to the calling user; jobs of other
// users are reported as ErrNotOwned.
type JobService interface {
	// Submit persists a queued job. It does not run it.
	Submit(ctx context.Context, callerID uuid.UUID, req SubmitRequest) (*domain.Job, error)

	// GetStatus returns the job.
	GetStatus(ctx context.Context, callerID, jobID uuid.UUID) (*domain.Job, error)

	// GetResult returns the stored result bytes, or ErrNotReady unless the
	// job completed.
	GetResult(ctx context.Context, callerID, jobID uuid.UUID) (json.RawMessage, error)

	// Cancel cancels a queued job at once and asks the worker of a
	// processing job to stop. Terminal jobs are returned unchanged.
	Cancel(ctx context.Context, callerID, jobID uuid.UUID) (*domain.Job, error)

	// Retry puts a failed job back in the queue with a fresh attempt
	// budget. Jobs in any other status are returned unchanged.
	Retry(ctx context.Context, callerID, jobID uuid.UUID) (*domain.Job, error)

	// ListByOwner returns the caller's jobs, newest first.
	ListByOwner(ctx context.Context, callerID uuid.UUID, filter store.ListFilter) ([]*domain.Job, error)

	// Stats aggregates the caller's jobs.
	Stats(ctx context.Context, callerID uuid.UUID) (*store.JobStats, error)

	// GlobalStats aggregates all jobs.
	GlobalStats(ctx context.Context) (*store.JobStats, error)

	// Sweep runs the retention sweep now and returns how many jobs it removed.
	Sweep(ctx context.Context) (int, error)
}

// jobServiceImpl implements the JobService interface
type jobServiceImpl struct {
	store     store.JobStore
	notifier  *task.Notifier
	retention RetentionTrigger
	config    JobServiceConfig
	now       func() time.Time
	logger    *slog.Logger
}

// NewJobService creates a new JobService. retention may be nil, in which
// case Sweep removes nothing.
func NewJobService(
	s store.JobStore,
	notifier *task.Notifier,
	retention RetentionTrigger,
	config JobServiceConfig,
	logger *slog.Logger,
) (JobService, error) {
	if s == nil {
		return nil, NewJobServiceError("init", "job store cannot be nil", store.ErrInvalidEntity)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 3
	}
	if config.ManualRetryBudget < 1 {
		config.ManualRetryBudget = 3
	}
	return &jobServiceImpl{
		store:     s,
		notifier:  notifier,
		retention: retention,
		config:    config,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With("component", "job_service"),
	}, nil
}

// Submit implements JobService.
func (s *jobServiceImpl) Submit(ctx context.Context, callerID uuid.UUID, req SubmitRequest) (*domain.Job, error) {
	job, err := domain.NewJob(callerID, req.Kind, req.Payload, req.Priority, s.config.MaxAttempts, s.now())
	if err != nil {
		// Validation errors reach the API layer unwrapped.
		return nil, err
	}

	if err := s.store.Create(ctx, job); err != nil {
		s.logger.Error("failed to persist job",
			"job_id", job.ID,
			"owner_id", callerID,
			"error", err)
		return nil, NewJobServiceError("submit", "failed to persist job", err)
	}

	s.logger.Info("job submitted",
		"job_id", job.ID,
		"owner_id", callerID,
		"kind", job.Kind,
		"priority", job.Priority)
	s.notifier.Notify(ctx, job)
	return job, nil
}

// GetStatus implements JobService.
func (s *jobServiceImpl) GetStatus(ctx context.Context, callerID, jobID uuid.UUID) (*domain.Job, error) {
	job, err := s.owned(ctx, callerID, jobID)
	if err != nil {
		return nil, NewJobServiceError("get_status", "failed to load job", err)
	}
	return job, nil
}

// GetResult implements JobService.
func (s *jobServiceImpl) GetResult(ctx context.Context, callerID, jobID uuid.UUID) (json.RawMessage, error) {
	job, err := s.owned(ctx, callerID, jobID)
	if err != nil {
		return nil, NewJobServiceError("get_result", "failed to load job", err)
	}
	if job.Status != domain.JobStatusCompleted {
		return nil, ErrNotReady
	}
	return job.Result, nil
}

// Cancel implements JobService.
func (s *jobServiceImpl) Cancel(ctx context.Context, callerID, jobID uuid.UUID) (*domain.Job, error) {
	job, err := s.update(ctx, "cancel", callerID, jobID, func(current *domain.Job) store.Mutation {
		switch {
		case current.Status == domain.JobStatusQueued:
			now := s.now()
			return func(j *domain.Job) error {
				j.Status = domain.JobStatusCancelled
				j.FinishedAt = &now
				return nil
			}
		case current.Status == domain.JobStatusProcessing && !current.CancelRequested:
			return func(j *domain.Job) error {
				j.CancelRequested = true
				return nil
			}
		default:
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Retry implements JobService.
func (s *jobServiceImpl) Retry(ctx context.Context, callerID, jobID uuid.UUID) (*domain.Job, error) {
	return s.update(ctx, "retry", callerID, jobID, func(current *domain.Job) store.Mutation {
		if current.Status != domain.JobStatusFailed {
			return nil
		}
		now := s.now()
		budget := s.config.ManualRetryBudget
		return func(j *domain.Job) error {
			j.Status = domain.JobStatusQueued
			j.MaxAttempts = j.AttemptCount + budget
			j.ManualRetries++
			j.Error = nil
			j.FinishedAt = nil
			j.NextAttemptAt = now
			return nil
		}
	})
}

// update reads the caller's job, asks plan for a mutation and applies it
// with compare-and-swap, starting over when another writer got there
// first. A nil mutation means the job is returned as is.
func (s *jobServiceImpl) update(
	ctx context.Context,
	operation string,
	callerID, jobID uuid.UUID,
	plan func(current *domain.Job) store.Mutation,
) (*domain.Job, error) {
	for i := 0; i < maxWriteAttempts; i++ {
		current, err := s.owned(ctx, callerID, jobID)
		if err != nil {
			return nil, NewJobServiceError(operation, "failed to load job", err)
		}

		mutate := plan(current)
		if mutate == nil {
			s.logger.Debug("request has no effect on job",
				"operation", operation,
				"job_id", jobID,
				"status", current.Status)
			return current, nil
		}

		next, err := s.store.CompareAndSwap(ctx, jobID, current.Version, mutate)
		if err == nil {
			s.logger.Info("job updated",
				"operation", operation,
				"job_id", jobID,
				"from", current.Status,
				"to", next.Status,
				"cancel_requested", next.CancelRequested)
			if next.Status != current.Status {
				s.notifier.Notify(ctx, next)
			}
			return next, nil
		}
		if !store.IsConflictError(err) {
			s.logger.Error("failed to update job",
				"operation", operation,
				"job_id", jobID,
				"error", err)
			return nil, NewJobServiceError(operation, "failed to update job", err)
		}
	}
	return nil, ErrBusy
}

// ListByOwner implements JobService.
func (s *jobServiceImpl) ListByOwner(
	ctx context.Context,
	callerID uuid.UUID,
	filter store.ListFilter,
) ([]*domain.Job, error) {
	jobs, err := s.store.ListByOwner(ctx, callerID, filter.Normalize())
	if err != nil {
		return nil, NewJobServiceError("list", "failed to list jobs", err)
	}
	return jobs, nil
}

// Stats implements JobService.
func (s *jobServiceImpl) Stats(ctx context.Context, callerID uuid.UUID) (*store.JobStats, error) {
	stats, err := s.store.Stats(ctx, &callerID)
	if err != nil {
		return nil, NewJobServiceError("stats", "failed to aggregate jobs", err)
	}
	return stats, nil
}

// GlobalStats implements JobService.
func (s *jobServiceImpl) GlobalStats(ctx context.Context) (*store.JobStats, error) {
	stats, err := s.store.Stats(ctx, nil)
	if err != nil {
		return nil, NewJobServiceError("global_stats", "failed to aggregate jobs", err)
	}
	return stats, nil
}

// Sweep implements JobService.
func (s *jobServiceImpl) Sweep(ctx context.Context) (int, error) {
	if s.retention == nil {
		return 0, nil
	}
	removed, err := s.retention.Sweep(ctx)
	if err != nil {
		return 0, NewJobServiceError("sweep", "retention sweep failed", err)
	}
	return removed, nil
}

// owned loads a job and checks that callerID owns it.
func (s *jobServiceImpl) owned(ctx context.Context, callerID, jobID uuid.UUID) (*domain.Job, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != callerID {
		s.logger.Warn("job access by non-owner",
			"job_id", jobID,
			"caller_id", callerID)
		return nil, ErrNotOwned
	}
	return job, nil
}
