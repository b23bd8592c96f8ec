package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/sketchpad-api/internal/domain"
	"github.com/phrazzld/sketchpad-api/internal/store"
)

// ErrOrphanedClaim is recorded on jobs whose worker stopped renewing its
// lease and which have no attempts left.
var ErrOrphanedClaim = errors.New("worker lease expired with no attempts remaining")

// OrphanedClaimCode is the JobError code written for ErrOrphanedClaim.
const OrphanedClaimCode = "orphaned_claim"

// Reaper recovers processing jobs whose lease expired, which happens when a
// worker crashed or hung.
type Reaper struct {
	store    store.JobStore
	notifier *Notifier
	interval time.Duration
	now      func() time.Time
	tel      *telemetry
	logger   *slog.Logger
}

// NewReaper creates a reaper that runs every interval once started.
// WithClock, WithTracerProvider and WithMeterProvider apply.
func NewReaper(
	s store.JobStore,
	notifier *Notifier,
	interval time.Duration,
	logger *slog.Logger,
	opts ...Option,
) *Reaper {
	o := buildOptions(opts)
	return &Reaper{
		store:    s,
		notifier: notifier,
		interval: interval,
		now:      o.now,
		tel:      newTelemetry(o.tracer, o.meter),
		logger:   logger.With("component", "reaper"),
	}
}

// RunOnce recovers every job whose lease has expired and returns how many it
// moved. Jobs changed concurrently by someone else are skipped; running it
// twice in a row does nothing the second time.
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	now := r.now()
	stale, err := r.store.Reap(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to find expired leases: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	r.logger.Info("found jobs with expired leases", "count", len(stale))

	recovered := 0
	for _, job := range stale {
		next, err := r.store.CompareAndSwap(ctx, job.ID, job.Version, reapMutation(now))
		if err != nil {
			if store.IsConflictError(err) {
				r.logger.Debug("job changed while reaping, skipping", "job_id", job.ID)
				continue
			}
			r.logger.Error("failed to recover job",
				"job_id", job.ID,
				"error", err)
			continue
		}

		recovered++
		if next.Status == domain.JobStatusFailed {
			r.logger.Warn("failed job with expired lease",
				"job_id", next.ID,
				"claimed_by", job.ClaimedBy,
				"error", ErrOrphanedClaim)
		}
		r.logger.Info("recovered job with expired lease",
			"job_id", next.ID,
			"claimed_by", job.ClaimedBy,
			"status", next.Status,
			"attempt_count", next.AttemptCount)
		r.tel.recordReaped(ctx, next.Status)
		r.notifier.Notify(ctx, next)
	}
	return recovered, nil
}

// reapMutation releases an expired claim. A pending cancel request wins,
// then a job with attempts left goes back to the queue, and anything else
// fails as orphaned.
func reapMutation(now time.Time) store.Mutation {
	return func(j *domain.Job) error {
		if j.Status != domain.JobStatusProcessing || j.ClaimExpiresAt == nil || !j.ClaimExpiresAt.Before(now) {
			return store.ErrConflict
		}

		j.ClaimedBy = nil
		j.ClaimExpiresAt = nil
		switch {
		case j.CancelRequested:
			j.Status = domain.JobStatusCancelled
			j.FinishedAt = &now
		case j.AttemptCount < j.MaxAttempts:
			j.Status = domain.JobStatusQueued
			j.NextAttemptAt = now
		default:
			j.Status = domain.JobStatusFailed
			j.Error = &domain.JobError{
				Code:      OrphanedClaimCode,
				Message:   "The worker processing this job stopped responding.",
				Retryable: false,
				Attempt:   j.AttemptCount,
			}
			j.FinishedAt = &now
		}
		return nil
	}
}

// Run calls RunOnce every interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	interval := r.interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("reaper pass failed", "error", err)
			}
		}
	}
}
