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

// ErrNotClaimable is returned when a job is not queued or not yet due.
var ErrNotClaimable = errors.New("job is not claimable")

// Claimer takes exclusive ownership of queued jobs for one worker slot.
type Claimer struct {
	store    store.JobStore
	workerID string
	lease    time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewClaimer creates a claimer that claims jobs as workerID with leases of
// the given length. Only WithClock applies.
func NewClaimer(
	s store.JobStore,
	workerID string,
	lease time.Duration,
	logger *slog.Logger,
	opts ...Option,
) *Claimer {
	o := buildOptions(opts)
	return &Claimer{
		store:    s,
		workerID: workerID,
		lease:    lease,
		now:      o.now,
		logger:   logger.With("component", "claimer", "worker_id", workerID),
	}
}

// WorkerID returns the identity written to claimed_by.
func (c *Claimer) WorkerID() string { return c.workerID }

// Claim moves job from queued to processing under this worker's name. The
// attempt is counted here, when it starts. Losing the race to another
// claimer is not an error: Claim returns (nil, nil).
func (c *Claimer) Claim(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	now := c.now()
	if !job.IsClaimable(now) {
		return nil, ErrNotClaimable
	}

	claimed, err := c.store.CompareAndSwap(ctx, job.ID, job.Version, func(j *domain.Job) error {
		if !j.IsClaimable(now) {
			return ErrNotClaimable
		}
		worker := c.workerID
		expires := now.Add(c.lease)
		j.Status = domain.JobStatusProcessing
		j.ClaimedBy = &worker
		j.ClaimExpiresAt = &expires
		j.AttemptCount++
		if j.StartedAt == nil {
			started := now
			j.StartedAt = &started
		}
		return nil
	})
	if err != nil {
		if store.IsConflictError(err) {
			c.logger.Debug("lost claim race", "job_id", job.ID)
			return nil, nil
		}
		if errors.Is(err, ErrNotClaimable) {
			return nil, ErrNotClaimable
		}
		return nil, fmt.Errorf("failed to claim job %s: %w", job.ID, err)
	}

	c.logger.Debug("claimed job",
		"job_id", claimed.ID,
		"attempt", claimed.AttemptCount,
		"lease_expires_at", claimed.ClaimExpiresAt)
	return claimed, nil
}
