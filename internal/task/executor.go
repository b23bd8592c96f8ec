package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sketchpad-api/internal/domain"
	"github.com/phrazzld/sketchpad-api/internal/generation"
	"github.com/phrazzld/sketchpad-api/internal/redact"
	"github.com/phrazzld/sketchpad-api/internal/retry"
	"github.com/phrazzld/sketchpad-api/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

// maxFinalizeAttempts bounds how often the outcome write is retried when
// another writer (a cancel request, a heartbeat) bumps the version first.
const maxFinalizeAttempts = 5

var errClaimLost = errors.New("claim no longer held by this worker")

// ExecutorConfig holds the timing settings of a single attempt.
type ExecutorConfig struct {
	// AttemptTimeout is the hard deadline of one generator call.
	AttemptTimeout time.Duration

	// LeaseDuration is how far each heartbeat pushes claim_expires_at.
	// Heartbeats run every LeaseDuration/3.
	LeaseDuration time.Duration
}

// Executor runs one claimed job attempt against the generator and writes
// the outcome back to the store.
type Executor struct {
	store     store.JobStore
	generator generation.Generator
	policy    *retry.Policy
	notifier  *Notifier
	cfg       ExecutorConfig
	now       func() time.Time
	limiter   *rate.Limiter
	tel       *telemetry
	logger    *slog.Logger
}

// NewExecutor creates an executor. WithClock, WithRateLimiter,
// WithTracerProvider and WithMeterProvider apply.
func NewExecutor(
	s store.JobStore,
	generator generation.Generator,
	policy *retry.Policy,
	notifier *Notifier,
	cfg ExecutorConfig,
	logger *slog.Logger,
	opts ...Option,
) (*Executor, error) {
	if s == nil {
		return nil, fmt.Errorf("job store cannot be nil")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator cannot be nil")
	}
	if policy == nil {
		return nil, fmt.Errorf("retry policy cannot be nil")
	}
	if cfg.AttemptTimeout <= 0 || cfg.LeaseDuration <= 0 {
		return nil, fmt.Errorf("attempt timeout and lease duration must be positive")
	}

	o := buildOptions(opts)
	return &Executor{
		store:     s,
		generator: generator,
		policy:    policy,
		notifier:  notifier,
		cfg:       cfg,
		now:       o.now,
		limiter:   o.limiter,
		tel:       newTelemetry(o.tracer, o.meter),
		logger:    logger.With("component", "job_executor"),
	}, nil
}

// Execute runs the attempt for a job this worker has just claimed and
// returns the job as finalized, or nil when the outcome was dropped because
// the claim was lost or the pool is shutting down. Errors never escape.
func (e *Executor) Execute(ctx context.Context, job *domain.Job) (final *domain.Job) {
	workerID := ""
	if job.ClaimedBy != nil {
		workerID = *job.ClaimedBy
	}
	log := e.logger.With(
		"job_id", job.ID,
		"worker_id", workerID,
		"attempt", job.AttemptCount,
	)

	ctx, span := e.tel.startAttempt(ctx, job, workerID)
	defer span.End()
	start := time.Now()
	outcome := outcomeDropped

	defer func() {
		if r := recover(); r != nil {
			log.Error("attempt panicked, leaving job for the reaper", "panic", r)
			span.SetStatus(codes.Error, "panic")
			final = nil
			outcome = outcomeDropped
		}
		span.SetAttributes(attribute.String("sketchpad.job.outcome", outcome))
		e.tel.recordAttempt(ctx, job.Kind, outcome, time.Since(start))
	}()

	attemptCtx, cancelAttempt := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
	defer cancelAttempt()
	hb := e.startHeartbeat(attemptCtx, cancelAttempt, job.ID, workerID, log)

	log.Info("starting attempt")
	result, genErr := e.generate(attemptCtx, job)
	cancelAttempt()
	hb.wait()

	if genErr != nil {
		span.SetStatus(codes.Error, string(generation.CodeOf(genErr)))
		log.Warn("attempt failed",
			"code", generation.CodeOf(genErr),
			"error", redact.Error(genErr))
	} else {
		span.SetStatus(codes.Ok, "")
	}

	if ctx.Err() != nil {
		log.Warn("attempt interrupted by shutdown, lease will expire")
		return nil
	}
	if hb.claimLost.Load() {
		log.Warn("claim lost during attempt, dropping outcome")
		return nil
	}

	final, outcome = e.finalize(ctx, job.ID, workerID, result, genErr, log)
	return final
}

// generate decodes the payload, waits for the rate limiter and calls the
// generator. The result is encoded exactly once here; those bytes are what
// the store keeps and the result API returns.
func (e *Executor) generate(ctx context.Context, job *domain.Job) (json.RawMessage, error) {
	payload, err := domain.DecodePayload(job.Kind, job.Payload)
	if err != nil {
		return nil, generation.NewError(generation.CodeInvalidRequest, "stored payload does not decode", err)
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, generation.NewError(generation.CodeRateLimited, "rate limit wait exceeds attempt deadline", err)
		}
	}

	result, err := e.generator.Generate(ctx, generation.Request{
		JobID:   job.ID,
		OwnerID: job.OwnerID,
		Attempt: job.AttemptCount,
		Payload: payload,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && generation.CodeOf(err) == generation.CodeUnknown {
			return nil, generation.NewError(generation.CodeTimeout, "attempt deadline exceeded", err)
		}
		return nil, err
	}
	if result == nil || result.Kind() != job.Kind {
		return nil, generation.NewError(generation.CodeInvalidResponse, "generator returned no result for this kind", nil)
	}

	raw, err := domain.EncodeResult(result)
	if err != nil {
		return nil, generation.NewError(generation.CodeInvalidResponse, "generated result failed validation", err)
	}
	return raw, nil
}

// finalize writes the attempt outcome. It re-reads the job each time so a
// cancel request that landed during the attempt wins over the result.
func (e *Executor) finalize(
	ctx context.Context,
	jobID uuid.UUID,
	workerID string,
	result json.RawMessage,
	genErr error,
	log *slog.Logger,
) (*domain.Job, string) {
	for i := 0; i < maxFinalizeAttempts; i++ {
		current, err := e.store.Get(ctx, jobID)
		if err != nil {
			log.Error("failed to read job for finalization", "error", err)
			return nil, outcomeDropped
		}
		if !holdsClaim(current, workerID) {
			log.Warn("claim lost before finalization, dropping outcome", "status", current.Status)
			return nil, outcomeDropped
		}

		outcome, mutate := e.decide(current, workerID, result, genErr)
		next, err := e.store.CompareAndSwap(ctx, jobID, current.Version, mutate)
		if err == nil {
			log.Info("attempt finalized",
				"outcome", outcome,
				"status", next.Status,
				"next_attempt_at", next.NextAttemptAt)
			e.notifier.Notify(ctx, next)
			return next, outcome
		}
		if store.IsConflictError(err) {
			log.Debug("finalization conflicted, retrying", "try", i+1)
			continue
		}
		log.Error("failed to finalize attempt", "error", err)
		return nil, outcomeDropped
	}

	log.Error("gave up finalizing after repeated conflicts")
	return nil, outcomeDropped
}

// decide picks the outcome for current and returns the mutation that
// records it.
func (e *Executor) decide(
	current *domain.Job,
	workerID string,
	result json.RawMessage,
	genErr error,
) (string, store.Mutation) {
	now := e.now()
	guard := func(j *domain.Job) error {
		if !holdsClaim(j, workerID) {
			return errClaimLost
		}
		j.ClaimedBy = nil
		j.ClaimExpiresAt = nil
		return nil
	}

	switch {
	case current.CancelRequested:
		return outcomeCancelled, func(j *domain.Job) error {
			if err := guard(j); err != nil {
				return err
			}
			j.Status = domain.JobStatusCancelled
			j.FinishedAt = &now
			return nil
		}

	case genErr == nil:
		return outcomeCompleted, func(j *domain.Job) error {
			if err := guard(j); err != nil {
				return err
			}
			j.Status = domain.JobStatusCompleted
			j.Result = result
			j.FinishedAt = &now
			return nil
		}

	case e.policy.IsRetryable(genErr) && current.AttemptCount < current.MaxAttempts:
		next := now.Add(e.policy.Backoff(current.AttemptCount))
		return outcomeRequeued, func(j *domain.Job) error {
			if err := guard(j); err != nil {
				return err
			}
			j.Status = domain.JobStatusQueued
			j.NextAttemptAt = next
			return nil
		}

	default:
		jobErr := &domain.JobError{
			Code:      string(generation.CodeOf(genErr)),
			Message:   errorSummary(genErr),
			Retryable: e.policy.IsRetryable(genErr),
			Attempt:   current.AttemptCount,
		}
		return outcomeFailed, func(j *domain.Job) error {
			if err := guard(j); err != nil {
				return err
			}
			j.Status = domain.JobStatusFailed
			j.Error = jobErr
			j.FinishedAt = &now
			return nil
		}
	}
}

// errorSummary is the user-facing message stored on a failed job: the fixed
// sentence for the code, plus the generator's own description when it gave
// one. The wrapped upstream error is never included.
func errorSummary(err error) string {
	summary := generation.CodeOf(err).Summary()
	var genErr *generation.Error
	if errors.As(err, &genErr) && genErr.Message != "" {
		return fmt.Sprintf("%s (%s)", summary, redact.String(genErr.Message))
	}
	return summary
}

func holdsClaim(j *domain.Job, workerID string) bool {
	return j.Status == domain.JobStatusProcessing && j.ClaimedBy != nil && *j.ClaimedBy == workerID
}

// heartbeat renews the lease of a running attempt and watches for cancel
// requests and lost claims, cancelling the attempt when it sees either.
type heartbeat struct {
	cancelRequested atomic.Bool
	claimLost       atomic.Bool
	wg              sync.WaitGroup
}

func (h *heartbeat) wait() { h.wg.Wait() }

func (e *Executor) startHeartbeat(
	ctx context.Context,
	cancelAttempt context.CancelFunc,
	jobID uuid.UUID,
	workerID string,
	log *slog.Logger,
) *heartbeat {
	hb := &heartbeat{}
	interval := e.cfg.LeaseDuration / 3
	if interval <= 0 {
		interval = time.Second
	}

	hb.wg.Add(1)
	go func() {
		defer hb.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if stop := e.renewLease(ctx, hb, jobID, workerID, log); stop {
					cancelAttempt()
					return
				}
			}
		}
	}()
	return hb
}

// renewLease extends the claim by one lease. It reports true when the
// attempt should stop.
func (e *Executor) renewLease(
	ctx context.Context,
	hb *heartbeat,
	jobID uuid.UUID,
	workerID string,
	log *slog.Logger,
) bool {
	current, err := e.store.Get(ctx, jobID)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("heartbeat read failed", "error", err)
		}
		return false
	}
	if !holdsClaim(current, workerID) {
		hb.claimLost.Store(true)
		return true
	}
	if current.CancelRequested {
		log.Info("cancel requested, aborting attempt")
		hb.cancelRequested.Store(true)
		return true
	}

	expires := e.now().Add(e.cfg.LeaseDuration)
	_, err = e.store.CompareAndSwap(ctx, jobID, current.Version, func(j *domain.Job) error {
		if !holdsClaim(j, workerID) {
			return errClaimLost
		}
		j.ClaimExpiresAt = &expires
		return nil
	})
	switch {
	case err == nil:
		log.Debug("lease renewed", "claim_expires_at", expires)
	case store.IsConflictError(err):
		log.Debug("lease renewal conflicted, will retry next tick")
	case ctx.Err() != nil:
	default:
		log.Warn("lease renewal failed", "error", err)
	}
	return false
}
