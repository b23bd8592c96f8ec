package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sketchpad-api/internal/domain"
	"github.com/phrazzld/sketchpad-api/internal/store"
)

// WorkerPool runs a fixed number of slots. Each slot repeatedly claims the
// next eligible job and executes it, so at most WorkerCount attempts run at
// once in this process.
type WorkerPool struct {
	store    store.JobStore
	executor *Executor
	notifier *Notifier
	config   WorkerPoolConfig
	opts     []Option
	now      func() time.Time
	logger   *slog.Logger

	// stopCh stops slots from claiming new work
	stopCh chan struct{}

	// jobCtx is passed to running attempts and is only cancelled when
	// Stop runs out of time
	jobCtx    context.Context
	jobCancel context.CancelFunc

	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	stopped bool
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount is the number of concurrent slots.
	// If zero or negative, defaults to 1
	WorkerCount int

	// PollInterval is how long an idle slot sleeps before looking again
	PollInterval time.Duration

	// ClaimRetries is how many candidates a slot tries per poll
	ClaimRetries int

	// LeaseDuration is the initial lease written at claim time
	LeaseDuration time.Duration

	// PoolID prefixes the worker IDs of the slots. Defaults to a random UUID.
	PoolID string
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount:   4,
		PollInterval:  time.Second,
		ClaimRetries:  3,
		LeaseDuration: 2 * time.Minute,
	}
}

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(
	s store.JobStore,
	executor *Executor,
	notifier *Notifier,
	config WorkerPoolConfig,
	logger *slog.Logger,
	opts ...Option,
) (*WorkerPool, error) {
	if s == nil {
		return nil, fmt.Errorf("job store cannot be nil")
	}
	if executor == nil {
		return nil, fmt.Errorf("executor cannot be nil")
	}

	defaults := DefaultWorkerPoolConfig()
	if config.WorkerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
		config.WorkerCount = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.ClaimRetries <= 0 {
		config.ClaimRetries = defaults.ClaimRetries
	}
	if config.LeaseDuration <= 0 {
		config.LeaseDuration = defaults.LeaseDuration
	}
	if config.PoolID == "" {
		config.PoolID = uuid.NewString()
	}

	jobCtx, jobCancel := context.WithCancel(context.Background())
	return &WorkerPool{
		store:     s,
		executor:  executor,
		notifier:  notifier,
		config:    config,
		opts:      opts,
		now:       buildOptions(opts).now,
		logger:    logger.With("component", "worker_pool", "pool_id", config.PoolID),
		stopCh:    make(chan struct{}),
		jobCtx:    jobCtx,
		jobCancel: jobCancel,
	}, nil
}

// Start launches the slots. Calling Start more than once has no effect.
func (p *WorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	p.logger.Info("starting worker pool",
		"worker_count", p.config.WorkerCount,
		"poll_interval", p.config.PollInterval)

	for i := 0; i < p.config.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-%d", p.config.PoolID, i)
		claimer := NewClaimer(p.store, workerID, p.config.LeaseDuration, p.logger, p.opts...)
		p.wg.Add(1)
		go p.runSlot(claimer)
	}
}

// Stop stops claiming and waits for running attempts to finish. If ctx
// expires first, the attempts are cancelled and their jobs are left for the
// reaper; Stop then returns ctx's error.
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.jobCancel()
		p.logger.Info("worker pool stopped")
		return nil
	case <-ctx.Done():
		p.jobCancel()
		<-done
		p.logger.Warn("worker pool stop timed out, in-flight jobs left for the reaper")
		return ctx.Err()
	}
}

// runSlot is the loop of one slot. A slot never starts a second attempt
// before the first has been resolved.
func (p *WorkerPool) runSlot(claimer *Claimer) {
	defer p.wg.Done()
	log := p.logger.With("worker_id", claimer.WorkerID())
	log.Debug("starting slot")

	for {
		select {
		case <-p.stopCh:
			log.Debug("stopping slot")
			return
		default:
		}

		job := p.claimNext(claimer, log)
		if job == nil {
			if !p.sleep(p.config.PollInterval) {
				log.Debug("stopping slot")
				return
			}
			continue
		}

		p.notifier.Notify(p.jobCtx, job)
		p.executor.Execute(p.jobCtx, job)
	}
}

// claimNext tries up to ClaimRetries eligible candidates in order and
// returns the first one this slot wins.
func (p *WorkerPool) claimNext(claimer *Claimer, log *slog.Logger) *domain.Job {
	candidates, err := p.store.FindClaimable(p.jobCtx, p.now(), p.config.ClaimRetries)
	if err != nil {
		if p.jobCtx.Err() == nil {
			log.Error("failed to find claimable jobs", "error", err)
		}
		return nil
	}

	for _, candidate := range candidates {
		claimed, err := claimer.Claim(p.jobCtx, candidate)
		switch {
		case err == nil && claimed != nil:
			return claimed
		case err == nil, errors.Is(err, ErrNotClaimable):
			continue
		default:
			log.Error("failed to claim job", "job_id", candidate.ID, "error", err)
		}
	}
	return nil
}

// sleep waits for d and reports false when the pool is stopping.
func (p *WorkerPool) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-p.stopCh:
		return false
	case <-timer.C:
		return true
	}
}
