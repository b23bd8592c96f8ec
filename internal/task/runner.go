package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Runner owns the background side of the job engine: the worker pool, the
// reaper and the retention sweeper. It is started once by the server and
// stopped on shutdown.
type Runner struct {
	pool    *WorkerPool
	reaper  *Reaper
	sweeper *RetentionSweeper
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRunner creates a runner. The sweeper may be nil to disable retention.
func NewRunner(pool *WorkerPool, reaper *Reaper, sweeper *RetentionSweeper, logger *slog.Logger) (*Runner, error) {
	if pool == nil {
		return nil, fmt.Errorf("worker pool cannot be nil")
	}
	if reaper == nil {
		return nil, fmt.Errorf("reaper cannot be nil")
	}
	return &Runner{
		pool:    pool,
		reaper:  reaper,
		sweeper: sweeper,
		logger:  logger.With("component", "job_runner"),
	}, nil
}

// Start recovers jobs orphaned by a previous process, then starts the pool,
// the reaper loop and the retention schedule.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return nil
	}

	recovered, err := r.reaper.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover jobs: %w", err)
	}
	r.logger.Info("recovered unfinished jobs", "count", recovered)

	bgCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if r.sweeper != nil {
		if err := r.sweeper.Start(bgCtx); err != nil {
			cancel()
			return err
		}
	}
	r.cancel = cancel

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.reaper.Run(bgCtx)
	}()

	r.pool.Start()
	return nil
}

// Sweep runs the retention sweep immediately. It returns zero when
// retention is disabled.
func (r *Runner) Sweep(ctx context.Context) (int, error) {
	if r.sweeper == nil {
		return 0, nil
	}
	return r.sweeper.SweepOnce(ctx)
}

// Stop stops claiming, waits for in-flight attempts until ctx expires and
// then stops the reaper and the sweeper. Jobs whose attempts were cut off
// are recovered by the reaper of the next process.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}

	var errs []error
	if err := r.pool.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("worker pool: %w", err))
	}
	if r.sweeper != nil {
		if err := r.sweeper.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("retention sweeper: %w", err))
		}
	}
	cancel()
	r.wg.Wait()

	r.logger.Info("job runner stopped")
	return errors.Join(errs...)
}
