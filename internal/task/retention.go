package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/sketchpad-api/internal/store"
	cronlib "github.com/robfig/cron/v3"
)

// cronParser accepts standard 5-field expressions and descriptors such as
// "@hourly" or "@every 10m".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule validates a retention schedule expression.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	return cronParser.Parse(expr)
}

// RetentionSweeper removes terminal jobs older than the retention period on
// a cron schedule.
type RetentionSweeper struct {
	store    store.JobStore
	period   time.Duration
	schedule string
	now      func() time.Time
	logger   *slog.Logger

	mu   sync.Mutex
	cron *cronlib.Cron
}

// NewRetentionSweeper creates a sweeper. The schedule is checked here so a
// bad expression fails at startup. Only WithClock applies.
func NewRetentionSweeper(
	s store.JobStore,
	period time.Duration,
	schedule string,
	logger *slog.Logger,
	opts ...Option,
) (*RetentionSweeper, error) {
	if period <= 0 {
		return nil, fmt.Errorf("retention period must be positive")
	}
	if _, err := ParseSchedule(schedule); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	return &RetentionSweeper{
		store:    s,
		period:   period,
		schedule: schedule,
		now:      buildOptions(opts).now,
		logger:   logger.With("component", "retention_sweeper"),
	}, nil
}

// SweepOnce removes every terminal job that finished more than the
// retention period ago and returns how many were removed.
func (r *RetentionSweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.period)
	removed, err := r.store.Sweep(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention sweep failed: %w", err)
	}
	if removed > 0 {
		r.logger.Info("swept finished jobs", "removed", removed, "finished_before", cutoff)
	} else {
		r.logger.Debug("retention sweep found nothing", "finished_before", cutoff)
	}
	return removed, nil
}

// Start schedules SweepOnce. Scheduled runs use ctx; cancel it or call Stop
// to end them.
func (r *RetentionSweeper) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return nil
	}

	c := cronlib.New(cronlib.WithParser(cronParser), cronlib.WithLocation(time.UTC))
	_, err := c.AddFunc(r.schedule, func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := r.SweepOnce(ctx); err != nil {
			r.logger.Error("scheduled retention sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule retention sweep: %w", err)
	}
	c.Start()
	r.cron = c

	r.logger.Info("retention sweeper started",
		"schedule", r.schedule,
		"retention_period", r.period)
	return nil
}

// Stop removes the schedule and waits for a running sweep to return or ctx
// to expire.
func (r *RetentionSweeper) Stop(ctx context.Context) error {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
