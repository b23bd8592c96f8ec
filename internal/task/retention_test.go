package task_test

import (
	"context"
	"testing"
	"time"

	"github.com/phrazzld/sketchpad-api/internal/domain"
	"github.com/phrazzld/sketchpad-api/internal/platform/memory"
	"github.com/phrazzld/sketchpad-api/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// finishJob moves job through processing to completed at finished.
func finishJob(t *testing.T, s *memory.JobStore, job *domain.Job, finished time.Time) {
	t.Helper()
	claimed := claimJob(t, s, job, "w1", time.Minute, task.WithClock(func() time.Time { return finished }))
	_, err := s.CompareAndSwap(context.Background(), job.ID, claimed.Version, func(j *domain.Job) error {
		j.Status = domain.JobStatusCompleted
		j.Result = []byte(`{"shapes":[{"type":"rect","x":0,"y":0}]}`)
		j.ClaimedBy = nil
		j.ClaimExpiresAt = nil
		j.FinishedAt = &finished
		return nil
	})
	require.NoError(t, err)
}

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	for _, expr := range []string{"@hourly", "@every 10m", "*/5 * * * *", "0 3 * * 1"} {
		_, err := task.ParseSchedule(expr)
		assert.NoError(t, err, expr)
	}
	for _, expr := range []string{"", "every hour", "* * *", "0 0 0 * * *"} {
		_, err := task.ParseSchedule(expr)
		assert.Error(t, err, expr)
	}
}

func TestNewRetentionSweeper_Validation(t *testing.T) {
	t.Parallel()

	s := memory.NewJobStore()
	_, err := task.NewRetentionSweeper(s, 0, "@hourly", discardLogger())
	assert.Error(t, err)
	_, err = task.NewRetentionSweeper(s, time.Hour, "not a schedule", discardLogger())
	assert.Error(t, err)
}

func TestRetentionSweeper_SweepOnce(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := memory.NewJobStore()

	old := createJob(t, s, 0, 3, now.Add(-72*time.Hour))
	finishJob(t, s, old, now.Add(-48*time.Hour))

	recent := createJob(t, s, 0, 3, now.Add(-2*time.Hour))
	finishJob(t, s, recent, now.Add(-time.Hour))

	queued := createJob(t, s, 0, 3, now.Add(-96*time.Hour))

	sweeper, err := task.NewRetentionSweeper(s, 24*time.Hour, "@hourly", discardLogger(),
		task.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	removed, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = s.Get(context.Background(), old.ID)
	assert.Error(t, err)
	assert.Equal(t, domain.JobStatusCompleted, getJob(t, s, recent.ID).Status)
	assert.Equal(t, domain.JobStatusQueued, getJob(t, s, queued.ID).Status, "live jobs are never swept")

	removed, err = sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRetentionSweeper_StartStop(t *testing.T) {
	t.Parallel()

	sweeper, err := task.NewRetentionSweeper(memory.NewJobStore(), time.Hour, "@hourly", discardLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sweeper.Start(ctx))
	require.NoError(t, sweeper.Start(ctx), "second start is a no-op")
	require.NoError(t, sweeper.Stop(ctx))
	require.NoError(t, sweeper.Stop(ctx), "second stop is a no-op")
}
