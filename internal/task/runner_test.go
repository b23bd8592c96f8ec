package task_test

import (
	"context"
	"testing"
	"time"

	"github.com/phrazzld/sketchpad-api/internal/domain"
	"github.com/phrazzld/sketchpad-api/internal/mocks"
	"github.com/phrazzld/sketchpad-api/internal/platform/memory"
	"github.com/phrazzld/sketchpad-api/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunner_Validation(t *testing.T) {
	t.Parallel()

	s := memory.NewJobStore()
	exec := newExecutor(t, s, &mocks.MockGenerator{}, nil, engineConfig{})
	pool := newPool(t, s, exec, nil, 1)
	reaper := task.NewReaper(s, nil, time.Second, discardLogger())

	_, err := task.NewRunner(nil, reaper, nil, discardLogger())
	assert.Error(t, err)
	_, err = task.NewRunner(pool, nil, nil, discardLogger())
	assert.Error(t, err)
}

func TestRunner_RecoversOrphanedJobsOnStart(t *testing.T) {
	t.Parallel()

	s := memory.NewJobStore()
	notifier, _ := newNotifier()
	gen := mocks.NewMockGeneratorWithResult(mocks.SampleCanvasResult())
	exec := newExecutor(t, s, gen, notifier, engineConfig{})
	pool := newPool(t, s, exec, notifier, 2)
	reaper := task.NewReaper(s, notifier, time.Hour, discardLogger())
	sweeper, err := task.NewRetentionSweeper(s, time.Hour, "@hourly", discardLogger())
	require.NoError(t, err)

	runner, err := task.NewRunner(pool, reaper, sweeper, discardLogger())
	require.NoError(t, err)

	// Left behind by a process that crashed mid-attempt.
	orphan := abandonedJob(t, s, 3, time.Now().UTC())
	fresh := createJob(t, s, 0, 3, time.Now().Add(-time.Second))

	require.NoError(t, runner.Start(context.Background()))
	require.NoError(t, runner.Start(context.Background()), "second start is a no-op")

	recovered := waitForStatus(t, s, orphan.ID, domain.JobStatusCompleted)
	assert.Equal(t, 2, recovered.AttemptCount)
	waitForStatus(t, s, fresh.ID, domain.JobStatusCompleted)

	removed, err := runner.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed, "nothing is older than the retention period yet")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, runner.Stop(ctx))
	require.NoError(t, runner.Stop(ctx))
}

func TestRunner_SweepWithoutRetention(t *testing.T) {
	t.Parallel()

	s := memory.NewJobStore()
	exec := newExecutor(t, s, &mocks.MockGenerator{}, nil, engineConfig{})
	runner, err := task.NewRunner(newPool(t, s, exec, nil, 1), task.NewReaper(s, nil, time.Second, discardLogger()), nil, discardLogger())
	require.NoError(t, err)

	removed, err := runner.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)
}
