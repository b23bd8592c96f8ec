package store

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sketchpad-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueuedJob(t *testing.T) *domain.Job {
	t.Helper()
	payload := json.RawMessage(`{"canvas_id":"` + uuid.NewString() + `","prompt":"sun","width":10,"height":10}`)
	job, err := domain.NewJob(uuid.New(), domain.KindCanvasGeneration, payload, 0, 3, time.Now())
	require.NoError(t, err)
	return job
}

func TestApplyMutation(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	t.Run("advances version", func(t *testing.T) {
		t.Parallel()
		job := newQueuedJob(t)
		next, err := ApplyMutation(job, func(j *domain.Job) error {
			j.Priority = 7
			return nil
		}, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), next.Version)
		assert.Equal(t, 7, next.Priority)
		assert.Equal(t, 0, job.Priority, "original must not change")
		assert.Equal(t, now, next.UpdatedAt)
	})

	t.Run("mutation error aborts", func(t *testing.T) {
		t.Parallel()
		job := newQueuedJob(t)
		boom := errors.New("boom")
		_, err := ApplyMutation(job, func(*domain.Job) error { return boom }, now)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("illegal transition rejected", func(t *testing.T) {
		t.Parallel()
		job := newQueuedJob(t)
		_, err := ApplyMutation(job, func(j *domain.Job) error {
			j.Status = domain.JobStatusCompleted
			j.Result = json.RawMessage(`{}`)
			j.FinishedAt = &now
			return nil
		}, now)
		assert.ErrorIs(t, err, ErrInvalidEntity)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})
}

func TestNewJobStats(t *testing.T) {
	t.Parallel()

	stats := NewJobStats(map[domain.JobStatus]int64{
		domain.JobStatusQueued:    2,
		domain.JobStatusCompleted: 3,
		domain.JobStatusFailed:    1,
	}, 4*time.Second)

	assert.Equal(t, int64(6), stats.Total)
	assert.Equal(t, int64(0), stats.Counts[domain.JobStatusCancelled])
	assert.InDelta(t, 0.25, stats.FailureRate, 1e-9)
	assert.Equal(t, 4*time.Second, stats.AverageDuration)

	empty := NewJobStats(nil, 0)
	assert.Zero(t, empty.FailureRate)
	assert.Len(t, empty.Counts, len(domain.AllJobStatuses))
}

func TestListFilter(t *testing.T) {
	t.Parallel()

	f := ListFilter{Limit: 1000, Offset: -3}.Normalize()
	assert.Equal(t, MaxListLimit, f.Limit)
	assert.Equal(t, 0, f.Offset)
	assert.Equal(t, DefaultListLimit, ListFilter{}.Normalize().Limit)

	assert.True(t, ListFilter{}.Matches(domain.JobStatusFailed))
	only := ListFilter{Statuses: []domain.JobStatus{domain.JobStatusQueued}}
	assert.True(t, only.Matches(domain.JobStatusQueued))
	assert.False(t, only.Matches(domain.JobStatusFailed))
}
