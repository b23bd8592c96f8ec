//go:build integration

package postgres_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sketchpad-api/internal/domain"
	"github.com/phrazzld/sketchpad-api/internal/platform/postgres"
	"github.com/phrazzld/sketchpad-api/internal/store"
	"github.com/phrazzld/sketchpad-api/internal/testdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresJobStore_Lifecycle(t *testing.T) {
	db := testdb.GetTestDBWithT(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		s := postgres.NewPostgresJobStore(tx)

		job := queuedJob(t)
		require.NoError(t, s.Create(ctx, job))
		assert.ErrorIs(t, s.Create(ctx, job), store.ErrJobExists)

		claimable, err := s.FindClaimable(ctx, time.Now().UTC(), 10)
		require.NoError(t, err)
		require.NotEmpty(t, claimable)

		worker := "integration-worker"
		lease := time.Now().UTC().Add(time.Minute)
		claimed, err := s.CompareAndSwap(ctx, job.ID, 0, func(j *domain.Job) error {
			now := time.Now().UTC()
			j.Status = domain.JobStatusProcessing
			j.ClaimedBy = &worker
			j.ClaimExpiresAt = &lease
			j.AttemptCount++
			j.StartedAt = &now
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), claimed.Version)

		_, err = s.CompareAndSwap(ctx, job.ID, 0, func(*domain.Job) error { return nil })
		assert.ErrorIs(t, err, store.ErrConflict)

		result := json.RawMessage(`{"shapes":[{"type":"rect","x":1,"y":2,"width":3,"height":4}]}`)
		done, err := s.CompareAndSwap(ctx, job.ID, claimed.Version, func(j *domain.Job) error {
			now := time.Now().UTC()
			j.Status = domain.JobStatusCompleted
			j.Result = result
			j.ClaimedBy = nil
			j.ClaimExpiresAt = nil
			j.FinishedAt = &now
			return nil
		})
		require.NoError(t, err)

		got, err := s.Get(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCompleted, got.Status)
		assert.Equal(t, []byte(result), []byte(got.Result))
		assert.Equal(t, done.Version, got.Version)

		stats, err := s.Stats(ctx, &job.OwnerID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Counts[domain.JobStatusCompleted])

		removed, err := s.Sweep(ctx, time.Now().UTC().Add(time.Hour))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, removed, 1)

		_, err = s.Get(ctx, job.ID)
		assert.ErrorIs(t, err, store.ErrJobNotFound)
	})
}

func TestPostgresJobStore_ListByOwnerIsolation(t *testing.T) {
	db := testdb.GetTestDBWithT(t)

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		ctx := context.Background()
		s := postgres.NewPostgresJobStore(tx)

		mine := queuedJob(t)
		theirs := queuedJob(t)
		require.NoError(t, s.Create(ctx, mine))
		require.NoError(t, s.Create(ctx, theirs))

		jobs, err := s.ListByOwner(ctx, mine.OwnerID, store.ListFilter{})
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, mine.ID, jobs[0].ID)

		none, err := s.ListByOwner(ctx, uuid.New(), store.ListFilter{})
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}
