package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sketchpad-api/internal/domain"
	"github.com/phrazzld/sketchpad-api/internal/platform/logger"
	"github.com/phrazzld/sketchpad-api/internal/store"
)

const jobColumns = `id, owner_id, kind, status, priority, payload, result, error,
	attempt_count, max_attempts, claimed_by, claim_expires_at, next_attempt_at,
	cancel_requested, manual_retries, created_at, updated_at, started_at,
	finished_at, version`

const terminalStatuses = `('completed', 'failed', 'cancelled')`

// PostgresJobStore implements store.JobStore on PostgreSQL. Every change
// after creation is an UPDATE guarded by the row version.
type PostgresJobStore struct {
	db  store.DBTX
	now func() time.Time
}

// Compile-time check
var _ store.JobStore = (*PostgresJobStore)(nil)

// NewPostgresJobStore creates a job store over db. db may be a *sql.DB or a
// *sql.Tx.
func NewPostgresJobStore(db store.DBTX) *PostgresJobStore {
	return &PostgresJobStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock returns a copy of the store that stamps updates with now.
func (s *PostgresJobStore) WithClock(now func() time.Time) *PostgresJobStore {
	return &PostgresJobStore{db: s.db, now: now}
}

// Create inserts a new queued job.
func (s *PostgresJobStore) Create(ctx context.Context, job *domain.Job) error {
	log := logger.FromContext(ctx)

	if job.Status != domain.JobStatusQueued || job.Version != 0 {
		return store.NewStoreError("job", "create", "new jobs must be queued at version 0",
			store.ErrInvalidEntity)
	}
	if err := job.Validate(); err != nil {
		return store.NewStoreError("job", "create", "job failed validation",
			fmt.Errorf("%w: %w", store.ErrInvalidEntity, err))
	}

	jobErr, err := encodeJobError(job.Error)
	if err != nil {
		return err
	}

	query := `INSERT INTO jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err = s.db.ExecContext(ctx, query,
		job.ID,
		job.OwnerID,
		string(job.Kind),
		string(job.Status),
		job.Priority,
		[]byte(job.Payload),
		nullBytes(job.Result),
		jobErr,
		job.AttemptCount,
		job.MaxAttempts,
		job.ClaimedBy,
		job.ClaimExpiresAt,
		job.NextAttemptAt,
		job.CancelRequested,
		job.ManualRetries,
		job.CreatedAt,
		job.UpdatedAt,
		job.StartedAt,
		job.FinishedAt,
		job.Version,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			log.Debug("job already exists", "job_id", job.ID)
			return store.ErrJobExists
		}
		log.Error("failed to create job",
			"job_id", job.ID,
			"error", err)
		return fmt.Errorf("failed to create job: %w", MapError(err))
	}

	log.Debug("job created",
		"job_id", job.ID,
		"owner_id", job.OwnerID,
		"kind", job.Kind)
	return nil
}

// Get retrieves a job by ID.
func (s *PostgresJobStore) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrJobNotFound
		}
		logger.FromContext(ctx).Error("failed to get job",
			"job_id", id,
			"error", err)
		return nil, fmt.Errorf("failed to get job: %w", MapError(err))
	}
	return job, nil
}

// ListByOwner returns a page of the owner's jobs, newest first.
func (s *PostgresJobStore) ListByOwner(
	ctx context.Context,
	ownerID uuid.UUID,
	filter store.ListFilter,
) ([]*domain.Job, error) {
	filter = filter.Normalize()

	var b strings.Builder
	b.WriteString(`SELECT ` + jobColumns + ` FROM jobs WHERE owner_id = $1`)
	args := []any{ownerID}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, string(status))
			placeholders[i] = "$" + strconv.Itoa(len(args))
		}
		b.WriteString(` AND status IN (` + strings.Join(placeholders, ", ") + `)`)
	}

	args = append(args, filter.Limit, filter.Offset)
	fmt.Fprintf(&b, ` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	jobs, err := s.queryJobs(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// CompareAndSwap applies mutate to the job if its stored version still equals
// expectedVersion. The UPDATE re-checks the version so a concurrent writer
// between the read and the write causes ErrConflict.
func (s *PostgresJobStore) CompareAndSwap(
	ctx context.Context,
	id uuid.UUID,
	expectedVersion int64,
	mutate store.Mutation,
) (*domain.Job, error) {
	log := logger.FromContext(ctx)

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Version != expectedVersion {
		return nil, store.ErrConflict
	}

	next, err := store.ApplyMutation(current, mutate, s.now())
	if err != nil {
		return nil, err
	}

	jobErr, err := encodeJobError(next.Error)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE jobs SET
			status = $3,
			priority = $4,
			result = $5,
			error = $6,
			attempt_count = $7,
			max_attempts = $8,
			claimed_by = $9,
			claim_expires_at = $10,
			next_attempt_at = $11,
			cancel_requested = $12,
			manual_retries = $13,
			updated_at = $14,
			started_at = $15,
			finished_at = $16,
			version = $17
		WHERE id = $1 AND version = $2`

	res, err := s.db.ExecContext(ctx, query,
		id,
		expectedVersion,
		string(next.Status),
		next.Priority,
		nullBytes(next.Result),
		jobErr,
		next.AttemptCount,
		next.MaxAttempts,
		next.ClaimedBy,
		next.ClaimExpiresAt,
		next.NextAttemptAt,
		next.CancelRequested,
		next.ManualRetries,
		next.UpdatedAt,
		next.StartedAt,
		next.FinishedAt,
		next.Version,
	)
	if err != nil {
		log.Error("failed to update job",
			"job_id", id,
			"expected_version", expectedVersion,
			"error", err)
		return nil, fmt.Errorf("%w: %w", store.ErrUpdateFailed, MapError(err))
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		log.Debug("job version moved during update",
			"job_id", id,
			"expected_version", expectedVersion)
		return nil, store.ErrConflict
	}

	return next, nil
}

// Reap returns processing jobs whose lease expired before staleBefore,
// oldest lease first.
func (s *PostgresJobStore) Reap(ctx context.Context, staleBefore time.Time) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs
		WHERE status = 'processing' AND claim_expires_at < $1
		ORDER BY claim_expires_at ASC`

	jobs, err := s.queryJobs(ctx, query, staleBefore.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to find expired leases: %w", err)
	}
	return jobs, nil
}

// FindClaimable returns queued jobs eligible at now in claim order.
func (s *PostgresJobStore) FindClaimable(ctx context.Context, now time.Time, limit int) ([]*domain.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `SELECT ` + jobColumns + ` FROM jobs
		WHERE status = 'queued' AND next_attempt_at <= $1 AND attempt_count < max_attempts
		ORDER BY priority DESC, created_at ASC, id
		LIMIT $2`

	jobs, err := s.queryJobs(ctx, query, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find claimable jobs: %w", err)
	}
	return jobs, nil
}

// Stats counts jobs per status and averages completed job durations.
func (s *PostgresJobStore) Stats(ctx context.Context, ownerID *uuid.UUID) (*store.JobStats, error) {
	log := logger.FromContext(ctx)

	where := ""
	var args []any
	if ownerID != nil {
		where = " WHERE owner_id = $1"
		args = append(args, *ownerID)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs`+where+` GROUP BY status`, args...)
	if err != nil {
		log.Error("failed to count jobs", "error", err)
		return nil, fmt.Errorf("failed to count jobs: %w", MapError(err))
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Error("failed to close rows", "error", closeErr)
		}
	}()

	counts := make(map[domain.JobStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[domain.JobStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate job counts: %w", err)
	}

	avgQuery := `SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (finished_at - started_at))), 0)::float8
		FROM jobs WHERE status = 'completed' AND started_at IS NOT NULL`
	if ownerID != nil {
		avgQuery += ` AND owner_id = $1`
	}

	var avgSeconds float64
	if err := s.db.QueryRowContext(ctx, avgQuery, args...).Scan(&avgSeconds); err != nil {
		log.Error("failed to average job durations", "error", err)
		return nil, fmt.Errorf("failed to average job durations: %w", MapError(err))
	}

	avg := time.Duration(avgSeconds * float64(time.Second))
	return store.NewJobStats(counts, avg), nil
}

// Sweep moves terminal jobs finished before finishedBefore into jobs_archive.
// Copy and delete share one transaction; the copied rows are locked so a
// concurrent manual retry cannot slip between the two statements.
func (s *PostgresJobStore) Sweep(ctx context.Context, finishedBefore time.Time) (int, error) {
	log := logger.FromContext(ctx)
	cutoff := finishedBefore.UTC()

	var removed int
	sweep := func(ctx context.Context, tx *sql.Tx) error {
		archive := `
			INSERT INTO jobs_archive (id, owner_id, kind, status, priority, payload, result, error,
				attempt_count, max_attempts, manual_retries, created_at, started_at, finished_at, archived_at)
			SELECT id, owner_id, kind, status, priority, payload, result, error,
				attempt_count, max_attempts, manual_retries, created_at, started_at, finished_at, $2
			FROM jobs
			WHERE status IN ` + terminalStatuses + ` AND finished_at < $1
			FOR UPDATE`
		if _, err := tx.ExecContext(ctx, archive, cutoff, s.now()); err != nil {
			return fmt.Errorf("failed to archive jobs: %w", MapError(err))
		}

		res, err := tx.ExecContext(ctx,
			`DELETE FROM jobs WHERE status IN `+terminalStatuses+` AND finished_at < $1`, cutoff)
		if err != nil {
			return fmt.Errorf("%w: %w", store.ErrDeleteFailed, MapError(err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		removed = int(n)
		return nil
	}

	var err error
	switch db := s.db.(type) {
	case store.TxBeginner:
		err = store.RunInTransaction(ctx, db, sweep)
	case *sql.Tx:
		err = sweep(ctx, db)
	default:
		err = fmt.Errorf("%w: sweep needs a transactional connection", store.ErrTransactionFailed)
	}
	if err != nil {
		log.Error("failed to sweep jobs",
			"finished_before", cutoff,
			"error", err)
		return 0, err
	}

	log.Info("swept terminal jobs",
		"finished_before", cutoff,
		"removed", removed)
	return removed, nil
}

func (s *PostgresJobStore) queryJobs(ctx context.Context, query string, args ...any) ([]*domain.Job, error) {
	log := logger.FromContext(ctx)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("job query failed", "error", err)
		return nil, MapError(err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Error("failed to close rows", "error", closeErr)
		}
	}()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	return jobs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var (
		job            domain.Job
		kind, status   string
		payload        []byte
		result         []byte
		jobErr         []byte
		claimedBy      sql.NullString
		claimExpiresAt sql.NullTime
		startedAt      sql.NullTime
		finishedAt     sql.NullTime
	)

	err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&kind,
		&status,
		&job.Priority,
		&payload,
		&result,
		&jobErr,
		&job.AttemptCount,
		&job.MaxAttempts,
		&claimedBy,
		&claimExpiresAt,
		&job.NextAttemptAt,
		&job.CancelRequested,
		&job.ManualRetries,
		&job.CreatedAt,
		&job.UpdatedAt,
		&startedAt,
		&finishedAt,
		&job.Version,
	)
	if err != nil {
		return nil, err
	}

	job.Kind = domain.Kind(kind)
	job.Status = domain.JobStatus(status)
	job.Payload = json.RawMessage(payload)
	if len(result) > 0 {
		job.Result = json.RawMessage(result)
	}
	if len(jobErr) > 0 {
		job.Error = &domain.JobError{}
		if err := json.Unmarshal(jobErr, job.Error); err != nil {
			return nil, fmt.Errorf("failed to decode job error: %w", err)
		}
	}
	if claimedBy.Valid {
		job.ClaimedBy = &claimedBy.String
	}
	job.ClaimExpiresAt = timePtr(claimExpiresAt)
	job.StartedAt = timePtr(startedAt)
	job.FinishedAt = timePtr(finishedAt)
	job.NextAttemptAt = job.NextAttemptAt.UTC()
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()

	return &job, nil
}

func encodeJobError(e *domain.JobError) (any, error) {
	if e == nil {
		return nil, nil
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job error: %w", err)
	}
	return raw, nil
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
