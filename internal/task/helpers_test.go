package task_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sketchpad-api/internal/domain"
	"github.com/phrazzld/sketchpad-api/internal/events"
	"github.com/phrazzld/sketchpad-api/internal/generation"
	"github.com/phrazzld/sketchpad-api/internal/mocks"
	"github.com/phrazzld/sketchpad-api/internal/platform/memory"
	"github.com/phrazzld/sketchpad-api/internal/retry"
	"github.com/phrazzld/sketchpad-api/internal/store"
	"github.com/phrazzld/sketchpad-api/internal/task"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func canvasPayload() json.RawMessage {
	return json.RawMessage(`{"canvas_id":"` + uuid.NewString() + `","prompt":"a red house","width":640,"height":480}`)
}

// createJob stores a new queued job created at created.
func createJob(t *testing.T, s *memory.JobStore, priority, maxAttempts int, created time.Time) *domain.Job {
	t.Helper()
	job, err := domain.NewJob(uuid.New(), domain.KindCanvasGeneration, canvasPayload(), priority, maxAttempts, created)
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), job))
	return job
}

func getJob(t *testing.T, s *memory.JobStore, id uuid.UUID) *domain.Job {
	t.Helper()
	job, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	return job
}

// fastPolicy retries the default codes with millisecond backoff.
func fastPolicy() *retry.Policy {
	return retry.NewPolicy(time.Millisecond, 2*time.Millisecond, nil)
}

// eventRecorder collects emitted events.
type eventRecorder struct {
	mu     sync.Mutex
	events []*events.JobEvent
}

func (r *eventRecorder) HandleEvent(_ context.Context, event *events.JobEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) statuses(jobID uuid.UUID) []domain.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.JobStatus
	for _, e := range r.events {
		if e.JobID == jobID {
			out = append(out, e.Status)
		}
	}
	return out
}

func newNotifier() (*task.Notifier, *eventRecorder) {
	rec := &eventRecorder{}
	emitter := events.NewInMemoryEventEmitter(discardLogger())
	emitter.RegisterHandler(rec)
	return task.NewNotifier(emitter, discardLogger()), rec
}

type engineConfig struct {
	attemptTimeout time.Duration
	lease          time.Duration
	opts           []task.Option
}

func newExecutor(
	t *testing.T,
	s *memory.JobStore,
	gen generation.Generator,
	notifier *task.Notifier,
	cfg engineConfig,
) *task.Executor {
	t.Helper()
	if cfg.attemptTimeout == 0 {
		cfg.attemptTimeout = 2 * time.Second
	}
	if cfg.lease == 0 {
		cfg.lease = time.Minute
	}
	exec, err := task.NewExecutor(s, gen, fastPolicy(), notifier, task.ExecutorConfig{
		AttemptTimeout: cfg.attemptTimeout,
		LeaseDuration:  cfg.lease,
	}, discardLogger(), cfg.opts...)
	require.NoError(t, err)
	return exec
}

// claimJob claims job for worker with the given lease.
func claimJob(t *testing.T, s *memory.JobStore, job *domain.Job, worker string, lease time.Duration, opts ...task.Option) *domain.Job {
	t.Helper()
	claimed, err := task.NewClaimer(s, worker, lease, discardLogger(), opts...).Claim(context.Background(), job)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	return claimed
}

// blockingGenerator waits for ctx to end and reports when it started.
func blockingGenerator() (*mocks.MockGenerator, <-chan struct{}) {
	started := make(chan struct{})
	var once sync.Once
	gen := &mocks.MockGenerator{
		GenerateFn: func(ctx context.Context, _ generation.Request) (domain.Result, error) {
			once.Do(func() { close(started) })
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	return gen, started
}

// requestCancel sets cancel_requested, retrying when a heartbeat bumps the
// version in between.
func requestCancel(s *memory.JobStore, id uuid.UUID) error {
	for {
		current, err := s.Get(context.Background(), id)
		if err != nil {
			return err
		}
		_, err = s.CompareAndSwap(context.Background(), id, current.Version, func(j *domain.Job) error {
			j.CancelRequested = true
			return nil
		})
		if !store.IsConflictError(err) {
			return err
		}
	}
}
