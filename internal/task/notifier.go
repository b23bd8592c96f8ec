package task

import (
	"context"
	"log/slog"

	"github.com/phrazzld/sketchpad-api/internal/domain"
	"github.com/phrazzld/sketchpad-api/internal/events"
)

// Notifier publishes a job event after each status-changing write. Emitter
// failures are logged and never returned; the job write has already
// happened and notification is best effort.
type Notifier struct {
	emitter events.EventEmitter
	logger  *slog.Logger
}

// NewNotifier creates a notifier. A nil emitter disables notification.
func NewNotifier(emitter events.EventEmitter, logger *slog.Logger) *Notifier {
	return &Notifier{
		emitter: emitter,
		logger:  logger.With("component", "job_notifier"),
	}
}

// Notify emits the event describing job's current state.
func (n *Notifier) Notify(ctx context.Context, job *domain.Job) {
	if n == nil || n.emitter == nil || job == nil {
		return
	}
	if err := n.emitter.EmitEvent(ctx, events.NewJobEvent(job)); err != nil {
		n.logger.Warn("failed to emit job event",
			"job_id", job.ID,
			"status", job.Status,
			"error", err)
	}
}
