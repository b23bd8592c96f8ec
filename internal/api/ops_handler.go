package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/sketchpad-api/internal/api/shared"
	"github.com/phrazzld/sketchpad-api/internal/platform/logger"
	"github.com/phrazzld/sketchpad-api/internal/service"
)

// OpsHandler serves the operator endpoints. Routes using it must sit behind
// middleware.RequireOpsKey.
type OpsHandler struct {
	jobService service.JobService
	eventStats EventStats
	logger     *slog.Logger
}

// EventStats reports notification delivery counters. *events.Hub
// satisfies it.
type EventStats interface {
	Dropped() int64
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(jobService service.JobService, eventStats EventStats, logger *slog.Logger) *OpsHandler {
	if jobService == nil || eventStats == nil || logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("jobService, eventStats and logger are required for OpsHandler")
	}
	return &OpsHandler{
		jobService: jobService,
		eventStats: eventStats,
		logger:     logger.With(slog.String("component", "ops_handler")),
	}
}

// Stats handles GET /api/ops/stats with aggregates over every owner and
// the number of events dropped for slow subscribers.
func (h *OpsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.jobService.GlobalStats(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load job statistics")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, OpsStatsResponse{
		StatsResponse: statsToResponse(stats),
		EventsDropped: h.eventStats.Dropped(),
	})
}

// Sweep handles POST /api/ops/sweep by running the retention sweep now.
func (h *OpsHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	removed, err := h.jobService.Sweep(r.Context())
	if err != nil {
		HandleAPIError(w, r, err, "Retention sweep failed")
		return
	}
	logger.FromContextOrDefault(r.Context(), h.logger).Info("retention sweep triggered", "removed", removed)
	shared.RespondWithJSON(w, r, http.StatusOK, SweepResponse{Removed: removed})
}
