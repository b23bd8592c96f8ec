package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/sketchpad-api/internal/api/shared"
	"github.com/phrazzld/sketchpad-api/internal/domain"
	"github.com/phrazzld/sketchpad-api/internal/platform/logger"
	"github.com/phrazzld/sketchpad-api/internal/service"
)

// JobHandler handles the job endpoints of the authenticated API.
type JobHandler struct {
	jobService service.JobService
	logger     *slog.Logger
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(jobService service.JobService, logger *slog.Logger) *JobHandler {
	if jobService == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("jobService cannot be nil for JobHandler")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for JobHandler")
	}

	return &JobHandler{
		jobService: jobService,
		logger:     logger.With(slog.String("component", "job_handler")),
	}
}

// Submit handles POST /jobs. The job is only queued here; it runs on the
// worker pool.
func (h *JobHandler) Submit(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	ownerID, ok := getOwnerIDFromContext(r)
	if !ok {
		log.Warn("owner ID not found or invalid in request context")
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return
	}

	var req SubmitJobRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		if MapErrorToStatusCode(err) == http.StatusBadRequest {
			HandleAPIError(w, r, err, "")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	priority := 0
	if req.Priority != nil {
		priority = *req.Priority
	}

	job, err := h.jobService.Submit(r.Context(), ownerID, service.SubmitRequest{
		Kind:     domain.Kind(req.Kind),
		Payload:  req.Payload,
		Priority: priority,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to submit job")
		return
	}

	log.Debug("job accepted", slog.String("job_id", job.ID.String()))
	shared.RespondWithJSON(w, r, http.StatusAccepted, SubmitJobResponse{
		JobID:  job.ID,
		Status: job.Status,
	})
}

// List handles GET /jobs.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	ownerID, ok := getOwnerIDFromContext(r)
	if !ok {
		log.Warn("owner ID not found or invalid in request context")
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return
	}

	filter, err := parseListFilter(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	jobs, err := h.jobService.ListByOwner(r.Context(), ownerID, filter)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list jobs")
		return
	}

	resp := JobListResponse{
		Jobs:   make([]JobResponse, 0, len(jobs)),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, jobToResponse(job))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// Get handles GET /jobs/{id}.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	ownerID, jobID, ok := handleOwnerAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	job, err := h.jobService.GetStatus(r.Context(), ownerID, jobID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get job")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, jobToResponse(job))
}

// Result handles GET /jobs/{id}/result. The stored bytes are written
// unchanged.
func (h *JobHandler) Result(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	ownerID, jobID, ok := handleOwnerAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	result, err := h.jobService.GetResult(r.Context(), ownerID, jobID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get job result")
		return
	}
	shared.RespondWithRawJSON(w, r, http.StatusOK, result)
}

// Cancel handles POST /jobs/{id}/cancel.
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	ownerID, jobID, ok := handleOwnerAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	job, err := h.jobService.Cancel(r.Context(), ownerID, jobID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to cancel job")
		return
	}

	log.Debug("cancel handled",
		slog.String("job_id", jobID.String()),
		slog.String("status", string(job.Status)),
		slog.Bool("cancel_requested", job.CancelRequested))
	shared.RespondWithJSON(w, r, http.StatusOK, jobToResponse(job))
}

// Retry handles POST /jobs/{id}/retry.
func (h *JobHandler) Retry(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	ownerID, jobID, ok := handleOwnerAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	job, err := h.jobService.Retry(r.Context(), ownerID, jobID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to retry job")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, jobToResponse(job))
}

// Stats handles GET /jobs/stats for the caller's jobs.
func (h *JobHandler) Stats(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	ownerID, ok := getOwnerIDFromContext(r)
	if !ok {
		log.Warn("owner ID not found or invalid in request context")
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return
	}

	stats, err := h.jobService.Stats(r.Context(), ownerID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load job statistics")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, statsToResponse(stats))
}
