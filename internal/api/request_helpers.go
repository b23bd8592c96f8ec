package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/sketchpad-api/internal/api/shared"
	"github.com/phrazzld/sketchpad-api/internal/domain"
	"github.com/phrazzld/sketchpad-api/internal/platform/logger"
	"github.com/phrazzld/sketchpad-api/internal/store"
)

// getOwnerIDFromContext extracts the authenticated owner's UUID placed in
// the request context by the authentication middleware.
func getOwnerIDFromContext(r *http.Request) (uuid.UUID, bool) {
	ownerID, ok := r.Context().Value(shared.OwnerIDContextKey).(uuid.UUID)
	if !ok || ownerID == uuid.Nil {
		return uuid.Nil, false
	}
	return ownerID, true
}

// getPathUUID extracts and parses a UUID path parameter.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, domain.NewValidationError(paramName, "is required", domain.ErrValidation)
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, domain.NewValidationError(paramName, "has invalid format", domain.ErrInvalidID)
	}
	return id, nil
}

// handleOwnerAndPathUUID extracts both the owner ID from context and a UUID
// from the path. It writes an error response and returns false if either
// extraction fails.
func handleOwnerAndPathUUID(
	w http.ResponseWriter,
	r *http.Request,
	paramName string,
	log *slog.Logger,
) (uuid.UUID, uuid.UUID, bool) {
	if log == nil {
		log = logger.FromContextOrDefault(r.Context(), slog.Default())
	}

	ownerID, ok := getOwnerIDFromContext(r)
	if !ok {
		log.Warn("owner ID not found or invalid in request context")
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return uuid.Nil, uuid.Nil, false
	}

	pathID, err := getPathUUID(r, paramName)
	if err != nil {
		log.Debug("invalid path parameter",
			slog.String("param_name", paramName),
			slog.String("value", chi.URLParam(r, paramName)))
		HandleAPIError(w, r, err, "")
		return uuid.Nil, uuid.Nil, false
	}

	return ownerID, pathID, true
}

// parseListFilter reads ?status=a,b&limit=&offset= into a store.ListFilter.
func parseListFilter(r *http.Request) (store.ListFilter, error) {
	q := r.URL.Query()
	var filter store.ListFilter

	if raw := q.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, err := domain.ParseJobStatus(strings.TrimSpace(part))
			if err != nil {
				return filter, domain.NewValidationError("status", "has an unknown value", err)
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	var err error
	if filter.Limit, err = nonNegativeInt(q.Get("limit"), "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = nonNegativeInt(q.Get("offset"), "offset"); err != nil {
		return filter, err
	}
	return filter.Normalize(), nil
}

func nonNegativeInt(raw, field string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.NewValidationError(field, "must be a non-negative integer", domain.ErrInvalidFormat)
	}
	return n, nil
}
