package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/sketchpad-api/internal/api/shared"
	"github.com/phrazzld/sketchpad-api/internal/domain"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func canvasPayload() json.RawMessage {
	return json.RawMessage(`{"canvas_id":"` + uuid.NewString() + `","prompt":"a red house","width":640,"height":480}`)
}

func newJob(t *testing.T, owner uuid.UUID) *domain.Job {
	t.Helper()
	job, err := domain.NewJob(owner, domain.KindCanvasGeneration, canvasPayload(), 0, 3,
		time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return job
}

// withOwner stands in for the auth middleware. A nil owner leaves the
// context unauthenticated.
func withOwner(owner uuid.UUID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if owner != uuid.Nil {
				r = r.WithContext(context.WithValue(r.Context(), shared.OwnerIDContextKey, owner))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func jobRouter(h *JobHandler, owner uuid.UUID) http.Handler {
	r := chi.NewRouter()
	r.Use(withOwner(owner))
	r.Post("/jobs", h.Submit)
	r.Get("/jobs", h.List)
	r.Get("/jobs/stats", h.Stats)
	r.Get("/jobs/{id}", h.Get)
	r.Get("/jobs/{id}/result", h.Result)
	r.Post("/jobs/{id}/cancel", h.Cancel)
	r.Post("/jobs/{id}/retry", h.Retry)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
