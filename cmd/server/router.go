package main

import (
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/sketchpad-api/internal/api"
	apiMiddleware "github.com/phrazzld/sketchpad-api/internal/api/middleware"
	"github.com/phrazzld/sketchpad-api/internal/service"
	"github.com/phrazzld/sketchpad-api/internal/service/auth"
)

// routerDeps are the handlers' collaborators.
type routerDeps struct {
	jobService    service.JobService
	jwtService    auth.JWTService
	opsKeys       auth.KeyVerifier
	eventsHandler *api.EventsHandler
	eventStats    api.EventStats
	logger        *slog.Logger

	// requestLog receives chi's request lines; nil means stdout.
	requestLog io.Writer
}

// setupRouter creates the router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	return newRouter(routerDeps{
		jobService:    app.jobService,
		jwtService:    app.jwtService,
		opsKeys:       app.opsKeys,
		eventsHandler: app.eventsHandler,
		eventStats:    app.hub,
		logger:        app.logger,
	})
}

func newRouter(deps routerDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.requestLog))
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware(deps.logger))

	authMiddleware := apiMiddleware.NewAuthMiddleware(deps.jwtService)
	jobHandler := api.NewJobHandler(deps.jobService, deps.logger)
	opsHandler := api.NewOpsHandler(deps.jobService, deps.eventStats, deps.logger)

	r.Route("/api", func(r chi.Router) {
		// Job endpoints, scoped to the token's owner
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Post("/jobs", jobHandler.Submit)
			r.Get("/jobs", jobHandler.List)
			// Static segments are registered before /jobs/{id}.
			r.Get("/jobs/stats", jobHandler.Stats)
			r.Get("/jobs/events", deps.eventsHandler.ServeHTTP)
			r.Get("/jobs/{id}", jobHandler.Get)
			r.Get("/jobs/{id}/result", jobHandler.Result)
			r.Post("/jobs/{id}/cancel", jobHandler.Cancel)
			r.Post("/jobs/{id}/retry", jobHandler.Retry)
		})

		// Operator endpoints
		r.Route("/ops", func(r chi.Router) {
			r.Use(apiMiddleware.RequireOpsKey(deps.opsKeys))
			r.Get("/stats", opsHandler.Stats)
			r.Post("/sweep", opsHandler.Sweep)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			deps.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}

// requestLogger is chi's request logger with access tokens kept out of the
// logged request line.
func requestLogger(out io.Writer) func(http.Handler) http.Handler {
	if out == nil {
		out = os.Stdout
	}
	return middleware.RequestLogger(apiMiddleware.NewRedactingLogFormatter(&middleware.DefaultLogFormatter{
		Logger:  log.New(out, "", log.LstdFlags),
		NoColor: true,
	}))
}
