package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// Run starts the job runner and the HTTP server and blocks until ctx is
// cancelled or either fails. Shutdown stops accepting requests first, then
// drains the runner within the configured shutdown timeout.
func (app *application) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           app.setupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Websocket connections are hijacked and not closed by Shutdown.
	server.RegisterOnShutdown(app.eventsHandler.Close)

	if err := app.runner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start job runner: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.logger.Info("Starting server", "port", app.config.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.config.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown failed: %w", err))
		}
		if err := app.runner.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("job runner shutdown failed: %w", err))
		}
		app.logger.Info("Server shutdown completed")
		return errors.Join(errs...)
	})

	return g.Wait()
}
