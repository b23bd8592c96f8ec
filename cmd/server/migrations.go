package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/sketchpad-api/internal/config"
	"github.com/phrazzld/sketchpad-api/internal/platform/postgres"
)

// handleMigrations runs a goose command against the configured database.
// It is invoked by the -migrate flag and only applies to the postgres driver.
func handleMigrations(ctx context.Context, cfg *config.Config, command string, logger *slog.Logger) error {
	if cfg.Database.Driver != config.DriverPostgres {
		return fmt.Errorf("migrations require the postgres driver, got %q", cfg.Database.Driver)
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required to run migrations")
	}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.Error("Error closing database connection", "error", cerr)
		}
	}()

	logger.Info("Executing migrations", "command", command)
	switch command {
	case "up":
		return postgres.Migrate(ctx, db, logger)
	case "down":
		return postgres.RollbackMigration(ctx, db, logger)
	case "status":
		return postgres.MigrationStatus(ctx, db, logger)
	default:
		return fmt.Errorf("unknown migration command %q (want up, down or status)", command)
	}
}
