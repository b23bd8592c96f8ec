package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/phrazzld/sketchpad-api/internal/api"
	"github.com/phrazzld/sketchpad-api/internal/config"
	"github.com/phrazzld/sketchpad-api/internal/events"
	"github.com/phrazzld/sketchpad-api/internal/generation"
	"github.com/phrazzld/sketchpad-api/internal/platform/gemini"
	"github.com/phrazzld/sketchpad-api/internal/platform/memory"
	"github.com/phrazzld/sketchpad-api/internal/platform/natsbus"
	"github.com/phrazzld/sketchpad-api/internal/platform/postgres"
	"github.com/phrazzld/sketchpad-api/internal/platform/redisbus"
	"github.com/phrazzld/sketchpad-api/internal/retry"
	"github.com/phrazzld/sketchpad-api/internal/service"
	"github.com/phrazzld/sketchpad-api/internal/service/auth"
	"github.com/phrazzld/sketchpad-api/internal/store"
	"github.com/phrazzld/sketchpad-api/internal/task"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// db is nil for the memory driver
	db       *sql.DB
	jobStore store.JobStore

	natsConn    *nats.Conn
	redisClient *redis.Client

	emitter *events.InMemoryEventEmitter
	hub     *events.Hub
	runner  *task.Runner

	jobService service.JobService
	jwtService auth.JWTService
	opsKeys    *auth.OpsKeyVerifier

	eventsHandler *api.EventsHandler
}

// newApplication creates a new application instance with all dependencies
// initialized. Nothing is started; Run starts the runner and the server.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *application, err error) {
	app := &application{config: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.cleanup()
		}
	}()

	if err := app.openStore(ctx); err != nil {
		return nil, err
	}

	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized", "token_lifetime", cfg.Auth.TokenLifetime)

	app.opsKeys, err = auth.NewOpsKeyVerifier(cfg.Auth.OpsKeyHash)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ops key verifier: %w", err)
	}

	generator, err := gemini.NewGeminiGenerator(ctx, logger, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM generator: %w", err)
	}
	logger.Info("LLM generator initialized", "model", cfg.LLM.ModelName)

	if err := app.setupNotifications(ctx); err != nil {
		return nil, err
	}
	notifier := task.NewNotifier(app.emitter, logger)

	app.runner, err = setupRunner(cfg, app.jobStore, generator, notifier, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to setup job runner: %w", err)
	}

	app.jobService, err = service.NewJobService(app.jobStore, notifier, app.runner, service.JobServiceConfig{
		MaxAttempts:       cfg.Jobs.MaxAttempts,
		ManualRetryBudget: cfg.Jobs.ManualRetryBudget,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create job service: %w", err)
	}

	app.eventsHandler = api.NewEventsHandler(app.hub, 0, logger)

	logger.Info("Application initialized successfully")
	return app, nil
}

// openStore selects the job store backend. Postgres is migrated before use.
func (app *application) openStore(ctx context.Context) error {
	switch app.config.Database.Driver {
	case config.DriverMemory:
		app.logger.Warn("Using in-memory job store; jobs are lost on restart")
		app.jobStore = memory.NewJobStore()
		return nil
	case config.DriverPostgres:
		if app.config.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
		db, err := postgres.Open(ctx, app.config.Database)
		if err != nil {
			return err
		}
		app.db = db
		app.logger.Info("Database connection established")

		if err := postgres.Migrate(ctx, db, app.logger); err != nil {
			return err
		}
		app.jobStore = postgres.NewPostgresJobStore(db)
		return nil
	default:
		return fmt.Errorf("unsupported database driver %q", app.config.Database.Driver)
	}
}

// setupNotifications registers the websocket hub and, when configured, the
// NATS and Redis publishers on a single emitter.
func (app *application) setupNotifications(ctx context.Context) error {
	cfg := app.config.Notify
	app.emitter = events.NewInMemoryEventEmitter(app.logger)

	app.hub = events.NewHub(cfg.HubBuffer, app.logger)
	app.emitter.RegisterHandler(app.hub)

	if cfg.NATSURL != "" {
		conn, err := natsbus.Connect(cfg.NATSURL)
		if err != nil {
			return err
		}
		app.natsConn = conn
		app.emitter.RegisterHandler(natsbus.NewPublisher(conn, cfg.SubjectPrefix, app.logger))
		app.logger.Info("Publishing job events to NATS", "subject_prefix", cfg.SubjectPrefix)
	}

	if cfg.RedisURL != "" {
		client, err := redisbus.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		app.redisClient = client
		app.emitter.RegisterHandler(redisbus.NewPublisher(client, cfg.SubjectPrefix, app.logger))
		app.logger.Info("Publishing job events to Redis", "channel_prefix", cfg.SubjectPrefix)
	}
	return nil
}

// setupRunner builds the executor, worker pool, reaper and retention sweeper.
func setupRunner(
	cfg *config.Config,
	s store.JobStore,
	generator generation.Generator,
	notifier *task.Notifier,
	logger *slog.Logger,
) (*task.Runner, error) {
	classifier := retry.CodeClassifier(retry.ParseCodes(cfg.Jobs.RetryableCodes))
	policy := retry.NewPolicy(cfg.Jobs.BackoffBase, cfg.Jobs.BackoffCap, classifier)
	limiter := rate.NewLimiter(rate.Limit(cfg.LLM.RequestsPerSecond), cfg.LLM.Burst)

	executor, err := task.NewExecutor(s, generator, policy, notifier, task.ExecutorConfig{
		AttemptTimeout: cfg.Jobs.AttemptTimeout,
		LeaseDuration:  cfg.Jobs.LeaseDuration,
	}, logger, task.WithRateLimiter(limiter))
	if err != nil {
		return nil, err
	}

	pool, err := task.NewWorkerPool(s, executor, notifier, task.WorkerPoolConfig{
		WorkerCount:   cfg.Jobs.WorkerCount,
		PollInterval:  cfg.Jobs.PollInterval,
		ClaimRetries:  cfg.Jobs.ClaimRetries,
		LeaseDuration: cfg.Jobs.LeaseDuration,
		PoolID:        poolID(),
	}, logger)
	if err != nil {
		return nil, err
	}

	reaper := task.NewReaper(s, notifier, cfg.Jobs.ReaperInterval, logger)

	sweeper, err := task.NewRetentionSweeper(s, cfg.Jobs.RetentionPeriod, cfg.Jobs.RetentionSchedule, logger)
	if err != nil {
		return nil, err
	}

	return task.NewRunner(pool, reaper, sweeper, logger)
}

// poolID names this process in claimed_by so operators can tell replicas
// apart.
func poolID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "sketchpad"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// cleanup releases connections. The runner and the HTTP server are stopped
// by Run.
func (app *application) cleanup() {
	if app.eventsHandler != nil {
		app.eventsHandler.Close()
	}
	if app.natsConn != nil {
		if err := app.natsConn.Drain(); err != nil {
			app.logger.Error("Error draining NATS connection", "error", err)
		}
	}
	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			app.logger.Error("Error closing Redis client", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}
	app.logger.Info("Application shutdown completed")
}
