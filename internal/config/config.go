package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Jobs     JobsConfig     `mapstructure:"jobs" validate:"required"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0s"`
}

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	// Driver selects the job store backend. The memory driver keeps jobs in
	// process and is meant for local development.
	Driver          string        `mapstructure:"driver" validate:"required,oneof=postgres memory"`
	URL             string        `mapstructure:"url" validate:"omitempty,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetime time.Duration `mapstructure:"token_lifetime" validate:"required,gt=0s"`
	// OpsKeyHash is the bcrypt hash of the key guarding the ops endpoints.
	// Empty disables them.
	OpsKeyHash string `mapstructure:"ops_key_hash"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey       string  `mapstructure:"gemini_api_key" validate:"required"`
	ModelName          string  `mapstructure:"model_name" validate:"required"`
	PromptTemplatePath string  `mapstructure:"prompt_template_path" validate:"required"`
	RequestsPerSecond  float64 `mapstructure:"requests_per_second" validate:"gt=0"`
	Burst              int     `mapstructure:"burst" validate:"gte=1"`
}

// JobsConfig controls the background job engine.
type JobsConfig struct {
	WorkerCount       int           `mapstructure:"worker_count" validate:"required,gt=0,lte=256"`
	PollInterval      time.Duration `mapstructure:"poll_interval" validate:"required,gt=0s"`
	ClaimRetries      int           `mapstructure:"claim_retries" validate:"gte=1,lte=20"`
	LeaseDuration     time.Duration `mapstructure:"lease_duration" validate:"required,gt=0s"`
	AttemptTimeout    time.Duration `mapstructure:"attempt_timeout" validate:"required,gt=0s"`
	MaxAttempts       int           `mapstructure:"max_attempts" validate:"required,gte=1,lte=25"`
	ManualRetryBudget int           `mapstructure:"manual_retry_budget" validate:"required,gte=1,lte=25"`
	BackoffBase       time.Duration `mapstructure:"backoff_base" validate:"required,gt=0s"`
	BackoffCap        time.Duration `mapstructure:"backoff_cap" validate:"required,gtefield=BackoffBase"`
	ReaperInterval    time.Duration `mapstructure:"reaper_interval" validate:"required,gt=0s"`
	RetentionPeriod   time.Duration `mapstructure:"retention_period" validate:"required,gt=0s"`
	RetentionSchedule string        `mapstructure:"retention_schedule" validate:"required"`
	RetryableCodes    []string      `mapstructure:"retryable_codes" validate:"dive,oneof=timeout unavailable rate_limited network unauthenticated quota_exhausted invalid_response content_blocked invalid_request"`
}

// NotifyConfig selects the transports job notifications are published on.
// The in-process websocket hub is always enabled.
type NotifyConfig struct {
	NATSURL       string `mapstructure:"nats_url" validate:"omitempty,url"`
	RedisURL      string `mapstructure:"redis_url" validate:"omitempty,url"`
	SubjectPrefix string `mapstructure:"subject_prefix" validate:"required"`
	HubBuffer     int    `mapstructure:"hub_buffer" validate:"gte=1"`
}
