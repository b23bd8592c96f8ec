package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. SKETCH_SERVER_PORT.
const EnvPrefix = "SKETCH"

var defaults = map[string]any{
	"server.port":                8080,
	"server.log_level":           "info",
	"server.shutdown_timeout":    "15s",
	"database.driver":            DriverPostgres,
	"database.max_open_conns":    25,
	"database.max_idle_conns":    25,
	"database.conn_max_lifetime": "5m",
	"auth.token_lifetime":        "1h",
	"llm.model_name":             "gemini-2.0-flash",
	"llm.prompt_template_path":   "prompts/canvas_template.txt",
	"llm.requests_per_second":    2.0,
	"llm.burst":                  4,
	"jobs.worker_count":          4,
	"jobs.poll_interval":         "1s",
	"jobs.claim_retries":         3,
	"jobs.lease_duration":        "2m",
	"jobs.attempt_timeout":       "90s",
	"jobs.max_attempts":          3,
	"jobs.manual_retry_budget":   3,
	"jobs.backoff_base":          "2s",
	"jobs.backoff_cap":           "5m",
	"jobs.reaper_interval":       "30s",
	"jobs.retention_period":      "720h",
	"jobs.retention_schedule":    "@hourly",
	"jobs.retryable_codes":       []string{"timeout", "unavailable", "rate_limited", "network"},
	"notify.subject_prefix":      "sketchpad.jobs",
	"notify.hub_buffer":          16,
}

// Keys without defaults still need binding so viper sees them in Unmarshal.
var envOnlyKeys = []string{
	"database.url",
	"auth.jwt_secret",
	"auth.ops_key_hash",
	"llm.gemini_api_key",
	"notify.nats_url",
	"notify.redis_url",
}

// Load configuration from environment variables and optionally a config.yaml
// in the working directory (or the file named by SKETCH_CONFIG_FILE).
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readConfigFile(v *viper.Viper) error {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// Validate checks struct tags plus the rules that span fields.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.Database.Driver == DriverPostgres && cfg.Database.URL == "" {
		return errors.New("config validation failed: database.url is required for the postgres driver")
	}
	return nil
}
