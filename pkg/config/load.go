package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "APILOG_"

// LoadConfig loads configuration from a YAML file at the specified path.
// The file is decoded on top of Defaults(), then validated.
// The configuration is not modified by environment variables; use
// LoadConfigWithEnvOverrides for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of the default configuration without validating it.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention APILOG_SECTION_FIELD (e.g., APILOG_RETENTION_BATCH_SIZE).
// Environment variables always take precedence over file-based configuration.
//
// An empty path skips the file and starts from the defaults.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Defaults()
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		cfg, err = Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// A variable that is set but cannot be parsed is reported as an error.
func applyEnvOverrides(cfg *Config) error {
	var errs []FieldError

	str := func(name string, dst *string) {
		if val, ok := lookupEnv(name); ok {
			*dst = val
		}
	}
	integer := func(name string, dst *int) {
		if val, ok := lookupEnv(name); ok {
			i, err := strconv.Atoi(val)
			if err != nil {
				errs = append(errs, FieldError{Field: EnvPrefix + name, Message: "must be an integer"})
				return
			}
			*dst = i
		}
	}
	boolean := func(name string, dst *bool) {
		if val, ok := lookupEnv(name); ok {
			b, err := strconv.ParseBool(val)
			if err != nil {
				errs = append(errs, FieldError{Field: EnvPrefix + name, Message: "must be a boolean"})
				return
			}
			*dst = b
		}
	}
	duration := func(name string, dst *time.Duration) {
		if val, ok := lookupEnv(name); ok {
			d, err := time.ParseDuration(val)
			if err != nil {
				errs = append(errs, FieldError{Field: EnvPrefix + name, Message: "must be a duration"})
				return
			}
			*dst = d
		}
	}
	list := func(name string, dst *[]string) {
		if val, ok := lookupEnv(name); ok {
			*dst = splitList(val)
		}
	}

	// Server overrides
	str("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	duration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	duration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	duration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	str("SERVER_UPSTREAM", &cfg.Server.Upstream)
	boolean("SERVER_CORS_ENABLED", &cfg.Server.CORS.Enabled)
	list("SERVER_CORS_ALLOWED_ORIGINS", &cfg.Server.CORS.AllowedOrigins)

	// Storage overrides
	str("STORAGE_BACKEND", &cfg.Storage.Backend)
	str("STORAGE_SQLITE_PATH", &cfg.Storage.SQLite.Path)
	str("STORAGE_SQLITE_DRIVER", &cfg.Storage.SQLite.Driver)
	str("STORAGE_POSTGRES_DSN", &cfg.Storage.Postgres.DSN)

	// Capture overrides
	boolean("CAPTURE_ENABLED", &cfg.Capture.Enabled)
	integer("CAPTURE_QUEUE_SIZE", &cfg.Capture.QueueSize)
	integer("CAPTURE_WORKERS", &cfg.Capture.Workers)
	duration("CAPTURE_WRITE_TIMEOUT", &cfg.Capture.WriteTimeout)
	integer("CAPTURE_MAX_BODY_BYTES", &cfg.Capture.MaxBodyBytes)
	list("CAPTURE_EXCLUDE_PATHS", &cfg.Capture.ExcludePaths)

	// Retention overrides
	boolean("RETENTION_ENABLED", &cfg.Retention.Enabled)
	integer("RETENTION_RETENTION_DAYS", &cfg.Retention.RetentionDays)
	integer("RETENTION_BATCH_SIZE", &cfg.Retention.BatchSize)
	str("RETENTION_CRON_EXPRESSION", &cfg.Retention.CronExpression)
	boolean("RETENTION_WATCH_CONFIG", &cfg.Retention.WatchConfig)

	// Query overrides
	integer("QUERY_DEFAULT_LIMIT", &cfg.Query.DefaultLimit)
	integer("QUERY_MAX_LIMIT", &cfg.Query.MaxLimit)
	duration("QUERY_TIMEOUT", &cfg.Query.Timeout)

	// Telemetry overrides
	str("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	str("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	str("TELEMETRY_LOGGING_FILE_PATH", &cfg.Telemetry.Logging.File.Path)
	boolean("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	str("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	boolean("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	str("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	str("TELEMETRY_TRACING_SERVICE_NAME", &cfg.Telemetry.Tracing.ServiceName)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func lookupEnv(name string) (string, bool) {
	val, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
