package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "retention.batch_size").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// CronParser parses retention schedules. It accepts standard 5-field
// expressions, an optional leading seconds field and descriptors like "@daily".
var CronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateCapture(&cfg.Capture)...)
	errs = append(errs, ValidateRetention(&cfg.Retention)...)
	errs = append(errs, validateQuery(&cfg.Query)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: "must not be empty"})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: "must be in host:port format"})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "must not be negative"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "must not be negative"})
	}
	if cfg.ShutdownTimeout <= 0 {
		errs = append(errs, FieldError{Field: "server.shutdown_timeout", Message: "must be positive"})
	}
	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_header_bytes", Message: "must not be negative"})
	}
	if cfg.CORS.MaxAge < 0 {
		errs = append(errs, FieldError{Field: "server.cors.max_age", Message: "must not be negative"})
	}
	if cfg.Upstream != "" {
		if u, err := url.Parse(cfg.Upstream); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, FieldError{Field: "server.upstream", Message: "must be an absolute URL"})
		}
	}
	return errs
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "storage.sqlite.path", Message: "must not be empty"})
		}
		if cfg.SQLite.Driver != "sqlite3" && cfg.SQLite.Driver != "sqlite" {
			errs = append(errs, FieldError{Field: "storage.sqlite.driver", Message: `must be "sqlite3" or "sqlite"`})
		}
		if cfg.SQLite.MaxOpenConns < 0 {
			errs = append(errs, FieldError{Field: "storage.sqlite.max_open_conns", Message: "must not be negative"})
		}
	case "postgres":
		if cfg.Postgres.DSN == "" {
			errs = append(errs, FieldError{Field: "storage.postgres.dsn", Message: "must not be empty"})
		}
	case "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("unsupported backend %q (must be sqlite, postgres or memory)", cfg.Backend),
		})
	}
	return errs
}

func validateCapture(cfg *CaptureConfig) []FieldError {
	var errs []FieldError

	if cfg.QueueSize < 1 {
		errs = append(errs, FieldError{Field: "capture.queue_size", Message: "must be at least 1"})
	}
	if cfg.Workers < 1 {
		errs = append(errs, FieldError{Field: "capture.workers", Message: "must be at least 1"})
	}
	if cfg.WriteTimeout <= 0 {
		errs = append(errs, FieldError{Field: "capture.write_timeout", Message: "must be positive"})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{Field: "capture.max_body_bytes", Message: "must not be negative"})
	}
	for i, p := range cfg.ExcludePaths {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("capture.exclude_paths[%d]", i),
				Message: "must start with /",
			})
		}
	}
	return errs
}

// ValidateRetention validates the retention section. It is exported for the
// hot-reload path, which validates a reloaded section before applying it.
func ValidateRetention(cfg *RetentionConfig) []FieldError {
	var errs []FieldError

	if cfg.RetentionDays < 0 {
		errs = append(errs, FieldError{Field: "retention.retention_days", Message: "must not be negative"})
	} else if cfg.RetentionDays > MaxRetentionDays {
		errs = append(errs, FieldError{
			Field:   "retention.retention_days",
			Message: fmt.Sprintf("must not exceed %d", MaxRetentionDays),
		})
	}
	if cfg.BatchSize < 1 {
		errs = append(errs, FieldError{Field: "retention.batch_size", Message: "must be at least 1"})
	}
	if cfg.CronExpression == "" {
		errs = append(errs, FieldError{Field: "retention.cron_expression", Message: "must not be empty"})
	} else if _, err := CronParser.Parse(cfg.CronExpression); err != nil {
		errs = append(errs, FieldError{
			Field:   "retention.cron_expression",
			Message: fmt.Sprintf("invalid cron expression: %v", err),
		})
	}
	return errs
}

func validateQuery(cfg *QueryConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxLimit < 1 {
		errs = append(errs, FieldError{Field: "query.max_limit", Message: "must be at least 1"})
	}
	if cfg.DefaultLimit < 1 {
		errs = append(errs, FieldError{Field: "query.default_limit", Message: "must be at least 1"})
	} else if cfg.DefaultLimit > cfg.MaxLimit {
		errs = append(errs, FieldError{Field: "query.default_limit", Message: "must not exceed query.max_limit"})
	}
	if cfg.Timeout <= 0 {
		errs = append(errs, FieldError{Field: "query.timeout", Message: "must be positive"})
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{Field: "telemetry.logging.level", Message: "must be one of debug, info, warn, error"})
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{Field: "telemetry.logging.format", Message: "must be json or text"})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "must start with /"})
	}

	if cfg.Tracing.Enabled {
		if cfg.Tracing.Exporter != "otlp" {
			errs = append(errs, FieldError{Field: "telemetry.tracing.exporter", Message: `only "otlp" is supported`})
		}
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "must not be empty"})
		}
		switch cfg.Tracing.Sampler {
		case "always", "never", "ratio", "parent_based":
		default:
			errs = append(errs, FieldError{Field: "telemetry.tracing.sampler", Message: "must be one of always, never, ratio, parent_based"})
		}
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errs = append(errs, FieldError{Field: "telemetry.tracing.sample_ratio", Message: "must be between 0 and 1"})
		}
	}
	return errs
}
