package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// CORS defaults
	DefaultCORSEnabled = true
	DefaultCORSMaxAge  = 3600 // 1 hour

	// Storage defaults
	DefaultStorageBackend       = "sqlite"
	DefaultSQLitePath           = "data/apilog.db"
	DefaultSQLiteDriver         = "sqlite3"
	DefaultSQLiteMaxOpenConns   = 10
	DefaultSQLiteMaxIdleConns   = 5
	DefaultSQLiteWALMode        = true
	DefaultSQLiteBusyTimeout    = 5 * time.Second
	DefaultPostgresMaxOpenConns = 10
	DefaultPostgresMaxIdleConns = 5

	// Capture defaults
	DefaultCaptureEnabled      = true
	DefaultCaptureQueueSize    = 1000
	DefaultCaptureWorkers      = 4
	DefaultCaptureWriteTimeout = 5 * time.Second
	DefaultCaptureMaxBodyBytes = 64 * 1024

	// Retention defaults
	DefaultRetentionEnabled        = true
	DefaultRetentionDays           = 7
	DefaultRetentionBatchSize      = 1000
	DefaultRetentionCronExpression = "0 2 * * *"

	// MaxRetentionDays keeps the cutoff well inside the range of Unix
	// nanosecond timestamps.
	MaxRetentionDays = 36500

	// Query defaults
	DefaultQueryDefaultLimit = 100
	DefaultQueryMaxLimit     = 10000
	DefaultQueryTimeout      = 30 * time.Second

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "json"
	DefaultLogFileMaxSizeMB   = 100
	DefaultLogFileMaxBackups  = 5
	DefaultLogFileMaxAgeDays  = 28
	DefaultMetricsEnabled     = true
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "apilog"
	DefaultTracingSampler     = "parent_based"
	DefaultTracingSampleRatio = 1.0
	DefaultTracingExporter    = "otlp"
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingServiceName = "apilog"
	DefaultOTLPTimeout        = 10 * time.Second
	DefaultHealthEnabled      = true
	DefaultLivenessPath       = "/health"
	DefaultReadinessPath      = "/ready"
	DefaultHealthCheckTimeout = 5 * time.Second
)

// Default slice values. Functions return fresh copies so callers may mutate them.
func defaultCORSMethods() []string {
	return []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
}

func defaultExcludePaths() []string {
	return []string{"/logs", "/metrics", "/health", "/ready"}
}

func defaultRedactHeaders() []string {
	return []string{"Authorization", "Cookie"}
}

func defaultSweepBuckets() []float64 {
	return []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300}
}

// Defaults returns a configuration populated with every default value.
// YAML files are decoded on top of it so that boolean fields defaulting to
// true keep their default unless the file sets them explicitly.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddress:   DefaultListenAddress,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			IdleTimeout:     DefaultIdleTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			MaxHeaderBytes:  DefaultMaxHeaderBytes,
			CORS: CORSConfig{
				Enabled:        DefaultCORSEnabled,
				AllowedOrigins: []string{"*"},
				AllowedMethods: defaultCORSMethods(),
				AllowedHeaders: []string{"*"},
				ExposedHeaders: []string{"X-Request-ID"},
				MaxAge:         DefaultCORSMaxAge,
			},
		},
		Storage: StorageConfig{
			Backend: DefaultStorageBackend,
			SQLite: SQLiteConfig{
				Path:         DefaultSQLitePath,
				Driver:       DefaultSQLiteDriver,
				MaxOpenConns: DefaultSQLiteMaxOpenConns,
				MaxIdleConns: DefaultSQLiteMaxIdleConns,
				WALMode:      DefaultSQLiteWALMode,
				BusyTimeout:  DefaultSQLiteBusyTimeout,
			},
			Postgres: PostgresConfig{
				MaxOpenConns: DefaultPostgresMaxOpenConns,
				MaxIdleConns: DefaultPostgresMaxIdleConns,
			},
		},
		Capture: CaptureConfig{
			Enabled:       DefaultCaptureEnabled,
			QueueSize:     DefaultCaptureQueueSize,
			Workers:       DefaultCaptureWorkers,
			WriteTimeout:  DefaultCaptureWriteTimeout,
			MaxBodyBytes:  DefaultCaptureMaxBodyBytes,
			ExcludePaths:  defaultExcludePaths(),
			RedactHeaders: defaultRedactHeaders(),
		},
		Retention: RetentionConfig{
			Enabled:        DefaultRetentionEnabled,
			RetentionDays:  DefaultRetentionDays,
			BatchSize:      DefaultRetentionBatchSize,
			CronExpression: DefaultRetentionCronExpression,
		},
		Query: QueryConfig{
			DefaultLimit: DefaultQueryDefaultLimit,
			MaxLimit:     DefaultQueryMaxLimit,
			Timeout:      DefaultQueryTimeout,
		},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{
				Level:  DefaultLoggingLevel,
				Format: DefaultLoggingFormat,
				File: LogFileConfig{
					MaxSizeMB:  DefaultLogFileMaxSizeMB,
					MaxBackups: DefaultLogFileMaxBackups,
					MaxAgeDays: DefaultLogFileMaxAgeDays,
				},
			},
			Metrics: MetricsConfig{
				Enabled:              DefaultMetricsEnabled,
				Path:                 DefaultMetricsPath,
				Namespace:            DefaultMetricsNamespace,
				SweepDurationBuckets: defaultSweepBuckets(),
			},
			Tracing: TracingConfig{
				Sampler:     DefaultTracingSampler,
				SampleRatio: DefaultTracingSampleRatio,
				Exporter:    DefaultTracingExporter,
				Endpoint:    DefaultTracingEndpoint,
				ServiceName: DefaultTracingServiceName,
				OTLP: OTLPConfig{
					Insecure: true,
					Timeout:  DefaultOTLPTimeout,
				},
			},
			Health: HealthConfig{
				Enabled:       DefaultHealthEnabled,
				LivenessPath:  DefaultLivenessPath,
				ReadinessPath: DefaultReadinessPath,
				CheckTimeout:  DefaultHealthCheckTimeout,
			},
		},
	}
}

// ApplyDefaults fills zero-valued non-boolean fields with their defaults.
// It is used for configurations built in code rather than loaded from YAML.
func ApplyDefaults(cfg *Config) {
	d := Defaults()

	setString(&cfg.Server.ListenAddress, d.Server.ListenAddress)
	setDuration(&cfg.Server.ReadTimeout, d.Server.ReadTimeout)
	setDuration(&cfg.Server.WriteTimeout, d.Server.WriteTimeout)
	setDuration(&cfg.Server.IdleTimeout, d.Server.IdleTimeout)
	setDuration(&cfg.Server.ShutdownTimeout, d.Server.ShutdownTimeout)
	setInt(&cfg.Server.MaxHeaderBytes, d.Server.MaxHeaderBytes)
	setInt(&cfg.Server.CORS.MaxAge, d.Server.CORS.MaxAge)
	if len(cfg.Server.CORS.AllowedMethods) == 0 {
		cfg.Server.CORS.AllowedMethods = d.Server.CORS.AllowedMethods
	}
	if len(cfg.Server.CORS.AllowedOrigins) == 0 {
		cfg.Server.CORS.AllowedOrigins = d.Server.CORS.AllowedOrigins
	}

	setString(&cfg.Storage.Backend, d.Storage.Backend)
	setString(&cfg.Storage.SQLite.Path, d.Storage.SQLite.Path)
	setString(&cfg.Storage.SQLite.Driver, d.Storage.SQLite.Driver)
	setInt(&cfg.Storage.SQLite.MaxOpenConns, d.Storage.SQLite.MaxOpenConns)
	setInt(&cfg.Storage.SQLite.MaxIdleConns, d.Storage.SQLite.MaxIdleConns)
	setDuration(&cfg.Storage.SQLite.BusyTimeout, d.Storage.SQLite.BusyTimeout)
	setInt(&cfg.Storage.Postgres.MaxOpenConns, d.Storage.Postgres.MaxOpenConns)
	setInt(&cfg.Storage.Postgres.MaxIdleConns, d.Storage.Postgres.MaxIdleConns)

	setInt(&cfg.Capture.QueueSize, d.Capture.QueueSize)
	setInt(&cfg.Capture.Workers, d.Capture.Workers)
	setDuration(&cfg.Capture.WriteTimeout, d.Capture.WriteTimeout)
	setInt(&cfg.Capture.MaxBodyBytes, d.Capture.MaxBodyBytes)
	if cfg.Capture.ExcludePaths == nil {
		cfg.Capture.ExcludePaths = d.Capture.ExcludePaths
	}
	if cfg.Capture.RedactHeaders == nil {
		cfg.Capture.RedactHeaders = d.Capture.RedactHeaders
	}

	setInt(&cfg.Retention.BatchSize, d.Retention.BatchSize)
	setString(&cfg.Retention.CronExpression, d.Retention.CronExpression)

	setInt(&cfg.Query.DefaultLimit, d.Query.DefaultLimit)
	setInt(&cfg.Query.MaxLimit, d.Query.MaxLimit)
	setDuration(&cfg.Query.Timeout, d.Query.Timeout)

	setString(&cfg.Telemetry.Logging.Level, d.Telemetry.Logging.Level)
	setString(&cfg.Telemetry.Logging.Format, d.Telemetry.Logging.Format)
	setInt(&cfg.Telemetry.Logging.File.MaxSizeMB, d.Telemetry.Logging.File.MaxSizeMB)
	setInt(&cfg.Telemetry.Logging.File.MaxBackups, d.Telemetry.Logging.File.MaxBackups)
	setInt(&cfg.Telemetry.Logging.File.MaxAgeDays, d.Telemetry.Logging.File.MaxAgeDays)
	setString(&cfg.Telemetry.Metrics.Path, d.Telemetry.Metrics.Path)
	setString(&cfg.Telemetry.Metrics.Namespace, d.Telemetry.Metrics.Namespace)
	if len(cfg.Telemetry.Metrics.SweepDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.SweepDurationBuckets = d.Telemetry.Metrics.SweepDurationBuckets
	}
	setString(&cfg.Telemetry.Tracing.Sampler, d.Telemetry.Tracing.Sampler)
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = d.Telemetry.Tracing.SampleRatio
	}
	setString(&cfg.Telemetry.Tracing.Exporter, d.Telemetry.Tracing.Exporter)
	setString(&cfg.Telemetry.Tracing.Endpoint, d.Telemetry.Tracing.Endpoint)
	setString(&cfg.Telemetry.Tracing.ServiceName, d.Telemetry.Tracing.ServiceName)
	setDuration(&cfg.Telemetry.Tracing.OTLP.Timeout, d.Telemetry.Tracing.OTLP.Timeout)
	setString(&cfg.Telemetry.Health.LivenessPath, d.Telemetry.Health.LivenessPath)
	setString(&cfg.Telemetry.Health.ReadinessPath, d.Telemetry.Health.ReadinessPath)
	setDuration(&cfg.Telemetry.Health.CheckTimeout, d.Telemetry.Health.CheckTimeout)
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func setDuration(dst *time.Duration, def time.Duration) {
	if *dst == 0 {
		*dst = def
	}
}
