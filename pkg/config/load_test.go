package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "0.0.0.0:9090"
  read_timeout: "60s"

storage:
  backend: "sqlite"
  sqlite:
    path: "./test.db"
    driver: "sqlite"

retention:
  retention_days: 30
  batch_size: 500
  cron_expression: "0 0 3 * * *"

telemetry:
  logging:
    level: "debug"
    format: "text"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("expected listen address %q, got %q", "0.0.0.0:9090", cfg.Server.ListenAddress)
	}
	if cfg.Server.ReadTimeout != 60*time.Second {
		t.Errorf("expected read timeout 60s, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Storage.SQLite.Driver != "sqlite" {
		t.Errorf("expected sqlite driver %q, got %q", "sqlite", cfg.Storage.SQLite.Driver)
	}
	if cfg.Retention.RetentionDays != 30 || cfg.Retention.BatchSize != 500 {
		t.Errorf("unexpected retention section: %+v", cfg.Retention)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %q", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, "server:\n  listen_address: \"127.0.0.1:8080\"\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if !cfg.Retention.Enabled {
		t.Error("expected retention enabled by default")
	}
	if cfg.Retention.RetentionDays != DefaultRetentionDays {
		t.Errorf("expected retention days %d, got %d", DefaultRetentionDays, cfg.Retention.RetentionDays)
	}
	if cfg.Retention.BatchSize != DefaultRetentionBatchSize {
		t.Errorf("expected batch size %d, got %d", DefaultRetentionBatchSize, cfg.Retention.BatchSize)
	}
	if cfg.Retention.CronExpression != DefaultRetentionCronExpression {
		t.Errorf("expected cron %q, got %q", DefaultRetentionCronExpression, cfg.Retention.CronExpression)
	}
	if !cfg.Capture.Enabled || cfg.Capture.QueueSize != DefaultCaptureQueueSize {
		t.Errorf("unexpected capture defaults: %+v", cfg.Capture)
	}
	if !cfg.Storage.SQLite.WALMode {
		t.Error("expected WAL mode enabled by default")
	}
}

func TestLoadConfig_ExplicitFalseOverridesDefault(t *testing.T) {
	path := writeConfig(t, "retention:\n  enabled: false\n  retention_days: 0\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Retention.Enabled {
		t.Error("expected retention disabled")
	}
	if cfg.Retention.RetentionDays != 0 {
		t.Errorf("expected retention days 0, got %d", cfg.Retention.RetentionDays)
	}
}

func TestLoadConfig_InvalidRetention(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"zero batch", "retention:\n  batch_size: 0\n", "retention.batch_size"},
		{"negative days", "retention:\n  retention_days: -1\n", "retention.retention_days"},
		{"bad cron", "retention:\n  cron_expression: \"not a cron\"\n", "retention.cron_expression"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected validation error")
			}

			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error for field %q, got %v", tt.field, verr.Errors)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "failed to read") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "server: [unterminated"))
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, "retention:\n  retention_days: 30\n")

	t.Setenv("APILOG_RETENTION_RETENTION_DAYS", "14")
	t.Setenv("APILOG_RETENTION_ENABLED", "false")
	t.Setenv("APILOG_STORAGE_BACKEND", "memory")
	t.Setenv("APILOG_CAPTURE_EXCLUDE_PATHS", "/logs, /internal")
	t.Setenv("APILOG_QUERY_TIMEOUT", "5s")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Retention.RetentionDays != 14 {
		t.Errorf("expected retention days 14, got %d", cfg.Retention.RetentionDays)
	}
	if cfg.Retention.Enabled {
		t.Error("expected retention disabled by env")
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("expected memory backend, got %q", cfg.Storage.Backend)
	}
	if len(cfg.Capture.ExcludePaths) != 2 || cfg.Capture.ExcludePaths[1] != "/internal" {
		t.Errorf("unexpected exclude paths: %v", cfg.Capture.ExcludePaths)
	}
	if cfg.Query.Timeout != 5*time.Second {
		t.Errorf("expected query timeout 5s, got %v", cfg.Query.Timeout)
	}
}

func TestLoadConfigWithEnvOverrides_InvalidValue(t *testing.T) {
	t.Setenv("APILOG_RETENTION_BATCH_SIZE", "lots")

	_, err := LoadConfigWithEnvOverrides("")
	if err == nil {
		t.Fatal("expected error for unparsable env value")
	}
	if !strings.Contains(err.Error(), "APILOG_RETENTION_BATCH_SIZE") {
		t.Errorf("error should name the variable: %v", err)
	}
}

func TestLoadConfigWithEnvOverrides_NoFile(t *testing.T) {
	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("failed to load defaults: %v", err)
	}
	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("expected default listen address, got %q", cfg.Server.ListenAddress)
	}
}
