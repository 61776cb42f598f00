package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"mercator-hq/apilog/pkg/audit"
	"mercator-hq/apilog/pkg/audit/store"
	"mercator-hq/apilog/pkg/cli"
	"mercator-hq/apilog/pkg/config"
)

// resetFlags restores every flag to its default so that executions do not
// leak into each other.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	t.Cleanup(func() { config.SetConfig(nil) })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// sqliteConfig writes a config file using the pure Go SQLite driver.
func sqliteConfig(t *testing.T) (cfgPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "data", "apilog.db")
	cfgPath = filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`
storage:
  backend: sqlite
  sqlite:
    path: %q
    driver: sqlite
    wal_mode: false
telemetry:
  logging:
    level: error
`, dbPath)
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return cfgPath, dbPath
}

func seed(t *testing.T, dbPath string, records ...*audit.Record) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	cfg := store.DefaultSQLConfig(dbPath)
	cfg.Driver = store.DriverSQLite
	cfg.WALMode = false
	st, err := store.NewSQLStore(cfg)
	if err != nil {
		t.Fatalf("NewSQLStore failed: %v", err)
	}
	defer st.Close()
	for _, r := range records {
		if err := st.Insert(context.Background(), r); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
}

func record(user, endpoint string, status int, age time.Duration) *audit.Record {
	ms := int64(100)
	return &audit.Record{
		Endpoint:            endpoint,
		Method:              "GET",
		UserID:              audit.StringPtr(user),
		ResponseStatus:      status,
		ExecutionTimeMillis: &ms,
		Timestamp:           time.Now().Add(-age).UTC(),
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "apilog "+Version) {
		t.Errorf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "Go Version:") {
		t.Errorf("missing runtime info:\n%s", out)
	}
}

func TestRunDryRun(t *testing.T) {
	cfgPath, _ := sqliteConfig(t)

	out, err := execute(t, "run", "--config", cfgPath, "--dry-run")
	if err != nil {
		t.Fatalf("dry run failed: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestRunDryRun_InvalidOverride(t *testing.T) {
	_, err := execute(t, "run", "--upstream", "not-a-url", "--dry-run")
	if err == nil {
		t.Fatal("expected an error for an invalid upstream")
	}
	if cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("ExitCode = %d, want %d (%v)", cli.ExitCode(err), cli.ExitConfig, err)
	}
}

func TestMissingConfigFile(t *testing.T) {
	_, err := execute(t, "logs", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	var configErr *cli.ConfigError
	if !errors.As(err, &configErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestEnvFile(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envPath, []byte("APILOG_STORAGE_BACKEND=memory\n"), 0644); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("APILOG_STORAGE_BACKEND") })

	out, err := execute(t, "logs", "--env-file", envPath, "--format", "json")
	if err != nil {
		t.Fatalf("logs failed: %v", err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Errorf("expected an empty memory store, got %q", out)
	}

	if _, err := execute(t, "logs", "--env-file", filepath.Join(t.TempDir(), "nope.env")); cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("missing env file: ExitCode = %d, err = %v", cli.ExitCode(err), err)
	}
}

func TestLogsCommand(t *testing.T) {
	cfgPath, dbPath := sqliteConfig(t)
	seed(t, dbPath,
		record("alice", "/api/users", 200, 3*time.Hour),
		record("alice", "/api/orders", 500, 2*time.Hour),
		record("bob", "/api/users", 404, time.Hour),
	)

	tests := []struct {
		name      string
		args      []string
		wantCount int
	}{
		{"all", nil, 3},
		{"by user", []string{"--user", "alice"}, 2},
		{"by endpoint", []string{"--endpoint", "/api/users"}, 2},
		{"by status", []string{"--status", "404"}, 1},
		{"errors", []string{"--errors"}, 2},
		{"errors of a user", []string{"--errors", "--user", "alice"}, 1},
		{"limit", []string{"--limit", "1"}, 1},
		{"zero limit", []string{"--limit", "0"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"logs", "--config", cfgPath, "--format", "json"}, tt.args...)
			out, err := execute(t, args...)
			if err != nil {
				t.Fatalf("logs failed: %v", err)
			}
			var records []map[string]any
			if err := json.Unmarshal([]byte(out), &records); err != nil {
				t.Fatalf("invalid JSON %q: %v", out, err)
			}
			if len(records) != tt.wantCount {
				t.Errorf("got %d records, want %d", len(records), tt.wantCount)
			}
		})
	}
}

func TestLogsCommand_Stats(t *testing.T) {
	cfgPath, dbPath := sqliteConfig(t)
	seed(t, dbPath,
		record("alice", "/api/users", 200, time.Hour),
		record("bob", "/api/orders", 503, time.Hour),
	)

	out, err := execute(t, "logs", "--config", cfgPath, "--stats", "--format", "json")
	if err != nil {
		t.Fatalf("logs --stats failed: %v", err)
	}
	var stats map[string]any
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if stats["totalRequests"] != float64(2) || stats["errorRequests"] != float64(1) || stats["uniqueUsers"] != float64(2) {
		t.Errorf("unexpected stats: %v", stats)
	}
	if stats["averageResponseTime"] != float64(100) {
		t.Errorf("averageResponseTime = %v, want 100", stats["averageResponseTime"])
	}
}

func TestLogsCommand_BadInput(t *testing.T) {
	cfgPath, _ := sqliteConfig(t)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown format", []string{"--format", "xml"}},
		{"bad time", []string{"--start", "yesterday"}},
		{"inverted window", []string{"--start", "2026-03-02T00:00:00Z", "--end", "2026-03-01T00:00:00Z"}},
		{"negative limit", []string{"--limit", "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"logs", "--config", cfgPath}, tt.args...)
			_, err := execute(t, args...)
			if cli.ExitCode(err) != cli.ExitUsage {
				t.Errorf("ExitCode = %d, want %d (%v)", cli.ExitCode(err), cli.ExitUsage, err)
			}
		})
	}
}

func TestCleanupCommand(t *testing.T) {
	cfgPath, dbPath := sqliteConfig(t)
	seed(t, dbPath,
		record("alice", "/api/users", 200, 30*24*time.Hour),
		record("alice", "/api/users", 200, 20*24*time.Hour),
		record("bob", "/api/users", 200, time.Hour),
	)

	out, err := execute(t, "cleanup", "--config", cfgPath, "--stats", "--format", "json")
	if err != nil {
		t.Fatalf("cleanup --stats failed: %v", err)
	}
	var stats map[string]any
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if stats["logsToDelete"] != float64(2) || stats["retentionDays"] != float64(7) {
		t.Errorf("unexpected stats: %v", stats)
	}

	out, err = execute(t, "cleanup", "--config", cfgPath, "--format", "json")
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	var summary map[string]any
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("invalid JSON %q: %v", out, err)
	}
	if summary["outcome"] != "completed" || summary["deletedCount"] != float64(2) || summary["trigger"] != "manual" {
		t.Errorf("unexpected summary: %v", summary)
	}

	out, err = execute(t, "cleanup", "--config", cfgPath)
	if err != nil {
		t.Fatalf("second cleanup failed: %v", err)
	}
	if !strings.Contains(out, "skipped_empty") {
		t.Errorf("expected an empty sweep, got:\n%s", out)
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	cfg := config.Defaults()
	cfg.Storage.Backend = "memory"
	cfg.Server.ListenAddress = "127.0.0.1:0"
	cfg.Telemetry.Logging.Level = "error"

	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, &out) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
	if !strings.Contains(out.String(), "Server stopped") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestOpenStore(t *testing.T) {
	if _, err := openStore(&config.StorageConfig{Backend: "cassandra"}); err == nil {
		t.Error("expected an error for an unsupported backend")
	}

	st, err := openStore(&config.StorageConfig{Backend: "memory"})
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	if err := st.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
