package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mercator-hq/apilog/pkg/config"
)

func TestNew_JSONWithContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(&config.LoggingConfig{Level: "info", Format: "json"}, Options{Writer: &buf})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer closer.Close()

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithTrigger(ctx, "manual")
	logger.InfoContext(ctx, "sweep finished", "deleted", 5)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["request_id"] != "req-1" {
		t.Errorf("expected request_id req-1, got %v", entry["request_id"])
	}
	if entry["trigger"] != "manual" {
		t.Errorf("expected trigger manual, got %v", entry["trigger"])
	}
	if entry["deleted"] != float64(5) {
		t.Errorf("expected deleted 5, got %v", entry["deleted"])
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(&config.LoggingConfig{Level: "warn", Format: "text"}, Options{Writer: &buf})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn message should be logged")
	}
}

func TestNew_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LoggingConfig
	}{
		{"bad level", config.LoggingConfig{Level: "verbose", Format: "json"}},
		{"bad format", config.LoggingConfig{Level: "info", Format: "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := New(&tt.cfg, Options{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNew_RotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apilog.log")
	cfg := &config.LoggingConfig{
		Level:  "info",
		Format: "json",
		File:   config.LogFileConfig{Path: path, MaxSizeMB: 1, MaxBackups: 1},
	}

	logger, closer, err := New(cfg, Options{})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	logger.Info("to file")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("unexpected log file content: %s", data)
	}
}
