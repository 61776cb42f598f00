package config

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestValidate_Defaults(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("default configuration should be valid: %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Server.ListenAddress = "no-port"
	cfg.Storage.Backend = "mongo"
	cfg.Capture.Workers = 0
	cfg.Query.DefaultLimit = 20000

	err := Validate(cfg)
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Errors) != 4 {
		t.Errorf("expected 4 errors, got %d: %v", len(verr.Errors), verr.Errors)
	}
	if !strings.Contains(err.Error(), "4 errors") {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestValidateRetention_CronForms(t *testing.T) {
	tests := []struct {
		expr  string
		valid bool
	}{
		{"0 2 * * *", true},
		{"0 0 2 * * *", true},
		{"@daily", true},
		{"@every 1h", true},
		{"61 * * * *", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			cfg := &RetentionConfig{RetentionDays: 7, BatchSize: 1, CronExpression: tt.expr}
			errs := ValidateRetention(cfg)
			if tt.valid && len(errs) > 0 {
				t.Errorf("expected %q to be valid, got %v", tt.expr, errs)
			}
			if !tt.valid && len(errs) == 0 {
				t.Errorf("expected %q to be invalid", tt.expr)
			}
		})
	}
}

func TestValidateRetention_DaysRange(t *testing.T) {
	tests := []struct {
		days  int
		valid bool
	}{
		{0, true},
		{7, true},
		{MaxRetentionDays, true},
		{MaxRetentionDays + 1, false},
		{150000, false},
		{-1, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.days), func(t *testing.T) {
			cfg := &RetentionConfig{RetentionDays: tt.days, BatchSize: 1, CronExpression: DefaultRetentionCronExpression}
			errs := ValidateRetention(cfg)
			if tt.valid && len(errs) > 0 {
				t.Errorf("expected %d days to be valid, got %v", tt.days, errs)
			}
			if !tt.valid && len(errs) == 0 {
				t.Errorf("expected %d days to be invalid", tt.days)
			}
		})
	}
}

func TestValidate_PostgresRequiresDSN(t *testing.T) {
	cfg := Defaults()
	cfg.Storage.Backend = "postgres"

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "storage.postgres.dsn") {
		t.Errorf("expected dsn error, got %v", err)
	}
}

func TestApplyDefaults_KeepsZeroRetentionDays(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Retention.RetentionDays != 0 {
		t.Errorf("retention days should stay 0, got %d", cfg.Retention.RetentionDays)
	}
	if cfg.Retention.BatchSize != DefaultRetentionBatchSize {
		t.Errorf("expected batch size default, got %d", cfg.Retention.BatchSize)
	}
	if cfg.Query.MaxLimit != DefaultQueryMaxLimit {
		t.Errorf("expected max limit default, got %d", cfg.Query.MaxLimit)
	}
}

func TestSingleton(t *testing.T) {
	cfg := Defaults()
	SetConfig(cfg)
	defer SetConfig(nil)

	if GetConfig() != cfg {
		t.Error("GetConfig() should return the instance set by SetConfig()")
	}
	if MustGetConfig() != cfg {
		t.Error("MustGetConfig() should return the instance set by SetConfig()")
	}
}

func TestValidate_Upstream(t *testing.T) {
	tests := []struct {
		upstream string
		valid    bool
	}{
		{"", true},
		{"http://127.0.0.1:9000", true},
		{"https://api.internal/base", true},
		{"127.0.0.1:9000", false},
		{"/relative", false},
	}

	for _, tt := range tests {
		t.Run(tt.upstream, func(t *testing.T) {
			cfg := Defaults()
			cfg.Server.Upstream = tt.upstream
			err := Validate(cfg)
			if tt.valid && err != nil {
				t.Errorf("expected %q to be valid, got %v", tt.upstream, err)
			}
			if !tt.valid && (err == nil || !strings.Contains(err.Error(), "server.upstream")) {
				t.Errorf("expected server.upstream error for %q, got %v", tt.upstream, err)
			}
		})
	}
}
