package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"mercator-hq/apilog/pkg/audit"
	"mercator-hq/apilog/pkg/audit/query"
	"mercator-hq/apilog/pkg/audit/retention"
	"mercator-hq/apilog/pkg/audit/store"
	"mercator-hq/apilog/pkg/cli"
	"mercator-hq/apilog/pkg/config"
	"mercator-hq/apilog/pkg/telemetry/logging"
	"mercator-hq/apilog/pkg/telemetry/metrics"
)

// core holds the components every command needs: the store and the services
// reading from it.
type core struct {
	cfg       *config.Config
	store     audit.Store
	collector *metrics.Collector
	queries   *query.Service
	policy    *retention.PolicySource
	cleaner   *retention.Cleaner
}

func newCore(cfg *config.Config) (*core, error) {
	st, err := openStore(&cfg.Storage)
	if err != nil {
		return nil, err
	}

	policy, err := retention.NewPolicySource(retention.PolicyFromConfig(&cfg.Retention))
	if err != nil {
		st.Close()
		return nil, err
	}

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	return &core{
		cfg:       cfg,
		store:     st,
		collector: collector,
		queries:   query.NewService(st, &cfg.Query),
		policy:    policy,
		cleaner:   retention.NewCleaner(st, policy, collector),
	}, nil
}

func (c *core) Close() error {
	return c.store.Close()
}

// openStore opens the configured storage backend.
func openStore(cfg *config.StorageConfig) (audit.Store, error) {
	switch cfg.Backend {
	case "memory":
		return store.NewMemoryStore(), nil

	case "sqlite":
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "." && cfg.SQLite.Path != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory %q: %w", dir, err)
			}
		}
		return store.NewSQLStore(&store.SQLConfig{
			Driver:       cfg.SQLite.Driver,
			DSN:          cfg.SQLite.Path,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.SQLite.MaxIdleConns,
			WALMode:      cfg.SQLite.WALMode,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		})

	case "postgres":
		return store.NewSQLStore(&store.SQLConfig{
			Driver:          store.DriverPostgres,
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})

	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}

// setupLogging installs the default logger. Commands that print results pass
// os.Stderr so that logs never mix with their output; a configured log file
// takes precedence over w.
func setupLogging(cfg *config.LoggingConfig, w io.Writer) (io.Closer, error) {
	opts := logging.Options{}
	if cfg.File.Path == "" {
		opts.Writer = w
	}
	logger, closer, err := logging.New(cfg, opts)
	if err != nil {
		return nil, cli.NewConfigError(cfgFile, err)
	}
	slog.SetDefault(logger)
	return closer, nil
}
