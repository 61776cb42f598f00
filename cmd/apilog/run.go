package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"

	"mercator-hq/apilog/pkg/api"
	"mercator-hq/apilog/pkg/audit/capture"
	"mercator-hq/apilog/pkg/audit/retention"
	"mercator-hq/apilog/pkg/cli"
	"mercator-hq/apilog/pkg/config"
	"mercator-hq/apilog/pkg/server"
	"mercator-hq/apilog/pkg/telemetry/health"
	"mercator-hq/apilog/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress string
	upstream      string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the apilog server",
	Long: `Start the apilog server with the specified configuration.

The server exposes the audit API under /logs and captures every other request.
With an upstream configured, those requests are proxied to the application.

Examples:
  # Start with default config
  apilog run

  # Audit an application listening on port 9000
  apilog run --upstream http://127.0.0.1:9000

  # Override listen address
  apilog run --listen 0.0.0.0:8080

  # Validate config without starting server
  apilog run --dry-run`,
	Args: cobra.NoArgs,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVarP(&runFlags.upstream, "upstream", "u", "", "override upstream application URL")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.upstream != "" {
		cfg.Server.Upstream = runFlags.upstream
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError(cfgFile, err)
	}

	closer, err := setupLogging(&cfg.Telemetry.Logging, nil)
	if err != nil {
		return err
	}
	defer closer.Close()

	out := cmd.OutOrStdout()
	if runFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	if err := serve(ctx, cfg, out); err != nil {
		return cli.NewCommandError("run", err)
	}
	return nil
}

// serve wires every component and blocks until ctx is cancelled. Shutdown
// stops accepting requests first, then drains the capture queue, then stops
// the retention scheduler and finally closes the store.
func serve(ctx context.Context, cfg *config.Config, out io.Writer) error {
	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer tracer.Shutdown(context.Background())

	c, err := newCore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open audit store: %w", err)
	}
	defer c.Close()
	fmt.Fprintf(out, "✓ Audit store initialized (%s)\n", cfg.Storage.Backend)

	recorder := capture.NewRecorder(c.store, capture.RecorderConfigFrom(&cfg.Capture), c.collector)
	interceptor := capture.NewInterceptor(&cfg.Capture, recorder, c.collector)

	trigger, err := retention.NewCronTrigger(cfg.Retention.CronExpression)
	if err != nil {
		recorder.Close()
		return err
	}
	scheduler := retention.NewScheduler(c.cleaner, trigger)
	if err := scheduler.Start(ctx); err != nil {
		recorder.Close()
		return fmt.Errorf("failed to start retention scheduler: %w", err)
	}
	defer scheduler.Stop()
	if next := scheduler.NextRun(); next != nil {
		slog.Debug("retention scheduler started", "next_run", next)
	}

	if cfg.Retention.WatchConfig && cfgFile != "" {
		go watchRetention(ctx, cfgFile, scheduler)
	}

	checker := health.New(cfg.Telemetry.Health.CheckTimeout)
	checker.RegisterCheck("store", health.PingCheck(c.store))

	var app http.Handler
	if cfg.Server.Upstream != "" {
		app, err = server.NewUpstreamProxy(cfg.Server.Upstream)
		if err != nil {
			recorder.Close()
			return err
		}
	}

	srv := server.NewServer(cfg, server.Dependencies{
		API:         api.NewHandler(c.queries, scheduler, c.collector),
		Interceptor: interceptor,
		Health:      checker,
		Metrics:     c.collector,
		App:         app,
		Version:     Version,
		Commit:      GitCommit,
		BuildTime:   BuildDate,
	})

	fmt.Fprintf(out, "✓ Listening on %s\n", cfg.Server.ListenAddress)
	if cfg.Server.Upstream != "" {
		fmt.Fprintf(out, "✓ Auditing %s\n", cfg.Server.Upstream)
	}
	fmt.Fprintln(out, "Press Ctrl+C to stop")

	serveErr := srv.Start(ctx)

	if err := recorder.Close(); err != nil {
		slog.Error("failed to drain capture queue", "error", err)
	}
	slog.Info("capture queue drained", "dropped", recorder.Dropped())

	if serveErr != nil {
		return serveErr
	}
	fmt.Fprintln(out, "✓ Server stopped")
	return nil
}

// watchRetention pushes retention changes from the config file into the
// scheduler until ctx is cancelled.
func watchRetention(ctx context.Context, path string, scheduler *retention.Scheduler) {
	watcher, err := config.NewWatcher(path, 0)
	if err != nil {
		slog.Warn("config watcher unavailable", "error", err)
		return
	}

	err = watcher.Watch(ctx, func(cfg *config.Config) {
		policy := retention.PolicyFromConfig(&cfg.Retention)
		if err := scheduler.UpdatePolicy(policy); err != nil {
			slog.Error("failed to apply retention policy", "error", err)
			return
		}
		slog.Info("retention policy reloaded",
			"enabled", policy.Enabled,
			"retention_days", policy.RetentionDays,
			"batch_size", policy.BatchSize,
			"schedule", policy.CronExpression,
		)
	})
	if err != nil {
		slog.Error("config watcher stopped", "error", err)
	}
}
