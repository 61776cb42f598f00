package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/apilog/pkg/audit/retention"
	"mercator-hq/apilog/pkg/cli"
)

var cleanupFlags struct {
	stats  bool
	format string
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete audit records older than the retention period",
	Long: `Run one cleanup sweep against the configured store.

The sweep honors the retention section of the configuration: a disabled
policy deletes nothing. Records are deleted in batches of retention.batch_size.

Examples:
  # Delete expired records
  apilog cleanup

  # Show how many records a sweep would delete
  apilog cleanup --stats

  # Keep only the last 30 days
  APILOG_RETENTION_RETENTION_DAYS=30 apilog cleanup --format json`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().BoolVar(&cleanupFlags.stats, "stats", false, "print the cleanup stats snapshot instead of sweeping")
	cleanupCmd.Flags().StringVarP(&cleanupFlags.format, "format", "f", "text", "output format (text, json, csv)")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(cleanupFlags.format)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	closer, err := setupLogging(&cfg.Telemetry.Logging, os.Stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	c, err := newCore(cfg)
	if err != nil {
		return cli.NewCommandError("cleanup", err)
	}
	defer c.Close()

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	formatter := cli.NewFormatter(format)
	out := cmd.OutOrStdout()

	if cleanupFlags.stats {
		stats, err := c.cleaner.Stats(ctx)
		if err != nil {
			return cli.NewCommandError("cleanup", err)
		}
		return formatter.Summary(out, stats, cli.CleanupStatsFields(stats))
	}

	result := c.cleaner.Sweep(ctx, retention.TriggerManual)
	summary := result.Summary()
	if err := formatter.Summary(out, summary, cli.SweepFields(summary)); err != nil {
		return err
	}
	if !result.Success() {
		cause := result.Err
		if cause == nil {
			cause = errors.New(string(result.Outcome))
		}
		return cli.NewCommandError("cleanup", cause)
	}
	return nil
}
