package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/apilog/pkg/api"
	"mercator-hq/apilog/pkg/audit"
	"mercator-hq/apilog/pkg/audit/query"
	"mercator-hq/apilog/pkg/cli"
)

var logsFlags struct {
	user     string
	endpoint string
	method   string
	status   int
	start    string
	end      string
	limit    int
	errors   bool
	stats    bool
	format   string
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Query captured audit records",
	Long: `Query the audit records in the configured store.

Filters follow the same precedence as GET /logs: user with a date range,
then the date range, user, endpoint, method and status. Only the first
matching filter applies.

Times are RFC 3339 ("2026-03-01T00:00:00Z") or an ISO date-time without
offset ("2026-03-01T00:00:00", read as UTC).

Examples:
  # Most recent records
  apilog logs --limit 20

  # Requests of one user in a window
  apilog logs --user alice --start 2026-03-01T00:00:00Z --end 2026-03-02T00:00:00Z

  # Server and client errors as CSV
  apilog logs --errors --format csv > errors.csv

  # Aggregate statistics
  apilog logs --stats --format json`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)

	f := logsCmd.Flags()
	f.StringVar(&logsFlags.user, "user", "", "filter by user ID")
	f.StringVar(&logsFlags.endpoint, "endpoint", "", "filter by exact endpoint path")
	f.StringVar(&logsFlags.method, "method", "", "filter by HTTP method")
	f.IntVar(&logsFlags.status, "status", 0, "filter by response status")
	f.StringVar(&logsFlags.start, "start", "", "window start time")
	f.StringVar(&logsFlags.end, "end", "", "window end time")
	f.IntVar(&logsFlags.limit, "limit", 0, "maximum number of records (default query.default_limit)")
	f.BoolVar(&logsFlags.errors, "errors", false, "only records with status >= 400 (combines with --user)")
	f.BoolVar(&logsFlags.stats, "stats", false, "print aggregate statistics (uses --start and --end)")
	f.StringVarP(&logsFlags.format, "format", "f", "text", "output format (text, json, csv)")
}

func runLogs(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(logsFlags.format)
	if err != nil {
		return err
	}

	req, err := logsRequest(cmd)
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
		return cli.NewCommandError("logs", err)
	}
	defer c.Close()

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()

	formatter := cli.NewFormatter(format)
	out := cmd.OutOrStdout()

	if logsFlags.stats {
		stats, err := c.queries.Stats(ctx, req.StartDate, req.EndDate)
		if err != nil {
			return logsError(err)
		}
		return formatter.Summary(out, stats, cli.QueryStatsFields(stats))
	}

	var records []*audit.Record
	if logsFlags.errors {
		records, err = c.queries.Errors(ctx, req.UserID)
	} else {
		records, err = c.queries.Find(ctx, req)
	}
	if err != nil {
		return logsError(err)
	}
	return formatter.Records(out, records)
}

// logsRequest converts the flags into a query request. Numeric filters apply
// only when the flag was set.
func logsRequest(cmd *cobra.Command) (query.Request, error) {
	req := query.Request{
		UserID:   logsFlags.user,
		Endpoint: logsFlags.endpoint,
		Method:   logsFlags.method,
	}

	flags := cmd.Flags()
	if flags.Changed("status") {
		status := logsFlags.status
		req.Status = &status
	}
	if flags.Changed("limit") {
		limit := logsFlags.limit
		req.Limit = &limit
	}

	for _, tf := range []struct {
		name  string
		value string
		dst   **time.Time
	}{
		{"start", logsFlags.start, &req.StartDate},
		{"end", logsFlags.end, &req.EndDate},
	} {
		if tf.value == "" {
			continue
		}
		t, err := api.ParseTime(tf.value)
		if err != nil {
			return req, cli.NewUsageError("invalid --%s: %v", tf.name, err)
		}
		*tf.dst = &t
	}
	return req, nil
}

func logsError(err error) error {
	if audit.IsValidation(err) {
		return cli.NewUsageError("%v", err)
	}
	return cli.NewCommandError("logs", err)
}
