/*
Package cli provides helpers shared by the apilog commands.

Output Formatting:

Commands print audit records and stats snapshots as text, JSON or CSV:

	format, err := cli.ParseFormat(flagValue)
	if err != nil {
		return err
	}
	formatter := cli.NewFormatter(format)
	if err := formatter.Records(os.Stdout, records); err != nil {
		return err
	}

JSON output uses the same field names as the HTTP API. The tabular formats
render summaries from a list of Fields, see QueryStatsFields and
CleanupStatsFields.

Errors and Exit Codes:

ExitCode maps ConfigError, UsageError and CommandError to the process exit
status.

Signal Handling:

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()
*/
package cli
