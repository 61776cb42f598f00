// Package logging configures structured logging for apilog.
//
// # Overview
//
// The logging package builds a log/slog logger from configuration:
//   - JSON or text output
//   - Optional rotating log file (lumberjack)
//   - Request ID, user and cleanup trigger taken from the context
//
// # Usage
//
//	closer, err := logging.Setup(&cfg.Telemetry.Logging)
//	if err != nil {
//	    return err
//	}
//	defer closer.Close()
//
//	ctx = logging.WithRequestID(ctx, "req-123")
//	slog.InfoContext(ctx, "request completed") // includes request_id
//
// Components derive their own logger from the default one:
//
//	logger := slog.Default().With("component", "audit.retention")
package logging
