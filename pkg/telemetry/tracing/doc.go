// Package tracing provides OpenTelemetry tracing for apilog.
//
// # Overview
//
// New installs a global tracer provider that exports spans over OTLP/gRPC.
// Packages create spans with the package-level Start helper, which yields
// noop spans when tracing is disabled:
//
//	ctx, span := tracing.Start(ctx, "retention.sweep",
//	    attribute.String("apilog.trigger", "manual"))
//	defer span.End()
//
// # Sampling Strategies
//
//   - always: Sample all root traces
//   - never: Sample no root traces
//   - ratio: Sample a fraction of root traces by trace ID
//   - parent_based: Follow the parent decision, ratio for roots (default)
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
package tracing
