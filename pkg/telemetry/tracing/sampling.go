package tracing

import (
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	// SamplerAlways samples all traces
	SamplerAlways = "always"

	// SamplerNever samples no traces
	SamplerNever = "never"

	// SamplerRatio samples a percentage of traces by trace ID
	SamplerRatio = "ratio"

	// SamplerParentBased follows the parent decision and falls back to ratio sampling
	SamplerParentBased = "parent_based"
)

// createSampler creates a sampler based on the strategy and ratio.
//
// "always", "never" and "ratio" apply to root spans only; every sampler is
// wrapped in ParentBased so a sampled parent keeps its children sampled.
func createSampler(strategy string, ratio float64) (sdktrace.Sampler, error) {
	if ratio < 0.0 || ratio > 1.0 {
		return nil, fmt.Errorf("sample ratio must be between 0.0 and 1.0, got %f", ratio)
	}

	var base sdktrace.Sampler
	switch strategy {
	case SamplerAlways:
		base = sdktrace.AlwaysSample()
	case SamplerNever:
		base = sdktrace.NeverSample()
	case SamplerRatio, SamplerParentBased, "":
		base = sdktrace.TraceIDRatioBased(ratio)
	default:
		return nil, fmt.Errorf("unknown sampler strategy: %s (valid: always, never, ratio, parent_based)", strategy)
	}

	return sdktrace.ParentBased(base), nil
}
