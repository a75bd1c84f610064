package telemetry

import (
	"strings"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/perf-snapshot/pkg/errors"
)

// newSampler maps an OTEL_TRACES_SAMPLER style name to a sampler. ratio is
// clamped to [0, 1] and only read by the ratio samplers.
func newSampler(name string, ratio float64) (sdktrace.Sampler, error) {
	ratio = min(max(ratio, 0), 1)
	switch strings.ToLower(name) {
	case "", "always_on":
		return sdktrace.AlwaysSample(), nil
	case "always_off":
		return sdktrace.NeverSample(), nil
	case "traceidratio":
		return sdktrace.TraceIDRatioBased(ratio), nil
	case "parentbased_always_on":
		return sdktrace.ParentBased(sdktrace.AlwaysSample()), nil
	case "parentbased_always_off":
		return sdktrace.ParentBased(sdktrace.NeverSample()), nil
	case "parentbased_traceidratio":
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio)), nil
	default:
		return nil, errors.Newf(errors.CodeConfigError, "unsupported trace sampler: %s", name)
	}
}
