package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/perf-snapshot/pkg/config"
)

func TestNewResource(t *testing.T) {
	res, err := newResource(config.TelemetryConfig{
		ServiceName: "snapshots-test",
		Attributes:  map[string]string{"deployment.environment": "ci"},
	}, "1.2.3")
	require.NoError(t, err)

	set := res.Set()
	v, ok := set.Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "snapshots-test", v.AsString())
	v, ok = set.Value("service.version")
	require.True(t, ok)
	assert.Equal(t, "1.2.3", v.AsString())
	v, ok = set.Value(attribute.Key("deployment.environment"))
	require.True(t, ok)
	assert.Equal(t, "ci", v.AsString())
}

func TestNewResource_Defaults(t *testing.T) {
	res, err := newResource(config.TelemetryConfig{}, "")
	require.NoError(t, err)

	v, ok := res.Set().Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "perf-snapshot", v.AsString())
	v, _ = res.Set().Value("service.version")
	assert.Equal(t, "unknown", v.AsString())
}
