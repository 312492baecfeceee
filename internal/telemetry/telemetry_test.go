package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recon/internal/config"
)

func TestSetupNoopWhenDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{Endpoint: "http://192.0.2.1:4318"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupNoopWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{Enabled: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, shutdown(ctx))
}

func TestSetupCreatesProvider(t *testing.T) {
	// Non-routable address: nothing is exported before shutdown.
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{
		Enabled:     true,
		Endpoint:    "http://192.0.2.1:4318",
		ServiceName: "recon-test",
		SampleRatio: 0.5,
	})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOn")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}
