package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

func TestNewResource(t *testing.T) {
	t.Run("sets the service name", func(t *testing.T) {
		res, err := newResource("availctl")
		require.NoError(t, err)

		found := false
		for _, attr := range res.Attributes() {
			if attr.Key == semconv.ServiceNameKey {
				assert.Equal(t, "availctl", attr.Value.AsString())
				found = true
			}
		}
		assert.True(t, found, "service name attribute not found in resource")
	})

	t.Run("accepts an empty service name", func(t *testing.T) {
		res, err := newResource("")
		require.NoError(t, err)
		assert.NotNil(t, res)
	})
}

func TestLoggerProvider(t *testing.T) {
	t.Run("nil when telemetry is disabled", func(t *testing.T) {
		setLoggerProvider(nil)
		assert.Nil(t, LoggerProvider())
	})

	t.Run("returns the registered provider", func(t *testing.T) {
		lp := sdklog.NewLoggerProvider()
		defer lp.Shutdown(context.Background())

		setLoggerProvider(lp)
		defer setLoggerProvider(nil)

		assert.Equal(t, lp, LoggerProvider())
	})
}

func TestInit(t *testing.T) {
	// Exporters connect lazily, so Init succeeds without a collector.
	shutdown, err := Init(t.Context(), "availctl-test")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NotNil(t, LoggerProvider())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
	assert.Nil(t, LoggerProvider())
}
