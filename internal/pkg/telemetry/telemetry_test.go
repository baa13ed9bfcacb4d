package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
)

func TestNewResource(t *testing.T) {
	t.Run("valid service name", func(t *testing.T) {
		res, err := newResource("txwatch", "")
		require.NoError(t, err)
		require.NotNil(t, res)

		found := false
		for _, attr := range res.Attributes() {
			if attr.Key == semconv.ServiceNameKey {
				assert.Equal(t, "txwatch", attr.Value.AsString())
				found = true
			}
		}
		assert.True(t, found, "Service name attribute not found in resource")
	})

	t.Run("with a version", func(t *testing.T) {
		res, err := newResource("txwatch", "1.2.3")
		require.NoError(t, err)

		version, ok := res.Set().Value(semconv.ServiceVersionKey)
		require.True(t, ok)
		assert.Equal(t, "1.2.3", version.AsString())
	})

	t.Run("empty service name", func(t *testing.T) {
		res, err := newResource("", "")
		require.NoError(t, err)
		assert.NotNil(t, res)
	})
}

func TestInit(t *testing.T) {
	t.Run("returns a shutdown func", func(t *testing.T) {
		// The OTLP gRPC exporters connect lazily so Init succeeds without a collector.
		shutdown, err := Init(t.Context(), "txwatch-test", WithServiceVersion("test"), WithMetricInterval(time.Minute))
		require.NoError(t, err)
		require.NotNil(t, shutdown)

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_ = shutdown(ctx)
	})
}

func TestInstrumentation(t *testing.T) {
	t.Run("tracer and meter are always usable", func(t *testing.T) {
		_, span := Tracer("txwatcher").Start(t.Context(), "cycle")
		span.End()

		counter, err := Meter("txwatcher").Int64Counter("test.counter")
		require.NoError(t, err)
		assert.NotPanics(t, func() { counter.Add(t.Context(), 1) })
	})

	t.Run("nop shutdown", func(t *testing.T) {
		assert.NoError(t, Nop(t.Context()))
	})
}
