// Package telemetry provides helpers to initialize OpenTelemetry metrics and
// tracing with OTLP exporters over gRPC. It creates a unified Resource for the
// service, registers global providers, and exposes a ShutdownFunc to cleanly
// flush and stop all telemetry pipelines. Tracer and Meter resolve against the
// global providers, so instrumented code stays a no-op until Init runs.
package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.opentelemetry.io/otel/trace"
)

// instrumentationPrefix scopes every tracer and meter created by this module.
const instrumentationPrefix = "github.com/gabapcia/txwatch/"

// Tracer returns a tracer from the global provider scoped to the given component.
func Tracer(component string) trace.Tracer {
	return otel.Tracer(instrumentationPrefix + component)
}

// Meter returns a meter from the global provider scoped to the given component.
func Meter(component string) metric.Meter {
	return otel.Meter(instrumentationPrefix + component)
}

// Nop is a ShutdownFunc for processes that run without telemetry.
func Nop(context.Context) error { return nil }

// initMeterProvider sets up an OTLP gRPC MeterProvider using a
// periodic reader and the given Resource. It also registers the
// provider as the global MeterProvider.
func initMeterProvider(ctx context.Context, res *sdkresource.Resource, interval time.Duration) (*sdkmetric.MeterProvider, error) {
	exporter, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		return nil, err
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)
	return mp, nil
}

// initTracerProvider sets up an OTLP gRPC TracerProvider using a
// batched exporter and the given Resource. It also registers the
// provider as the global TracerProvider.
func initTracerProvider(ctx context.Context, res *sdkresource.Resource) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// newResource merges the default system resource with the service name and,
// when set, its version.
func newResource(serviceName, serviceVersion string) (*sdkresource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(serviceName)}
	if serviceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(serviceVersion))
	}

	return sdkresource.Merge(
		sdkresource.Default(),
		sdkresource.NewWithAttributes(semconv.SchemaURL, attrs...),
	)
}

type config struct {
	serviceVersion string
	metricInterval time.Duration
}

type Option func(*config)

// WithServiceVersion tags every signal with the running build version.
func WithServiceVersion(v string) Option {
	return func(c *config) {
		c.serviceVersion = v
	}
}

// WithMetricInterval sets how often metrics are exported. Zero keeps the SDK default.
func WithMetricInterval(d time.Duration) Option {
	return func(c *config) {
		c.metricInterval = d
	}
}

// ShutdownFunc defines a callback to flush and stop all telemetry providers.
// Call this function at application shutdown to ensure all telemetry is sent.
type ShutdownFunc func(ctx context.Context) error

// Init configures OpenTelemetry for metrics and traces using OTLP over gRPC.
// It initializes the necessary providers for telemetry data collection and export.
//
// Parameters:
//   - ctx: A context.Context for managing the initialization process.
//   - serviceName: A string representing the logical name of the service, used to
//     identify telemetry data in the observability backend.
//
// Returns:
//   - ShutdownFunc: A function to be called during application shutdown to ensure
//     all telemetry data is flushed and providers are stopped gracefully.
//   - error: An error if any part of the initialization process fails.
//
// The returned ShutdownFunc will handle the clean shutdown of metrics and tracer
// providers, ensuring no data is lost during application termination. If the
// tracer provider fails to initialize, the already created meter provider is
// shut down before returning.
func Init(ctx context.Context, serviceName string, opts ...Option) (ShutdownFunc, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	res, err := newResource(serviceName, cfg.serviceVersion)
	if err != nil {
		return nil, err
	}

	mp, err := initMeterProvider(ctx, res, cfg.metricInterval)
	if err != nil {
		return nil, err
	}

	tp, err := initTracerProvider(ctx, res)
	if err != nil {
		return nil, errors.Join(err, mp.Shutdown(ctx))
	}

	return func(ctx context.Context) error {
		errs := []error{
			mp.Shutdown(ctx),
			tp.Shutdown(ctx),
		}
		return errors.Join(errs...)
	}, nil
}
