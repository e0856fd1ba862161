// Package telemetry configures OpenTelemetry tracing for filter runs.
//
// Tracing is driven by the telemetry section of the configuration file and
// is off by default. With tracing off the global no-op provider stays in
// place, so spans opened through Tracer cost nothing. The OTLP exporters
// still honour the standard OTEL_EXPORTER_OTLP_* variables for anything
// the configuration leaves empty.
//
// Usage:
//
//	shutdown, err := telemetry.Init(ctx, &cfg.Telemetry, version)
//	if err != nil {
//	    logger.Warn("Failed to initialize telemetry: %v", err)
//	}
//	defer shutdown(ctx)
//
//	ctx, span := telemetry.Tracer("engine").Start(ctx, "filter.apply")
//	defer func() { telemetry.EndSpan(span, err) }()
package telemetry

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/jacoco-filter/pkg/config"
)

const instrumentationPrefix = "github.com/jacoco-filter/"

var enabled atomic.Bool

// ShutdownFunc flushes pending spans and stops the provider.
type ShutdownFunc func(ctx context.Context) error

func noopShutdown(context.Context) error { return nil }

// Init installs a global TracerProvider exporting over OTLP. A disabled or
// nil cfg leaves the no-op provider and returns a no-op ShutdownFunc. attrs
// are added to the resource next to the service name and version.
func Init(ctx context.Context, cfg *config.TelemetryConfig, version string, attrs ...attribute.KeyValue) (ShutdownFunc, error) {
	if cfg == nil || !cfg.Enabled {
		return noopShutdown, nil
	}

	res, err := newResource(ctx, version, attrs...)
	if err != nil {
		return noopShutdown, err
	}
	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return noopShutdown, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(newSampler(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	enabled.Store(true)

	return func(ctx context.Context) error {
		enabled.Store(false)
		return tp.Shutdown(ctx)
	}, nil
}

// Enabled reports whether Init installed a real provider.
func Enabled() bool {
	return enabled.Load()
}

// Tracer returns the tracer for a component, e.g. "engine" or "cli".
func Tracer(component string) trace.Tracer {
	return otel.Tracer(instrumentationPrefix + component)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// newSampler samples root spans at ratio and follows the parent otherwise.
func newSampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio <= 0:
		return sdktrace.NeverSample()
	case ratio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}
