package telemetry

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-order-ingest/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// Shutdown flushes and stops tracing.
type Shutdown func(context.Context) error

// Start installs the W3C propagator and, when cfg.OTelEndpoint is set, an
// OTLP/HTTP tracer provider sampling cfg.OTelSampleRatio of new traces.
// The propagator is always installed so trace context keeps flowing through
// kafka headers when nothing is exported.
func Start(ctx context.Context, cfg config.Config) (Shutdown, error) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	if cfg.OTelEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(cfg.OTelEndpoint))
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
	))
	if err != nil {
		return nil, fmt.Errorf("trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.OTelSampleRatio)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// sampler honours the caller's decision for propagated traces and samples
// ratio of the traces started here.
func sampler(ratio float64) sdktrace.Sampler {
	if ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}
