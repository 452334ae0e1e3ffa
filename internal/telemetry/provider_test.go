package telemetry

import (
	"context"
	"strings"
	"testing"

	"github.com/ariefcatur/go-order-ingest/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestStartWithoutEndpointStillPropagates(t *testing.T) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator())

	shutdown, err := Start(context.Background(), config.Config{ServiceName: "order-ingest"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	fields := otel.GetTextMapPropagator().Fields()
	if len(fields) == 0 || fields[0] != "traceparent" {
		t.Fatalf("propagator fields = %v", fields)
	}
}

func TestStartWithEndpoint(t *testing.T) {
	// TEST-NET address; the batcher never gets to export.
	cfg := config.Config{ServiceName: "order-ingest", OTelEndpoint: "http://192.0.2.1:4318", OTelSampleRatio: 0.5}
	shutdown, err := Start(context.Background(), cfg)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSamplerUsesRatio(t *testing.T) {
	if d := sampler(1).Description(); !strings.Contains(d, "AlwaysOnSampler") {
		t.Fatalf("ratio 1 sampler = %s", d)
	}
	if d := sampler(0.25).Description(); !strings.Contains(d, "TraceIDRatioBased{0.25}") {
		t.Fatalf("ratio 0.25 sampler = %s", d)
	}

	// a sampled parent wins over a zero ratio.
	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1},
		SpanID:     trace.SpanID{1},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	res := sampler(0).ShouldSample(sdktrace.SamplingParameters{
		ParentContext: trace.ContextWithRemoteSpanContext(context.Background(), parent),
		TraceID:       parent.TraceID(),
		Name:          "Consumer.deliver",
	})
	if res.Decision != sdktrace.RecordAndSample {
		t.Fatalf("decision = %v", res.Decision)
	}
}
