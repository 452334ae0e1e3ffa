package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// headerCarrier adapts kafka headers to propagation.TextMapCarrier.
type headerCarrier struct{ m *kafka.Message }

func (c headerCarrier) Get(key string) string {
	for _, h := range c.m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.m.Headers {
		if h.Key == key {
			c.m.Headers[i].Value = []byte(value)
			return
		}
	}
	c.m.Headers = append(c.m.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	out := make([]string, 0, len(c.m.Headers))
	for _, h := range c.m.Headers {
		out = append(out, h.Key)
	}
	return out
}

var _ propagation.TextMapCarrier = headerCarrier{}

func injectTrace(ctx context.Context, m *kafka.Message) {
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{m: m})
}

// batchLinks links a batch span to the producer span of every message that carried one.
func batchLinks(msgs []kafka.Message) []trace.Link {
	var links []trace.Link
	for i := range msgs {
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), headerCarrier{m: &msgs[i]})
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			links = append(links, trace.Link{SpanContext: sc})
		}
	}
	return links
}
