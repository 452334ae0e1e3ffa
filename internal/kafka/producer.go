package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// writer is the part of *kafka.Writer the producer uses.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes keyed messages. The hash balancer sends every message
// of one key to the same partition, which keeps an order's events in sequence.
type Producer struct {
	w writer
	// chunk caps how many messages go into one WriteMessages call.
	chunk int
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		chunk: 500,
	}
}

// Publish writes msgs synchronously. Keys must already be set; messages
// without a time get the current one.
func (p *Producer) Publish(ctx context.Context, msgs ...kafka.Message) error {
	now := time.Now()
	for i := range msgs {
		if msgs[i].Time.IsZero() {
			msgs[i].Time = now
		}
		injectTrace(ctx, &msgs[i])
	}
	for start := 0; start < len(msgs); start += p.chunk {
		end := min(start+p.chunk, len(msgs))
		if err := p.w.WriteMessages(ctx, msgs[start:end]...); err != nil {
			return fmt.Errorf("publish messages %d..%d: %w", start, end-1, err)
		}
	}
	return nil
}

func (p *Producer) Close() error { return p.w.Close() }
