package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// BatchHandler must return nil only when the whole batch is durable; offsets
// are committed right after it returns.
type BatchHandler func(ctx context.Context, msgs []kafka.Message) error

type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topic   string

	BatchMaxSize int
	BatchMaxWait time.Duration
	// BatchTimeout bounds one handler attempt.
	BatchTimeout time.Duration

	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.BatchMaxSize <= 0 {
		c.BatchMaxSize = 1
	}
	if c.BatchMaxWait <= 0 {
		c.BatchMaxWait = 250 * time.Millisecond
	}
	if c.BatchTimeout <= 0 {
		c.BatchTimeout = 30 * time.Second
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = 200 * time.Millisecond
	}
	if c.RetryMaxInterval <= 0 {
		c.RetryMaxInterval = 30 * time.Second
	}
	return c
}

// partitionReader is the part of a partition-pinned *kafka.Reader a worker uses.
type partitionReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// commitFunc acknowledges everything up to and including last.
type commitFunc func(ctx context.Context, last kafka.Message) error

// Consumer joins a consumer group and gives every assigned partition its own
// reader, fetch loop and worker. A partition stuck retrying a batch only
// stops itself; the others keep fetching and committing.
type Consumer struct {
	cfg           ConsumerConfig
	tracer        trace.Tracer
	openPartition func(partition int, offset int64) partitionReader
}

func NewConsumer(cfg ConsumerConfig) *Consumer {
	c := &Consumer{cfg: cfg.withDefaults(), tracer: otel.Tracer("kafka-consumer")}
	c.openPartition = func(partition int, offset int64) partitionReader {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:   c.cfg.Brokers,
			Topic:     c.cfg.Topic,
			Partition: partition,
			MinBytes:  1,
			MaxBytes:  10e6,
		})
		if err := r.SetOffset(offset); err != nil {
			slog.Error("Failed to seek partition", "partition", partition, "offset", offset, "error", err)
		}
		return r
	}
	return c
}

// Start blocks until ctx is cancelled or the group fails. Shutdown is not
// an error: uncommitted batches are redelivered to the group later.
func (c *Consumer) Start(ctx context.Context, h BatchHandler) error {
	group, err := kafka.NewConsumerGroup(kafka.ConsumerGroupConfig{
		ID:          c.cfg.GroupID,
		Brokers:     c.cfg.Brokers,
		Topics:      []string{c.cfg.Topic},
		StartOffset: kafka.FirstOffset,
	})
	if err != nil {
		return fmt.Errorf("consumer group: %w", err)
	}
	// closing the group ends the running generation and waits for its workers.
	defer group.Close()

	for {
		gen, err := group.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, kafka.ErrGroupClosed) {
				return nil
			}
			return fmt.Errorf("join group %s: %w", c.cfg.GroupID, err)
		}

		assigned := gen.Assignments[c.cfg.Topic]
		slog.Info("Group generation started",
			"group", c.cfg.GroupID, "generation", gen.ID, "member", gen.MemberID, "partitions", len(assigned))

		for _, a := range assigned {
			partition, offset := a.ID, a.Offset
			commit := func(_ context.Context, last kafka.Message) error {
				return gen.CommitOffsets(map[string]map[int]int64{
					c.cfg.Topic: {partition: last.Offset + 1},
				})
			}
			gen.Start(func(gctx context.Context) {
				c.servePartition(gctx, partition, c.openPartition(partition, offset), commit, h)
			})
		}
	}
}

// servePartition runs until ctx ends. The fetch loop blocks only on this
// partition's own queue, so backpressure from a retrying batch stays local.
func (c *Consumer) servePartition(ctx context.Context, partition int, r partitionReader, commit commitFunc, h BatchHandler) {
	defer r.Close()
	slog.Info("Partition worker started", "partition", partition)

	g, gctx := errgroup.WithContext(ctx)
	in := make(chan kafka.Message, c.cfg.BatchMaxSize)

	g.Go(func() error {
		defer close(in)
		for {
			m, err := c.fetch(gctx, partition, r)
			if err != nil {
				return nil
			}
			select {
			case in <- m:
			case <-gctx.Done():
				return nil
			}
		}
	})
	g.Go(func() error { return c.runPartition(gctx, partition, in, commit, h) })

	if err := g.Wait(); err != nil {
		slog.Error("Partition worker failed", "partition", partition, "error", err)
	}
	slog.Info("Partition worker stopped", "partition", partition)
}

// fetch retries transient reader errors; only cancellation ends it.
func (c *Consumer) fetch(ctx context.Context, partition int, r partitionReader) (kafka.Message, error) {
	op := func() (kafka.Message, error) {
		m, err := r.FetchMessage(ctx)
		if err != nil && ctx.Err() != nil {
			return m, backoff.Permanent(ctx.Err())
		}
		return m, err
	}
	notify := func(err error, next time.Duration) {
		slog.Warn("Fetch failed, retrying", "partition", partition, "retry_in", next, "error", err)
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
}

func (c *Consumer) newBackOff() *backoff.ExponentialBackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.cfg.RetryInitialInterval
	eb.MaxInterval = c.cfg.RetryMaxInterval
	return eb
}

func (c *Consumer) runPartition(ctx context.Context, partition int, in <-chan kafka.Message, commit commitFunc, h BatchHandler) error {
	for {
		batch, open := c.collect(ctx, in)
		if len(batch) > 0 {
			if err := c.deliver(ctx, partition, batch, commit, h); err != nil {
				if ctx.Err() != nil {
					slog.Info("Partition worker stopped mid-batch, batch left uncommitted",
						"partition", partition, "batch_size", len(batch))
					return nil
				}
				return err
			}
		}
		if !open || ctx.Err() != nil {
			return nil
		}
	}
}

// collect waits for one message, then lingers up to BatchMaxWait for more.
func (c *Consumer) collect(ctx context.Context, in <-chan kafka.Message) ([]kafka.Message, bool) {
	var first kafka.Message
	select {
	case m, ok := <-in:
		if !ok {
			return nil, false
		}
		first = m
	case <-ctx.Done():
		return nil, false
	}

	batch := make([]kafka.Message, 0, c.cfg.BatchMaxSize)
	batch = append(batch, first)

	timer := time.NewTimer(c.cfg.BatchMaxWait)
	defer timer.Stop()
	for len(batch) < c.cfg.BatchMaxSize {
		select {
		case m, ok := <-in:
			if !ok {
				return batch, false
			}
			batch = append(batch, m)
		case <-timer.C:
			return batch, true
		case <-ctx.Done():
			return batch, false
		}
	}
	return batch, true
}

// deliver retries the same batch until the handler accepts it, then commits
// its offsets. Only cancellation ends the retries.
func (c *Consumer) deliver(ctx context.Context, partition int, batch []kafka.Message, commit commitFunc, h BatchHandler) error {
	first, last := batch[0], batch[len(batch)-1]
	ctx, span := c.tracer.Start(ctx, "Consumer.deliver", trace.WithAttributes(
		attribute.Int("messaging.kafka.partition", partition),
		attribute.Int64("messaging.kafka.offset.first", first.Offset),
		attribute.Int64("messaging.kafka.offset.last", last.Offset),
		attribute.Int("messaging.batch.message_count", len(batch)),
	), trace.WithLinks(batchLinks(batch)...))
	defer span.End()

	attempt := 0
	op := func() (struct{}, error) {
		attempt++
		actx, cancel := context.WithTimeout(ctx, c.cfg.BatchTimeout)
		defer cancel()
		if err := h(actx, batch); err != nil {
			if ctx.Err() != nil {
				return struct{}{}, backoff.Permanent(ctx.Err())
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	}
	notify := func(err error, next time.Duration) {
		slog.Error("Batch failed, redelivering",
			"partition", partition,
			"offset_first", first.Offset,
			"offset_last", last.Offset,
			"batch_size", len(batch),
			"attempt", attempt,
			"retry_in", next,
			"error", err,
		)
	}

	if _, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	); err != nil {
		span.RecordError(err)
		return err
	}

	// committing the last message acknowledges the whole batch.
	if err := commit(ctx, last); err != nil {
		// the batch is durable; a lost commit only causes an idempotent redelivery.
		slog.Error("Failed to commit offsets", "partition", partition, "offset", last.Offset, "error", err)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return nil
	}
	slog.Debug("Batch acknowledged", "partition", partition, "offset_last", last.Offset, "batch_size", len(batch))
	return nil
}

// Payloads returns the message values of a batch in arrival order.
func Payloads(msgs []kafka.Message) [][]byte {
	out := make([][]byte, len(msgs))
	for i, m := range msgs {
		out[i] = m.Value
	}
	return out
}
