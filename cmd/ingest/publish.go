package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	kafkax "github.com/ariefcatur/go-order-ingest/internal/kafka"
	"github.com/ariefcatur/go-order-ingest/internal/orders"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"
)

var errNoItems = errors.New("order has no items")

func publishCmd() *cobra.Command {
	var (
		file string
		raw  bool
	)
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a file of newline-delimited order events to the topic",
		Long: `Publish sends one message per line, keyed by order id so every event of
an order lands on the same partition. Each event is decoded and normalised
first: an event without an id gets a fresh UUID, a missing createdAt is
stamped with the current time, and the normalised order is what goes on the
wire. The whole file is refused if one event is malformed or has no items.

--raw skips all of that and sends the lines exactly as read.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), file, raw)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Events file, one JSON object per line")
	cmd.Flags().BoolVar(&raw, "raw", false, "Publish lines as-is, without decoding")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runPublish(ctx context.Context, in io.Reader, out io.Writer, file string, raw bool) error {
	cfg, flush, err := setup(ctx)
	if err != nil {
		return err
	}
	defer flush()

	payloads, err := readEvents(file, in)
	if err != nil {
		return err
	}
	msgs, err := toMessages(orders.NewDecoder(), uuid.NewString, payloads, raw)
	if err != nil {
		return err
	}

	prod := kafkax.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer func() {
		if err := prod.Close(); err != nil {
			slog.Warn("Producer close failed", "error", err)
		}
	}()

	if err := prod.Publish(ctx, msgs...); err != nil {
		return err
	}
	fmt.Fprintf(out, "published %d events to %s\n", len(msgs), cfg.KafkaTopic)
	return nil
}

// toMessages builds one keyed message per payload. Decoded events are
// re-encoded in normalised form so the id minted here is the one every
// redelivery carries. In raw mode payloads are sent unchanged and only
// events that decode with an id get a key.
func toMessages(dec *orders.Decoder, newID func() string, payloads [][]byte, raw bool) ([]kafkago.Message, error) {
	msgs := make([]kafkago.Message, 0, len(payloads))
	for i, p := range payloads {
		if raw {
			m := kafkago.Message{Value: p}
			if o, err := dec.Decode(p); err == nil && o.ID != "" {
				m.Key = orders.PartitionKey(o.ID)
			}
			msgs = append(msgs, m)
			continue
		}

		o, err := dec.Decode(p)
		if err != nil {
			var de *orders.DecodeError
			if errors.As(err, &de) {
				de.Index = i
			}
			return nil, err
		}
		if len(o.Items) == 0 {
			return nil, &orders.DecodeError{Index: i, Err: errNoItems}
		}
		if o.ID == "" {
			o.ID = newID()
		}
		value, err := json.Marshal(o)
		if err != nil {
			return nil, fmt.Errorf("encode event %d: %w", i, err)
		}
		msgs = append(msgs, kafkago.Message{Key: orders.PartitionKey(o.ID), Value: value})
	}
	return msgs, nil
}
