package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ariefcatur/go-order-ingest/internal/config"
	"github.com/ariefcatur/go-order-ingest/internal/httpx"
	"github.com/ariefcatur/go-order-ingest/internal/ingest"
	kafkax "github.com/ariefcatur/go-order-ingest/internal/kafka"
	"github.com/ariefcatur/go-order-ingest/internal/redisx"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func consumeCmd() *cobra.Command {
	var serveHTTP bool
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Consume the order event topic and project every batch",
		Long: `Consume joins the consumer group, batches messages per partition and
applies each batch in one transaction. Offsets are committed only after the
batch committed; a failed batch is retried with backoff until it succeeds
or the process stops.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsume(cmd.Context(), serveHTTP)
		},
	}

	cmd.Flags().BoolVar(&serveHTTP, "http", true, "Serve health checks and the order read API")

	return cmd
}

func runConsume(ctx context.Context, serveHTTP bool) error {
	cfg, flush, err := setup(ctx)
	if err != nil {
		return err
	}
	defer flush()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	checks := map[string]httpx.Check{"store": store.Ping}
	handler := &httpx.OrdersHandler{Reader: store}
	var hooks []ingest.CommitHook

	// Redis (optional read cache)
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		cache := redisx.NewCache(rdb, redisx.TTLOrder)
		handler.Cache = cache
		hooks = append(hooks, cache.Invalidate)
		checks["redis"] = func(ctx context.Context) error { return redisx.Ping(ctx, rdb) }
	}

	coord := newCoordinator(store, cfg, hooks...)
	cons := kafkax.NewConsumer(consumerConfig(cfg))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Consumer started",
			"group", cfg.KafkaGroup, "topic", cfg.KafkaTopic,
			"batch_max_size", cfg.BatchMaxSize, "batch_max_wait", cfg.BatchMaxWait)
		return cons.Start(gctx, func(ctx context.Context, msgs []kafkago.Message) error {
			return coord.Process(ctx, kafkax.Payloads(msgs))
		})
	})

	if serveHTTP {
		router := httpx.NewRouter(checks)
		handler.Register(router)
		srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			slog.Info("HTTP listening", "addr", cfg.HTTPAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		// graceful shutdown
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	err = g.Wait()
	slog.Info("Consumer stopped", "error", err)
	return err
}

func consumerConfig(cfg config.Config) kafkax.ConsumerConfig {
	return kafkax.ConsumerConfig{
		Brokers:          cfg.KafkaBrokers,
		GroupID:          cfg.KafkaGroup,
		Topic:            cfg.KafkaTopic,
		BatchMaxSize:     cfg.BatchMaxSize,
		BatchMaxWait:     cfg.BatchMaxWait,
		BatchTimeout:     cfg.BatchTimeout,
		RetryMaxInterval: cfg.RetryMaxInterval,
	}
}
