package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ariefcatur/go-order-ingest/internal/config"
	"github.com/ariefcatur/go-order-ingest/internal/ingest"
	"github.com/ariefcatur/go-order-ingest/internal/orders"
	"github.com/ariefcatur/go-order-ingest/internal/postgres"
	"github.com/ariefcatur/go-order-ingest/internal/sqlite"
	"github.com/ariefcatur/go-order-ingest/internal/telemetry"
)

// setup loads configuration, installs the JSON logger and starts tracing.
// The returned func flushes pending spans.
func setup(ctx context.Context) (config.Config, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})).
		With("service", cfg.ServiceName))

	shutdown, err := telemetry.Start(ctx, cfg)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("setup tracing: %w", err)
	}
	return cfg, func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("Tracing shutdown failed", "error", err)
		}
	}, nil
}

// projectionStore is what the commands need from either database.
type projectionStore interface {
	ingest.Store
	GetOrder(ctx context.Context, orderID string) (orders.Order, error)
	Ping(ctx context.Context) error
}

func openStore(ctx context.Context, cfg config.Config) (projectionStore, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := s.Bootstrap(ctx); err != nil {
			_ = s.Close()
			return nil, nil, err
		}
		slog.Info("Projection store opened", "driver", cfg.StoreDriver, "path", cfg.SQLitePath)
		return s, func() { _ = s.Close() }, nil
	default:
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
		if err != nil {
			return nil, nil, fmt.Errorf("db connect: %w", err)
		}
		slog.Info("Projection store opened", "driver", cfg.StoreDriver, "max_conns", cfg.PostgresMaxConns)
		return postgres.NewStore(pool), pool.Close, nil
	}
}

func newCoordinator(store ingest.Store, cfg config.Config, hooks ...ingest.CommitHook) *ingest.Coordinator {
	return ingest.NewCoordinator(store,
		ingest.WithResolver(orders.NewResolver(cfg.RequireOrderID)),
		ingest.WithCommitHook(hooks...),
	)
}
