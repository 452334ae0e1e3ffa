package ingest

import (
	"context"

	"github.com/ariefcatur/go-order-ingest/internal/orders"
)

// Writes are the projection statements a session must support.
type Writes interface {
	// UpsertOrder inserts the header row, or updates every column except
	// the creation time when a row for o.ID already exists.
	UpsertOrder(ctx context.Context, o orders.Order) error
	DeleteItems(ctx context.Context, orderID string) error
	InsertItems(ctx context.Context, orderID string, items []orders.Item) error
}

// Session is one exclusively held transaction. Exactly one of Commit or
// Rollback ends it.
type Session interface {
	Writes
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store opens transactional sessions against the relational sink.
type Store interface {
	Begin(ctx context.Context) (Session, error)
}
