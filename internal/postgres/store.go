package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-order-ingest/internal/ingest"
	"github.com/ariefcatur/go-order-ingest/internal/orders"
	"github.com/ariefcatur/go-order-ingest/internal/sqlq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the production projection sink.
type Store struct{ DB *pgxpool.Pool }

func NewStore(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// Begin opens the batch transaction. Read committed is enough: every
// statement of a batch is a write keyed by order id.
func (s *Store) Begin(ctx context.Context) (ingest.Session, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	return &session{tx: tx}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.DB.Ping(ctx) }

// execer is satisfied by both pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func exec(ctx context.Context, conn execer, st sqlq.Stmt) error {
	_, err := conn.Exec(ctx, st.SQL, st.Args...)
	return err
}

type session struct{ tx pgx.Tx }

func (s *session) UpsertOrder(ctx context.Context, o orders.Order) error {
	st, err := sqlq.Postgres.UpsertOrder(o)
	if err != nil {
		return err
	}
	return exec(ctx, s.tx, st)
}

func (s *session) DeleteItems(ctx context.Context, orderID string) error {
	st, err := sqlq.Postgres.DeleteItems(orderID)
	if err != nil {
		return err
	}
	return exec(ctx, s.tx, st)
}

func (s *session) InsertItems(ctx context.Context, orderID string, items []orders.Item) error {
	stmts, err := sqlq.Postgres.InsertItems(orderID, items)
	if err != nil {
		return err
	}
	for _, st := range stmts {
		if err := exec(ctx, s.tx, st); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) Commit(ctx context.Context) error { return s.tx.Commit(ctx) }

func (s *session) Rollback(ctx context.Context) error {
	err := s.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// GetOrder reads the committed projection of one order. Header and items
// come from one repeatable-read snapshot, so a batch committing in between
// is seen entirely or not at all.
func (s *Store) GetOrder(ctx context.Context, orderID string) (orders.Order, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return orders.Order{}, fmt.Errorf("begin read: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()
	return readOrder(ctx, tx, orderID)
}

// querier is satisfied by pgx.Tx and pgxpool.Pool.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func readOrder(ctx context.Context, q querier, orderID string) (orders.Order, error) {
	st, err := sqlq.Postgres.SelectOrder(orderID)
	if err != nil {
		return orders.Order{}, err
	}
	var o orders.Order
	err = q.QueryRow(ctx, st.SQL, st.Args...).Scan(
		&o.ID, &o.FullName, &o.Email, &o.Phone, &o.PaymentMethod, &o.Total, &o.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, orders.ErrNotFound
	}
	if err != nil {
		return orders.Order{}, fmt.Errorf("select order: %w", err)
	}
	o.CreatedAt = o.CreatedAt.UTC()

	st, err = sqlq.Postgres.SelectItems(orderID)
	if err != nil {
		return orders.Order{}, err
	}
	rows, err := q.Query(ctx, st.SQL, st.Args...)
	if err != nil {
		return orders.Order{}, fmt.Errorf("select items: %w", err)
	}
	defer rows.Close()

	o.Items = []orders.Item{}
	for rows.Next() {
		var it orders.Item
		if err := rows.Scan(&it.ID, &it.Name, &it.Qty, &it.Price); err != nil {
			return orders.Order{}, fmt.Errorf("scan item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

var _ ingest.Store = (*Store)(nil)
