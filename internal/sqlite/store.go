// Package sqlite is an embedded projection sink for local runs, one-off
// batch application and SQL-level tests.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ariefcatur/go-order-ingest/internal/ingest"
	"github.com/ariefcatur/go-order-ingest/internal/orders"
	"github.com/ariefcatur/go-order-ingest/internal/sqlq"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Store provides a SQLite-backed projection sink.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite allows one writer; a single connection serialises batches.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Bootstrap creates the projection tables when missing.
func (s *Store) Bootstrap(ctx context.Context) error {
	if _, err := s.sqlDB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("bootstrap schema: %w", err)
	}
	return nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error { return s.sqlDB.PingContext(ctx) }

func (s *Store) Begin(ctx context.Context) (ingest.Session, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &session{tx: tx}, nil
}

type session struct{ tx *sql.Tx }

func (s *session) exec(ctx context.Context, st sqlq.Stmt) error {
	_, err := s.tx.ExecContext(ctx, st.SQL, st.Args...)
	return err
}

func (s *session) UpsertOrder(ctx context.Context, o orders.Order) error {
	st, err := sqlq.SQLite.UpsertOrder(o)
	if err != nil {
		return err
	}
	return s.exec(ctx, st)
}

func (s *session) DeleteItems(ctx context.Context, orderID string) error {
	st, err := sqlq.SQLite.DeleteItems(orderID)
	if err != nil {
		return err
	}
	return s.exec(ctx, st)
}

func (s *session) InsertItems(ctx context.Context, orderID string, items []orders.Item) error {
	stmts, err := sqlq.SQLite.InsertItems(orderID, items)
	if err != nil {
		return err
	}
	for _, st := range stmts {
		if err := s.exec(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

func (s *session) Commit(context.Context) error { return s.tx.Commit() }

func (s *session) Rollback(context.Context) error {
	err := s.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// GetOrder reads the committed projection of one order. Header and items
// are read inside one transaction so they come from the same snapshot.
func (s *Store) GetOrder(ctx context.Context, orderID string) (orders.Order, error) {
	tx, err := s.sqlDB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return orders.Order{}, fmt.Errorf("begin read: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	st, err := sqlq.SQLite.SelectOrder(orderID)
	if err != nil {
		return orders.Order{}, err
	}

	var (
		o       orders.Order
		email   sql.NullString
		phone   sql.NullString
		created any
	)
	err = tx.QueryRowContext(ctx, st.SQL, st.Args...).Scan(
		&o.ID, &o.FullName, &email, &phone, &o.PaymentMethod, &o.Total, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return orders.Order{}, orders.ErrNotFound
	}
	if err != nil {
		return orders.Order{}, fmt.Errorf("select order: %w", err)
	}
	if email.Valid {
		o.Email = &email.String
	}
	if phone.Valid {
		o.Phone = &phone.String
	}
	if o.CreatedAt, err = sqlq.SQLite.ParseTime(created); err != nil {
		return orders.Order{}, err
	}

	st, err = sqlq.SQLite.SelectItems(orderID)
	if err != nil {
		return orders.Order{}, err
	}
	rows, err := tx.QueryContext(ctx, st.SQL, st.Args...)
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
