// Package sqlq builds the projection statements for the logical schema
// order_events(order_id PK, ...) / order_items(order_id, item_id, ...).
package sqlq

import (
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/ariefcatur/go-order-ingest/internal/orders"
)

const (
	TableOrders = "order_events"
	TableItems  = "order_items"

	// itemsPerInsert keeps a bulk insert well under driver parameter limits.
	itemsPerInsert = 500
)

var orderColumns = []string{
	"order_id",
	"customer_full_name",
	"email",
	"phone",
	"payment_method",
	"total",
	"created_at_utc",
}

var itemColumns = []string{"order_id", "item_id", "name", "qty", "price"}

// created_at_utc is absent on purpose: it is only written by the insert branch.
const upsertSuffix = `ON CONFLICT (order_id) DO UPDATE SET
	customer_full_name = excluded.customer_full_name,
	email = excluded.email,
	phone = excluded.phone,
	payment_method = excluded.payment_method,
	total = excluded.total`

// Dialect adapts placeholders and timestamp encoding to one driver.
type Dialect struct {
	sb   sq.StatementBuilderType
	time func(time.Time) any
	// ParseTime decodes created_at_utc as the driver returns it.
	ParseTime func(v any) (time.Time, error)
}

// Postgres passes timestamps natively (timestamptz).
var Postgres = Dialect{
	sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	time: func(t time.Time) any { return t.UTC() },
	ParseTime: func(v any) (time.Time, error) {
		t, ok := v.(time.Time)
		if !ok {
			return time.Time{}, fmt.Errorf("created_at_utc: unexpected %T", v)
		}
		return t.UTC(), nil
	},
}

const sqliteTimeFormat = time.RFC3339Nano

// SQLite stores timestamps as RFC 3339 text.
var SQLite = Dialect{
	sb:   sq.StatementBuilder.PlaceholderFormat(sq.Question),
	time: func(t time.Time) any { return t.UTC().Format(sqliteTimeFormat) },
	ParseTime: func(v any) (time.Time, error) {
		switch x := v.(type) {
		case string:
			return time.Parse(sqliteTimeFormat, x)
		case []byte:
			return time.Parse(sqliteTimeFormat, string(x))
		case time.Time:
			return x.UTC(), nil
		default:
			return time.Time{}, fmt.Errorf("created_at_utc: unexpected %T", v)
		}
	},
}

// Stmt is one ready-to-execute statement.
type Stmt struct {
	SQL  string
	Args []any
}

// UpsertOrder inserts the header or updates all columns but created_at_utc.
func (d Dialect) UpsertOrder(o orders.Order) (Stmt, error) {
	query, args, err := d.sb.Insert(TableOrders).
		Columns(orderColumns...).
		Values(
			o.ID,
			o.FullName,
			nullable(o.Email),
			nullable(o.Phone),
			o.PaymentMethod,
			o.Total.String(),
			d.time(o.CreatedAt),
		).
		Suffix(upsertSuffix).
		ToSql()
	if err != nil {
		return Stmt{}, fmt.Errorf("build order upsert: %w", err)
	}
	return Stmt{SQL: query, Args: args}, nil
}

// DeleteItems removes every item row of orderID.
func (d Dialect) DeleteItems(orderID string) (Stmt, error) {
	query, args, err := d.sb.Delete(TableItems).Where(sq.Eq{"order_id": orderID}).ToSql()
	if err != nil {
		return Stmt{}, fmt.Errorf("build items delete: %w", err)
	}
	return Stmt{SQL: query, Args: args}, nil
}

// InsertItems bulk-inserts items, split into chunks of itemsPerInsert rows.
func (d Dialect) InsertItems(orderID string, items []orders.Item) ([]Stmt, error) {
	stmts := make([]Stmt, 0, len(items)/itemsPerInsert+1)
	for start := 0; start < len(items); start += itemsPerInsert {
		end := min(start+itemsPerInsert, len(items))

		builder := d.sb.Insert(TableItems).Columns(itemColumns...)
		for _, it := range items[start:end] {
			builder = builder.Values(orderID, it.ID, it.Name, it.Qty, it.Price.String())
		}
		query, args, err := builder.ToSql()
		if err != nil {
			return nil, fmt.Errorf("build items insert: %w", err)
		}
		stmts = append(stmts, Stmt{SQL: query, Args: args})
	}
	return stmts, nil
}

// SelectOrder reads one header row; scan order follows orderColumns.
func (d Dialect) SelectOrder(orderID string) (Stmt, error) {
	query, args, err := d.sb.Select(orderColumns...).
		From(TableOrders).
		Where(sq.Eq{"order_id": orderID}).
		ToSql()
	if err != nil {
		return Stmt{}, fmt.Errorf("build order select: %w", err)
	}
	return Stmt{SQL: query, Args: args}, nil
}

// SelectItems reads the item set of one order ordered by item id.
func (d Dialect) SelectItems(orderID string) (Stmt, error) {
	query, args, err := d.sb.Select("item_id", "name", "qty", "price").
		From(TableItems).
		Where(sq.Eq{"order_id": orderID}).
		OrderBy("item_id").
		ToSql()
	if err != nil {
		return Stmt{}, fmt.Errorf("build items select: %w", err)
	}
	return Stmt{SQL: query, Args: args}, nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
