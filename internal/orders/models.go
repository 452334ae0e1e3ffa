package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultPaymentMethod is stored when an event omits paymentMethod.
const DefaultPaymentMethod = "card"

// Order is the current state of one customer order as carried by a single event.
type Order struct {
	ID            string          `json:"id"`
	FullName      string          `json:"fullName"`
	Email         *string         `json:"email"` // nil -> NULL
	Phone         *string         `json:"phone"` // nil -> NULL
	PaymentMethod string          `json:"paymentMethod"`
	Total         decimal.Decimal `json:"total"`
	CreatedAt     time.Time       `json:"createdAt"` // only written on first insert
	Items         []Item          `json:"items"`     // full replacement set, never a delta
}

// Item is one line item, unique by ID within its order.
type Item struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Qty   int             `json:"qty"`
	Price decimal.Decimal `json:"price"`
}
