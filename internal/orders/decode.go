package orders

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// wire shapes; encoding/json matches keys case-insensitively.
type wireOrder struct {
	ID            *string          `json:"id"`
	FullName      *string          `json:"fullName"`
	Email         *string          `json:"email"`
	Phone         *string          `json:"phone"`
	PaymentMethod *string          `json:"paymentMethod"`
	Total         *decimal.Decimal `json:"total"`
	CreatedAt     *timestamp       `json:"createdAt"`
	Items         []*wireItem      `json:"items"`
}

type wireItem struct {
	ID    int64           `json:"id"`
	Name  *string         `json:"name"`
	Qty   int             `json:"qty"`
	Price decimal.Decimal `json:"price"`
}

// timestamp accepts RFC 3339 and offset-less ISO-8601 (read as UTC).
type timestamp struct{ time.Time }

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func (t *timestamp) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("createdAt: expected ISO-8601 string: %w", err)
	}
	for _, layout := range timestampLayouts {
		if v, err := time.Parse(layout, s); err == nil {
			t.Time = v
			return nil
		}
	}
	return fmt.Errorf("createdAt: unrecognised timestamp %q", s)
}

// Decoder turns one raw event payload into an Order. It has no side effects.
type Decoder struct {
	// Now stamps createdAt when the event carries none. Defaults to time.Now.
	Now func() time.Time
}

func NewDecoder() *Decoder { return &Decoder{Now: time.Now} }

// Decode parses payload. Failures are *DecodeError with Index -1; the
// batch coordinator fills in the position. The returned Order may still
// have an empty ID.
func (d *Decoder) Decode(payload []byte) (Order, error) {
	o, err := d.decode(payload)
	if err != nil {
		return Order{}, &DecodeError{Index: -1, Err: err}
	}
	return o, nil
}

func (d *Decoder) decode(payload []byte) (Order, error) {
	payload = bytes.TrimPrefix(payload, utf8BOM)
	if !utf8.Valid(payload) {
		return Order{}, errors.New("payload is not valid UTF-8")
	}
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Order{}, errors.New("payload is not a JSON object")
	}

	var w wireOrder
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return Order{}, err
	}

	o := Order{
		ID:            strings.TrimSpace(deref(w.ID)),
		FullName:      deref(w.FullName),
		Email:         w.Email,
		Phone:         w.Phone,
		PaymentMethod: DefaultPaymentMethod,
		Items:         make([]Item, 0, len(w.Items)),
	}
	// only an absent or null method is defaulted; "" is kept as sent.
	if w.PaymentMethod != nil {
		o.PaymentMethod = *w.PaymentMethod
	}
	if w.Total != nil {
		o.Total = *w.Total
	}
	if w.CreatedAt != nil && !w.CreatedAt.IsZero() {
		o.CreatedAt = w.CreatedAt.UTC()
	} else {
		o.CreatedAt = d.now().UTC()
	}

	for i, it := range w.Items {
		if it == nil {
			return Order{}, fmt.Errorf("items[%d] is null", i)
		}
		o.Items = append(o.Items, Item{
			ID:    it.ID,
			Name:  deref(it.Name),
			Qty:   it.Qty,
			Price: it.Price,
		})
	}
	return o, nil
}

func (d *Decoder) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
