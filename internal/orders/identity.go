package orders

import (
	"log/slog"

	"github.com/google/uuid"
)

// Resolver guarantees every Order leaving it carries an identity key.
//
// An id supplied by the producer is kept as is, which is what makes
// redelivery idempotent. When the event has none, the default is to mint a
// random one; a redelivered id-less event then projects a second order.
// RequireIdentity turns that case into a DecodeError instead.
type Resolver struct {
	RequireIdentity bool
	NewID           func() string
}

func NewResolver(requireIdentity bool) *Resolver {
	return &Resolver{RequireIdentity: requireIdentity, NewID: uuid.NewString}
}

func (r *Resolver) Resolve(o Order) (Order, error) {
	if o.ID != "" {
		return o, nil
	}
	if r.RequireIdentity {
		return Order{}, &DecodeError{Index: -1, Err: ErrMissingIdentity}
	}
	newID := r.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	o.ID = newID()
	slog.Warn("Order event carried no id, minted one; redelivery will not be idempotent", "order_id", o.ID)
	return o, nil
}
