package ingest

import (
	"context"

	"github.com/ariefcatur/go-order-ingest/internal/orders"
)

// Writer applies one resolved order to an open session: header upsert,
// then delete-and-insert of the whole item set. It never diffs items.
type Writer struct{}

func (Writer) Apply(ctx context.Context, w Writes, o orders.Order) error {
	if err := w.UpsertOrder(ctx, o); err != nil {
		return &WriteError{Index: -1, OrderID: o.ID, Step: StepUpsertOrder, Err: err}
	}
	if err := w.DeleteItems(ctx, o.ID); err != nil {
		return &WriteError{Index: -1, OrderID: o.ID, Step: StepDeleteItems, Err: err}
	}
	if len(o.Items) == 0 {
		return nil
	}
	if err := w.InsertItems(ctx, o.ID, o.Items); err != nil {
		return &WriteError{Index: -1, OrderID: o.ID, Step: StepInsertItems, Err: err}
	}
	return nil
}
