package ingest

import (
	"context"
	"reflect"
	"testing"

	"github.com/ariefcatur/go-order-ingest/internal/orders"
)

type recordingWrites struct{ calls []string }

func (r *recordingWrites) UpsertOrder(_ context.Context, o orders.Order) error {
	r.calls = append(r.calls, "upsert:"+o.ID)
	return nil
}

func (r *recordingWrites) DeleteItems(_ context.Context, id string) error {
	r.calls = append(r.calls, "delete:"+id)
	return nil
}

func (r *recordingWrites) InsertItems(_ context.Context, id string, items []orders.Item) error {
	r.calls = append(r.calls, "insert:"+id)
	return nil
}

func TestWriterApplyOrder(t *testing.T) {
	tests := []struct {
		name  string
		order orders.Order
		want  []string
	}{
		{
			name:  "with items",
			order: orders.Order{ID: "A", Items: []orders.Item{{ID: 1}}},
			want:  []string{"upsert:A", "delete:A", "insert:A"},
		},
		{
			name:  "zero items still clears",
			order: orders.Order{ID: "B"},
			want:  []string{"upsert:B", "delete:B"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingWrites{}
			if err := (Writer{}).Apply(context.Background(), rec, tt.order); err != nil {
				t.Fatalf("apply: %v", err)
			}
			if !reflect.DeepEqual(rec.calls, tt.want) {
				t.Fatalf("calls = %v, want %v", rec.calls, tt.want)
			}
		})
	}
}
