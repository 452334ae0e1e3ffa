package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ariefcatur/go-order-ingest/internal/orders"
	"github.com/go-chi/chi/v5"
)

// OrderReader loads a projected order; a missing one is orders.ErrNotFound.
type OrderReader interface {
	GetOrder(ctx context.Context, orderID string) (orders.Order, error)
}

// OrderCache returns the entry version on a miss; a fill stamped with a
// version that has since moved on is never served.
type OrderCache interface {
	GetOrder(ctx context.Context, orderID string) (orders.Order, string, bool)
	SetOrder(ctx context.Context, o orders.Order, version string)
}

type OrdersHandler struct {
	Reader OrderReader
	Cache  OrderCache // optional
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/orders/{id}", h.getOrder)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) cache
	var version string
	if h.Cache != nil {
		cached, v, ok := h.Cache.GetOrder(ctx, orderID)
		if ok {
			writeJSON(w, http.StatusOK, cached)
			return
		}
		version = v
	}

	// 2) projection store
	o, err := h.Reader.GetOrder(ctx, orderID)
	if errors.Is(err, orders.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if err != nil {
		slog.Error("Failed to read order", "order_id", orderID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	if h.Cache != nil {
		h.Cache.SetOrder(ctx, o, version)
	}
	writeJSON(w, http.StatusOK, o)
}
