package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/ariefcatur/go-order-ingest/internal/orders"
	"github.com/shopspring/decimal"
)

type fakeReader struct {
	orders map[string]orders.Order
	err    error
	calls  int
	// during runs inside the store read, after the snapshot was taken.
	during func()
}

func (f *fakeReader) GetOrder(_ context.Context, id string) (orders.Order, error) {
	f.calls++
	if f.during != nil {
		defer f.during()
	}
	if f.err != nil {
		return orders.Order{}, f.err
	}
	o, ok := f.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return o, nil
}

type cachedOrder struct {
	order   orders.Order
	version int
}

// fakeCache mirrors the versioned cache: an entry is served only while its
// version is current.
type fakeCache struct {
	entries  map[string]cachedOrder
	versions map[string]int
	sets     int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]cachedOrder{}, versions: map[string]int{}}
}

func (f *fakeCache) GetOrder(_ context.Context, id string) (orders.Order, string, bool) {
	v := f.versions[id]
	e, ok := f.entries[id]
	if !ok || e.version != v {
		return orders.Order{}, strconv.Itoa(v), false
	}
	return e.order, strconv.Itoa(v), true
}

func (f *fakeCache) SetOrder(_ context.Context, o orders.Order, version string) {
	f.sets++
	v, _ := strconv.Atoi(version)
	f.entries[o.ID] = cachedOrder{order: o, version: v}
}

func (f *fakeCache) invalidate(id string) {
	f.versions[id]++
	delete(f.entries, id)
}

func newTestServer(h *OrdersHandler, checks map[string]Check) *httptest.Server {
	r := NewRouter(checks)
	h.Register(r)
	return httptest.NewServer(r)
}

func get(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp, body
}

func TestGetOrderReadsThroughCache(t *testing.T) {
	reader := &fakeReader{orders: map[string]orders.Order{
		"A": {ID: "A", PaymentMethod: "card", Total: decimal.NewFromInt(12), Items: []orders.Item{}},
	}}
	cache := newFakeCache()
	srv := newTestServer(&OrdersHandler{Reader: reader, Cache: cache}, nil)
	defer srv.Close()

	resp, body := get(t, srv.URL+"/orders/A")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["id"] != "A" || body["total"] != "12" {
		t.Fatalf("body = %v", body)
	}
	if cache.sets != 1 {
		t.Fatalf("cache sets = %d, want 1", cache.sets)
	}

	resp, _ = get(t, srv.URL+"/orders/A")
	if resp.StatusCode != http.StatusOK || reader.calls != 1 {
		t.Fatalf("second read should be served from cache, reader calls = %d", reader.calls)
	}
}

func TestGetOrderDoesNotServeFillThatRacedCommit(t *testing.T) {
	reader := &fakeReader{orders: map[string]orders.Order{
		"A": {ID: "A", Total: decimal.NewFromInt(10), Items: []orders.Item{}},
	}}
	cache := newFakeCache()
	// a batch commits while the first request is reading the store.
	reader.during = func() {
		reader.orders["A"] = orders.Order{ID: "A", Total: decimal.NewFromInt(12), Items: []orders.Item{}}
		cache.invalidate("A")
		reader.during = nil
	}
	srv := newTestServer(&OrdersHandler{Reader: reader, Cache: cache}, nil)
	defer srv.Close()

	_, body := get(t, srv.URL+"/orders/A")
	if body["total"] != "10" {
		t.Fatalf("first read = %v", body)
	}

	_, body = get(t, srv.URL+"/orders/A")
	if body["total"] != "12" {
		t.Fatalf("second read served the pre-commit fill: %v", body)
	}
	if reader.calls != 2 {
		t.Fatalf("reader calls = %d, want 2", reader.calls)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	srv := newTestServer(&OrdersHandler{Reader: &fakeReader{}}, nil)
	defer srv.Close()

	resp, body := get(t, srv.URL+"/orders/missing")
	if resp.StatusCode != http.StatusNotFound || body["error"] != "not found" {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}
}

func TestGetOrderStoreFailure(t *testing.T) {
	srv := newTestServer(&OrdersHandler{Reader: &fakeReader{err: errors.New("db down")}}, nil)
	defer srv.Close()

	resp, _ := get(t, srv.URL+"/orders/A")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestReadiness(t *testing.T) {
	healthy := map[string]Check{"store": func(context.Context) error { return nil }}
	srv := newTestServer(&OrdersHandler{Reader: &fakeReader{}}, healthy)
	resp, body := get(t, srv.URL+"/readyz")
	srv.Close()
	if resp.StatusCode != http.StatusOK || body["status"] != "ready" {
		t.Fatalf("status = %d body = %v", resp.StatusCode, body)
	}

	failing := map[string]Check{
		"store": func(context.Context) error { return nil },
		"cache": func(context.Context) error { return errors.New("dial tcp: refused") },
	}
	srv = newTestServer(&OrdersHandler{Reader: &fakeReader{}}, failing)
	defer srv.Close()
	resp, body = get(t, srv.URL+"/readyz")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	failed, _ := body["failed"].(map[string]any)
	if _, ok := failed["cache"]; !ok || len(failed) != 1 {
		t.Fatalf("failed = %v", body["failed"])
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(&OrdersHandler{Reader: &fakeReader{}}, nil)
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
