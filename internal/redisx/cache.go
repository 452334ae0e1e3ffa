package redisx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ariefcatur/go-order-ingest/internal/orders"
	"github.com/redis/go-redis/v9"
)

const (
	// Cached projection: order:{order_id} -> {"v": version, "order": Order}
	KeyOrder = "order:%s"

	// Projection version: order_version:{order_id} -> counter bumped on every commit
	KeyOrderVersion = "order_version:%s"

	TTLOrder = 5 * time.Minute
	// versions must outlive every entry stamped with them.
	TTLOrderVersion = 24 * time.Hour
)

func OrderKey(id string) string        { return fmt.Sprintf(KeyOrder, id) }
func OrderVersionKey(id string) string { return fmt.Sprintf(KeyOrderVersion, id) }

// kv is the subset of redis.Cmdable the cache needs.
type kv interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

type entry struct {
	Version string       `json:"v"`
	Order   orders.Order `json:"order"`
}

// Cache is a read-through cache of projected orders. Redis is never the
// source of truth: every failure degrades to a miss.
//
// Every entry carries the order's version as it was before the store read.
// Invalidate bumps the version first, so an entry filled from a read that
// raced a commit no longer matches and is never served.
type Cache struct {
	rdb kv
	ttl time.Duration
}

func NewCache(rdb kv, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = TTLOrder
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

// GetOrder returns the cached order when its entry is current. The version
// is returned on a miss too; pass it to SetOrder after reading the store.
func (c *Cache) GetOrder(ctx context.Context, id string) (orders.Order, string, bool) {
	vals, err := c.rdb.MGet(ctx, OrderKey(id), OrderVersionKey(id)).Result()
	if err != nil {
		slog.Warn("Order cache read failed", "order_id", id, "error", err)
		return orders.Order{}, "", false
	}
	if len(vals) != 2 {
		return orders.Order{}, "", false
	}
	version, _ := vals[1].(string)

	raw, ok := vals[0].(string)
	if !ok {
		return orders.Order{}, version, false
	}
	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		slog.Warn("Dropping unreadable cached order", "order_id", id, "error", err)
		_ = c.rdb.Del(ctx, OrderKey(id)).Err()
		return orders.Order{}, version, false
	}
	if e.Version != version {
		return orders.Order{}, version, false
	}
	return e.Order, version, true
}

// SetOrder caches o stamped with version, the value GetOrder returned
// before the store read.
func (c *Cache) SetOrder(ctx context.Context, o orders.Order, version string) {
	b, err := json.Marshal(entry{Version: version, Order: o})
	if err != nil {
		slog.Warn("Order cache encode failed", "order_id", o.ID, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, OrderKey(o.ID), b, c.ttl).Err(); err != nil {
		slog.Warn("Order cache write failed", "order_id", o.ID, "error", err)
	}
}

// Invalidate retires cached projections of ids. It has the shape of a batch
// commit hook.
func (c *Cache) Invalidate(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = OrderKey(id)
		vk := OrderVersionKey(id)
		if err := c.rdb.Incr(ctx, vk).Err(); err != nil {
			slog.Warn("Order version bump failed", "order_id", id, "error", err)
			continue
		}
		_ = c.rdb.Expire(ctx, vk, TTLOrderVersion).Err()
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		// entries whose version was bumped are already unreachable.
		slog.Warn("Order cache invalidation failed", "orders", len(keys), "error", err)
	}
}
