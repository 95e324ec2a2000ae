package purchaseorders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultCacheTTL = 60 * time.Second

// Cache stores matching projections in redis under a per-owner version.
// Invalidation bumps the version instead of scanning keys, so stale
// projections simply age out of redis via their TTL.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

func (c *Cache) version(ctx context.Context, ownerID int64) int64 {
	v, err := c.rdb.Get(ctx, fmt.Sprintf("pomatch:ver:%d", ownerID)).Int64()
	if err != nil {
		return 0
	}
	return v
}

func (c *Cache) key(ctx context.Context, ownerID, billID int64) string {
	return fmt.Sprintf("pomatch:%d:%d:%d", ownerID, c.version(ctx, ownerID), billID)
}

// Get returns the cached projection for a bill, if present.
func (c *Cache) Get(ctx context.Context, ownerID, billID int64) (BillMatch, bool) {
	if c == nil {
		return BillMatch{}, false
	}
	raw, err := c.rdb.Get(ctx, c.key(ctx, ownerID, billID)).Bytes()
	if err != nil {
		return BillMatch{}, false
	}
	var match BillMatch
	if err := json.Unmarshal(raw, &match); err != nil {
		return BillMatch{}, false
	}
	return match, true
}

// Set caches the projection for a bill. Cache failures are invisible to
// callers; the projection is recomputable.
func (c *Cache) Set(ctx context.Context, ownerID int64, match BillMatch) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(match)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, c.key(ctx, ownerID, match.BillID), raw, c.ttl).Err()
}

// Invalidate drops every cached projection for an owner by bumping the
// owner's version counter.
func (c *Cache) Invalidate(ctx context.Context, ownerID int64) {
	if c == nil {
		return
	}
	_ = c.rdb.Incr(ctx, fmt.Sprintf("pomatch:ver:%d", ownerID)).Err()
}
