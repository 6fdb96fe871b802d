// Package cache implements the two-tier key/value cache (C2): a fresh tier
// with a type-driven TTL and a stale mirror that outlives it, so that a
// caller who explicitly asks for fallback can still get something useful
// after the fresh entry has expired.
package cache

import (
	"context"
	"sync/atomic"
	"time"

	"courtfabric/models"
	"courtfabric/utils"
)

// Store is the subset of the KV adapter this package depends on. It
// matches kv.Adapter's method set exactly, so a *kv.Adapter satisfies it
// without any adaptation.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
	Healthy() bool
}

// Result is the outcome of GetWithFallback.
type Result struct {
	Data    []byte
	IsStale bool
}

// Cache is the C2 Two-Tier Cache.
type Cache struct {
	kv     Store
	hits   atomic.Int64
	misses atomic.Int64
	errs   atomic.Int64
	ops    atomic.Int64
}

// New constructs a Cache over kv.
func New(kv Store) *Cache {
	return &Cache{kv: kv}
}

// GetWithFallback returns the fresh entry if present; else the stale entry
// if staleKey is non-empty and present; else a nil result. KV errors are
// already absorbed by the Store into absent, so this never returns an
// error.
func (c *Cache) GetWithFallback(ctx context.Context, freshKey, staleKey string) Result {
	c.ops.Add(1)

	if data, ok, _ := c.kv.Get(ctx, freshKey); ok {
		c.hits.Add(1)
		return Result{Data: data, IsStale: false}
	}

	if staleKey != "" {
		if data, ok, _ := c.kv.Get(ctx, staleKey); ok {
			c.hits.Add(1)
			return Result{Data: data, IsStale: true}
		}
	}

	c.misses.Add(1)
	return Result{}
}

// SetWithIntelligentTTL serializes data, writes it to freshKey with the TTL
// for typ, and — iff staleKey is non-empty — writes the same payload to
// staleKey with StaleTTL.
func (c *Cache) SetWithIntelligentTTL(ctx context.Context, freshKey string, data interface{}, typ Type, staleKey string) error {
	payload, err := utils.Marshal(data)
	if err != nil {
		c.errs.Add(1)
		return err
	}

	c.ops.Add(1)
	if err := c.kv.Set(ctx, freshKey, payload, TTL(typ)); err != nil {
		c.errs.Add(1)
	}

	if staleKey != "" {
		c.ops.Add(1)
		if err := c.kv.Set(ctx, staleKey, payload, StaleTTL); err != nil {
			c.errs.Add(1)
		}
	}

	return nil
}

// InvalidateByPattern deletes every key matching pattern, discovered via a
// non-blocking SCAN. A pattern with no matches is a no-op. SCAN's MATCH
// argument is the backing store's own glob dialect; keys is re-filtered
// locally against this package's pattern semantics before any delete is
// issued, so a sweep (destructive and hard to undo) never removes a key
// the caller's pattern wouldn't also match under this fabric's own rules.
func (c *Cache) InvalidateByPattern(ctx context.Context, pattern string) (int, error) {
	keys, err := c.kv.Keys(ctx, pattern)
	if err != nil {
		c.errs.Add(1)
		return 0, err
	}
	keys, err = utils.FilterKeys(pattern, keys)
	if err != nil {
		c.errs.Add(1)
		return 0, err
	}

	deleted := 0
	for _, k := range keys {
		c.ops.Add(1)
		if err := c.kv.Del(ctx, k); err == nil {
			deleted++
		} else {
			c.errs.Add(1)
		}
	}
	return deleted, nil
}

// Invalidate deletes a single fresh key, leaving its stale mirror intact by
// design.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	c.ops.Add(1)
	if err := c.kv.Del(ctx, key); err != nil {
		c.errs.Add(1)
		return err
	}
	return nil
}

// Decode unmarshals data into v, returning an error for a malformed
// payload. The upstream client's cache readers treat that error as a miss.
func Decode(data []byte, v interface{}) error {
	return utils.Unmarshal(data, v)
}

// Metrics returns the cache's operation counters and hit rate.
func (c *Cache) Metrics() models.CacheMetrics {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return models.CacheMetrics{
		Hits:       uint64(hits),
		Misses:     uint64(misses),
		Errors:     uint64(c.errs.Load()),
		Operations: uint64(c.ops.Load()),
		HitRate:    hitRate,
		Connected:  c.kv.Healthy(),
	}
}
