// Package coalesce implements the C5 Request Coalescer: at-most-one
// in-flight fetch per cache key, shared by every concurrent caller, plus a
// bounded ordered fan-out helper used by the planner.
package coalesce

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// Coalescer de-duplicates concurrent fetches sharing a key. It is a thin
// wrapper over singleflight.Group — the same primitive the warming
// subsystem uses for its own deduplication — rather than a hand-rolled
// in-flight map, since the semantics (one fetch, many waiters, shared
// outcome) are exactly singleflight's contract.
type Coalescer struct {
	g singleflight.Group
}

// New constructs an empty Coalescer.
func New() *Coalescer {
	return &Coalescer{}
}

// Fetch is the operation coalesced under a key.
type Fetch func(ctx context.Context) (interface{}, error)

// ExecuteBatched runs fetch for key if no fetch is already in flight for
// it; otherwise it waits for and returns the in-flight call's result. The
// fetch itself runs under a background context so that one caller
// cancelling does not interrupt other waiters sharing the same call.
func (c *Coalescer) ExecuteBatched(ctx context.Context, key string, fetch Fetch) (interface{}, error) {
	resultCh := c.g.DoChan(key, func() (interface{}, error) {
		return fetch(context.Background())
	})

	select {
	case res := <-resultCh:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Forget removes key from the in-flight map without affecting any call
// already running under it, so the next call for key starts a new fetch.
func (c *Coalescer) Forget(key string) {
	c.g.Forget(key)
}
