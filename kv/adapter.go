// Package kv implements the thin transport over the external key/value
// service (Redis) that every higher layer treats as the source of cached
// truth. Every operation here is total: backend failures degrade into
// absent/false and a counted error, never a propagated exception, so that
// cache misses and outages look identical to callers above C2.
package kv

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// client is the subset of *redis.Client this package depends on, narrowed
// so tests can substitute a fake without standing up a real server.
type client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	FlushDB(ctx context.Context) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Close() error
}

// Config holds the KV adapter's connection parameters.
type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// DefaultConfig mirrors the documented defaults.
func DefaultConfig() Config {
	return Config{Host: "localhost", Port: "6379", Password: "", DB: 0}
}

// Metrics tracks the adapter's operation counters.
type Metrics struct {
	Hits       atomic.Int64
	Misses     atomic.Int64
	Errors     atomic.Int64
	Operations atomic.Int64
}

// Adapter is the C1 KV Store Adapter.
type Adapter struct {
	cli     client
	metrics Metrics

	mu          sync.RWMutex
	healthy     bool
	reconnectAt time.Time
	attempt     int
}

const (
	maxReconnectAttempts = 5
	baseBackoff          = 1 * time.Second
)

// New dials Redis per cfg and starts a background liveness ping.
func New(cfg Config) *Adapter {
	cli := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	a := &Adapter{cli: cli, healthy: true}
	go a.livenessLoop()
	return a
}

// newWithClient is used by tests to inject a fake client.
func newWithClient(c client) *Adapter {
	return &Adapter{cli: c, healthy: true}
}

func (a *Adapter) livenessLoop() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		a.ping()
	}
}

func (a *Adapter) ping() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := a.cli.Ping(ctx).Err()

	a.mu.Lock()
	defer a.mu.Unlock()

	if err == nil {
		a.healthy = true
		a.attempt = 0
		return
	}

	if time.Now().Before(a.reconnectAt) {
		return
	}

	a.healthy = false
	if a.attempt < maxReconnectAttempts {
		a.attempt++
		backoff := baseBackoff << uint(a.attempt-1)
		a.reconnectAt = time.Now().Add(backoff)
	} else {
		// Cooled off: stop hammering, wait a full cycle before trying again.
		a.reconnectAt = time.Now().Add(30 * time.Second)
		a.attempt = 0
	}
}

// Healthy reflects the last observed liveness ping.
func (a *Adapter) Healthy() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.healthy
}

// Get returns the value for key, or ok=false if absent or on error.
func (a *Adapter) Get(ctx context.Context, key string) ([]byte, bool, error) {
	a.metrics.Operations.Add(1)

	val, err := a.cli.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		a.metrics.Misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		a.metrics.Errors.Add(1)
		return nil, false, nil
	}

	a.metrics.Hits.Add(1)
	return val, true, nil
}

// Set writes value under key with the given TTL. TTL of 0 means no expiry.
func (a *Adapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	a.metrics.Operations.Add(1)

	if err := a.cli.Set(ctx, key, value, ttl).Err(); err != nil {
		a.metrics.Errors.Add(1)
		return nil
	}
	return nil
}

// MGet fetches keys in order, returning nil for any absent or errored entry.
func (a *Adapter) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	a.metrics.Operations.Add(1)

	raw, err := a.cli.MGet(ctx, keys...).Result()
	if err != nil {
		a.metrics.Errors.Add(1)
		return make([][]byte, len(keys)), nil
	}

	out := make([][]byte, len(keys))
	for i, v := range raw {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[i] = []byte(s)
		a.metrics.Hits.Add(1)
	}
	return out, nil
}

// MSet writes every key/value pair with the given TTL.
func (a *Adapter) MSet(ctx context.Context, values map[string][]byte, ttl time.Duration) error {
	for k, v := range values {
		if err := a.Set(ctx, k, v, ttl); err != nil {
			return err
		}
	}
	return nil
}

// Del removes key. Absence is not an error.
func (a *Adapter) Del(ctx context.Context, key string) error {
	a.metrics.Operations.Add(1)
	if err := a.cli.Del(ctx, key).Err(); err != nil {
		a.metrics.Errors.Add(1)
	}
	return nil
}

// Flush clears the entire database. Unlike the other operations, it returns
// the backend's error instead of absorbing it.
func (a *Adapter) Flush(ctx context.Context) error {
	return a.cli.FlushDB(ctx).Err()
}

// Keys performs a non-blocking SCAN for pattern, never the blocking KEYS
// command — invalidation sweeps must not stall the keyspace under load.
func (a *Adapter) Keys(ctx context.Context, pattern string) ([]string, error) {
	a.metrics.Operations.Add(1)

	var (
		cursor uint64
		found  []string
	)
	for {
		keys, next, err := a.cli.Scan(ctx, cursor, pattern, 256).Result()
		if err != nil {
			a.metrics.Errors.Add(1)
			return found, nil
		}
		found = append(found, keys...)
		if next == 0 {
			break
		}
		cursor = next
	}
	return found, nil
}

// Snapshot returns the current operation counters.
func (a *Adapter) Snapshot() (hits, misses, errs, ops int64) {
	return a.metrics.Hits.Load(), a.metrics.Misses.Load(), a.metrics.Errors.Load(), a.metrics.Operations.Load()
}

// Close releases the underlying connection.
func (a *Adapter) Close() error {
	return a.cli.Close()
}
