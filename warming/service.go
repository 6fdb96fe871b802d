// Package warming implements the Warming Subsystem (C9): a background
// predictor/scheduler that keeps the two-tier cache populated ahead of
// demand, routing every fetch through the same upstream client that
// foreground queries use so it shares the rate limiter and breaker rather
// than competing with them.
package warming

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"courtfabric/models"
)

// Config holds the warmer's tunable parameters.
type Config struct {
	ConcurrentWarmers int
	QueueSize         int
	OriginTimeout     time.Duration
	RetryAttempts     int
	BackoffBase       time.Duration
	DefaultStrategy   string
	PredictiveWindow  time.Duration
	PredictiveLimit   int

	// FullWarmupKeys is the fixed key set the daily cron job re-populates
	// unconditionally, independent of the predictor. Typically "clubs:{P}"
	// for each configured prefetch place ID.
	FullWarmupKeys []string
}

// DefaultConfig mirrors the documented defaults.
func DefaultConfig() Config {
	return Config{
		ConcurrentWarmers: 4,
		QueueSize:         256,
		OriginTimeout:     10 * time.Second,
		RetryAttempts:     3,
		BackoffBase:       100 * time.Millisecond,
		DefaultStrategy:   "priority",
		PredictiveWindow:  1 * time.Hour,
		PredictiveLimit:   100,
	}
}

// warmerMetrics tracks the warmer's task-processing counters.
type warmerMetrics struct {
	Queued    atomic.Int64
	Completed atomic.Int64
	Failed    atomic.Int64
}

// CompletionPublisher republishes a warming task's outcome. Backed by an
// encore.dev/pubsub topic in production; nil is a valid no-op value for
// tests that don't exercise the republish path.
type CompletionPublisher interface {
	Publish(ctx context.Context, event *WarmCompletedEvent)
}

// WarmCompletedEvent reports the outcome of one warming task.
type WarmCompletedEvent struct {
	Key        string    `json:"key"`
	Status     string    `json:"status"` // "success" or "failure"
	DurationMs int64     `json:"durationMs"`
	Strategy   string    `json:"strategy"`
	Timestamp  time.Time `json:"timestamp"`
}

// Warmer is the C9 Warming Subsystem's orchestrator.
type Warmer struct {
	cfg        Config
	strategies map[string]Strategy
	predictor  Predictor
	fetcher    Fetcher
	workerPool *WorkerPool
	metrics    warmerMetrics
	deduper    singleflight.Group
	completed  CompletionPublisher
}

// New wires a Warmer over fetcher. completed may be nil.
func New(cfg Config, fetcher Fetcher, predictor Predictor, completed CompletionPublisher) *Warmer {
	if cfg.ConcurrentWarmers <= 0 {
		cfg.ConcurrentWarmers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.OriginTimeout <= 0 {
		cfg.OriginTimeout = 10 * time.Second
	}
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = "priority"
	}

	w := &Warmer{
		cfg: cfg,
		strategies: map[string]Strategy{
			"selective": NewSelectiveHotKeysStrategy(),
			"priority":  NewPriorityBasedStrategy(),
		},
		predictor: predictor,
		fetcher:   fetcher,
		completed: completed,
	}
	w.workerPool = NewWorkerPool(w, cfg.ConcurrentWarmers, cfg.QueueSize)
	return w
}

// WarmKeys queues keys directly for warming, bypassing strategy planning.
// Used by the scheduler's full-population job, where every key is already
// known rather than predicted.
func (w *Warmer) WarmKeys(keys []string, priority int) int {
	tasks := make([]WarmTask, 0, len(keys))
	for _, key := range keys {
		tasks = append(tasks, WarmTask{Key: key, Priority: priority, TTL: w.cfg.OriginTimeout})
	}
	queued := w.workerPool.QueueTasks(tasks)
	w.metrics.Queued.Add(int64(queued))
	return queued
}

// WarmPattern plans and queues a warming run over a candidate key list
// using the named strategy (or the configured default).
func (w *Warmer) WarmPattern(ctx context.Context, keys []string, strategy string, priority, limit int) (int, error) {
	if strategy == "" {
		strategy = w.cfg.DefaultStrategy
	}
	s, ok := w.strategies[strategy]
	if !ok {
		return 0, fmt.Errorf("warming: unknown strategy %q", strategy)
	}

	tasks, err := s.Plan(ctx, PlanOptions{Keys: keys, Priority: priority, Limit: limit})
	if err != nil {
		return 0, fmt.Errorf("warming: plan failed: %w", err)
	}

	queued := w.workerPool.QueueTasks(tasks)
	w.metrics.Queued.Add(int64(queued))
	return queued, nil
}

// TriggerPredictive queues a warming run over the predictor's current top
// keys, using the priority strategy regardless of the configured default
// so predicted keys always warm ahead of anything else queued.
func (w *Warmer) TriggerPredictive(ctx context.Context) (int, error) {
	hotKeys, err := w.predictor.PredictHotKeys(ctx, w.cfg.PredictiveWindow, w.cfg.PredictiveLimit)
	if err != nil {
		return 0, fmt.Errorf("warming: prediction failed: %w", err)
	}
	if len(hotKeys) == 0 {
		return 0, nil
	}

	tasks, err := w.strategies["priority"].Plan(ctx, PlanOptions{Keys: hotKeys, Priority: 80})
	if err != nil {
		return 0, fmt.Errorf("warming: plan failed: %w", err)
	}

	queued := w.workerPool.QueueTasks(tasks)
	w.metrics.Queued.Add(int64(queued))
	return queued, nil
}

// RecordAccess forwards a cache key access (a read, or a republished
// invalidation) to the predictor.
func (w *Warmer) RecordAccess(key string) {
	w.predictor.RecordAccess(key)
}

// MetricsSnapshot returns the warmer's metrics surface.
func (w *Warmer) MetricsSnapshot() models.WarmingMetrics {
	trackedKeys := 0
	if dp, ok := w.predictor.(*DefaultPredictor); ok {
		trackedKeys = dp.Stats().TrackedKeys
	}
	return models.WarmingMetrics{
		Queued:               w.metrics.Queued.Load(),
		Active:               int64(w.workerPool.ActiveCount()),
		Completed:            w.metrics.Completed.Load(),
		Failed:               w.metrics.Failed.Load(),
		PredictorTrackedKeys: trackedKeys,
	}
}

// ExecuteWarmTask performs one attempt of a warming task: dedup, fetch
// through the shared upstream client, then publish the outcome. Called by
// the worker pool, which retries a failed task with backoff.
func (w *Warmer) ExecuteWarmTask(ctx context.Context, task WarmTask) error {
	start := time.Now()

	_, err, _ := w.deduper.Do(task.Key, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, w.cfg.OriginTimeout)
		defer cancel()
		return nil, w.fetcher.Warm(fetchCtx, task.Key)
	})

	duration := time.Since(start)
	status := "success"
	if err != nil {
		w.metrics.Failed.Add(1)
		status = "failure"
	} else {
		w.metrics.Completed.Add(1)
	}

	if w.completed != nil {
		w.completed.Publish(ctx, &WarmCompletedEvent{
			Key: task.Key, Status: status, DurationMs: duration.Milliseconds(),
			Strategy: task.Strategy, Timestamp: time.Now(),
		})
	}

	return err
}

// Shutdown stops the worker pool, letting in-flight tasks finish.
func (w *Warmer) Shutdown() {
	w.workerPool.Shutdown()
}
