// Package breaker implements the C4 Circuit Breaker: a three-state guard
// in front of the upstream client that trips open after a run of failures
// and, once the open timeout has elapsed, lets trial calls through until
// SuccessThreshold of them succeed. HALF_OPEN does not limit how many trial
// calls run at the same time: every call that arrives in that state runs
// the primary.
//
// The state machine here has no equivalent in the reference system (it has
// no breaker of its own); it follows the same shape as that system's alert
// manager — explicit state held under a mutex, transitions driven by
// counted failures/successes rather than a timer-driven poll loop.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"courtfabric/models"
)

// State is one of the three breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrOpen is returned by Execute when the breaker is OPEN and the caller
// supplied no fallback.
var ErrOpen = errors.New("breaker: open")

// Config holds the breaker's trip/recovery parameters.
type Config struct {
	FailureThreshold int
	Timeout          time.Duration
	SuccessThreshold int
}

// DefaultConfig mirrors the documented defaults.
func DefaultConfig() Config {
	return Config{FailureThreshold: 5, Timeout: 60 * time.Second, SuccessThreshold: 3}
}

// Breaker is the C4 Circuit Breaker. It is single-instance per upstream,
// not keyed per operation.
type Breaker struct {
	cfg Config

	mu              sync.Mutex
	state           State
	failureCount    int
	trialSuccesses  int
	openedAt        time.Time
	lastFailureTime time.Time
}

// New constructs a Breaker from cfg, starting CLOSED.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 3
	}
	return &Breaker{cfg: cfg, state: Closed}
}

// Primary is the guarded operation. Fallback runs when the breaker
// suppresses Primary, or when Primary itself fails.
type Primary func(ctx context.Context) (interface{}, error)
type Fallback func(ctx context.Context) (interface{}, error)

// Execute runs primary under the breaker's current state, falling back to
// fallback when the breaker is OPEN or when primary fails.
func (b *Breaker) Execute(ctx context.Context, primary Primary, fallback Fallback) (interface{}, error) {
	if !b.allow() {
		if fallback == nil {
			return nil, ErrOpen
		}
		return fallback(ctx)
	}

	result, err := primary(ctx)
	if err != nil {
		b.recordFailure()
		if fallback != nil {
			return fallback(ctx)
		}
		return nil, fmt.Errorf("breaker: primary failed: %w", err)
	}

	b.recordSuccess()
	return result, nil
}

// allow reports whether primary may run in the breaker's current state,
// performing the OPEN→HALF_OPEN transition if the timeout has elapsed.
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed, HalfOpen:
		return true
	case Open:
		if time.Since(b.openedAt) >= b.cfg.Timeout {
			b.state = HalfOpen
			b.trialSuccesses = 0
			return true
		}
		return false
	default:
		return true
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailureTime = time.Now()

	switch b.state {
	case HalfOpen:
		b.trip()
	case Closed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.trip()
		}
	}
}

func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = time.Now()
	b.trialSuccesses = 0
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != HalfOpen {
		return
	}

	b.trialSuccesses++
	if b.trialSuccesses >= b.cfg.SuccessThreshold {
		b.state = Closed
		b.failureCount = 0
		b.trialSuccesses = 0
	}
}

// State returns the breaker's current state without mutating it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Metrics returns the breaker's current state and failure counters.
func (b *Breaker) Metrics() models.BreakerMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	var sinceLast int64
	if !b.lastFailureTime.IsZero() {
		sinceLast = time.Since(b.lastFailureTime).Milliseconds()
	}

	return models.BreakerMetrics{
		State:              b.state.String(),
		FailureCount:       int64(b.failureCount),
		LastFailureTime:    b.lastFailureTime,
		MsSinceLastFailure: sinceLast,
	}
}
