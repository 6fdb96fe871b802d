// Package invalidation implements the Invalidation Engine (C8): it
// translates ingested mutation events into the minimal set of cache
// mutations, audits every attempt, and republishes the touched keys for
// any other interested subscriber.
package invalidation

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"encore.dev/pubsub"
	"encore.dev/storage/sqldb"
	"github.com/google/uuid"

	"courtfabric/cache"
	"courtfabric/models"
	evt "courtfabric/pubsub"
	"courtfabric/ratelimit"
	"courtfabric/utils"
)

// Config holds the engine's static wiring parameters.
type Config struct {
	// PlaceIDs is the configured set of placeIds swept for composite
	// availability invalidation on every club/court/booking event.
	PlaceIDs []string
	// SweepWindowDays is the forward window, in days starting today,
	// swept for composite availability invalidation.
	SweepWindowDays int
}

// DefaultConfig mirrors the documented defaults.
func DefaultConfig() Config {
	return Config{PlaceIDs: nil, SweepWindowDays: 7}
}

// ClubLocator resolves the placeId a club was last fetched under. Backed
// in production by clubLocator (encore.go), which reads the clubToPlace
// cache entry directly.
type ClubLocator interface {
	LookupPlaceForClub(ctx context.Context, clubID int) (string, bool)
}

// AuditRecorder is the subset of *AuditLog the engine depends on, narrowed
// so tests can substitute an in-memory fake without a Postgres instance.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// engineMetrics tracks the engine's event-processing counters.
type engineMetrics struct {
	Processed atomic.Int64
	Errors    atomic.Int64
	lastMu    atomicTime
}

// atomicTime is a tiny mutex-free holder for the last-processed
// timestamp, read far more often than it is written.
type atomicTime struct {
	v atomic.Value
}

func (t *atomicTime) Store(at time.Time) { t.v.Store(at) }
func (t *atomicTime) Load() time.Time {
	v := t.v.Load()
	if v == nil {
		return time.Time{}
	}
	return v.(time.Time)
}

// Engine is the C8 Invalidation Engine.
type Engine struct {
	cfg     Config
	cache   *cache.Cache
	locator ClubLocator
	audit   AuditRecorder
	sweep   *ratelimit.Limiter

	metrics engineMetrics

	invalidatedTopic *pubsub.Topic[*evt.InvalidatedEvent]
}

// New wires an Engine from its collaborators. invalidatedTopic may be nil
// in tests that do not exercise the republish path.
func New(cfg Config, c *cache.Cache, locator ClubLocator, audit AuditRecorder, invalidatedTopic *pubsub.Topic[*evt.InvalidatedEvent]) *Engine {
	if cfg.SweepWindowDays <= 0 {
		cfg.SweepWindowDays = 7
	}
	return &Engine{
		cfg:              cfg,
		cache:            c,
		locator:          locator,
		audit:            audit,
		sweep:            ratelimit.New(ratelimit.Config{Limit: 50, Window: time.Second}),
		invalidatedTopic: invalidatedTopic,
	}
}

// HandleIngestedEvent is the Pub/Sub subscription handler for
// events.ingested. It never returns an error to the bus: every failure is
// caught, counted, and audited with success=false, per the "event
// processing must not fail the ingestion endpoint" contract.
func (e *Engine) HandleIngestedEvent(ctx context.Context, event *evt.IngestedEvent) error {
	requestID := uuid.NewString()
	keys, err := e.Process(ctx, requestID, event)

	e.metrics.Processed.Add(1)
	e.metrics.lastMu.Store(time.Now())

	entry := AuditEntry{
		RequestID:       requestID,
		EventType:       string(event.Type),
		KeysInvalidated: keys,
		Timestamp:       time.Now(),
		Success:         err == nil,
	}
	if err != nil {
		e.metrics.Errors.Add(1)
		entry.ErrorMessage = err.Error()
	}
	if e.audit != nil {
		if auditErr := e.audit.Record(ctx, entry); auditErr != nil {
			e.metrics.Errors.Add(1)
		}
	}

	if err == nil && len(keys) > 0 && e.invalidatedTopic != nil {
		e.invalidatedTopic.Publish(ctx, &evt.InvalidatedEvent{
			RequestID: requestID,
			EventType: event.Type,
			Keys:      keys,
			Timestamp: entry.Timestamp,
		})
	}

	return nil
}

// Process performs the type-specific invalidation plus the composite
// availability sweep, returning every key it invalidated.
func (e *Engine) Process(ctx context.Context, requestID string, event *evt.IngestedEvent) ([]string, error) {
	var keys []string
	var clubID int

	switch event.Type {
	case evt.EventClubUpdated:
		clubID = event.ClubID
		k, err := e.invalidateClubUpdated(ctx, event.ClubID)
		if err != nil {
			return keys, err
		}
		keys = append(keys, k...)

	case evt.EventCourtUpdated:
		clubID = event.ClubID
		k, err := e.invalidateCourt(ctx, event.ClubID, event.CourtID)
		if err != nil {
			return keys, err
		}
		keys = append(keys, k...)

	case evt.EventBookingCreated, evt.EventBookingCancelled:
		clubID = event.ClubID
		k, err := e.invalidateBooking(ctx, event)
		if err != nil {
			return keys, err
		}
		keys = append(keys, k...)

	default:
		return keys, fmt.Errorf("invalidation: unhandled event type %q", event.Type)
	}

	sweepKeys, err := e.sweepAvailability(ctx, clubID)
	if err != nil {
		return keys, err
	}
	keys = append(keys, sweepKeys...)

	return keys, nil
}

func (e *Engine) invalidateClubUpdated(ctx context.Context, clubID int) ([]string, error) {
	var keys []string

	if placeID, ok := e.locator.LookupPlaceForClub(ctx, clubID); ok {
		fresh := cache.GenerateKey(cache.TypeClubs, placeID)
		stale := cache.GenerateStaleKey(cache.TypeClubs, placeID)
		if err := e.cache.Invalidate(ctx, fresh); err != nil {
			return keys, err
		}
		keys = append(keys, fresh, stale)
	} else {
		n, err := e.cache.InvalidateByPattern(ctx, "clubs:*")
		if err != nil {
			return keys, err
		}
		if n > 0 {
			keys = append(keys, "clubs:*")
		}
	}

	courtKeys, err := e.invalidateCourtsForClub(ctx, clubID)
	if err != nil {
		return keys, err
	}
	return append(keys, courtKeys...), nil
}

func (e *Engine) invalidateCourtsForClub(ctx context.Context, clubID int) ([]string, error) {
	fresh := cache.GenerateKey(cache.TypeCourts, clubID)
	stale := cache.GenerateStaleKey(cache.TypeCourts, clubID)
	if err := e.cache.Invalidate(ctx, fresh); err != nil {
		return nil, err
	}
	return []string{fresh, stale}, nil
}

func (e *Engine) invalidateCourt(ctx context.Context, clubID, courtID int) ([]string, error) {
	return e.invalidateCourtsForClub(ctx, clubID)
}

func (e *Engine) invalidateBooking(ctx context.Context, event *evt.IngestedEvent) ([]string, error) {
	day := utils.DayKey(event.Slot.Datetime, time.UTC)
	fresh := cache.GenerateKey(cache.TypeSlots, event.ClubID, event.CourtID, day)
	stale := cache.GenerateStaleKey(cache.TypeSlots, event.ClubID, event.CourtID, day)
	if err := e.cache.Invalidate(ctx, fresh); err != nil {
		return nil, err
	}
	return []string{fresh, stale}, nil
}

// sweepAvailability invalidates every composite availability entry
// touching clubId across the configured placeIds and a forward window of
// SweepWindowDays starting today, paced through a fixed-window limiter (50
// pattern sweeps per second) so a burst of events cannot flood the KV store
// with deletes.
func (e *Engine) sweepAvailability(ctx context.Context, clubID int) ([]string, error) {
	var keys []string
	now := time.Now().UTC()

	for _, placeID := range e.cfg.PlaceIDs {
		for d := 0; d < e.cfg.SweepWindowDays; d++ {
			day := utils.DayKey(now.AddDate(0, 0, d), time.UTC)
			pattern := cache.GenerateKey(cache.TypeAvailability, placeID, day) + "*"

			if err := e.sweep.Acquire(ctx); err != nil {
				return keys, err
			}
			n, err := e.cache.InvalidateByPattern(ctx, pattern)
			if err != nil {
				return keys, err
			}
			if n > 0 {
				keys = append(keys, pattern)
			}
		}
	}
	return keys, nil
}

// MetricsSnapshot returns the engine's event-processing counters.
func (e *Engine) MetricsSnapshot() models.EventMetrics {
	processed := e.metrics.Processed.Load()
	errs := e.metrics.Errors.Load()
	total := processed
	successRate := 0.0
	if total > 0 {
		successRate = float64(total-errs) / float64(total)
	}
	return models.EventMetrics{
		Processed:     uint64(processed),
		Errors:        uint64(errs),
		LastProcessed: e.metrics.lastMu.Load(),
		SuccessRate:   successRate,
	}
}

// db is the named database the audit log attaches to.
var db = sqldb.Named("invalidation_db")
