package warming

import (
	"context"
	"sort"
	"sync"
	"time"

	"courtfabric/cache"
)

// Predictor scores candidate cache keys by likelihood of near-future
// access. Fed by cache.invalidated republishes (an invalidation is itself a
// signal of likely imminent re-access); query-path reads are not recorded.
type Predictor interface {
	RecordAccess(key string)
	PredictHotKeys(ctx context.Context, window time.Duration, limit int) ([]string, error)
}

// DefaultPredictor scores keys from recent access frequency and recency,
// weighted by each key's cache type: clubs and courts are near-static
// (hour/half-hour TTLs, §4.2) so a steady access frequency is the
// trustworthy signal, while slots are the liveness surface (5-minute TTL)
// where a burst of recent access is itself evidence of an imminent
// booking flow worth chasing. Both the growth-rate weight and the
// recency-bonus windows below are derived from cache.TTL, so a change to
// the type table automatically retunes the predictor.
//
// Algorithm:
// 1. Track access counts and timestamps for each key.
// 2. Calculate access frequency (accesses per hour) and a window-bounded
//    growth rate (recent frequency vs. historical frequency).
// 3. score = frequency * (1 + growthRate*typeWeight) * recencyBonus(type).
// 4. Return the top N keys by score.
type DefaultPredictor struct {
	mu        sync.RWMutex
	accessLog map[string]*accessHistory
}

type accessHistory struct {
	TotalAccesses int64
	FirstSeen     time.Time
	LastAccessed  time.Time
	AccessTimes   []time.Time
}

// NewDefaultPredictor creates a new default predictor.
func NewDefaultPredictor() *DefaultPredictor {
	return &DefaultPredictor{accessLog: make(map[string]*accessHistory)}
}

// RecordAccess records an access to key for prediction purposes.
func (p *DefaultPredictor) RecordAccess(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	history, exists := p.accessLog[key]
	if !exists {
		history = &accessHistory{FirstSeen: now, AccessTimes: make([]time.Time, 0, 100)}
		p.accessLog[key] = history
	}

	history.TotalAccesses++
	history.LastAccessed = now
	history.AccessTimes = append(history.AccessTimes, now)
	if len(history.AccessTimes) > 100 {
		history.AccessTimes = history.AccessTimes[1:]
	}
}

// PredictHotKeys returns the top-scoring keys likely to be accessed again
// within window, capped at limit.
func (p *DefaultPredictor) PredictHotKeys(ctx context.Context, window time.Duration, limit int) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	now := time.Now()
	cutoff := now.Add(-window)

	type keyScore struct {
		key   string
		score float64
	}
	scores := make([]keyScore, 0, len(p.accessLog))
	for key, history := range p.accessLog {
		if score := p.calculateScore(key, history, now, cutoff); score > 0 {
			scores = append(scores, keyScore{key: key, score: score})
		}
	}

	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if limit > 0 && limit < len(scores) {
		scores = scores[:limit]
	}

	hotKeys := make([]string, len(scores))
	for i, ks := range scores {
		hotKeys[i] = ks.key
	}
	return hotKeys, nil
}

func (p *DefaultPredictor) calculateScore(key string, history *accessHistory, now, cutoff time.Time) float64 {
	if history.TotalAccesses == 0 {
		return 0
	}

	timeSinceFirst := now.Sub(history.FirstSeen).Hours()
	if timeSinceFirst == 0 {
		timeSinceFirst = 1
	}
	frequency := float64(history.TotalAccesses) / timeSinceFirst

	recentCount := 0
	for _, accessTime := range history.AccessTimes {
		if accessTime.After(cutoff) {
			recentCount++
		}
	}

	growthRate := 0.0
	if frequency > 0 {
		growthRate = (float64(recentCount) - frequency) / frequency
	}

	typ, _ := cache.TypeOf(key)
	timeSinceLast := now.Sub(history.LastAccessed)
	return frequency * (1.0 + growthRate*growthWeight(typ)) * recencyBonus(typ, timeSinceLast)
}

// growthWeight scales how heavily a recent burst in access counts against
// steady frequency. Slots churn with bookings, so a burst is a strong
// signal worth chasing; clubs and courts barely change, so a burst there
// is more likely noise and is damped.
func growthWeight(typ cache.Type) float64 {
	switch typ {
	case cache.TypeSlots:
		return 1.5
	case cache.TypeClubs, cache.TypeCourts:
		return 0.5
	default:
		return 1.0
	}
}

// recencyBonus rewards an access within the type's own "hot" and "warm"
// windows, each a fraction of that type's cache TTL (cache.TTL) rather
// than a fixed number of minutes: a slots entry (5-minute TTL) goes cold
// much faster than a clubs entry (1-hour TTL), so what counts as "recent"
// must scale with how fast the entry itself expires.
func recencyBonus(typ cache.Type, since time.Duration) float64 {
	hot, warm := recencyWindows(typ)
	switch {
	case since < hot:
		return 2.0
	case since < warm:
		return 1.5
	default:
		return 1.0
	}
}

func recencyWindows(typ cache.Type) (hot, warm time.Duration) {
	ttl := cache.TTL(typ)
	hot, warm = ttl/12, ttl/2
	if hot < time.Minute {
		hot = time.Minute
	}
	if warm < 5*time.Minute {
		warm = 5 * time.Minute
	}
	return hot, warm
}

// Cleanup removes the history of every key not accessed within maxAge,
// bounding the predictor's memory. None of the cron jobs in cron.go call it.
func (p *DefaultPredictor) Cleanup(maxAge time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for key, history := range p.accessLog {
		if history.LastAccessed.Before(cutoff) {
			delete(p.accessLog, key)
			removed++
		}
	}
	return removed
}

// PredictorStats reports the predictor's tracked-state size.
type PredictorStats struct {
	TrackedKeys   int   `json:"trackedKeys"`
	TotalAccesses int64 `json:"totalAccesses"`
}

// Stats returns statistics about the predictor's current state.
func (p *DefaultPredictor) Stats() PredictorStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var total int64
	for _, history := range p.accessLog {
		total += history.TotalAccesses
	}
	return PredictorStats{TrackedKeys: len(p.accessLog), TotalAccesses: total}
}
