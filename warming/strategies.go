package warming

import (
	"context"
	"sort"
	"time"

	"courtfabric/cache"
)

// Strategy turns a candidate key list into a prioritized warming task
// list. Different strategies determine which keys to warm and in what
// order.
type Strategy interface {
	Name() string
	Plan(ctx context.Context, opts PlanOptions) ([]WarmTask, error)
}

// PlanOptions provides input parameters for warming strategy planning.
type PlanOptions struct {
	Keys     []string
	Priority int
	Limit    int
}

// WarmTask represents a single cache warming task.
type WarmTask struct {
	Key           string
	Priority      int
	EstimatedCost int
	TTL           time.Duration
	Strategy      string
}

// SelectiveHotKeysStrategy warms only the hottest keys. Efficient when
// most requests target a small subset of keys — the predictor is assumed
// to have already ordered Keys by hotness, most frequent first.
type SelectiveHotKeysStrategy struct {
	name string
}

// NewSelectiveHotKeysStrategy creates a new selective hot keys strategy.
func NewSelectiveHotKeysStrategy() Strategy {
	return &SelectiveHotKeysStrategy{name: "selective"}
}

func (s *SelectiveHotKeysStrategy) Name() string { return s.name }

func (s *SelectiveHotKeysStrategy) Plan(ctx context.Context, opts PlanOptions) ([]WarmTask, error) {
	limit := opts.Limit
	if limit <= 0 || limit > len(opts.Keys) {
		limit = len(opts.Keys)
	}
	if limit > 1000 {
		limit = 1000
	}

	tasks := make([]WarmTask, 0, limit)
	for i := 0; i < limit; i++ {
		key := opts.Keys[i]
		priority := opts.Priority
		if priority == 0 {
			priority = 100 - (i * 100 / limit) // linear decrease from 100, in steps of 100/limit
		}
		tasks = append(tasks, WarmTask{
			Key:           key,
			Priority:      priority,
			EstimatedCost: estimateFetchCost(key),
			TTL:           keyTTL(key),
			Strategy:      s.name,
		})
	}
	return tasks, nil
}

// PriorityBasedStrategy warms keys ordered by a calculated priority score:
// score = (importance * hotness * typeWeight * 100) / cost, clamped to
// [0, 100]. Balances warming
// coverage against how expensive each key is to fetch and how much a
// booking flow actually depends on it being fresh.
type PriorityBasedStrategy struct {
	name string
}

// NewPriorityBasedStrategy creates a new priority-based strategy.
func NewPriorityBasedStrategy() Strategy {
	return &PriorityBasedStrategy{name: "priority"}
}

func (s *PriorityBasedStrategy) Name() string { return s.name }

func (s *PriorityBasedStrategy) Plan(ctx context.Context, opts PlanOptions) ([]WarmTask, error) {
	if len(opts.Keys) == 0 {
		return []WarmTask{}, nil
	}

	tasks := make([]WarmTask, 0, len(opts.Keys))
	for i, key := range opts.Keys {
		cost := estimateFetchCost(key)

		importance := float64(len(opts.Keys)-i) / float64(len(opts.Keys))
		hotness := 1.0
		if i < len(opts.Keys)/10 {
			hotness = 2.0 // top 10% get double weight
		}

		score := (importance * hotness * typeWeight(key) * 100) / float64(cost)
		priority := int(score)
		if priority > 100 {
			priority = 100
		}
		if priority < 0 {
			priority = 0
		}

		tasks = append(tasks, WarmTask{
			Key:           key,
			Priority:      priority,
			EstimatedCost: cost,
			TTL:           keyTTL(key),
			Strategy:      s.name,
		})
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].Priority > tasks[j].Priority
	})

	if opts.Limit > 0 && opts.Limit < len(tasks) {
		tasks = tasks[:opts.Limit]
	}
	return tasks, nil
}

// keyTTL reports the cache TTL a warmed entry of key's type will actually
// carry, so a consumer of WarmTask.TTL (e.g. a metrics surface estimating
// when a warmed key will need rewarming) isn't told a generic figure that's
// wildly wrong for a 5-minute slots entry.
func keyTTL(key string) time.Duration {
	typ, ok := cache.TypeOf(key)
	if !ok {
		return cache.StaleTTL
	}
	return cache.TTL(typ)
}

// typeWeight favors pre-warming the upstream operation a booking flow
// actually waits on. Slots are the narrowest, most latency-sensitive leaf
// (§4.6); courts sit one fan-out level above; clubs are the broadest and
// already the cheapest, least latency-critical call.
func typeWeight(key string) float64 {
	typ, _ := cache.TypeOf(key)
	switch typ {
	case cache.TypeSlots:
		return 1.5
	case cache.TypeCourts:
		return 1.1
	default:
		return 1.0
	}
}

// estimateFetchCost estimates the cost, in milliseconds, of fetching key
// from the upstream. Grounded in the Upstream Client's three operations
// (§4.6): clubs is a single broad list call, courts one fan-out level
// deeper, slots the most granular leaf call — one upstream round trip per
// (club, court, date) triple.
func estimateFetchCost(key string) int {
	typ, _ := cache.TypeOf(key)
	switch typ {
	case cache.TypeClubs:
		return 60
	case cache.TypeCourts:
		return 80
	case cache.TypeSlots:
		return 120
	default:
		return 50
	}
}
