// Package-level Encore wiring for the Warming Subsystem: builds a Fetcher
// over the availability service's private warm endpoints (so every
// warming fetch shares that service's rate limiter and breaker), wires the
// cron jobs declared in cron.go, and subscribes to cache.invalidated so a
// fresh invalidation feeds the predictor as an access signal.
package warming

import (
	"context"
	"fmt"

	"encore.dev/pubsub"

	"courtfabric/availability"
	"courtfabric/config"
	"courtfabric/invalidation"
	evt "courtfabric/pubsub"
)

//encore:service
type Service struct{}

type republisher struct {
	topic *pubsub.Topic[*WarmCompletedEvent]
}

func (r *republisher) Publish(ctx context.Context, event *WarmCompletedEvent) {
	if r.topic == nil {
		return
	}
	r.topic.Publish(ctx, event)
}

var completedTopic = pubsub.NewTopic[*WarmCompletedEvent](evt.TopicWarmingCompleted, pubsub.TopicConfig{
	DeliveryGuarantee: pubsub.AtLeastOnce,
})

func initService() (*Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("warming: load config: %w", err)
	}

	fetcher := NewFetcher(
		availability.WarmClubs,
		availability.WarmCourts,
		func(ctx context.Context, clubID, courtID int, date string) error {
			return availability.WarmSlots(ctx, &availability.WarmSlotsParams{
				ClubID: clubID, CourtID: courtID, Date: date,
			})
		},
	)

	warmerCfg := DefaultConfig()
	warmerCfg.ConcurrentWarmers = cfg.Warming.WorkerCount
	warmerCfg.QueueSize = cfg.Warming.QueueSize
	for _, placeID := range cfg.PrefetchPlaceIDs {
		warmerCfg.FullWarmupKeys = append(warmerCfg.FullWarmupKeys, "clubs:"+placeID)
	}

	w := New(warmerCfg, fetcher, NewDefaultPredictor(), &republisher{topic: completedTopic})
	SetInstance(w)

	return &Service{}, nil
}

func init() {
	if _, err := initService(); err != nil {
		panic(fmt.Sprintf("warming: init failed: %v", err))
	}
}

var _ = pubsub.NewSubscription(
	invalidation.InvalidatedTopic,
	"warming-predictor-feed",
	pubsub.SubscriptionConfig[*evt.InvalidatedEvent]{
		Handler: HandleInvalidatedEvent,
	},
)

// HandleInvalidatedEvent feeds every key an invalidation touched to the
// predictor as an access signal.
func HandleInvalidatedEvent(ctx context.Context, event *evt.InvalidatedEvent) error {
	if svc == nil {
		return nil
	}
	for _, key := range event.Keys {
		svc.RecordAccess(key)
	}
	return nil
}

// TriggerParams is the request body for Trigger.
type TriggerParams struct {
	Keys     []string `json:"keys"`
	Strategy string   `json:"strategy"`
	Priority int      `json:"priority"`
	Limit    int      `json:"limit"`
}

// TriggerResponse reports how many tasks a Trigger call queued.
type TriggerResponse struct {
	Queued int `json:"queued"`
}

// Trigger plans and queues an on-demand warming run over keys.
//
//encore:api private
func Trigger(ctx context.Context, params *TriggerParams) (*TriggerResponse, error) {
	if svc == nil {
		return nil, fmt.Errorf("warming: service not initialized")
	}
	queued, err := svc.WarmPattern(ctx, params.Keys, params.Strategy, params.Priority, params.Limit)
	if err != nil {
		return nil, err
	}
	return &TriggerResponse{Queued: queued}, nil
}

// MetricsResponse reports the warmer's task-processing counters.
type MetricsResponse struct {
	Queued               int64 `json:"queued"`
	Active               int64 `json:"active"`
	Completed            int64 `json:"completed"`
	Failed               int64 `json:"failed"`
	PredictorTrackedKeys int   `json:"predictorTrackedKeys"`
}

// Metrics reports the warming subsystem's task-processing counters.
//
//encore:api public method=GET path=/api/warming/metrics
func Metrics(ctx context.Context) (*MetricsResponse, error) {
	if svc == nil {
		return nil, fmt.Errorf("warming: service not initialized")
	}
	m := svc.MetricsSnapshot()
	return &MetricsResponse{
		Queued: m.Queued, Active: m.Active, Completed: m.Completed,
		Failed: m.Failed, PredictorTrackedKeys: m.PredictorTrackedKeys,
	}, nil
}
