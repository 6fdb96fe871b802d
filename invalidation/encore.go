// Package-level Encore wiring for the Invalidation Engine: subscribes to
// events.ingested, owns the Postgres audit log and a cache.Cache over the
// same Redis instance the availability service reads through, and
// publishes touched keys to cache.invalidated.
package invalidation

import (
	"context"
	"fmt"

	"encore.dev/pubsub"

	"courtfabric/cache"
	"courtfabric/config"
	"courtfabric/kv"
	evt "courtfabric/pubsub"
)

//encore:service
type Service struct {
	engine *Engine
}

// clubLocator resolves a club's last-fetched placeId by reading the
// clubToPlace cache entry the availability service's upstream client
// indexes on every GetClubs call.
type clubLocator struct {
	cache *cache.Cache
}

func (l *clubLocator) LookupPlaceForClub(ctx context.Context, clubID int) (string, bool) {
	key := cache.GenerateKey(cache.TypeClubToPlace, clubID)
	res := l.cache.GetWithFallback(ctx, key, "")
	if res.Data == nil {
		return "", false
	}
	var placeID string
	if err := cache.Decode(res.Data, &placeID); err != nil {
		return "", false
	}
	return placeID, true
}

// InvalidatedTopic carries every successful invalidation's touched keys.
// Exported so other services (the warming predictor) can subscribe to it
// directly without redeclaring the topic.
var InvalidatedTopic = pubsub.NewTopic[*evt.InvalidatedEvent](evt.TopicCacheInvalidated, pubsub.TopicConfig{
	DeliveryGuarantee: pubsub.AtLeastOnce,
})

func initService() (*Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalidation: load config: %w", err)
	}

	kvAdapter := kv.New(kv.Config{
		Host:     cfg.KV.Host,
		Port:     cfg.KV.Port,
		Password: cfg.KV.Password,
		DB:       cfg.KV.DB,
	})
	c := cache.New(kvAdapter)

	auditLog, err := NewAuditLog(db)
	if err != nil {
		return nil, fmt.Errorf("invalidation: init audit log: %w", err)
	}
	SetAuditInstance(auditLog, cfg.AuditRetention)

	engineCfg := DefaultConfig()
	engineCfg.PlaceIDs = cfg.PrefetchPlaceIDs
	engine := New(engineCfg, c, &clubLocator{cache: c}, auditLog, InvalidatedTopic)

	return &Service{engine: engine}, nil
}

var svc *Service

func init() {
	var err error
	svc, err = initService()
	if err != nil {
		panic(fmt.Sprintf("invalidation: init failed: %v", err))
	}
}

var _ = pubsub.NewSubscription(
	ingestedTopic,
	"invalidation-engine",
	pubsub.SubscriptionConfig[*evt.IngestedEvent]{
		Handler: HandleIngestedEvent,
	},
)

// ingestedTopic is the topic the out-of-scope ingestion endpoint
// publishes mutation events to.
var ingestedTopic = pubsub.NewTopic[*evt.IngestedEvent](evt.TopicEventsIngested, pubsub.TopicConfig{
	DeliveryGuarantee: pubsub.AtLeastOnce,
})

// HandleIngestedEvent is the Pub/Sub subscription handler for
// events.ingested.
func HandleIngestedEvent(ctx context.Context, event *evt.IngestedEvent) error {
	if svc == nil {
		return nil
	}
	return svc.engine.HandleIngestedEvent(ctx, event)
}

// MetricsResponse reports the engine's event-processing counters.
type MetricsResponse struct {
	Processed   uint64  `json:"processed"`
	Errors      uint64  `json:"errors"`
	SuccessRate float64 `json:"successRate"`
}

// Metrics reports the invalidation engine's processing counters.
//
//encore:api public method=GET path=/api/invalidation/metrics
func Metrics(ctx context.Context) (*MetricsResponse, error) {
	if svc == nil {
		return nil, fmt.Errorf("invalidation: service not initialized")
	}
	m := svc.engine.MetricsSnapshot()
	return &MetricsResponse{Processed: m.Processed, Errors: m.Errors, SuccessRate: m.SuccessRate}, nil
}
