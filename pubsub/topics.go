// Package pubsub defines the topic names and event payloads that carry
// mutation events into the Invalidation Engine and carry invalidated-key
// notifications out to any other interested subscriber.
package pubsub

// Topic name constants for Encore Pub/Sub wiring.
const (
	// TopicEventsIngested carries mutation events from the external
	// ingestion endpoint to the Invalidation Engine's subscriber.
	// Event type: IngestedEvent.
	TopicEventsIngested = "events.ingested"

	// TopicCacheInvalidated re-publishes the minimal set of keys an
	// invalidation touched, for subscribers such as the warming
	// predictor, which treats a fresh invalidation as a signal of likely
	// imminent re-access.
	// Event type: InvalidatedEvent.
	TopicCacheInvalidated = "cache.invalidated"

	// TopicWarmingCompleted carries the outcome of each background
	// warming task, for any observability consumer interested in warming
	// throughput separately from the query-path metrics surface.
	// Event type: warming.WarmCompletedEvent.
	TopicWarmingCompleted = "warming.completed"
)

// AllTopics returns every topic name this package defines.
func AllTopics() []string {
	return []string{TopicEventsIngested, TopicCacheInvalidated, TopicWarmingCompleted}
}
