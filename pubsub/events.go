package pubsub

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType discriminates the mutation event union delivered on
// TopicEventsIngested.
type EventType string

const (
	EventBookingCreated   EventType = "booking_created"
	EventBookingCancelled EventType = "booking_cancelled"
	EventClubUpdated      EventType = "club_updated"
	EventCourtUpdated     EventType = "court_updated"
)

// BookingSlot is the slot payload carried by booking events.
type BookingSlot struct {
	Price    float64   `json:"price"`
	Duration int       `json:"duration"`
	Datetime time.Time `json:"datetime"`
	Start    string    `json:"start"`
	End      string    `json:"end"`
	Priority int       `json:"priority"`
}

// IngestedEvent is the discriminated union of mutation events this fabric
// reacts to. Exactly one of the type-specific fields is populated,
// selected by Type.
type IngestedEvent struct {
	Type EventType `json:"type"`

	ClubID  int `json:"clubId,omitempty"`
	CourtID int `json:"courtId,omitempty"`

	// Set for booking_created/booking_cancelled.
	Slot *BookingSlot `json:"slot,omitempty"`

	// Set for club_updated/court_updated: the subset of fields that
	// changed. Informational only — invalidation is unconditional on the
	// entity id, not on which fields changed.
	Fields []string `json:"fields,omitempty"`
}

// Validate rejects malformed events at ingestion, never inside the core.
func (e *IngestedEvent) Validate() error {
	switch e.Type {
	case EventBookingCreated, EventBookingCancelled:
		if e.ClubID == 0 || e.CourtID == 0 {
			return errors.New("booking event requires clubId and courtId")
		}
		if e.Slot == nil {
			return errors.New("booking event requires slot")
		}
		if e.Slot.Datetime.IsZero() {
			return errors.New("booking event slot requires datetime")
		}
	case EventClubUpdated:
		if e.ClubID == 0 {
			return errors.New("club_updated requires clubId")
		}
	case EventCourtUpdated:
		if e.ClubID == 0 || e.CourtID == 0 {
			return errors.New("court_updated requires clubId and courtId")
		}
	default:
		return fmt.Errorf("unknown event type: %q", e.Type)
	}
	return nil
}

// ToJSON serializes the event.
func (e *IngestedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// IngestedEventFromJSON deserializes an event, validating it in the same
// step so malformed payloads never reach the invalidation engine.
func IngestedEventFromJSON(data []byte) (*IngestedEvent, error) {
	var e IngestedEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal IngestedEvent: %w", err)
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("invalid IngestedEvent: %w", err)
	}
	return &e, nil
}

// InvalidatedEvent is re-published on TopicCacheInvalidated after a
// successful invalidation, carrying just enough for a downstream
// subscriber to treat the touched keys as an access signal.
type InvalidatedEvent struct {
	RequestID string    `json:"requestId"`
	EventType EventType `json:"eventType"`
	Keys      []string  `json:"keys"`
	Timestamp time.Time `json:"timestamp"`
}

// ToJSON serializes the event.
func (e *InvalidatedEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
