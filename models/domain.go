// Package models provides the canonical data types shared across the
// availability fabric: the upstream entities (Club, Court, Slot) and the
// hydrated response tree the planner assembles from them.
package models

import "time"

// Club is an upstream venue. Fields beyond ID are opaque to the fabric and
// pass through cache serialization unchanged.
type Club struct {
	ID            int               `json:"id"`
	Name          string            `json:"name,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	OpenHours     string            `json:"openHours,omitempty"`
	LogoURL       string            `json:"logoUrl,omitempty"`
	BackgroundURL string            `json:"backgroundUrl,omitempty"`
}

// Court belongs to exactly one Club. ClubID must match the club under which
// it was fetched.
type Court struct {
	ID         int               `json:"id"`
	ClubID     int               `json:"clubId"`
	Name       string            `json:"name,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Slot is a bookable window on a court. Datetime is the only field the
// fabric interprets; everything else is opaque passthrough.
type Slot struct {
	Datetime time.Time `json:"datetime"`
	Start    string    `json:"start"`
	End      string    `json:"end"`
	Duration int       `json:"duration"`
	Price    float64   `json:"price"`
	Priority int       `json:"priority"`
}

// CourtAvailability pairs a court with its hydrated slot sequence.
type CourtAvailability struct {
	Court     Court  `json:"court"`
	Available []Slot `json:"available"`
}

// ClubAvailability pairs a club with its courts, each already hydrated.
type ClubAvailability struct {
	Club   Club                `json:"club"`
	Courts []CourtAvailability `json:"courts"`
}

// AvailabilityTree is the full response value for a (placeId, date) query,
// preserving the upstream's clubs order and, per club, its courts order.
type AvailabilityTree []ClubAvailability

// Empty reports whether the tree carries no clubs at all.
func (t AvailabilityTree) Empty() bool {
	return len(t) == 0
}
