// Package planner implements the Availability Planner (C7): it expands a
// (placeId, date) query into a bounded-concurrency fetch plan against the
// Upstream Client and assembles the resulting availability tree.
package planner

import (
	"context"
	"errors"
	"fmt"

	"courtfabric/cache"
	"courtfabric/coalesce"
	"courtfabric/models"
	"courtfabric/upstream"
)

// UpstreamClient is the subset of upstream.Client the planner depends on.
type UpstreamClient interface {
	GetClubs(ctx context.Context, placeID string) ([]models.Club, error)
	GetCourts(ctx context.Context, clubID int) ([]models.Court, error)
	GetAvailableSlots(ctx context.Context, clubID, courtID int, date string) ([]models.Slot, error)
}

// Invalidator is the subset of cache.Cache the planner's own invalidation
// helper depends on.
type Invalidator interface {
	InvalidateByPattern(ctx context.Context, pattern string) (int, error)
}

// Config sizes the planner's two fan-out levels.
type Config struct {
	FanOutCourts int
	FanOutSlots  int
}

// DefaultConfig mirrors the documented defaults.
func DefaultConfig() Config {
	return Config{FanOutCourts: 5, FanOutSlots: 10}
}

// Planner is the C7 Availability Planner.
type Planner struct {
	cfg    Config
	client UpstreamClient
	cache  Invalidator
}

// New constructs a Planner over client.
func New(cfg Config, client UpstreamClient, cache Invalidator) *Planner {
	if cfg.FanOutCourts <= 0 {
		cfg.FanOutCourts = 5
	}
	if cfg.FanOutSlots <= 0 {
		cfg.FanOutSlots = 10
	}
	return &Planner{cfg: cfg, client: client, cache: cache}
}

// GetAvailabilityOptimized hydrates the full clubs -> courts -> available
// slots tree for (placeID, date), preserving upstream order at every
// level. A task that yields no slots, or whose fetch ends in a
// cache/upstream miss (ErrNoCachedData), materializes as an empty slot
// sequence rather than shrinking the tree: the tree's shape is determined
// by clubs and courts, never by slots. A miss on any branch degrades that
// branch to empty and is never returned as this method's error; any other
// fetch error fails the whole call.
func (p *Planner) GetAvailabilityOptimized(ctx context.Context, placeID, date string) (models.AvailabilityTree, error) {
	clubs, err := p.client.GetClubs(ctx, placeID)
	if err != nil {
		if errors.Is(err, upstream.ErrNoCachedData) {
			return models.AvailabilityTree{}, nil
		}
		return nil, fmt.Errorf("planner: get clubs: %w", err)
	}
	if len(clubs) == 0 {
		return models.AvailabilityTree{}, nil
	}

	courtTasks := make([]coalesce.Task, len(clubs))
	for i, club := range clubs {
		club := club
		courtTasks[i] = func(ctx context.Context) (interface{}, error) {
			courts, err := p.client.GetCourts(ctx, club.ID)
			if err != nil {
				if errors.Is(err, upstream.ErrNoCachedData) {
					return []models.Court{}, nil
				}
				return nil, err
			}
			return courts, nil
		}
	}
	courtResults, err := coalesce.ExecuteConcurrent(ctx, courtTasks, p.cfg.FanOutCourts)
	if err != nil {
		return nil, fmt.Errorf("planner: fan out courts: %w", err)
	}

	courtsByClub := make([][]models.Court, len(clubs))
	for i, r := range courtResults {
		if r == nil {
			continue
		}
		courtsByClub[i] = r.([]models.Court)
	}

	type taskCoord struct {
		clubIdx, courtIdx int
	}

	var slotTasks []coalesce.Task
	var coords []taskCoord
	for ci, club := range clubs {
		club := club
		for ki, court := range courtsByClub[ci] {
			court := court
			coords = append(coords, taskCoord{clubIdx: ci, courtIdx: ki})
			slotTasks = append(slotTasks, func(ctx context.Context) (interface{}, error) {
				slots, err := p.client.GetAvailableSlots(ctx, club.ID, court.ID, date)
				if err != nil {
					if errors.Is(err, upstream.ErrNoCachedData) {
						return []models.Slot{}, nil
					}
					return nil, err
				}
				return slots, nil
			})
		}
	}

	slotResults, err := coalesce.ExecuteConcurrent(ctx, slotTasks, p.cfg.FanOutSlots)
	if err != nil {
		return nil, fmt.Errorf("planner: fan out slots: %w", err)
	}

	slotsByClubByCourt := make([][][]models.Slot, len(clubs))
	for i := range clubs {
		slotsByClubByCourt[i] = make([][]models.Slot, len(courtsByClub[i]))
	}
	for i, r := range slotResults {
		coord := coords[i]
		if r == nil {
			continue
		}
		slotsByClubByCourt[coord.clubIdx][coord.courtIdx] = r.([]models.Slot)
	}

	tree := make(models.AvailabilityTree, len(clubs))
	for ci, club := range clubs {
		courts := courtsByClub[ci]
		courtAvail := make([]models.CourtAvailability, len(courts))
		for ki, court := range courts {
			available := slotsByClubByCourt[ci][ki]
			if available == nil {
				available = []models.Slot{}
			}
			courtAvail[ki] = models.CourtAvailability{Court: court, Available: available}
		}
		tree[ci] = models.ClubAvailability{Club: club, Courts: courtAvail}
	}

	return tree, nil
}

// InvalidateCacheForPlace invalidates the availability entries implicated
// by placeID. When date is non-empty, only that day's entries are
// invalidated; otherwise every availability key under placeID is.
func (p *Planner) InvalidateCacheForPlace(ctx context.Context, placeID, date string) error {
	pattern := cache.GenerateKey(cache.TypeAvailability, placeID) + ":*"
	if date != "" {
		pattern = cache.GenerateKey(cache.TypeAvailability, placeID, date) + "*"
	}
	_, err := p.cache.InvalidateByPattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("planner: invalidate for place %s: %w", placeID, err)
	}
	return nil
}
