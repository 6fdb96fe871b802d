package planner

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"courtfabric/models"
	"courtfabric/upstream"
)

type fakeUpstream struct {
	mu        sync.Mutex
	clubs     map[string][]models.Club
	courts    map[int][]models.Court
	slots     map[string][]models.Slot
	err       error
	courtsErr map[int]error
	slotsErr  map[string]error
}

func (f *fakeUpstream) GetClubs(ctx context.Context, placeID string) ([]models.Club, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.clubs[placeID], nil
}

func (f *fakeUpstream) GetCourts(ctx context.Context, clubID int) ([]models.Court, error) {
	if err := f.courtsErr[clubID]; err != nil {
		return nil, err
	}
	return f.courts[clubID], nil
}

func (f *fakeUpstream) GetAvailableSlots(ctx context.Context, clubID, courtID int, date string) ([]models.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.slotsErr[slotKey(clubID, courtID, date)]; err != nil {
		return nil, err
	}
	return f.slots[slotKey(clubID, courtID, date)], nil
}

func slotKey(clubID, courtID int, date string) string {
	return fmt.Sprintf("%d:%d:%s", clubID, courtID, date)
}

type fakeInvalidator struct {
	patterns []string
}

func (f *fakeInvalidator) InvalidateByPattern(ctx context.Context, pattern string) (int, error) {
	f.patterns = append(f.patterns, pattern)
	return 1, nil
}

func TestPlanner_GetAvailabilityOptimized_BuildsOrderedTree(t *testing.T) {
	up := &fakeUpstream{
		clubs: map[string][]models.Club{
			"place-1": {{ID: 1, Name: "Club A"}, {ID: 2, Name: "Club B"}},
		},
		courts: map[int][]models.Court{
			1: {{ID: 10, ClubID: 1, Name: "Court 1"}},
			2: {{ID: 20, ClubID: 2, Name: "Court 2"}, {ID: 21, ClubID: 2, Name: "Court 3"}},
		},
		slots: map[string][]models.Slot{
			slotKey(1, 10, "2026-08-10"): {{Start: "09:00", End: "10:00"}},
			slotKey(2, 21, "2026-08-10"): {{Start: "11:00", End: "12:00"}},
		},
	}

	p := New(DefaultConfig(), up, &fakeInvalidator{})
	tree, err := p.GetAvailabilityOptimized(context.Background(), "place-1", "2026-08-10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tree) != 2 {
		t.Fatalf("expected 2 clubs in tree, got %d", len(tree))
	}
	if tree[0].Club.ID != 1 || tree[1].Club.ID != 2 {
		t.Fatalf("club order not preserved: %+v", tree)
	}
	if len(tree[1].Courts) != 2 {
		t.Fatalf("expected 2 courts under club 2, got %d", len(tree[1].Courts))
	}
	if len(tree[0].Courts[0].Available) != 1 {
		t.Fatalf("expected 1 slot for club 1 court 10, got %d", len(tree[0].Courts[0].Available))
	}
	if len(tree[1].Courts[0].Available) != 0 {
		t.Fatalf("expected 0 slots for club 2 court 20, got %d", len(tree[1].Courts[0].Available))
	}
}

func TestPlanner_GetAvailabilityOptimized_NoClubs(t *testing.T) {
	up := &fakeUpstream{clubs: map[string][]models.Club{}}
	p := New(DefaultConfig(), up, &fakeInvalidator{})

	tree, err := p.GetAvailabilityOptimized(context.Background(), "empty-place", "2026-08-10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tree.Empty() {
		t.Fatalf("expected empty tree, got %+v", tree)
	}
}

func TestPlanner_GetAvailabilityOptimized_ClubFetchMissDegradesToEmptyTree(t *testing.T) {
	up := &fakeUpstream{err: upstream.ErrNoCachedData}
	p := New(DefaultConfig(), up, &fakeInvalidator{})

	tree, err := p.GetAvailabilityOptimized(context.Background(), "place-1", "2026-08-10")
	if err != nil {
		t.Fatalf("expected nil error on a cache/upstream miss, got %v", err)
	}
	if !tree.Empty() {
		t.Fatalf("expected empty tree, got %+v", tree)
	}
}

func TestPlanner_GetAvailabilityOptimized_CourtFetchMissDegradesThatClubOnly(t *testing.T) {
	up := &fakeUpstream{
		clubs: map[string][]models.Club{
			"place-1": {{ID: 1, Name: "Club A"}, {ID: 2, Name: "Club B"}},
		},
		courts: map[int][]models.Court{
			1: {{ID: 10, ClubID: 1, Name: "Court 1"}},
		},
		courtsErr: map[int]error{2: upstream.ErrNoCachedData},
		slots: map[string][]models.Slot{
			slotKey(1, 10, "2026-08-10"): {{Start: "09:00", End: "10:00"}},
		},
	}

	p := New(DefaultConfig(), up, &fakeInvalidator{})
	tree, err := p.GetAvailabilityOptimized(context.Background(), "place-1", "2026-08-10")
	if err != nil {
		t.Fatalf("expected nil error when only one club's courts miss, got %v", err)
	}
	if len(tree) != 2 {
		t.Fatalf("expected both clubs still present in tree, got %d", len(tree))
	}
	if len(tree[0].Courts) != 1 {
		t.Fatalf("expected club 1's courts intact, got %d", len(tree[0].Courts))
	}
	if len(tree[1].Courts) != 0 {
		t.Fatalf("expected club 2's courts to degrade to empty, got %d", len(tree[1].Courts))
	}
}

func TestPlanner_GetAvailabilityOptimized_SlotFetchMissDegradesThatCourtOnly(t *testing.T) {
	up := &fakeUpstream{
		clubs: map[string][]models.Club{
			"place-1": {{ID: 1, Name: "Club A"}},
		},
		courts: map[int][]models.Court{
			1: {{ID: 10, ClubID: 1, Name: "Court 1"}, {ID: 11, ClubID: 1, Name: "Court 2"}},
		},
		slots: map[string][]models.Slot{
			slotKey(1, 10, "2026-08-10"): {{Start: "09:00", End: "10:00"}},
		},
		slotsErr: map[string]error{slotKey(1, 11, "2026-08-10"): upstream.ErrNoCachedData},
	}

	p := New(DefaultConfig(), up, &fakeInvalidator{})
	tree, err := p.GetAvailabilityOptimized(context.Background(), "place-1", "2026-08-10")
	if err != nil {
		t.Fatalf("expected nil error when only one court's slots miss, got %v", err)
	}
	if len(tree[0].Courts) != 2 {
		t.Fatalf("expected both courts still present, got %d", len(tree[0].Courts))
	}
	if len(tree[0].Courts[0].Available) != 1 {
		t.Fatalf("expected court 10's slot intact, got %d", len(tree[0].Courts[0].Available))
	}
	if len(tree[0].Courts[1].Available) != 0 {
		t.Fatalf("expected court 11's slots to degrade to empty, got %d", len(tree[0].Courts[1].Available))
	}
}

func TestPlanner_InvalidateCacheForPlace(t *testing.T) {
	inv := &fakeInvalidator{}
	p := New(DefaultConfig(), &fakeUpstream{}, inv)

	if err := p.InvalidateCacheForPlace(context.Background(), "place-1", "2026-08-10"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inv.patterns) != 1 {
		t.Fatalf("expected 1 invalidation call, got %d", len(inv.patterns))
	}

	if err := p.InvalidateCacheForPlace(context.Background(), "place-1", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inv.patterns) != 2 {
		t.Fatalf("expected 2 invalidation calls, got %d", len(inv.patterns))
	}
}
