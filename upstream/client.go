// Package upstream implements the C6 Upstream Client: typed operations
// against the courts-rental API, each one layered on the cache, rate
// limiter, breaker, and coalescer so that every caller gets the same
// resilience behavior regardless of which operation it calls.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"courtfabric/breaker"
	"courtfabric/cache"
	"courtfabric/coalesce"
	"courtfabric/models"
	"courtfabric/ratelimit"
)

// requestTimeout is the per-upstream-call timeout (connect+read).
const requestTimeout = 10 * time.Second

// Config holds the client's wiring parameters.
type Config struct {
	BaseURL      string
	FanOutCourts int
	FanOutSlots  int
}

// DefaultConfig mirrors the documented defaults.
func DefaultConfig() Config {
	return Config{BaseURL: "http://localhost:4000", FanOutCourts: 5, FanOutSlots: 10}
}

// Client is the C6 Upstream Client.
type Client struct {
	cfg       Config
	http      *http.Client
	cache     *cache.Cache
	limiter   *ratelimit.Limiter
	breaker   *breaker.Breaker
	coalescer *coalesce.Coalescer
	logger    *log.Logger
}

// New wires a Client from its collaborators.
func New(cfg Config, c *cache.Cache, l *ratelimit.Limiter, b *breaker.Breaker, co *coalesce.Coalescer, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		cfg:       cfg,
		http:      &http.Client{Timeout: requestTimeout},
		cache:     c,
		limiter:   l,
		breaker:   b,
		coalescer: co,
		logger:    logger,
	}
}

// GetClubs lists the clubs registered under placeId, read-through cached.
func (c *Client) GetClubs(ctx context.Context, placeID string) ([]models.Club, error) {
	freshKey := cache.GenerateKey(cache.TypeClubs, placeID)
	staleKey := cache.GenerateStaleKey(cache.TypeClubs, placeID)

	primary := func(ctx context.Context) (interface{}, error) {
		v, err := c.coalescer.ExecuteBatched(ctx, freshKey, func(ctx context.Context) (interface{}, error) {
			if err := c.limiter.Acquire(ctx); err != nil {
				return nil, err
			}

			clubs, err := c.fetchClubs(ctx, placeID)
			if err != nil {
				return nil, err
			}

			c.cache.SetWithIntelligentTTL(ctx, freshKey, clubs, cache.TypeClubs, staleKey)
			c.indexClubToPlace(clubs, placeID)

			go c.prefetchCourtsForClubs(clubs)

			return clubs, nil
		})
		if err != nil {
			return nil, err
		}
		return v, nil
	}

	fallback := func(ctx context.Context) (interface{}, error) {
		return c.clubsFromCache(ctx, freshKey, staleKey)
	}

	result, err := c.breaker.Execute(ctx, primary, fallback)
	if err != nil {
		return nil, err
	}
	return result.([]models.Club), nil
}

// GetCourts lists the courts belonging to clubID, read-through cached.
func (c *Client) GetCourts(ctx context.Context, clubID int) ([]models.Court, error) {
	freshKey := cache.GenerateKey(cache.TypeCourts, clubID)
	staleKey := cache.GenerateStaleKey(cache.TypeCourts, clubID)

	primary := func(ctx context.Context) (interface{}, error) {
		return c.coalescer.ExecuteBatched(ctx, freshKey, func(ctx context.Context) (interface{}, error) {
			if err := c.limiter.Acquire(ctx); err != nil {
				return nil, err
			}

			courts, err := c.fetchCourts(ctx, clubID)
			if err != nil {
				return nil, err
			}

			c.cache.SetWithIntelligentTTL(ctx, freshKey, courts, cache.TypeCourts, staleKey)
			return courts, nil
		})
	}

	fallback := func(ctx context.Context) (interface{}, error) {
		return c.courtsFromCache(ctx, freshKey, staleKey)
	}

	result, err := c.breaker.Execute(ctx, primary, fallback)
	if err != nil {
		return nil, err
	}
	return result.([]models.Court), nil
}

// GetAvailableSlots lists the bookable slots for (clubID, courtID) on date
// (yyyy-mm-dd), read-through cached.
func (c *Client) GetAvailableSlots(ctx context.Context, clubID, courtID int, date string) ([]models.Slot, error) {
	freshKey := cache.GenerateKey(cache.TypeSlots, clubID, courtID, date)
	staleKey := cache.GenerateStaleKey(cache.TypeSlots, clubID, courtID, date)

	primary := func(ctx context.Context) (interface{}, error) {
		return c.coalescer.ExecuteBatched(ctx, freshKey, func(ctx context.Context) (interface{}, error) {
			if err := c.limiter.Acquire(ctx); err != nil {
				return nil, err
			}

			slots, err := c.fetchSlots(ctx, clubID, courtID, date)
			if err != nil {
				return nil, err
			}

			c.cache.SetWithIntelligentTTL(ctx, freshKey, slots, cache.TypeSlots, staleKey)
			return slots, nil
		})
	}

	fallback := func(ctx context.Context) (interface{}, error) {
		return c.slotsFromCache(ctx, freshKey, staleKey)
	}

	result, err := c.breaker.Execute(ctx, primary, fallback)
	if err != nil {
		return nil, err
	}
	return result.([]models.Slot), nil
}

// LookupPlaceForClub resolves the placeId a club was last fetched under, if
// any process has ever fetched it through GetClubs.
func (c *Client) LookupPlaceForClub(ctx context.Context, clubID int) (string, bool) {
	key := cache.GenerateKey(cache.TypeClubToPlace, clubID)
	res := c.cache.GetWithFallback(ctx, key, "")
	if res.Data == nil {
		return "", false
	}
	var placeID string
	if err := cache.Decode(res.Data, &placeID); err != nil {
		return "", false
	}
	return placeID, true
}

func (c *Client) indexClubToPlace(clubs []models.Club, placeID string) {
	ctx := context.Background()
	for _, club := range clubs {
		key := cache.GenerateKey(cache.TypeClubToPlace, club.ID)
		c.cache.SetWithIntelligentTTL(ctx, key, placeID, cache.TypeClubToPlace, "")
	}
}

// prefetchCourtsForClubs warms the courts tier for every club just listed.
// Failures are logged, not surfaced: this runs off the query path.
func (c *Client) prefetchCourtsForClubs(clubs []models.Club) {
	ctx := context.Background()
	for _, club := range clubs {
		if _, err := c.GetCourts(ctx, club.ID); err != nil {
			c.logger.Printf("prefetch courts for club %d failed: %v", club.ID, err)
		}
	}
}

func (c *Client) clubsFromCache(ctx context.Context, freshKey, staleKey string) (interface{}, error) {
	res := c.cache.GetWithFallback(ctx, freshKey, staleKey)
	if res.Data == nil {
		return nil, ErrNoCachedData
	}
	var clubs []models.Club
	if err := cache.Decode(res.Data, &clubs); err != nil {
		return nil, ErrNoCachedData
	}
	return clubs, nil
}

func (c *Client) courtsFromCache(ctx context.Context, freshKey, staleKey string) (interface{}, error) {
	res := c.cache.GetWithFallback(ctx, freshKey, staleKey)
	if res.Data == nil {
		return nil, ErrNoCachedData
	}
	var courts []models.Court
	if err := cache.Decode(res.Data, &courts); err != nil {
		return nil, ErrNoCachedData
	}
	return courts, nil
}

func (c *Client) slotsFromCache(ctx context.Context, freshKey, staleKey string) (interface{}, error) {
	res := c.cache.GetWithFallback(ctx, freshKey, staleKey)
	if res.Data == nil {
		return nil, ErrNoCachedData
	}
	var slots []models.Slot
	if err := cache.Decode(res.Data, &slots); err != nil {
		return nil, ErrNoCachedData
	}
	return slots, nil
}

func (c *Client) fetchClubs(ctx context.Context, placeID string) ([]models.Club, error) {
	u := fmt.Sprintf("%s/clubs?placeId=%s", c.cfg.BaseURL, url.QueryEscape(placeID))
	var clubs []models.Club
	if err := c.getJSON(ctx, u, &clubs); err != nil {
		return nil, err
	}
	return clubs, nil
}

func (c *Client) fetchCourts(ctx context.Context, clubID int) ([]models.Court, error) {
	u := fmt.Sprintf("%s/clubs/%d/courts", c.cfg.BaseURL, clubID)
	var courts []models.Court
	if err := c.getJSON(ctx, u, &courts); err != nil {
		return nil, err
	}
	return courts, nil
}

func (c *Client) fetchSlots(ctx context.Context, clubID, courtID int, date string) ([]models.Slot, error) {
	u := fmt.Sprintf("%s/clubs/%d/courts/%d/slots?date=%s", c.cfg.BaseURL, clubID, courtID, url.QueryEscape(date))
	var slots []models.Slot
	if err := c.getJSON(ctx, u, &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

// getJSON issues a GET against u and decodes the JSON array body into out.
// A 4xx response is client-attributable (e.g. an unknown placeId): it is
// not retried and not counted as a breaker failure, decoding instead to an
// empty result. A 5xx or transport error is ErrUpstreamFailure and is
// counted.
func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		c.logger.Printf("upstream %s returned %d, treating as empty", rawURL, resp.StatusCode)
		return nil
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrUpstreamFailure, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}
	return nil
}

// Metrics returns the composed metrics surface for the upstream client.
func (c *Client) Metrics() models.UpstreamMetrics {
	return models.UpstreamMetrics{
		Breaker:   c.breaker.Metrics(),
		KV:        c.cache.Metrics(),
		RateLimit: c.limiter.Metrics(),
	}
}
