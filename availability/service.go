// Package availability wires the query-side core (C1-C7) into a single
// Encore service: the KV adapter, two-tier cache, rate limiter, breaker,
// coalescer and upstream client compose into a *upstream.Client, which the
// Availability Planner expands into the hydrated response tree.
package availability

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"courtfabric/breaker"
	"courtfabric/cache"
	"courtfabric/coalesce"
	"courtfabric/config"
	"courtfabric/kv"
	"courtfabric/logging"
	"courtfabric/models"
	"courtfabric/planner"
	"courtfabric/ratelimit"
	"courtfabric/upstream"
)

//encore:service
type Service struct {
	planner *planner.Planner
	client  *upstream.Client
}

func initService() (*Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("availability: load config: %w", err)
	}

	kvAdapter := kv.New(kv.Config{
		Host:     cfg.KV.Host,
		Port:     cfg.KV.Port,
		Password: cfg.KV.Password,
		DB:       cfg.KV.DB,
	})
	c := cache.New(kvAdapter)
	limiter := ratelimit.New(ratelimit.Config{
		Limit:  cfg.Upstream.RateLimit,
		Window: time.Duration(cfg.Upstream.RateWindowMs) * time.Millisecond,
	})
	br := breaker.New(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Timeout:          time.Duration(cfg.Breaker.TimeoutMs) * time.Millisecond,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
	})
	co := coalesce.New()
	logger := log.New(os.Stdout, "[availability] ", log.LstdFlags)

	client := upstream.New(upstream.Config{
		BaseURL:      cfg.Upstream.BaseURL,
		FanOutCourts: cfg.FanOut.Courts,
		FanOutSlots:  cfg.FanOut.Slots,
	}, c, limiter, br, co, logger)

	pl := planner.New(planner.Config{
		FanOutCourts: cfg.FanOut.Courts,
		FanOutSlots:  cfg.FanOut.Slots,
	}, client, c)

	return &Service{planner: pl, client: client}, nil
}

var svc *Service

func init() {
	var err error
	svc, err = initService()
	if err != nil {
		panic(fmt.Sprintf("availability: init failed: %v", err))
	}
}

// GetAvailabilityParams is the request body for GetAvailability.
type GetAvailabilityParams struct {
	PlaceID string `json:"placeId"`
	Date    string `json:"date"`
}

// GetAvailabilityResponse wraps the hydrated tree for the public endpoint.
type GetAvailabilityResponse struct {
	Tree models.AvailabilityTree `json:"tree"`
}

// GetAvailability hydrates the clubs -> courts -> available-slots tree for
// (placeId, date). Always returns 200 with a (possibly empty) tree: a
// query never fails because upstream or cache data is unavailable.
//
//encore:api public method=GET path=/api/availability
func GetAvailability(ctx context.Context, params *GetAvailabilityParams) (*GetAvailabilityResponse, error) {
	if svc == nil {
		return nil, fmt.Errorf("availability: service not initialized")
	}
	requestID := logging.NewRequestID()
	ctx = logging.WithRequestID(ctx, requestID)

	tree, err := svc.planner.GetAvailabilityOptimized(ctx, params.PlaceID, params.Date)
	if err != nil {
		logging.Error(ctx, "availability query failed", err, map[string]interface{}{
			"placeId": params.PlaceID, "date": params.Date,
		})
		return &GetAvailabilityResponse{Tree: models.AvailabilityTree{}}, nil
	}
	return &GetAvailabilityResponse{Tree: tree}, nil
}

// WarmClubs fetches and read-through caches placeID's clubs, for the
// warming subsystem. It is a plain wrapper over the shared upstream
// client, so a warming fetch passes through the same rate limiter and
// breaker as a foreground query.
//
//encore:api private
func WarmClubs(ctx context.Context, placeID string) error {
	if svc == nil {
		return fmt.Errorf("availability: service not initialized")
	}
	_, err := svc.client.GetClubs(ctx, placeID)
	return err
}

// WarmCourts fetches and read-through caches clubID's courts.
//
//encore:api private
func WarmCourts(ctx context.Context, clubID int) error {
	if svc == nil {
		return fmt.Errorf("availability: service not initialized")
	}
	_, err := svc.client.GetCourts(ctx, clubID)
	return err
}

// WarmSlotsParams is the request body for WarmSlots.
type WarmSlotsParams struct {
	ClubID  int    `json:"clubId"`
	CourtID int    `json:"courtId"`
	Date    string `json:"date"`
}

// WarmSlots fetches and read-through caches the available slots for
// (clubID, courtID, date).
//
//encore:api private
func WarmSlots(ctx context.Context, params *WarmSlotsParams) error {
	if svc == nil {
		return fmt.Errorf("availability: service not initialized")
	}
	_, err := svc.client.GetAvailableSlots(ctx, params.ClubID, params.CourtID, params.Date)
	return err
}

// MetricsResponse is the composed metrics surface for the query-side core.
type MetricsResponse struct {
	Upstream models.UpstreamMetrics `json:"upstream"`
}

// Metrics reports the composed cache/breaker/rate-limit surface.
//
//encore:api public method=GET path=/api/availability/metrics
func Metrics(ctx context.Context) (*MetricsResponse, error) {
	if svc == nil {
		return nil, fmt.Errorf("availability: service not initialized")
	}
	return &MetricsResponse{Upstream: svc.client.Metrics()}, nil
}
