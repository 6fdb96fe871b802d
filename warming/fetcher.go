package warming

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Fetcher performs the origin fetch for a cache key, sharing the breaker
// and rate limiter with foreground traffic. Implemented by an adapter over
// upstream.Client: warming never talks to the origin directly.
type Fetcher interface {
	Warm(ctx context.Context, key string) error
}

// clientFetcher adapts a typed upstream client to the generic,
// cache-key-addressed Fetcher the predictor and strategies operate over.
// Cache keys are self-describing ("clubs:P1", "courts:42",
// "slots:42:7:2026-08-10"), so warming a key is just dispatching on its
// type prefix back to the matching typed call; the resulting cache write
// is a side effect of the client's own read-through path.
type clientFetcher struct {
	clubs func(ctx context.Context, placeID string) error
	courts func(ctx context.Context, clubID int) error
	slots  func(ctx context.Context, clubID, courtID int, date string) error
}

// NewFetcher wraps the three typed upstream operations warming is allowed
// to trigger. clubs/courts/slots discard their returned data: the call's
// only observable effect warming cares about is the cache write it makes
// along the way.
func NewFetcher(
	clubs func(ctx context.Context, placeID string) error,
	courts func(ctx context.Context, clubID int) error,
	slots func(ctx context.Context, clubID, courtID int, date string) error,
) Fetcher {
	return &clientFetcher{clubs: clubs, courts: courts, slots: slots}
}

func (f *clientFetcher) Warm(ctx context.Context, key string) error {
	typ, params, err := parseCacheKey(key)
	if err != nil {
		return err
	}

	switch typ {
	case "clubs":
		if len(params) != 1 {
			return fmt.Errorf("warming: malformed clubs key %q", key)
		}
		return f.clubs(ctx, params[0])

	case "courts":
		if len(params) != 1 {
			return fmt.Errorf("warming: malformed courts key %q", key)
		}
		clubID, err := strconv.Atoi(params[0])
		if err != nil {
			return fmt.Errorf("warming: malformed courts key %q: %w", key, err)
		}
		return f.courts(ctx, clubID)

	case "slots":
		if len(params) != 3 {
			return fmt.Errorf("warming: malformed slots key %q", key)
		}
		clubID, err := strconv.Atoi(params[0])
		if err != nil {
			return fmt.Errorf("warming: malformed slots key %q: %w", key, err)
		}
		courtID, err := strconv.Atoi(params[1])
		if err != nil {
			return fmt.Errorf("warming: malformed slots key %q: %w", key, err)
		}
		return f.slots(ctx, clubID, courtID, params[2])

	default:
		return fmt.Errorf("warming: key %q is not a warmable type", key)
	}
}

// parseCacheKey splits a cache key of the form "type:p1:p2:…" or its stale
// mirror "type:stale:p1:p2:…" into its type and parameters, stripping the
// stale marker since warming re-hydrates the fresh tier (which also
// refreshes the stale mirror as a side effect of the normal write path).
func parseCacheKey(key string) (typ string, params []string, err error) {
	parts := strings.Split(key, ":")
	if len(parts) < 2 {
		return "", nil, fmt.Errorf("warming: malformed cache key %q", key)
	}
	typ = parts[0]
	rest := parts[1:]
	if rest[0] == "stale" {
		rest = rest[1:]
	}
	if len(rest) == 0 {
		return "", nil, fmt.Errorf("warming: malformed cache key %q", key)
	}
	return typ, rest, nil
}
