package coalesce

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCoalescer_DeduplicatesConcurrentCallers(t *testing.T) {
	c := New()
	var calls atomic.Int32

	fetch := func(ctx context.Context) (interface{}, error) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		return "value", nil
	}

	var wg sync.WaitGroup
	results := make([]interface{}, 50)
	errs := make([]error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.ExecuteBatched(context.Background(), "shared-key", fetch)
			results[i] = v
			errs[i] = err
		}(i)
	}
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected exactly 1 underlying fetch, got %d", calls.Load())
	}
	for i, v := range results {
		if v != "value" || errs[i] != nil {
			t.Fatalf("caller %d observed inconsistent result: %v %v", i, v, errs[i])
		}
	}
}

func TestCoalescer_SharedFailure(t *testing.T) {
	c := New()
	wantErr := errors.New("upstream down")
	fetch := func(ctx context.Context) (interface{}, error) {
		return nil, wantErr
	}

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.ExecuteBatched(context.Background(), "k", fetch)
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		if !errors.Is(err, wantErr) {
			t.Fatalf("expected shared error, got %v", err)
		}
	}
}

func TestCoalescer_DistinctKeysRunIndependently(t *testing.T) {
	c := New()
	var calls atomic.Int32
	fetch := func(ctx context.Context) (interface{}, error) {
		calls.Add(1)
		return "v", nil
	}

	c.ExecuteBatched(context.Background(), "a", fetch)
	c.ExecuteBatched(context.Background(), "b", fetch)

	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls across distinct keys, got %d", calls.Load())
	}
}
