package coalesce

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestExecuteConcurrent_PreservesOrder(t *testing.T) {
	tasks := make([]Task, 10)
	for i := 0; i < 10; i++ {
		i := i
		tasks[i] = func(ctx context.Context) (interface{}, error) {
			time.Sleep(time.Duration(10-i) * time.Millisecond)
			return i, nil
		}
	}

	results, err := ExecuteConcurrent(context.Background(), tasks, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, r := range results {
		if r.(int) != i {
			t.Fatalf("expected result[%d]=%d, got %v", i, i, r)
		}
	}
}

func TestExecuteConcurrent_BoundsInFlight(t *testing.T) {
	var inFlight atomic.Int32
	var maxObserved atomic.Int32

	tasks := make([]Task, 20)
	for i := range tasks {
		tasks[i] = func(ctx context.Context) (interface{}, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				cur := maxObserved.Load()
				if n <= cur || maxObserved.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			return nil, nil
		}
	}

	_, err := ExecuteConcurrent(context.Background(), tasks, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if maxObserved.Load() > 4 {
		t.Fatalf("expected at most 4 in flight, observed %d", maxObserved.Load())
	}
}

func TestExecuteConcurrent_FailFastPropagates(t *testing.T) {
	wantErr := errors.New("slot fetch failed")
	var started atomic.Int32

	tasks := make([]Task, 10)
	for i := range tasks {
		i := i
		tasks[i] = func(ctx context.Context) (interface{}, error) {
			started.Add(1)
			if i == 2 {
				return nil, wantErr
			}
			<-ctx.Done()
			return nil, ctx.Err()
		}
	}

	_, err := ExecuteConcurrent(context.Background(), tasks, 3)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected propagated error, got %v", err)
	}
}

func TestExecuteConcurrent_EmptyTasks(t *testing.T) {
	results, err := ExecuteConcurrent(context.Background(), nil, 5)
	if err != nil || results != nil {
		t.Fatalf("expected nil, nil for empty input, got %v %v", results, err)
	}
}
