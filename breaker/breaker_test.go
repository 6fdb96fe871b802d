package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func ok(ctx context.Context) (interface{}, error)   { return "ok", nil }
func failing(ctx context.Context) (interface{}, error) { return nil, errors.New("boom") }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 3, Timeout: time.Hour, SuccessThreshold: 2})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b.Execute(ctx, failing, nil)
	}

	if b.State() != Open {
		t.Fatalf("expected OPEN after %d failures, got %s", 3, b.State())
	}
}

func TestBreaker_OpenSuppressesPrimary(t *testing.T) {
	b := New(Config{FailureThreshold: 1, Timeout: time.Hour, SuccessThreshold: 1})
	ctx := context.Background()
	b.Execute(ctx, failing, nil)

	called := false
	primary := func(ctx context.Context) (interface{}, error) {
		called = true
		return "should not run", nil
	}

	_, err := b.Execute(ctx, primary, nil)
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Fatalf("primary must not run while OPEN")
	}
}

func TestBreaker_OpenFallsBackToFallback(t *testing.T) {
	b := New(Config{FailureThreshold: 1, Timeout: time.Hour, SuccessThreshold: 1})
	ctx := context.Background()
	b.Execute(ctx, failing, nil)

	result, err := b.Execute(ctx, failing, ok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Fatalf("expected fallback result, got %v", result)
	}
}

func TestBreaker_HalfOpenAfterTimeout(t *testing.T) {
	b := New(Config{FailureThreshold: 1, Timeout: 10 * time.Millisecond, SuccessThreshold: 2})
	ctx := context.Background()
	b.Execute(ctx, failing, nil)

	time.Sleep(15 * time.Millisecond)

	called := false
	primary := func(ctx context.Context) (interface{}, error) {
		called = true
		return "trial", nil
	}
	b.Execute(ctx, primary, nil)
	if !called {
		t.Fatalf("expected trial call to run in HALF_OPEN")
	}
	if b.State() != HalfOpen {
		t.Fatalf("expected HALF_OPEN after one trial success with threshold 2, got %s", b.State())
	}
}

func TestBreaker_ClosesAfterSuccessThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 1, Timeout: 5 * time.Millisecond, SuccessThreshold: 2})
	ctx := context.Background()
	b.Execute(ctx, failing, nil)
	time.Sleep(10 * time.Millisecond)

	b.Execute(ctx, ok, nil)
	b.Execute(ctx, ok, nil)

	if b.State() != Closed {
		t.Fatalf("expected CLOSED after success threshold met, got %s", b.State())
	}
}

func TestBreaker_HalfOpenFailureReturnsToOpen(t *testing.T) {
	b := New(Config{FailureThreshold: 1, Timeout: 5 * time.Millisecond, SuccessThreshold: 2})
	ctx := context.Background()
	b.Execute(ctx, failing, nil)
	time.Sleep(10 * time.Millisecond)

	b.Execute(ctx, failing, nil)

	if b.State() != Open {
		t.Fatalf("expected OPEN after HALF_OPEN trial failure, got %s", b.State())
	}
}
