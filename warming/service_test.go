package warming

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeFetcher struct {
	mu       sync.Mutex
	warmed   []string
	failKeys map[string]bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{failKeys: make(map[string]bool)}
}

func (f *fakeFetcher) Warm(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.warmed = append(f.warmed, key)
	if f.failKeys[key] {
		return errors.New("fetch failed")
	}
	return nil
}

func (f *fakeFetcher) warmedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.warmed))
	copy(out, f.warmed)
	return out
}

type fakeCompletionPublisher struct {
	mu     sync.Mutex
	events []*WarmCompletedEvent
}

func (f *fakeCompletionPublisher) Publish(ctx context.Context, event *WarmCompletedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeCompletionPublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWarmer_WarmKeys_FetchesEachKey(t *testing.T) {
	fetcher := newFakeFetcher()
	w := New(DefaultConfig(), fetcher, NewDefaultPredictor(), nil)
	defer w.Shutdown()

	queued := w.WarmKeys([]string{"clubs:P1", "courts:5"}, 50)
	if queued != 2 {
		t.Fatalf("expected 2 queued, got %d", queued)
	}

	waitUntil(t, time.Second, func() bool { return len(fetcher.warmedKeys()) == 2 })
}

func TestWarmer_WarmPattern_UnknownStrategy(t *testing.T) {
	w := New(DefaultConfig(), newFakeFetcher(), NewDefaultPredictor(), nil)
	defer w.Shutdown()

	_, err := w.WarmPattern(context.Background(), []string{"clubs:P1"}, "nonexistent", 0, 0)
	if err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestWarmer_TriggerPredictive_UsesPredictorOutput(t *testing.T) {
	fetcher := newFakeFetcher()
	predictor := NewDefaultPredictor()
	predictor.RecordAccess("clubs:P1")
	predictor.RecordAccess("clubs:P1")

	w := New(DefaultConfig(), fetcher, predictor, nil)
	defer w.Shutdown()

	queued, err := w.TriggerPredictive(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if queued != 1 {
		t.Fatalf("expected 1 queued, got %d", queued)
	}

	waitUntil(t, time.Second, func() bool { return len(fetcher.warmedKeys()) == 1 })
}

func TestWarmer_TriggerPredictive_NoHotKeys(t *testing.T) {
	w := New(DefaultConfig(), newFakeFetcher(), NewDefaultPredictor(), nil)
	defer w.Shutdown()

	queued, err := w.TriggerPredictive(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if queued != 0 {
		t.Fatalf("expected 0 queued, got %d", queued)
	}
}

func TestWarmer_ExecuteWarmTask_PublishesCompletion(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.failKeys["courts:99"] = true
	publisher := &fakeCompletionPublisher{}

	cfg := DefaultConfig()
	cfg.RetryAttempts = 0
	w := New(cfg, fetcher, NewDefaultPredictor(), publisher)
	defer w.Shutdown()

	if err := w.ExecuteWarmTask(context.Background(), WarmTask{Key: "clubs:P1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := w.ExecuteWarmTask(context.Background(), WarmTask{Key: "courts:99"}); err == nil {
		t.Fatal("expected error for failing key")
	}

	if publisher.count() != 2 {
		t.Fatalf("expected 2 published completions, got %d", publisher.count())
	}

	snap := w.MetricsSnapshot()
	if snap.Completed != 1 {
		t.Errorf("expected 1 completed, got %d", snap.Completed)
	}
	if snap.Failed != 1 {
		t.Errorf("expected 1 failed, got %d", snap.Failed)
	}
}

func TestWarmer_RecordAccess_FeedsPredictor(t *testing.T) {
	predictor := NewDefaultPredictor()
	w := New(DefaultConfig(), newFakeFetcher(), predictor, nil)
	defer w.Shutdown()

	w.RecordAccess("clubs:P1")
	if predictor.Stats().TrackedKeys != 1 {
		t.Fatalf("expected predictor to track 1 key, got %d", predictor.Stats().TrackedKeys)
	}
}

func TestWorkerPool_DropsExcessBeyondQueueSize(t *testing.T) {
	fetcher := newFakeFetcher()
	cfg := DefaultConfig()
	cfg.QueueSize = 1
	cfg.ConcurrentWarmers = 1
	w := New(cfg, fetcher, NewDefaultPredictor(), nil)
	defer w.Shutdown()

	tasks := make([]WarmTask, 10)
	for i := range tasks {
		tasks[i] = WarmTask{Key: "clubs:P1"}
	}
	queued := w.workerPool.QueueTasks(tasks)
	if queued >= len(tasks) {
		t.Fatalf("expected some tasks to be dropped under backpressure, queued=%d", queued)
	}
}
