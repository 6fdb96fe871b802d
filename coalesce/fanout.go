package coalesce

import (
	"context"
	"sync"
)

// Task is one unit of fan-out work.
type Task func(ctx context.Context) (interface{}, error)

// ExecuteConcurrent runs tasks with at most maxConcurrency in flight at
// once, returning results in tasks' input order. The first
// task to fail (by completion order, not input order) stops admission of
// any task not yet started; tasks already admitted are allowed to finish,
// but once the call has failed their results are discarded in favor of the
// first error observed.
func ExecuteConcurrent(ctx context.Context, tasks []Task, maxConcurrency int) ([]interface{}, error) {
	if len(tasks) == 0 {
		return nil, nil
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	results := make([]interface{}, len(tasks))
	sem := make(chan struct{}, maxConcurrency)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

admission:
	for i, task := range tasks {
		select {
		case <-runCtx.Done():
			// A prior failure already cancelled intent to start further
			// tasks; stop admitting new ones.
			break admission
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, task Task) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := task(runCtx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				return
			}
			if firstErr == nil {
				results[i] = res
			}
		}(i, task)
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}
