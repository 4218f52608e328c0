// Package workers runs independent jobs on a bounded set of goroutines.
package workers

import (
	"context"
	"runtime"
	"sync"
)

// WorkerPool manages a pool of worker goroutines
type WorkerPool struct {
	numWorkers int
}

// NewWorkerPool creates a new worker pool with the specified number of
// workers. Zero or less means one worker per CPU.
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &WorkerPool{
		numWorkers: numWorkers,
	}
}

// Size returns the configured number of workers.
func (wp *WorkerPool) Size() int {
	return wp.numWorkers
}

// Run executes work for every index in [0, count) and returns the results in
// index order. Jobs not yet started when ctx is cancelled are skipped and
// leave the zero value in their slot; callers should check ctx.Err().
func Run[R any](ctx context.Context, wp *WorkerPool, count int, work func(ctx context.Context, index int) R) []R {
	if count == 0 {
		return []R{}
	}

	jobs := make(chan int, count)
	results := make(chan resultItem[R], count)

	var wg sync.WaitGroup
	numActualWorkers := wp.numWorkers
	if count < numActualWorkers {
		numActualWorkers = count // Don't spawn more workers than jobs
	}

	for i := 0; i < numActualWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, jobs, results, work)
		}()
	}

	for idx := 0; idx < count; idx++ {
		jobs <- idx
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]R, count)
	for result := range results {
		out[result.index] = result.value
	}
	return out
}

// resultItem carries one job's result back to the collector
type resultItem[R any] struct {
	index int
	value R
}

func worker[R any](
	ctx context.Context,
	jobs <-chan int,
	results chan<- resultItem[R],
	work func(ctx context.Context, index int) R,
) {
	for idx := range jobs {
		if ctx.Err() != nil {
			continue
		}
		results <- resultItem[R]{index: idx, value: work(ctx, idx)}
	}
}
