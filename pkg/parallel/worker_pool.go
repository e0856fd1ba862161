// Package parallel provides a generic worker pool with ordered results.
package parallel

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// ============================================================================
// Worker Pool Configuration
// ============================================================================

// PoolConfig configures the worker pool behavior.
type PoolConfig struct {
	// MaxWorkers is the maximum number of concurrent workers.
	// Default: min(runtime.NumCPU(), 8). A value of 1 runs tasks strictly
	// one after another.
	MaxWorkers int

	// TaskBufferSize is the buffer size for the task channel.
	// Default: MaxWorkers * 2
	TaskBufferSize int

	// Timeout is the maximum time for the entire operation.
	// Default: 0 (no timeout)
	Timeout time.Duration
}

// DefaultPoolConfig returns a default pool configuration.
func DefaultPoolConfig() PoolConfig {
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8 // Cap at 8 to avoid excessive overhead
	}
	if workers < 2 {
		workers = 2
	}
	return PoolConfig{
		MaxWorkers:     workers,
		TaskBufferSize: workers * 2,
	}
}

// WithWorkers returns a new config with the specified number of workers.
// Non-positive values keep the default.
func (c PoolConfig) WithWorkers(n int) PoolConfig {
	if n > 0 {
		c.MaxWorkers = n
		c.TaskBufferSize = n * 2
	}
	return c
}

// WithTimeout returns a new config with the specified timeout.
func (c PoolConfig) WithTimeout(d time.Duration) PoolConfig {
	c.Timeout = d
	return c
}

// TaskResult holds the result of a task execution.
type TaskResult[T any, R any] struct {
	Index    int
	Input    T
	Result   R
	Error    error
	Duration time.Duration
}

// ============================================================================
// Worker Pool
// ============================================================================

// WorkerPool runs a function over a slice of inputs with bounded
// concurrency.
type WorkerPool[T any, R any] struct {
	config PoolConfig
}

// NewWorkerPool creates a new worker pool with the given configuration.
func NewWorkerPool[T any, R any](config PoolConfig) *WorkerPool[T, R] {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = DefaultPoolConfig().MaxWorkers
	}
	if config.TaskBufferSize <= 0 {
		config.TaskBufferSize = config.MaxWorkers * 2
	}
	return &WorkerPool[T, R]{config: config}
}

// Workers returns the configured worker count.
func (p *WorkerPool[T, R]) Workers() int {
	return p.config.MaxWorkers
}

// Stream runs fn over inputs and hands each result to sink in input order,
// on the calling goroutine. Workers keep running ahead while sink handles
// earlier results. Inputs never started because ctx ended are reported with
// ctx.Err(). A sink error cancels the remaining tasks and is returned.
func (p *WorkerPool[T, R]) Stream(
	ctx context.Context,
	inputs []T,
	fn func(ctx context.Context, input T) (R, error),
	sink func(TaskResult[T, R]) error,
) error {
	if len(inputs) == 0 {
		return nil
	}

	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	taskCh := make(chan int, p.config.TaskBufferSize)
	doneCh := make(chan TaskResult[T, R], p.config.TaskBufferSize)

	var wg sync.WaitGroup
	numWorkers := min(p.config.MaxWorkers, len(inputs))
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range taskCh {
				res := TaskResult[T, R]{Index: idx, Input: inputs[idx]}
				if err := ctx.Err(); err != nil {
					res.Error = err
				} else {
					taskStart := time.Now()
					res.Result, res.Error = fn(ctx, inputs[idx])
					res.Duration = time.Since(taskStart)
				}
				doneCh <- res
			}
		}()
	}

	// Every index is submitted so that every input yields a result.
	go func() {
		for i := range inputs {
			taskCh <- i
		}
		close(taskCh)
	}()
	go func() {
		wg.Wait()
		close(doneCh)
	}()

	// Reorder completions so sink sees input order.
	pending := make(map[int]TaskResult[T, R])
	next := 0
	var sinkErr error
	for res := range doneCh {
		if sinkErr != nil {
			continue
		}
		pending[res.Index] = res
		for {
			r, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if err := sink(r); err != nil {
				sinkErr = err
				cancel()
				break
			}
		}
	}

	return sinkErr
}

// Execute runs fn over inputs and returns the results in input order.
func (p *WorkerPool[T, R]) Execute(ctx context.Context, inputs []T, fn func(ctx context.Context, input T) (R, error)) []TaskResult[T, R] {
	results := make([]TaskResult[T, R], 0, len(inputs))
	_ = p.Stream(ctx, inputs, fn, func(r TaskResult[T, R]) error {
		results = append(results, r)
		return nil
	})
	return results
}

// ============================================================================
// Progress Tracking
// ============================================================================

// ProgressTracker reports progress of a long operation on an interval.
type ProgressTracker struct {
	total     int64
	completed atomic.Int64
	callback  func(completed, total int64)
	interval  time.Duration
	stopCh    chan struct{}
	stopped   atomic.Bool
}

// NewProgressTracker creates a new progress tracker.
func NewProgressTracker(total int64, callback func(completed, total int64), interval time.Duration) *ProgressTracker {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &ProgressTracker{
		total:    total,
		callback: callback,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins progress tracking in a background goroutine.
func (pt *ProgressTracker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(pt.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-pt.stopCh:
				return
			case <-ticker.C:
				if pt.callback != nil {
					pt.callback(pt.completed.Load(), pt.total)
				}
			}
		}
	}()
}

// Increment increments the completed count.
func (pt *ProgressTracker) Increment() {
	pt.completed.Add(1)
}

// Stop stops progress tracking.
func (pt *ProgressTracker) Stop() {
	if pt.stopped.CompareAndSwap(false, true) {
		close(pt.stopCh)
	}
}

// Completed returns the current completed count.
func (pt *ProgressTracker) Completed() int64 {
	return pt.completed.Load()
}
