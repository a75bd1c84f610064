// Package parallel runs independent jobs over a bounded set of goroutines.
package parallel

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// PoolConfig configures a WorkerPool.
type PoolConfig struct {
	// MaxWorkers is the maximum number of concurrent workers.
	// Default: NumCPU clamped to [2, 8].
	MaxWorkers int

	// Timeout bounds a whole ExecuteFunc call. Zero means no timeout.
	Timeout time.Duration
}

// DefaultPoolConfig returns a default pool configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{MaxWorkers: min(max(runtime.NumCPU(), 2), 8)}
}

// WithWorkers returns a copy of c running n workers. n <= 0 keeps the default.
func (c PoolConfig) WithWorkers(n int) PoolConfig {
	if n > 0 {
		c.MaxWorkers = n
	}
	return c
}

// WithTimeout returns a copy of c with the given timeout.
func (c PoolConfig) WithTimeout(d time.Duration) PoolConfig {
	c.Timeout = d
	return c
}

// TaskResult holds the outcome of one input.
type TaskResult[T any, R any] struct {
	Input    T
	Result   R
	Error    error
	Duration time.Duration
	// Skipped is set for inputs never started because the context ended.
	Skipped bool
}

// WorkerPool applies a function to a batch of inputs concurrently.
type WorkerPool[T any, R any] struct {
	config PoolConfig
}

// NewWorkerPool creates a pool with the given configuration.
func NewWorkerPool[T any, R any](config PoolConfig) *WorkerPool[T, R] {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = DefaultPoolConfig().MaxWorkers
	}
	return &WorkerPool[T, R]{config: config}
}

// Workers returns the configured number of workers.
func (p *WorkerPool[T, R]) Workers() int {
	return p.config.MaxWorkers
}

// ExecuteFunc calls fn for every input and returns the results in input
// order. Once ctx is done no further input is started; those results are
// marked Skipped.
func (p *WorkerPool[T, R]) ExecuteFunc(ctx context.Context, inputs []T, fn func(ctx context.Context, input T) (R, error)) []TaskResult[T, R] {
	if len(inputs) == 0 {
		return nil
	}
	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	results := make([]TaskResult[T, R], len(inputs))
	for i, in := range inputs {
		results[i] = TaskResult[T, R]{Input: in, Skipped: true}
	}

	next := make(chan int)
	var wg sync.WaitGroup
	for range min(p.config.MaxWorkers, len(inputs)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range next {
				start := time.Now()
				res, err := fn(ctx, inputs[idx])
				results[idx] = TaskResult[T, R]{
					Input:    inputs[idx],
					Result:   res,
					Error:    err,
					Duration: time.Since(start),
				}
			}
		}()
	}

feed:
	for i := range inputs {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break feed
		case next <- i:
		}
	}
	close(next)
	wg.Wait()
	return results
}
