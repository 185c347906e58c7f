// Package performance provides bounded concurrency helpers for background jobs.
package performance

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool manages a fixed number of workers for concurrent task execution.
type WorkerPool struct {
	workers int
	taskQueue  chan func(ctx context.Context)
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	running    atomic.Bool
	tasksTotal atomic.Uint64
	tasksDone  atomic.Uint64
}

// NewWorkerPool creates a new worker pool with the specified number of workers.
// If workers is 0, it defaults to runtime.NumCPU(). Tasks receive a context
// derived from parent that is cancelled by Stop.
func NewWorkerPool(parent context.Context, workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(parent)
	return &WorkerPool{
		workers:   workers,
		taskQueue: make(chan func(ctx context.Context), workers),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start starts the worker pool.
func (p *WorkerPool) Start() {
	if p.running.Swap(true) {
		return // Already running
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for task := range p.taskQueue {
		task(p.ctx)
		p.tasksDone.Add(1)
	}
}

// Submit queues a task, blocking while all workers are busy. It returns false
// if the pool is not running or its context is done.
func (p *WorkerPool) Submit(task func(ctx context.Context)) bool {
	if !p.running.Load() || p.ctx.Err() != nil {
		return false
	}

	select {
	case <-p.ctx.Done():
		return false
	case p.taskQueue <- task:
		p.tasksTotal.Add(1)
		return true
	}
}

// Wait closes the queue and waits for submitted tasks to finish. The pool
// cannot be reused afterwards.
func (p *WorkerPool) Wait() {
	if !p.running.Swap(false) {
		return // Not running
	}

	close(p.taskQueue)
	p.wg.Wait()
	p.cancel()
}

// Stop cancels the task context and waits for the workers to exit.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.Wait()
}

// Stats returns pool statistics.
func (p *WorkerPool) Stats() PoolStats {
	return PoolStats{
		Workers:    p.workers,
		Running:    p.running.Load(),
		TasksTotal: p.tasksTotal.Load(),
		TasksDone:  p.tasksDone.Load(),
	}
}

// PoolStats contains worker pool statistics.
type PoolStats struct {
	Workers    int
	Running    bool
	TasksTotal uint64
	TasksDone  uint64
}

// ForEach runs fn for every item with at most workers running at once and
// returns after all of them finish or ctx is cancelled.
func ForEach[T any](ctx context.Context, workers int, items []T, fn func(ctx context.Context, item T)) {
	if len(items) == 0 {
		return
	}
	if workers > len(items) {
		workers = len(items)
	}

	pool := NewWorkerPool(ctx, workers)
	pool.Start()
	for _, item := range items {
		item := item
		if !pool.Submit(func(ctx context.Context) { fn(ctx, item) }) {
			break
		}
	}
	pool.Wait()
}
