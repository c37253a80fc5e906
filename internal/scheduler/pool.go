// Package scheduler runs the periodic order-matching and end-of-day jobs.
package scheduler

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool fans per-order work out over a fixed set of goroutines so one
// scheduler tick can process orders concurrently without unbounded spawn.
type WorkerPool struct {
	workers int
	tasks   chan func()
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewWorkerPool creates a worker pool. If workers is 0, it defaults to
// runtime.NumCPU().
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &WorkerPool{
		workers: workers,
		tasks:   make(chan func(), workers*100),
	}
}

// Start launches the workers. Starting a running pool is a no-op.
func (p *WorkerPool) Start() {
	if p.running.Swap(true) {
		return
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}
}

// Submit hands a task to the pool. It returns false if the pool is not
// running or the queue is full; callers then run the task inline.
func (p *WorkerPool) Submit(task func()) bool {
	if !p.running.Load() {
		return false
	}

	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// Stop drains the queue and waits for the workers to finish. Stopping a
// stopped pool is a no-op.
func (p *WorkerPool) Stop() {
	if !p.running.Swap(false) {
		return
	}
	close(p.tasks)
	p.wg.Wait()
}
