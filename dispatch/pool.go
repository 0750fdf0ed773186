// Package dispatch runs deferred background tasks on a fixed-size worker pool
// with a bounded queue. Submission never blocks and never drops work: when the
// queue is full the submitting goroutine executes the task itself, so
// saturation surfaces as latency on the submitting path instead of lost tasks.
package dispatch

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Task is a unit of deferred work. Tasks must be self-contained: by the time
// a task runs, the request that produced it has already been answered.
type Task func()

// ErrDrainTimeout signals that tasks were still running when the drain grace
// period elapsed. Abandoned tasks leave their records pending.
var ErrDrainTimeout = errors.New("dispatch: drain grace period elapsed with tasks still running")

// Snapshot is a point-in-time view of pool activity for reporting.
type Snapshot struct {
	ActiveWorkers  int    `json:"activeWorkers"`
	QueueDepth     int    `json:"queueDepth"`
	CompletedTasks uint64 `json:"completedTasks"`
}

// Pool executes tasks on a fixed set of worker goroutines backed by a bounded
// queue. The zero value is not usable; construct with NewPool and call Start.
type Pool struct {
	tasks   chan Task
	workers int

	mu        sync.RWMutex
	accepting bool
	started   bool

	wg        sync.WaitGroup
	active    atomic.Int64
	completed atomic.Uint64
}

// NewPool creates a pool with the given worker count and queue capacity.
// Values below 1 fall back to 1.
func NewPool(workers, queueCapacity int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueCapacity < 1 {
		queueCapacity = 1
	}
	return &Pool{
		tasks:   make(chan Task, queueCapacity),
		workers: workers,
	}
}

// Start launches the worker goroutines. Calling Start twice is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}
	p.started = true
	p.accepting = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.workerLoop()
	}

	log.Printf("[dispatch] pool started: workers=%d queue=%d", p.workers, cap(p.tasks))
}

// Submit hands a task to the pool. If the queue has room the task is enqueued
// and Submit returns immediately. If the queue is full, or the pool has
// stopped accepting work, the task runs synchronously on the calling
// goroutine before Submit returns.
func (p *Pool) Submit(task Task) {
	if task == nil {
		return
	}

	p.mu.RLock()
	if !p.accepting {
		p.mu.RUnlock()
		p.runCallerSide(task)
		return
	}

	select {
	case p.tasks <- task:
		p.mu.RUnlock()
	default:
		p.mu.RUnlock()
		p.runCallerSide(task)
	}
}

// Drain stops accepting new submissions, lets queued and in-flight tasks
// finish, and waits up to grace for the pool to empty. Tasks still running
// when the grace period elapses are abandoned and ErrDrainTimeout is
// returned; the process is expected to exit shortly after.
func (p *Pool) Drain(grace time.Duration) error {
	p.mu.Lock()
	if !p.started || !p.accepting {
		p.mu.Unlock()
		return nil
	}
	p.accepting = false
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Printf("[dispatch] pool drained: completed=%d", p.completed.Load())
		return nil
	case <-time.After(grace):
		log.Printf("[dispatch] drain timeout: active=%d queued=%d", p.active.Load(), len(p.tasks))
		return ErrDrainTimeout
	}
}

// Stats returns a point-in-time snapshot of pool activity.
func (p *Pool) Stats() Snapshot {
	return Snapshot{
		ActiveWorkers:  int(p.active.Load()),
		QueueDepth:     len(p.tasks),
		CompletedTasks: p.completed.Load(),
	}
}

func (p *Pool) workerLoop() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.active.Add(1)
		p.runTask(task)
		p.active.Add(-1)
		p.completed.Add(1)
	}
}

// runCallerSide executes a task on the submitting goroutine. The submitter
// holds no database resources at this point (its commit completed before the
// task was released), so absorbing the latency here is safe.
func (p *Pool) runCallerSide(task Task) {
	p.runTask(task)
	p.completed.Add(1)
}

// runTask is the task boundary: panics stop here, never in a worker loop or
// the submitting request path.
func (p *Pool) runTask(task Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[dispatch] task panic recovered: %v", r)
		}
	}()
	task()
}
