// Package threading provides the execution utilities used by blocks and the
// pipeline: a fixed-size task pool, a low-jitter sleep for frame pacing, and
// platform-gated CPU pinning.
package threading

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/shirou/gopsutil/v4/cpu"
)

// ErrPoolClosed is returned for tasks submitted after Shutdown.
var ErrPoolClosed = errors.New("task pool closed")

// DefaultWorkerCount returns the logical CPU count, falling back to the
// runtime's view when the probe fails. Never less than 1.
func DefaultWorkerCount() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		n = runtime.NumCPU()
	}
	if n < 1 {
		n = 1
	}
	return n
}

// TaskPool runs submitted tasks on a fixed set of worker goroutines.
// Shutdown stops admissions, lets queued tasks finish, and joins the
// workers.
type TaskPool struct {
	tasks chan func()
	wg    sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	workers int
}

// NewTaskPool creates a pool with the given worker count. A count of 0 or
// less uses DefaultWorkerCount.
func NewTaskPool(workers int) *TaskPool {
	if workers <= 0 {
		workers = DefaultWorkerCount()
	}
	p := &TaskPool{
		tasks:   make(chan func(), 4*workers),
		workers: workers,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Workers returns the worker count.
func (p *TaskPool) Workers() int { return p.workers }

// Pending returns the number of queued tasks not yet picked up.
func (p *TaskPool) Pending() int { return len(p.tasks) }

func (p *TaskPool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		task()
	}
}

func runTask(task func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return task()
}

// Submit enqueues a task and returns a buffered channel that receives its
// result exactly once. A panicking task is reported as an error. Submit
// blocks while the queue is full; after Shutdown it delivers ErrPoolClosed
// without running the task.
func (p *TaskPool) Submit(task func() error) <-chan error {
	out := make(chan error, 1)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		out <- ErrPoolClosed
		return out
	}
	p.tasks <- func() {
		out <- runTask(task)
	}
	return out
}

// TrySubmit enqueues a task only if the queue has room, returning false
// otherwise. The result channel is nil when the task was not accepted.
func (p *TaskPool) TrySubmit(task func() error) (<-chan error, bool) {
	out := make(chan error, 1)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, false
	}
	select {
	case p.tasks <- func() { out <- runTask(task) }:
		return out, true
	default:
		return nil, false
	}
}

// Shutdown stops accepting tasks, waits for queued tasks to finish, and
// joins the workers. Safe to call more than once.
func (p *TaskPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
}
