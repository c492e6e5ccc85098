// Package parallel provides the worker pool that runs mutually unordered
// update jobs of one scheduler wave.
package parallel

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// ErrPanic wraps a panic recovered from a task.
var ErrPanic = errors.New("parallel: task panicked")

// Task is one unit of work. Its error is reported in the slot of the same
// index returned by ExecuteAll.
type Task func() error

// WorkerPool is a pool of goroutines with per-worker queues.
//
// Workers primarily pull from their own queue and steal from the others
// when it is empty, so one slow job does not hold back the rest of a wave.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers int

	// workQueues holds per-worker work queues.
	workQueues []chan func()

	// done signals workers to stop.
	done chan struct{}

	// wg waits for all workers to finish.
	wg sync.WaitGroup

	// running indicates whether the pool is accepting work.
	running atomic.Bool
}

// NewWorkerPool creates a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers:    workers,
		workQueues: make([]chan func(), workers),
		done:       make(chan struct{}),
	}
	for i := range workers {
		p.workQueues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

// worker is the main loop for each worker goroutine.
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	myQueue := p.workQueues[id]
	for {
		select {
		case <-p.done:
			p.drainQueue(myQueue)
			return
		case work := <-myQueue:
			work()
		default:
			if stolen := p.steal(id); stolen != nil {
				stolen()
				continue
			}
			// No work anywhere, block on own queue.
			select {
			case <-p.done:
				p.drainQueue(myQueue)
				return
			case work := <-myQueue:
				work()
			}
		}
	}
}

// drainQueue executes all remaining work in a queue.
func (p *WorkerPool) drainQueue(queue chan func()) {
	for {
		select {
		case work := <-queue:
			work()
		default:
			return
		}
	}
}

// steal takes work from another worker's queue, or returns nil.
func (p *WorkerPool) steal(myID int) func() {
	for i := range p.workers {
		if i == myID {
			continue
		}
		select {
		case work := <-p.workQueues[i]:
			return work
		default:
		}
	}
	return nil
}

// ExecuteAll runs every task and waits for all of them. The returned
// slice holds the error of tasks[i] at index i; a panicking task yields an
// error wrapping ErrPanic and does not affect the others.
//
// A single task, or a closed pool, runs on the calling goroutine.
func (p *WorkerPool) ExecuteAll(tasks []Task) []error {
	errs := make([]error, len(tasks))
	if len(tasks) == 0 {
		return errs
	}
	if len(tasks) == 1 || !p.running.Load() {
		for i, task := range tasks {
			errs[i] = run(task)
		}
		return errs
	}

	var completionWG sync.WaitGroup
	completionWG.Add(len(tasks))
	for i, task := range tasks {
		work := func() {
			defer completionWG.Done()
			errs[i] = run(task)
		}
		select {
		case p.workQueues[i%p.workers] <- work:
		case <-p.done:
			// Closing; run inline so the wave still completes.
			work()
		}
	}
	completionWG.Wait()
	return errs
}

// run calls task, converting a panic into an error.
func run(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrPanic, r, debug.Stack())
		}
	}()
	return task()
}

// Close stops accepting work, finishes queued work and stops all workers.
// Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}
