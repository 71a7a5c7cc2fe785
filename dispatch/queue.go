// Package dispatch provides a serial executor that keeps session
// callbacks, scan requests and UI edges on one goroutine.
package dispatch

import (
	"log"
	"sync"
)

// Queue runs submitted functions one at a time, in submission order, on a
// dedicated worker goroutine. Submitting never blocks, so tasks may
// enqueue more work.
type Queue struct {
	name     string
	mu       sync.Mutex
	tasks    []func()
	stopped  bool
	wake     chan struct{}
	stopChan chan struct{}
	stopOnce sync.Once
	workerWg sync.WaitGroup
}

// NewQueue starts a queue and its worker.
func NewQueue(name string) *Queue {
	q := &Queue{
		name:     name,
		wake:     make(chan struct{}, 1),
		stopChan: make(chan struct{}),
	}
	q.workerWg.Add(1)
	go q.worker()
	return q
}

// Name returns the queue's name.
func (q *Queue) Name() string {
	return q.name
}

// Async schedules fn and returns immediately. It reports false, and drops
// fn, once the queue is stopped.
func (q *Queue) Async(fn func()) bool {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Sync runs fn on the queue and waits for it to finish. It must not be
// called from a task running on the same queue. Returns false if the queue
// is stopped.
func (q *Queue) Sync(fn func()) bool {
	done := make(chan struct{})
	if !q.Async(func() {
		defer close(done)
		fn()
	}) {
		return false
	}
	<-done
	return true
}

// Stop stops accepting work, runs what is already queued, and waits for
// the worker to exit. Safe to call more than once; must not be called
// from a task.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		q.mu.Unlock()
		close(q.stopChan)
	})
	q.workerWg.Wait()
}

func (q *Queue) next() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}
	fn := q.tasks[0]
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	return fn, true
}

func (q *Queue) drain() {
	for {
		fn, ok := q.next()
		if !ok {
			return
		}
		q.run(fn)
	}
}

func (q *Queue) worker() {
	defer q.workerWg.Done()

	for {
		select {
		case <-q.wake:
			q.drain()
		case <-q.stopChan:
			q.drain()
			return
		}
	}
}

func (q *Queue) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[%s] task panic recovered: %v", q.name, r)
		}
	}()
	fn()
}
