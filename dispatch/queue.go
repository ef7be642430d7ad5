// Package dispatch provides the execution boundary that runs domain
// notifications one at a time, in arrival order, away from the feed goroutine.
package dispatch

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Schedule once the queue has been closed.
var ErrClosed = errors.New("dispatch: queue closed")

// Task is a unit of work executed on the dispatch boundary.
type Task func()

// Dispatcher accepts tasks for FIFO, single-threaded execution. Schedule never
// waits for the task to run.
type Dispatcher interface {
	Schedule(task Task) error
}

// Queue is an unbounded FIFO task queue with a single logical consumer.
//
// Tasks are executed either by Run on a dedicated goroutine, or by Drain from
// a host loop (e.g. a game tick). Run and Drain never execute tasks
// concurrently with each other.
type Queue struct {
	mu     sync.Mutex
	tasks  []Task
	closed bool
	signal chan struct{} // buffered, size 1; closed by Close

	exec    sync.Mutex
	onPanic func(recovered any)
}

type Option func(*Queue)

// WithPanicHandler is called with the recovered value when a task panics.
// The queue keeps running either way.
func WithPanicHandler(fn func(recovered any)) Option {
	return func(q *Queue) { q.onPanic = fn }
}

func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		tasks:  make([]Task, 0, 64),
		signal: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Schedule appends task to the queue. Safe from any goroutine.
func (q *Queue) Schedule(task Task) error {
	if task == nil {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.tasks = append(q.tasks, task)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

func (q *Queue) tryDequeue() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil, false
	}
	t := q.tasks[0]
	q.tasks[0] = nil
	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}
	return t, true
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Drain runs every queued task on the calling goroutine and returns how many ran.
func (q *Queue) Drain() int {
	q.exec.Lock()
	defer q.exec.Unlock()

	n := 0
	for {
		t, ok := q.tryDequeue()
		if !ok {
			return n
		}
		q.run(t)
		n++
	}
}

func (q *Queue) run(t Task) {
	defer func() {
		if r := recover(); r != nil && q.onPanic != nil {
			q.onPanic(r)
		}
	}()
	t()
}

// Run consumes tasks until the queue is closed and empty, or ctx is done.
// Tasks queued before Close still run.
func (q *Queue) Run(ctx context.Context) error {
	for {
		q.Drain()

		q.mu.Lock()
		finished := q.closed && len(q.tasks) == 0
		q.mu.Unlock()
		if finished {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.signal:
		}
	}
}

// Close stops accepting tasks and wakes Run so it can finish the backlog.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
