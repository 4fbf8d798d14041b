package cartsync

import (
	"context"
	"sync"
)

type task struct {
	op    string
	epoch uint64
	run   func(ctx context.Context)
}

// taskQueue is an unbounded FIFO drained by a single worker. Producers never
// block, so store listeners can enqueue while holding no locks of ours.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []task
	closed bool
	wake   chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{wake: make(chan struct{}, 1)}
}

// push appends t. It returns false once the queue is closed.
func (q *taskQueue) push(t task) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// next blocks until a task is available, the queue is closed or ctx is done.
func (q *taskQueue) next(ctx context.Context) (task, bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return task{}, false
		}
		if len(q.tasks) > 0 {
			t := q.tasks[0]
			q.tasks[0] = task{}
			q.tasks = q.tasks[1:]
			q.mu.Unlock()
			return t, true
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			return task{}, false
		}
	}
}

// close drops pending tasks and rejects further pushes.
func (q *taskQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.tasks = nil
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *taskQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
