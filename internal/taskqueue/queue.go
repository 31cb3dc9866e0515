// Package taskqueue is the MPMC channel that connects the HTTP dispatcher
// (C8) to the isolate pool (C6): any isolate may consume any task,
// ordering across consumers is not preserved, and closing the queue
// drains isolates cleanly at shutdown. Notification-bus (C2) messages do
// not pass through it; each isolate receives them on its own bus
// subscription.
//
// Grounded on the teacher's ChannelNotifier (internal/queue/notifier.go):
// the same subscribe/close lifecycle, widened from signal-only ("wake up
// and poll") to a channel that carries the actual domain.Task payload,
// since nino has no database-backed queue to poll behind it.
package taskqueue

import (
	"context"
	"sync"

	"nino/internal/domain"
	"nino/internal/metrics"
)

// Queue is a single shared channel of domain.Task. Its capacity is the
// only backpressure point in the pipeline: once full, Enqueue blocks the
// dispatcher goroutine submitting the task.
type Queue struct {
	ch     chan domain.Task
	mu     sync.Mutex
	closed bool
}

// New creates a Queue with the given buffer capacity.
func New(capacity int) *Queue {
	return &Queue{ch: make(chan domain.Task, capacity)}
}

// ErrClosed is returned by Enqueue once the queue has been closed.
var ErrClosed = errClosed{}

type errClosed struct{}

func (errClosed) Error() string { return "taskqueue: closed" }

// Enqueue submits a task for any idle isolate to pick up. It blocks if the
// queue is full or ctx is cancelled first. Callers must stop enqueueing
// before calling Close; Enqueue does not itself guard against a concurrent
// Close racing the channel send.
func (q *Queue) Enqueue(ctx context.Context, t domain.Task) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return ErrClosed
	}
	select {
	case q.ch <- t:
		metrics.TaskQueueDepth.Set(float64(len(q.ch)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Next blocks until a task is available, the queue is closed, or done
// fires. The ok result is false only when the queue has been closed and
// drained.
func (q *Queue) Next(done <-chan struct{}) (domain.Task, bool) {
	select {
	case t, ok := <-q.ch:
		metrics.TaskQueueDepth.Set(float64(len(q.ch)))
		return t, ok
	case <-done:
		return domain.Task{}, false
	}
}

// Chan exposes the raw channel for callers that need to select on it
// alongside other event sources (the isolate pool selects between this
// and its per-isolate notification-bus subscription).
func (q *Queue) Chan() <-chan domain.Task {
	return q.ch
}

// Close stops accepting new tasks; isolates blocked in Next observe the
// channel closing and return ok=false once the buffer empties.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
