package queue

import (
	"context"
	"sync"

	"github.com/contre95/csvinserter/src/features/ingesting"
)

// InMemoryQueue is an unbounded FIFO implementation of the ingesting.Queue interface.
// Any number of goroutines may push; a single consumer pops.
type InMemoryQueue struct {
	mu       sync.Mutex
	items    []ingesting.FileEvent
	closed   bool
	released bool
	wake     chan struct{}
}

// NewInMemoryQueue creates a new in-memory queue
func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{wake: make(chan struct{}, 1)}
}

// Push appends an event to the tail of the queue
func (q *InMemoryQueue) Push(event ingesting.FileEvent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.released {
		return ingesting.ErrReceiverGone
	}
	if q.closed {
		return ingesting.ErrQueueClosed
	}
	q.items = append(q.items, event)
	q.signal()
	return nil
}

// Pop removes the event at the head of the queue, waiting for one if needed
func (q *InMemoryQueue) Pop(ctx context.Context) (ingesting.FileEvent, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			event := q.items[0]
			q.items[0] = ingesting.FileEvent{}
			q.items = q.items[1:]
			if len(q.items) == 0 {
				// let the backing array go once drained
				q.items = nil
			}
			q.mu.Unlock()
			return event, nil
		}
		if q.closed || q.released {
			q.mu.Unlock()
			return ingesting.FileEvent{}, ingesting.ErrQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			return ingesting.FileEvent{}, ctx.Err()
		}
	}
}

// Close stops accepting new events. Queued events can still be popped.
func (q *InMemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.signal()
}

// Release drops every queued event and makes further pushes fail
func (q *InMemoryQueue) Release() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.released = true
	q.items = nil
	q.signal()
}

// Len returns the number of queued events
func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// signal must be called with mu held.
func (q *InMemoryQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
