package bus

import (
	"context"
	"errors"
	"sync/atomic"

	"quantbrains/internal/schema"
)

var (
	ErrQueueFull   = errors.New("event queue full")
	ErrQueueClosed = errors.New("event queue closed")
)

// Event is a mailbox notification passed to consumers.
type Event struct {
	Header schema.EventHeader
	// Payload is the raw response file body for EventDataReceived.
	Payload []byte
	// Path is the response file the payload was read from.
	Path string
	// Connected is the new state for EventConnectionChanged.
	Connected bool
	// Err is set for EventError.
	Err error
}

// Queue is a bounded, non-blocking event queue.
type Queue struct {
	ch     chan Event
	closed uint32
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan Event, capacity)}
}

// TryPublish enqueues an event without blocking.
func (q *Queue) TryPublish(e Event) (err error) {
	if q == nil {
		return ErrQueueClosed
	}
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	defer func() {
		// Close may race with a publisher that passed the flag check.
		if recover() != nil {
			err = ErrQueueClosed
		}
	}()
	select {
	case q.ch <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len returns the number of buffered events.
func (q *Queue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.ch)
}

// Close stops the queue from accepting new events.
func (q *Queue) Close() {
	if q == nil {
		return
	}
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// Run consumes events until the context is done or the queue is closed.
func (q *Queue) Run(ctx context.Context, handler func(Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-q.ch:
			if !ok {
				return
			}
			handler(e)
		}
	}
}
