// Package queue provides the bounded admission queue between HTTP ingest
// and the scoring workers.
package queue

import (
	"errors"
	"sync"

	"github.com/aegis-sec/sentinel/internal/core"
)

var (
	// ErrFull means the queue is at or above its admission threshold.
	ErrFull = errors.New("queue at capacity")
	// ErrClosed means the queue no longer accepts events.
	ErrClosed = errors.New("queue closed")
)

// Queue is a bounded FIFO of pending events. Producers are rejected once
// utilization crosses the near-capacity threshold so the system sheds load
// before the buffer is actually exhausted.
type Queue struct {
	ch        chan *core.Event
	capacity  int
	threshold float64

	mu     sync.Mutex
	closed bool
}

// New creates a queue with the given capacity and near-capacity threshold
// (a fraction, e.g. 0.9). Non-positive arguments fall back to 1000 / 0.9.
func New(capacity int, threshold float64) *Queue {
	if capacity <= 0 {
		capacity = 1000
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.9
	}
	return &Queue{
		ch:        make(chan *core.Event, capacity),
		capacity:  capacity,
		threshold: threshold,
	}
}

// Offer admits an event without blocking. It returns the queue position
// (1-based depth after admission), ErrFull when utilization is above the
// threshold, or ErrClosed after Close.
func (q *Queue) Offer(ev *core.Event) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, ErrClosed
	}
	if q.NearCapacity() {
		return 0, ErrFull
	}

	select {
	case q.ch <- ev:
		return len(q.ch), nil
	default:
		return 0, ErrFull
	}
}

// Take blocks until an event is available. ok is false once the queue is
// closed and drained.
func (q *Queue) Take() (ev *core.Event, ok bool) {
	ev, ok = <-q.ch
	return ev, ok
}

// Close stops admission. Queued events remain takeable until drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Depth is the number of queued events.
func (q *Queue) Depth() int { return len(q.ch) }

// Capacity is the configured buffer size.
func (q *Queue) Capacity() int { return q.capacity }

// Utilization is depth/capacity in [0,1].
func (q *Queue) Utilization() float64 {
	return float64(len(q.ch)) / float64(q.capacity)
}

// NearCapacity reports whether utilization is strictly above the admission
// threshold. At exactly the threshold the queue still admits.
func (q *Queue) NearCapacity() bool {
	return q.Utilization() > q.threshold
}
