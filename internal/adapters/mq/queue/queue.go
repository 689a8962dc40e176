// Package queue buffers suggestion log entries between the request path
// and the sink workers.
package queue

import (
	"context"
	"sync"

	"github.com/okian/tutormarket/internal/domain/model"
	"github.com/okian/tutormarket/pkg/metrics"
)

const defaultQueueCapacity = 10_000

// Entry is the payload flowing through the queue.
type Entry = model.LogEntry

// Queue provides non-blocking enqueue and channel-based dequeue.
type Queue interface {
	// Enqueue adds e without blocking. It returns ErrFull or ErrClosed
	// when the entry was not accepted.
	Enqueue(ctx context.Context, e Entry) error

	// Dequeue returns a channel that receives entries until the queue is
	// closed and drained, or ctx is done.
	Dequeue(ctx context.Context) <-chan Entry

	Len(ctx context.Context) int
	Cap() int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	entries  chan Entry
	capacity int
	mu       sync.RWMutex
	closed   bool

	// reportSize publishes the depth gauge; a Sharded parent reports the
	// aggregate instead.
	reportSize func()
}

// NewInMemoryQueue creates a bounded in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.entries = make(chan Entry, q.capacity)

	if q.reportSize == nil {
		q.reportSize = func() { metrics.UpdateQueueSize(len(q.entries), q.capacity) }
		metrics.UpdateQueueCapacity(q.capacity)
		q.reportSize()
	}
	return q
}

// Enqueue adds an entry to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Entry) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueDropped("closed")
		return ErrClosed
	}

	select {
	case <-ctx.Done():
		metrics.RecordQueueDropped("context_cancelled")
		return ctx.Err()
	default:
	}

	select {
	case q.entries <- e:
		metrics.RecordQueueEnqueue()
		q.reportSize()
		return nil
	default:
		metrics.RecordQueueDropped("full")
		return ErrFull
	}
}

// Dequeue returns a channel that receives entries as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Entry {
	out := make(chan Entry)
	go func() {
		defer close(out)
		for e := range q.entries {
			select {
			case out <- e:
				metrics.RecordQueueDequeue()
				q.reportSize()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued entries.
func (q *InMemoryQueue) Len(context.Context) int {
	return len(q.entries)
}

// Cap returns the queue capacity.
func (q *InMemoryQueue) Cap() int { return q.capacity }

// Close stops accepting entries. Buffered entries remain available to
// Dequeue until drained.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.entries)
	q.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
