// Package queue buffers submitted games between the HTTP handler and the
// ingest workers.
package queue

import (
	"context"
	"sync"

	"github.com/okian/teamelo/internal/domain/model"
	"github.com/okian/teamelo/pkg/metrics"
)

const defaultQueueCapacity = 10_000

// Queue is a FIFO of games.
type Queue interface {
	// Enqueue adds g without blocking. It returns false when the queue is
	// closed, full, or ctx is done.
	Enqueue(ctx context.Context, g model.Game) bool

	// Dequeue returns a channel yielding games in arrival order. The channel
	// closes once the queue is closed and drained, or ctx is done.
	Dequeue(ctx context.Context) <-chan model.Game

	Len(ctx context.Context) int

	Close() error

	IsClosed() bool
}

// InMemoryQueue is a bounded channel-backed Queue.
type InMemoryQueue struct {
	games    chan model.Game
	capacity int

	mu     sync.RWMutex
	closed bool
	// games a cancelled Dequeue took off the channel but never delivered
	undelivered []model.Game
}

// NewInMemoryQueue creates a queue holding up to the configured capacity.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.games = make(chan model.Game, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Capacity returns the maximum number of waiting games.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Enqueue implements Queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, g model.Game) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueRejected("closed")
		return false
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueRejected("cancelled")
		return false
	}

	select {
	case q.games <- g:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.games))
		return true
	default:
		metrics.RecordQueueRejected("full")
		return false
	}
}

// Dequeue implements Queue.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan model.Game {
	out := make(chan model.Game)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case g, ok := <-q.games:
				if !ok {
					return
				}
				metrics.UpdateQueueSize(len(q.games))
				select {
				case out <- g:
				case <-ctx.Done():
					q.keep(g)
					return
				}
			}
		}
	}()
	return out
}

func (q *InMemoryQueue) keep(g model.Game) {
	q.mu.Lock()
	q.undelivered = append(q.undelivered, g)
	q.mu.Unlock()
}

// Drain removes and returns every game that was never delivered, including
// one a cancelled Dequeue was holding. It does not block.
func (q *InMemoryQueue) Drain() []model.Game {
	q.mu.Lock()
	out := q.undelivered
	q.undelivered = nil
	q.mu.Unlock()

	defer metrics.UpdateQueueSize(len(q.games))
	for {
		select {
		case g, ok := <-q.games:
			if !ok {
				return out
			}
			out = append(out, g)
		default:
			return out
		}
	}
}

// Len returns the number of waiting games.
func (q *InMemoryQueue) Len(_ context.Context) int {
	n := len(q.games)
	metrics.UpdateQueueSize(n)
	return n
}

// Close stops accepting games. Games already queued are still delivered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.games)
	q.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
