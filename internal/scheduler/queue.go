package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Common errors returned by the request queue
var (
	ErrQueueClosed = errors.New("request queue is closed")
	ErrQueueFull   = errors.New("request queue is full")
)

// pending is a queued request and the future its caller holds.
type pending struct {
	req    Request
	future *Future
}

// requestQueue is a bounded FIFO of pending requests.
type requestQueue struct {
	mu     sync.RWMutex
	items  chan *pending
	logger *slog.Logger
	closed bool
}

func newRequestQueue(size int, logger *slog.Logger) *requestQueue {
	return &requestQueue{
		items:  make(chan *pending, size),
		logger: logger,
	}
}

// enqueue adds p without blocking.
func (q *requestQueue) enqueue(p *pending) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- p:
		q.logger.Debug("request enqueued",
			"request_id", p.req.ID,
			"queue_len", len(q.items),
			"queue_cap", cap(q.items))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.items))
	}
}

// close stops further enqueues and returns whatever was still waiting.
func (q *requestQueue) close() []*pending {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.items)

	var left []*pending
	for p := range q.items {
		left = append(left, p)
	}
	q.logger.Info("request queue closed", "abandoned", len(left))
	return left
}

func (q *requestQueue) channel() <-chan *pending {
	return q.items
}

func (q *requestQueue) size() int {
	return len(q.items)
}
