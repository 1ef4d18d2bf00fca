package avsync

import (
	"context"
	"sync"
)

// IngestQueue is a bounded multi-producer, single-consumer queue. Submit
// blocks while the queue is full. Once closed, Submit fails with ErrClosed
// and the consumer sees the channel close after draining what was accepted.
type IngestQueue struct {
	ch      chan Packet
	closeCh chan struct{}

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
	once     sync.Once
}

func NewIngestQueue(capacity int) *IngestQueue {
	if capacity <= 0 {
		capacity = DefaultChannelCapacity
	}
	return &IngestQueue{
		ch:      make(chan Packet, capacity),
		closeCh: make(chan struct{}),
	}
}

// Submit enqueues p, waiting for room when the queue is full. It returns
// ErrClosed if the queue closes first and ctx.Err() if ctx is done first.
func (q *IngestQueue) Submit(ctx context.Context, p Packet) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrClosed
	}
	q.inflight.Add(1)
	q.mu.RUnlock()
	defer q.inflight.Done()

	return q.send(ctx, p)
}

// send must be called with inflight held. A close observed before the send
// wins even when a slot is free.
func (q *IngestQueue) send(ctx context.Context, p Packet) error {
	select {
	case <-q.closeCh:
		return ErrClosed
	default:
	}

	select {
	case q.ch <- p:
		return nil
	default:
	}

	select {
	case q.ch <- p:
		return nil
	case <-q.closeCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// C is the consumer side. It is closed after Close once every in-flight
// Submit has returned.
func (q *IngestQueue) C() <-chan Packet {
	return q.ch
}

// Close rejects further submissions and wakes blocked producers. It is safe
// to call more than once.
func (q *IngestQueue) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()

		close(q.closeCh)
		q.inflight.Wait()
		close(q.ch)
	})
}

func (q *IngestQueue) Closed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *IngestQueue) Len() int { return len(q.ch) }

func (q *IngestQueue) Cap() int { return cap(q.ch) }
