package avsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestQueueBlocksWhenFull(t *testing.T) {
	q := NewIngestQueue(100)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		require.NoError(t, q.Submit(ctx, audioAt(i)))
	}
	assert.Equal(t, 100, q.Len())

	done := make(chan error, 1)
	go func() { done <- q.Submit(ctx, audioAt(100)) }()

	select {
	case err := <-done:
		t.Fatalf("101st submit returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	p := <-q.C()
	assert.Equal(t, at(0), p.CapturedAt)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("submit did not unblock after a slot was freed")
	}
	assert.Equal(t, 100, q.Len())
}

func TestIngestQueueSubmitAfterClose(t *testing.T) {
	q := NewIngestQueue(4)
	q.Close()
	q.Close()

	assert.True(t, q.Closed())
	assert.ErrorIs(t, q.Submit(context.Background(), audioAt(0)), ErrClosed)
}

func TestIngestQueueCloseWakesBlockedProducers(t *testing.T) {
	q := NewIngestQueue(1)
	require.NoError(t, q.Submit(context.Background(), audioAt(0)))

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- q.Submit(context.Background(), videoAt(1))
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.Close()
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.ErrorIs(t, err, ErrClosed)
	}

	// Accepted packets are still drained before the channel closes.
	var drained []Packet
	for p := range q.C() {
		drained = append(drained, p)
	}
	assert.Len(t, drained, 1)
}

func TestIngestQueueSubmitHonorsContext(t *testing.T) {
	q := NewIngestQueue(1)
	require.NoError(t, q.Submit(context.Background(), audioAt(0)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.Submit(ctx, audioAt(1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, q.Len())
}

func TestIngestQueueConcurrentProducers(t *testing.T) {
	q := NewIngestQueue(8)
	const producers, perProducer = 4, 250

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(kind Kind) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				assert.NoError(t, q.Submit(context.Background(), Packet{Kind: kind, CapturedAt: at(j)}))
			}
		}(Kind(i%2 + 1))
	}

	received := 0
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		for range q.C() {
			received++
		}
	}()

	wg.Wait()
	q.Close()
	<-consumed
	assert.Equal(t, producers*perProducer, received)
}

func TestIngestQueueDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultChannelCapacity, NewIngestQueue(0).Cap())
}

func TestIngestQueuePendingSubmitFailsAfterClose(t *testing.T) {
	for i := 0; i < 50; i++ {
		q := NewIngestQueue(4)

		// A producer that passed the closed check but has not sent yet.
		q.inflight.Add(1)
		closed := make(chan struct{})
		go func() {
			q.Close()
			close(closed)
		}()

		select {
		case <-q.closeCh:
		case <-time.After(time.Second):
			t.Fatal("close did not start")
		}

		assert.ErrorIs(t, q.send(context.Background(), audioAt(i)), ErrClosed)
		q.inflight.Done()
		<-closed

		n := 0
		for range q.C() {
			n++
		}
		assert.Zero(t, n, "nothing is accepted once closed")
	}
}
