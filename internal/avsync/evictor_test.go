package avsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvictorBoundary(t *testing.T) {
	e := NewEvictor(100 * time.Millisecond)
	assert.Equal(t, 100*time.Millisecond, e.Bound())

	assert.False(t, e.Stale(audioAt(0), at(100)), "exactly at the bound is kept")
	assert.True(t, e.Stale(audioAt(0), at(101)))
	assert.False(t, e.Stale(audioAt(50), at(100)))
}

func TestEvictStaleRemovesEveryStaleHead(t *testing.T) {
	e := NewEvictor(100 * time.Millisecond)
	b := NewStreamBuffer(KindAudio)
	for _, ms := range []int{0, 10, 20, 150, 160} {
		b.push(audioAt(ms))
	}

	var dropped []Packet
	n := e.EvictStale(b, at(200), func(p Packet) { dropped = append(dropped, p) })

	assert.Equal(t, 3, n)
	assert.Len(t, dropped, 3)
	assert.Equal(t, 2, b.Len())
	head, _ := b.Front()
	assert.Equal(t, at(150), head.CapturedAt)
}

func TestEvictStaleStopsAtFreshHead(t *testing.T) {
	e := NewEvictor(100 * time.Millisecond)
	b := NewStreamBuffer(KindVideo)

	// A stale packet behind a fresh head stays until the head leaves.
	b.push(videoAt(190))
	b.push(videoAt(0))

	assert.Equal(t, 0, e.EvictStale(b, at(200), nil))
	assert.Equal(t, 2, b.Len())
}

func TestEvictStaleEmpty(t *testing.T) {
	e := NewEvictor(time.Millisecond)
	assert.Equal(t, 0, e.EvictStale(NewStreamBuffer(KindAudio), at(1000), nil))
}
