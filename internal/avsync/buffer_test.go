package avsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamBufferFIFO(t *testing.T) {
	b := NewStreamBuffer(KindAudio)

	_, ok := b.Front()
	assert.False(t, ok)
	_, ok = b.PopFront()
	assert.False(t, ok)

	for i := 0; i < 5; i++ {
		b.push(audioAt(i))
	}
	assert.Equal(t, 5, b.Len())

	head, ok := b.Front()
	require.True(t, ok)
	assert.Equal(t, at(0), head.CapturedAt)
	assert.Equal(t, 5, b.Len(), "Front must not remove")

	for i := 0; i < 5; i++ {
		p, ok := b.PopFront()
		require.True(t, ok)
		assert.Equal(t, at(i), p.CapturedAt)
	}
	assert.Equal(t, 0, b.Len())
}

func TestStreamBufferGrowsAcrossWrap(t *testing.T) {
	b := NewStreamBuffer(KindVideo)

	// Move the head forward so the ring wraps before it grows.
	for i := 0; i < 10; i++ {
		b.push(videoAt(i))
	}
	for i := 0; i < 8; i++ {
		b.PopFront()
	}
	for i := 10; i < 60; i++ {
		b.push(videoAt(i))
	}

	require.Equal(t, 52, b.Len())
	for i := 8; i < 60; i++ {
		p, ok := b.PopFront()
		require.True(t, ok)
		assert.Equal(t, at(i), p.CapturedAt)
	}
}

func TestStreamBufferPopClearsSlot(t *testing.T) {
	b := NewStreamBuffer(KindAudio)
	b.push(audioAt(1))
	b.push(audioAt(2))

	b.PopFront()
	assert.Nil(t, b.ring[0].Payload)
}

func TestDualBufferAdmit(t *testing.T) {
	d := NewDualBuffer()

	_, err := d.Admit(Packet{Kind: KindUnknown, CapturedAt: at(0)})
	assert.ErrorIs(t, err, ErrInvalidKind)

	ooo, err := d.Admit(audioAt(10))
	require.NoError(t, err)
	assert.False(t, ooo)

	ooo, err = d.Admit(videoAt(5))
	require.NoError(t, err)
	assert.False(t, ooo, "kinds are ordered independently")

	ooo, err = d.Admit(audioAt(10))
	require.NoError(t, err)
	assert.False(t, ooo, "equal capture time is in order")

	ooo, err = d.Admit(audioAt(3))
	require.NoError(t, err)
	assert.True(t, ooo)

	// Out-of-order packets are appended, not inserted.
	assert.Equal(t, 3, d.Len(KindAudio))
	for _, want := range []int{10, 10, 3} {
		p, ok := d.PopFront(KindAudio)
		require.True(t, ok)
		assert.Equal(t, at(want), p.CapturedAt)
	}
}

func TestDualBufferRelease(t *testing.T) {
	d := NewDualBuffer()
	for i := 0; i < 3; i++ {
		_, _ = d.Admit(audioAt(i))
	}
	_, _ = d.Admit(videoAt(0))

	audio, video := d.Release()
	assert.Equal(t, 3, audio)
	assert.Equal(t, 1, video)
	assert.Equal(t, 0, d.Len(KindAudio))
	assert.Equal(t, 0, d.Len(KindVideo))
	assert.Equal(t, 0, d.Len(KindUnknown))

	_, ok := d.Front(KindUnknown)
	assert.False(t, ok)

	// Still usable after release.
	_, err := d.Admit(audioAt(9))
	require.NoError(t, err)
	assert.Equal(t, 1, d.Len(KindAudio))
}
