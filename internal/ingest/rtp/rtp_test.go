package rtp

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/lipsync/internal/avsync"
	"github.com/zsiec/lipsync/internal/logger"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testMapping() Mapping {
	return Mapping{
		AudioPayloadTypes: []uint8{111},
		VideoPayloadTypes: []uint8{96},
		AudioClockRate:    48000,
		VideoClockRate:    90000,
	}
}

func marshal(t *testing.T, pt uint8, ssrc, ts uint32, seq uint16, payload []byte) []byte {
	t.Helper()
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    pt,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           ssrc,
		},
		Payload: payload,
	}
	raw, err := pkt.Marshal()
	require.NoError(t, err)
	return raw
}

func TestDepacketizerMapsKindsAndTime(t *testing.T) {
	d := NewDepacketizer(testMapping())

	a0, err := d.Decode(marshal(t, 111, 1, 1000, 1, []byte("opus")), base)
	require.NoError(t, err)
	assert.Equal(t, avsync.KindAudio, a0.Kind)
	assert.Equal(t, base, a0.CapturedAt)
	assert.Equal(t, []byte("opus"), a0.Payload)

	// 960 ticks at 48kHz is 20ms, regardless of when the datagram arrived.
	a1, err := d.Decode(marshal(t, 111, 1, 1960, 2, []byte("opus")), base.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, base.Add(20*time.Millisecond), a1.CapturedAt)

	v0, err := d.Decode(marshal(t, 96, 2, 5000, 1, []byte("h264")), base.Add(5*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, avsync.KindVideo, v0.Kind)
	assert.Equal(t, base.Add(5*time.Millisecond), v0.CapturedAt)

	v1, err := d.Decode(marshal(t, 96, 2, 5000+3000, 2, []byte("h264")), base)
	require.NoError(t, err)
	assert.Equal(t, base.Add(5*time.Millisecond+33333333*time.Nanosecond), v1.CapturedAt)

	assert.Equal(t, 2, d.Sources())
}

func TestDepacketizerTimestampWrap(t *testing.T) {
	d := NewDepacketizer(testMapping())

	_, err := d.Decode(marshal(t, 96, 7, 0xFFFFFF00, 1, []byte{1}), base)
	require.NoError(t, err)

	// 0x100 ticks later, across the 32-bit boundary.
	p, err := d.Decode(marshal(t, 96, 7, 0x00000000, 2, []byte{1}), base)
	require.NoError(t, err)
	assert.Equal(t, base.Add(ticksToDuration(0x100, 90000)), p.CapturedAt)

	// A slightly older timestamp maps backwards instead of jumping forward.
	p, err = d.Decode(marshal(t, 96, 7, 0xFFFFFF80, 3, []byte{1}), base)
	require.NoError(t, err)
	assert.Equal(t, base.Add(ticksToDuration(0x80, 90000)), p.CapturedAt)
}

func TestDepacketizerRejects(t *testing.T) {
	d := NewDepacketizer(testMapping())

	_, err := d.Decode([]byte{0x80}, base)
	assert.Error(t, err)

	_, err = d.Decode(marshal(t, 0, 1, 0, 0, []byte{1}), base)
	assert.ErrorIs(t, err, ErrUnmappedPayloadType)

	_, err = d.Decode(marshal(t, 111, 1, 0, 0, nil), base)
	assert.ErrorIs(t, err, ErrEmptyPayload)

	raw := marshal(t, 111, 1, 0, 0, []byte{1})
	raw[0] = (raw[0] & 0x3F) | 0x40 // version 1
	_, err = d.Decode(raw, base)
	assert.Error(t, err)
}

func TestTicksToDurationLongSession(t *testing.T) {
	// 48 hours at 90kHz
	ticks := int64(48*3600) * 90000
	assert.Equal(t, 48*time.Hour, ticksToDuration(ticks, 90000))
	assert.Equal(t, -time.Second, ticksToDuration(-90000, 90000))
}

type collector struct {
	mu      sync.Mutex
	packets []avsync.Packet
	err     error
}

func (c *collector) SubmitPacket(ctx context.Context, p avsync.Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.packets = append(c.packets, p)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.packets)
}

func TestListenerSubmitsDatagrams(t *testing.T) {
	target := &collector{}
	l := NewListener(ListenerConfig{
		ListenAddr: "127.0.0.1",
		Port:       0,
		Mapping:    testMapping(),
	}, target, nil, logger.NewNullLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	addrCtx, addrCancel := context.WithTimeout(context.Background(), time.Second)
	defer addrCancel()
	addr, err := l.Addr(addrCtx)
	require.NoError(t, err)

	conn, err := net.Dial("udp", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(marshal(t, 111, 1, 0, 1, []byte("a")))
	require.NoError(t, err)
	_, err = conn.Write(marshal(t, 96, 2, 0, 1, []byte("v")))
	require.NoError(t, err)
	_, err = conn.Write(marshal(t, 8, 3, 0, 1, []byte("x")))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return target.count() == 2 && l.Dropped() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(3), l.Received())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestListenerStopsWhenSessionCloses(t *testing.T) {
	target := &collector{err: avsync.ErrClosed}
	l := NewListener(ListenerConfig{ListenAddr: "127.0.0.1", Mapping: testMapping()}, target, nil, nil)

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	addrCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	addr, err := l.Addr(addrCtx)
	require.NoError(t, err)

	conn, err := net.Dial("udp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(marshal(t, 111, 1, 0, 1, []byte("a")))
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop after ErrClosed")
	}
}
