package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/lipsync/internal/avsync"
	"github.com/zsiec/lipsync/internal/logger"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

func packet(kind avsync.Kind, ms int, payload string) avsync.Packet {
	return avsync.Packet{
		Kind:       kind,
		CapturedAt: epoch.Add(time.Duration(ms) * time.Millisecond),
		Payload:    []byte(payload),
	}
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRecorderKeepsMostRecent(t *testing.T) {
	r := NewRecorder(3, fixedClock(epoch.Add(50*time.Millisecond)))

	for i := 0; i < 5; i++ {
		require.NoError(t, r.Emit(packet(avsync.KindAudio, i*10, "abcd")))
	}

	got := r.Recent(0)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(3), got[0].Seq)
	assert.Equal(t, uint64(5), got[2].Seq)
	assert.Equal(t, "audio", got[2].Kind)
	assert.Equal(t, 4, got[2].Size)
	assert.InDelta(t, 10.0, got[2].LagMs, 0.001)
	assert.Equal(t, uint64(5), r.Total())

	last := r.Recent(1)
	require.Len(t, last, 1)
	assert.Equal(t, uint64(5), last[0].Seq)
}

func TestRecorderPartiallyFilled(t *testing.T) {
	r := NewRecorder(8, nil)
	require.NoError(t, r.Emit(packet(avsync.KindVideo, 0, "x")))
	require.NoError(t, r.Emit(packet(avsync.KindAudio, 1, "y")))

	got := r.Recent(10)
	require.Len(t, got, 2)
	assert.Equal(t, "video", got[0].Kind)
	assert.Equal(t, "audio", got[1].Kind)
}

func TestRecorderZeroSize(t *testing.T) {
	r := NewRecorder(0, nil)
	require.NoError(t, r.Emit(packet(avsync.KindVideo, 0, "x")))
	assert.Empty(t, r.Recent(0))
	assert.Equal(t, uint64(1), r.Total())
}

func TestRedisStreamSinkAppends(t *testing.T) {
	_, client := setupTestRedis(t)
	s := NewRedisStreamSink(client, "cam1", 100, epoch, logger.NewNullLogger())
	assert.Equal(t, "lipsync:cam1:out", s.Key())

	require.NoError(t, s.Emit(packet(avsync.KindAudio, 5, "aa")))
	require.NoError(t, s.Emit(packet(avsync.KindVideo, 7, "vv")))

	ctx := context.Background()
	entries, err := client.XRange(ctx, s.Key(), "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "audio", entries[0].Values["kind"])
	assert.Equal(t, "5000000", entries[0].Values["captured_ns"])
	assert.Equal(t, "aa", entries[0].Values["payload"])
	assert.Equal(t, "video", entries[1].Values["kind"])

	require.NoError(t, s.Purge(ctx))
	n, err := client.Exists(ctx, s.Key()).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestRedisStreamSinkError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewRedisStreamSink(client, "cam1", 100, epoch, nil)
	mr.Close()

	err = s.Emit(packet(avsync.KindAudio, 0, "a"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "xadd lipsync:cam1:out")
}

func TestFanoutDeliversToAll(t *testing.T) {
	var a, b []avsync.Packet
	failing := avsync.SinkFunc(func(avsync.Packet) error { return errors.New("boom") })
	f := NewFanout(
		avsync.SinkFunc(func(p avsync.Packet) error { a = append(a, p); return nil }),
		nil,
		failing,
		avsync.SinkFunc(func(p avsync.Packet) error { b = append(b, p); return nil }),
	)
	assert.Equal(t, 3, f.Len())

	err := f.Emit(packet(avsync.KindAudio, 0, "a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Len(t, a, 1)
	assert.Len(t, b, 1, "a failing sink must not stop later sinks")

	assert.NoError(t, NewFanout().Emit(packet(avsync.KindVideo, 0, "v")))
}
