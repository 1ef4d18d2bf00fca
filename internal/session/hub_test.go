package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/lipsync/internal/avsync"
	"github.com/zsiec/lipsync/internal/config"
	"github.com/zsiec/lipsync/internal/logger"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func newTestHub(t *testing.T, opts ...Option) (*Hub, *fixedClock) {
	t.Helper()
	clock := &fixedClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cfg := avsync.DefaultConfig()
	cfg.TickInterval = 5 * time.Millisecond

	h, err := NewHub(cfg, logger.NewNullLogger(), append([]Option{WithClock(clock)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})
	return h, clock
}

func TestHubCreateAndGet(t *testing.T) {
	h, clock := newTestHub(t)

	s, err := h.Create("cam-1")
	require.NoError(t, err)
	assert.Equal(t, "cam-1", s.ID())
	assert.Equal(t, clock.Now(), s.Epoch())

	got, err := h.Get("cam-1")
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = h.Create("cam-1")
	assert.ErrorIs(t, err, ErrSessionExists)

	_, err = h.Get("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = h.Create("bad id!")
	assert.ErrorIs(t, err, ErrInvalidSessionID)
}

func TestHubGeneratesID(t *testing.T) {
	h, _ := newTestHub(t)

	s, err := h.Create("")
	require.NoError(t, err)
	assert.Len(t, s.ID(), 36)
}

func TestHubListIsSorted(t *testing.T) {
	h, _ := newTestHub(t)
	for _, id := range []string{"c", "a", "b"} {
		_, err := h.Create(id)
		require.NoError(t, err)
	}

	ids := make([]string, 0, 3)
	for _, s := range h.List() {
		ids = append(ids, s.ID())
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Equal(t, 3, h.Count())

	snaps := h.Snapshots()
	require.Len(t, snaps, 3)
	assert.Equal(t, "a", snaps[0].StreamID)
}

func TestSessionSubmitUsesEpochOffsets(t *testing.T) {
	h, _ := newTestHub(t)

	s, err := h.Create("cam")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Submit(ctx, avsync.KindVideo, 0, []byte("v0")))
	require.NoError(t, s.Submit(ctx, avsync.KindAudio, 0, []byte("a0")))

	require.Eventually(t, func() bool { return len(s.Recent(0)) == 1 }, time.Second, 5*time.Millisecond)
	rec := s.Recent(0)[0]
	assert.Equal(t, "audio", rec.Kind)
	assert.Equal(t, s.Epoch(), rec.CapturedAt)
	assert.Equal(t, 2, rec.Size)
}

func TestHubCloseDrains(t *testing.T) {
	h, _ := newTestHub(t)
	s, err := h.Create("cam")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Submit(ctx, avsync.KindAudio, 0, nil))

	require.NoError(t, h.Close(ctx, "cam"))
	assert.Equal(t, uint64(1), s.Stats().Released)
	assert.ErrorIs(t, s.Submit(ctx, avsync.KindAudio, time.Millisecond, nil), avsync.ErrClosed)

	assert.ErrorIs(t, h.Close(ctx, "cam"), ErrSessionNotFound)
	assert.Equal(t, 0, h.Count())
}

func TestHubShutdown(t *testing.T) {
	h, _ := newTestHub(t)
	a, err := h.Create("a")
	require.NoError(t, err)
	b, err := h.Create("b")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))

	for _, s := range []*Session{a, b} {
		select {
		case <-s.Done():
		default:
			t.Fatalf("session %s still running", s.ID())
		}
	}

	_, err = h.Create("c")
	assert.ErrorIs(t, err, ErrHubClosed)
	assert.NoError(t, h.Shutdown(ctx))
}

type purgingSink struct {
	emitted int
	purged  bool
}

func (p *purgingSink) Emit(avsync.Packet) error     { p.emitted++; return nil }
func (p *purgingSink) Purge(context.Context) error { p.purged = true; return nil }

func TestHubSinkFactory(t *testing.T) {
	extra := &purgingSink{}
	var gotID string
	h, _ := newTestHub(t, WithSinkFactory(func(id string, epoch time.Time) (avsync.Sink, error) {
		gotID = id
		return extra, nil
	}))

	s, err := h.Create("cam")
	require.NoError(t, err)
	assert.Equal(t, "cam", gotID)

	require.NoError(t, s.Purge(context.Background()))
	assert.True(t, extra.purged)
}

func TestHubSinkFactoryError(t *testing.T) {
	h, _ := newTestHub(t, WithSinkFactory(func(string, time.Time) (avsync.Sink, error) {
		return nil, errors.New("redis down")
	}))

	_, err := h.Create("cam")
	assert.Error(t, err)
	assert.Equal(t, 0, h.Count())
}

func TestGetOrCreate(t *testing.T) {
	h, _ := newTestHub(t)

	first, err := h.GetOrCreate("cam")
	require.NoError(t, err)
	second, err := h.GetOrCreate("cam")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestManagerConfig(t *testing.T) {
	cfg := ManagerConfig(config.SyncConfig{
		ChannelCapacity: 10,
		StalenessBound:  time.Second,
		TickInterval:    time.Millisecond,
	})
	assert.Equal(t, 10, cfg.ChannelCapacity)
	assert.Equal(t, time.Second, cfg.StalenessBound)
	assert.NoError(t, cfg.Validate())
}

func TestNewHubRejectsInvalidConfig(t *testing.T) {
	_, err := NewHub(&avsync.Config{}, nil)
	assert.Error(t, err)
}

type blockingSink struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingSink) Emit(avsync.Packet) error {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return nil
}

func depthSeries(t *testing.T, streamID string) int {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	n := 0
	for _, mf := range families {
		if mf.GetName() != "avsync_buffer_depth" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "stream_id" && lp.GetValue() == streamID {
					n++
				}
			}
		}
	}
	return n
}

func TestHubCloseTimeoutStillDropsSeries(t *testing.T) {
	bs := &blockingSink{entered: make(chan struct{}), release: make(chan struct{})}
	h, _ := newTestHub(t, WithSinkFactory(func(string, time.Time) (avsync.Sink, error) {
		return bs, nil
	}))

	s, err := h.Create("slow-sink")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Submit(ctx, avsync.KindAudio, 0, nil))
	require.Eventually(t, func() bool { return depthSeries(t, "slow-sink") > 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Submit(ctx, avsync.KindVideo, 0, nil))

	select {
	case <-bs.entered:
	case <-time.After(time.Second):
		t.Fatal("sink never called")
	}

	closeCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.Close(closeCtx, "slow-sink"), context.DeadlineExceeded)
	assert.Equal(t, 0, h.Count())

	close(bs.release)
	<-s.Done()
	assert.Eventually(t, func() bool { return depthSeries(t, "slow-sink") == 0 }, time.Second, 5*time.Millisecond)
}
