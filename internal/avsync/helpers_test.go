package avsync

import (
	"sync"
	"time"

	"github.com/zsiec/lipsync/internal/logger"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(t time.Time) *manualClock {
	return &manualClock{now: t}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func at(ms int) time.Time {
	return epoch.Add(time.Duration(ms) * time.Millisecond)
}

func audioAt(ms int) Packet {
	return Packet{Kind: KindAudio, CapturedAt: at(ms), Payload: []byte{byte(ms)}}
}

func videoAt(ms int) Packet {
	return Packet{Kind: KindVideo, CapturedAt: at(ms), Payload: []byte{byte(ms)}}
}

func testLogger() logger.Logger {
	return logger.NewNullLogger()
}

type recordingObserver struct {
	admitted   []Packet
	outOfOrder int
	evicted    []Packet
	ages       []time.Duration
	emitted    []Packet
}

func (r *recordingObserver) OnAdmit(p Packet, outOfOrder bool) {
	r.admitted = append(r.admitted, p)
	if outOfOrder {
		r.outOfOrder++
	}
}

func (r *recordingObserver) OnEvict(p Packet, age time.Duration) {
	r.evicted = append(r.evicted, p)
	r.ages = append(r.ages, age)
}

func (r *recordingObserver) OnEmit(p Packet) {
	r.emitted = append(r.emitted, p)
}
