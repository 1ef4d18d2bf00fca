package sink

import (
	"sync"
	"time"

	"github.com/zsiec/lipsync/internal/avsync"
)

const DefaultHistorySize = 256

// Emission describes one packet handed out by a synchronizer.
type Emission struct {
	Seq        uint64    `json:"seq"`
	Kind       string    `json:"kind"`
	CapturedAt time.Time `json:"captured_at"`
	EmittedAt  time.Time `json:"emitted_at"`
	LagMs      float64   `json:"lag_ms"`
	Size       int       `json:"size"`
}

// Recorder keeps the most recent emissions in a fixed-size ring so the API
// can show what a session released. Payloads are not retained.
type Recorder struct {
	clock avsync.Clock

	mu    sync.RWMutex
	ring  []Emission
	next  int
	count int
	seq   uint64
}

// NewRecorder keeps up to size emissions. A size of zero records nothing
// but still counts emissions.
func NewRecorder(size int, clock avsync.Clock) *Recorder {
	if size < 0 {
		size = DefaultHistorySize
	}
	if clock == nil {
		clock = avsync.SystemClock
	}
	return &Recorder{
		clock: clock,
		ring:  make([]Emission, size),
	}
}

func (r *Recorder) Name() string { return "recorder" }

func (r *Recorder) Emit(p avsync.Packet) error {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	if len(r.ring) == 0 {
		return nil
	}
	r.ring[r.next] = Emission{
		Seq:        r.seq,
		Kind:       p.Kind.String(),
		CapturedAt: p.CapturedAt,
		EmittedAt:  now,
		LagMs:      float64(now.Sub(p.CapturedAt)) / float64(time.Millisecond),
		Size:       len(p.Payload),
	}
	r.next = (r.next + 1) % len(r.ring)
	if r.count < len(r.ring) {
		r.count++
	}
	return nil
}

// Recent returns up to limit emissions, oldest first. A limit of zero or
// less returns everything retained.
func (r *Recorder) Recent(limit int) []Emission {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Emission, n)
	start := r.next - n
	if start < 0 {
		start += len(r.ring)
	}
	for i := 0; i < n; i++ {
		out[i] = r.ring[(start+i)%len(r.ring)]
	}
	return out
}

// Total is the number of emissions seen, including ones already overwritten.
func (r *Recorder) Total() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seq
}
