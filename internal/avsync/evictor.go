package avsync

import "time"

// Evictor drops packets that have aged past the staleness bound.
type Evictor struct {
	bound time.Duration
}

func NewEvictor(bound time.Duration) *Evictor {
	return &Evictor{bound: bound}
}

func (e *Evictor) Bound() time.Duration { return e.bound }

// Stale reports whether p was captured strictly before now minus the bound.
// A packet exactly at the bound is kept.
func (e *Evictor) Stale(p Packet, now time.Time) bool {
	return p.CapturedAt.Before(now.Add(-e.bound))
}

// EvictStale pops stale packets from the front of buf until the head is
// fresh or the buffer is empty. Each dropped packet is passed to drop when
// it is non-nil. It returns the number of packets removed.
func (e *Evictor) EvictStale(buf *StreamBuffer, now time.Time, drop func(Packet)) int {
	n := 0
	for {
		head, ok := buf.Front()
		if !ok || !e.Stale(head, now) {
			return n
		}
		buf.PopFront()
		n++
		if drop != nil {
			drop(head)
		}
	}
}
