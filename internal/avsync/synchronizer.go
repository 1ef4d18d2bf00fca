package avsync

import "time"

// Observer receives synchronizer events. Callbacks run on the consumer
// goroutine and must not block.
type Observer interface {
	OnAdmit(p Packet, outOfOrder bool)
	OnEvict(p Packet, age time.Duration)
	OnEmit(p Packet)
}

type nopObserver struct{}

func (nopObserver) OnAdmit(Packet, bool)          {}
func (nopObserver) OnEvict(Packet, time.Duration) {}
func (nopObserver) OnEmit(Packet)                 {}

// Synchronizer decides which buffered packet, if any, is released next.
// It owns its DualBuffer exclusively and is not safe for concurrent use.
type Synchronizer struct {
	buffers  *DualBuffer
	evictor  *Evictor
	observer Observer
}

// NewSynchronizer creates a synchronizer with empty buffers. A nil observer
// is allowed.
func NewSynchronizer(bound time.Duration, observer Observer) *Synchronizer {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Synchronizer{
		buffers:  NewDualBuffer(),
		evictor:  NewEvictor(bound),
		observer: observer,
	}
}

// Admit appends p to its stream buffer.
func (s *Synchronizer) Admit(p Packet) error {
	outOfOrder, err := s.buffers.Admit(p)
	if err != nil {
		return err
	}
	s.observer.OnAdmit(p, outOfOrder)
	return nil
}

// TryEmit evicts stale heads from both buffers, then emits the older of the
// two heads. Both buffers must be non-empty; audio wins a tie. The emitted
// packet is removed, so it is never emitted twice.
func (s *Synchronizer) TryEmit(now time.Time) (Packet, bool) {
	s.evict(s.buffers.audio, now)
	s.evict(s.buffers.video, now)

	audio, okA := s.buffers.audio.Front()
	video, okV := s.buffers.video.Front()
	if !okA || !okV {
		return Packet{}, false
	}

	var p Packet
	if !video.CapturedAt.Before(audio.CapturedAt) {
		p, _ = s.buffers.audio.PopFront()
	} else {
		p, _ = s.buffers.video.PopFront()
	}
	s.observer.OnEmit(p)
	return p, true
}

func (s *Synchronizer) evict(buf *StreamBuffer, now time.Time) {
	s.evictor.EvictStale(buf, now, func(p Packet) {
		s.observer.OnEvict(p, p.Age(now))
	})
}

func (s *Synchronizer) Len(kind Kind) int {
	return s.buffers.Len(kind)
}

// Release drops everything still buffered.
func (s *Synchronizer) Release() (audio, video int) {
	return s.buffers.Release()
}
