package avsync

const minBufferCapacity = 16

// StreamBuffer is a FIFO of packets for one kind. Only the head can be
// inspected or removed and only the tail can be appended to, so the
// capture-time order producers deliver is kept as is.
//
// Not safe for concurrent use; it belongs to the consumer goroutine.
type StreamBuffer struct {
	kind  Kind
	ring  []Packet
	head  int
	count int
}

func NewStreamBuffer(kind Kind) *StreamBuffer {
	return &StreamBuffer{kind: kind}
}

func (b *StreamBuffer) Kind() Kind { return b.kind }

func (b *StreamBuffer) Len() int { return b.count }

// Front returns the oldest packet without removing it.
func (b *StreamBuffer) Front() (Packet, bool) {
	if b.count == 0 {
		return Packet{}, false
	}
	return b.ring[b.head], true
}

// PopFront removes and returns the oldest packet.
func (b *StreamBuffer) PopFront() (Packet, bool) {
	if b.count == 0 {
		return Packet{}, false
	}
	p := b.ring[b.head]
	b.ring[b.head] = Packet{} // drop the payload reference
	b.head = (b.head + 1) % len(b.ring)
	b.count--
	if b.count == 0 {
		b.head = 0
	}
	return p, true
}

func (b *StreamBuffer) push(p Packet) {
	if b.count == len(b.ring) {
		b.grow()
	}
	b.ring[(b.head+b.count)%len(b.ring)] = p
	b.count++
}

// back returns the newest packet, used to spot out-of-order admissions.
func (b *StreamBuffer) back() (Packet, bool) {
	if b.count == 0 {
		return Packet{}, false
	}
	return b.ring[(b.head+b.count-1)%len(b.ring)], true
}

func (b *StreamBuffer) grow() {
	size := len(b.ring) * 2
	if size < minBufferCapacity {
		size = minBufferCapacity
	}
	ring := make([]Packet, size)
	for i := 0; i < b.count; i++ {
		ring[i] = b.ring[(b.head+i)%len(b.ring)]
	}
	b.ring = ring
	b.head = 0
}

// release empties the buffer and returns how many packets it held.
func (b *StreamBuffer) release() int {
	n := b.count
	b.ring = nil
	b.head = 0
	b.count = 0
	return n
}

// DualBuffer holds one StreamBuffer per kind.
type DualBuffer struct {
	audio *StreamBuffer
	video *StreamBuffer
}

func NewDualBuffer() *DualBuffer {
	return &DualBuffer{
		audio: NewStreamBuffer(KindAudio),
		video: NewStreamBuffer(KindVideo),
	}
}

// Buffer returns the buffer for kind, or nil for an invalid kind.
func (d *DualBuffer) Buffer(kind Kind) *StreamBuffer {
	switch kind {
	case KindAudio:
		return d.audio
	case KindVideo:
		return d.video
	default:
		return nil
	}
}

// Admit appends p to the tail of the buffer matching its kind. It reports
// whether p was captured before the current tail; such packets are still
// appended since buffers never reorder.
func (d *DualBuffer) Admit(p Packet) (outOfOrder bool, err error) {
	buf := d.Buffer(p.Kind)
	if buf == nil {
		return false, ErrInvalidKind
	}
	if last, ok := buf.back(); ok && p.CapturedAt.Before(last.CapturedAt) {
		outOfOrder = true
	}
	buf.push(p)
	return outOfOrder, nil
}

func (d *DualBuffer) Front(kind Kind) (Packet, bool) {
	if buf := d.Buffer(kind); buf != nil {
		return buf.Front()
	}
	return Packet{}, false
}

func (d *DualBuffer) PopFront(kind Kind) (Packet, bool) {
	if buf := d.Buffer(kind); buf != nil {
		return buf.PopFront()
	}
	return Packet{}, false
}

func (d *DualBuffer) Len(kind Kind) int {
	if buf := d.Buffer(kind); buf != nil {
		return buf.Len()
	}
	return 0
}

// Release empties both buffers, returning how many packets each held.
func (d *DualBuffer) Release() (audio, video int) {
	return d.audio.release(), d.video.release()
}
