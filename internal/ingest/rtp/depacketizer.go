package rtp

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/rtp"

	"github.com/zsiec/lipsync/internal/avsync"
)

var (
	ErrInvalidRTPVersion   = errors.New("invalid RTP version")
	ErrUnmappedPayloadType = errors.New("payload type not mapped to a stream kind")
	ErrEmptyPayload        = errors.New("empty RTP payload")
)

// Mapping assigns payload types to kinds and sets each kind's clock rate.
type Mapping struct {
	AudioPayloadTypes []uint8
	VideoPayloadTypes []uint8
	AudioClockRate    uint32
	VideoClockRate    uint32
}

// Depacketizer turns RTP datagrams into packets on the shared clock. Each
// SSRC keeps its own timestamp anchor.
type Depacketizer struct {
	kinds map[uint8]avsync.Kind
	rates map[avsync.Kind]uint32

	mu      sync.Mutex
	mappers map[uint32]*clockMapper
}

func NewDepacketizer(m Mapping) *Depacketizer {
	d := &Depacketizer{
		kinds: make(map[uint8]avsync.Kind),
		rates: map[avsync.Kind]uint32{
			avsync.KindAudio: m.AudioClockRate,
			avsync.KindVideo: m.VideoClockRate,
		},
		mappers: make(map[uint32]*clockMapper),
	}
	for _, pt := range m.AudioPayloadTypes {
		d.kinds[pt] = avsync.KindAudio
	}
	for _, pt := range m.VideoPayloadTypes {
		d.kinds[pt] = avsync.KindVideo
	}
	return d
}

// Decode parses raw and stamps it relative to arrival. The returned payload
// is a copy, so raw may be reused.
func (d *Depacketizer) Decode(raw []byte, arrival time.Time) (avsync.Packet, error) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(raw); err != nil {
		return avsync.Packet{}, fmt.Errorf("failed to unmarshal RTP packet: %w", err)
	}
	if pkt.Version != 2 {
		return avsync.Packet{}, ErrInvalidRTPVersion
	}

	kind, ok := d.kinds[pkt.PayloadType]
	if !ok {
		return avsync.Packet{}, fmt.Errorf("%w: %d", ErrUnmappedPayloadType, pkt.PayloadType)
	}
	if len(pkt.Payload) == 0 {
		return avsync.Packet{}, ErrEmptyPayload
	}

	d.mu.Lock()
	mapper, ok := d.mappers[pkt.SSRC]
	if !ok {
		mapper = newClockMapper(d.rates[kind])
		d.mappers[pkt.SSRC] = mapper
	}
	capturedAt := mapper.capturedAt(pkt.Timestamp, arrival)
	d.mu.Unlock()

	payload := make([]byte, len(pkt.Payload))
	copy(payload, pkt.Payload)

	return avsync.Packet{
		Kind:       kind,
		CapturedAt: capturedAt,
		Payload:    payload,
	}, nil
}

// Sources returns how many SSRCs have been anchored.
func (d *Depacketizer) Sources() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.mappers)
}
