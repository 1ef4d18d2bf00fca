package rtp

import "time"

// clockMapper places one SSRC's RTP timestamps on the shared clock. The
// first packet anchors timestamp zero to its arrival time; later packets are
// offset from that anchor by their RTP distance, unwrapped across the 32-bit
// boundary.
type clockMapper struct {
	clockRate uint32
	anchor    time.Time
	lastTS    uint32
	extended  int64 // ticks since the first packet, may go negative
	started   bool
}

func newClockMapper(clockRate uint32) *clockMapper {
	if clockRate == 0 {
		clockRate = 90000
	}
	return &clockMapper{clockRate: clockRate}
}

func (m *clockMapper) capturedAt(ts uint32, arrival time.Time) time.Time {
	if !m.started {
		m.started = true
		m.anchor = arrival
		m.lastTS = ts
		m.extended = 0
		return arrival
	}

	// Signed 32-bit difference handles wraparound and small reorderings.
	m.extended += int64(int32(ts - m.lastTS))
	m.lastTS = ts

	return m.anchor.Add(ticksToDuration(m.extended, m.clockRate))
}

// ticksToDuration splits whole seconds off first so long sessions at 90kHz
// do not overflow.
func ticksToDuration(ticks int64, rate uint32) time.Duration {
	r := int64(rate)
	secs := ticks / r
	rem := ticks % r
	return time.Duration(secs)*time.Second + time.Duration(rem)*time.Second/time.Duration(r)
}
