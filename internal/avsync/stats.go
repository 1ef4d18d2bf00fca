package avsync

import (
	"sync/atomic"
	"time"
)

// KindCounts splits a counter by stream kind.
type KindCounts struct {
	Audio uint64 `json:"audio"`
	Video uint64 `json:"video"`
}

func (k KindCounts) Total() uint64 { return k.Audio + k.Video }

// Stats is a point-in-time copy of a manager's counters. It never refers to
// live buffers.
type Stats struct {
	StreamID      string     `json:"stream_id"`
	StartedAt     time.Time  `json:"started_at"`
	Running       bool       `json:"running"`
	Admitted      KindCounts `json:"admitted"`
	Emitted       KindCounts `json:"emitted"`
	Evicted       KindCounts `json:"evicted"`
	OutOfOrder    KindCounts `json:"out_of_order"`
	Rejected      uint64     `json:"rejected"`
	Released      uint64     `json:"released"`
	SinkErrors    uint64     `json:"sink_errors"`
	AudioDepth    int        `json:"audio_depth"`
	VideoDepth    int        `json:"video_depth"`
	QueueDepth    int        `json:"queue_depth"`
	QueueCapacity int        `json:"queue_capacity"`
}

type kindCounter struct {
	audio atomic.Uint64
	video atomic.Uint64
}

func (c *kindCounter) inc(kind Kind) {
	switch kind {
	case KindAudio:
		c.audio.Add(1)
	case KindVideo:
		c.video.Add(1)
	}
}

func (c *kindCounter) load() KindCounts {
	return KindCounts{Audio: c.audio.Load(), Video: c.video.Load()}
}

type counters struct {
	admitted   kindCounter
	emitted    kindCounter
	evicted    kindCounter
	outOfOrder kindCounter
	rejected   atomic.Uint64
	released   atomic.Uint64
	sinkErrors atomic.Uint64
	audioDepth atomic.Int64
	videoDepth atomic.Int64
}
