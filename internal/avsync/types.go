package avsync

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrClosed is returned when submitting to a queue whose consumer has shut down.
	ErrClosed = errors.New("ingest queue closed")

	// ErrInvalidKind is returned for packets that are neither audio nor video.
	ErrInvalidKind = errors.New("invalid packet kind")

	// ErrAlreadyRunning is returned when Run is called on a manager that has already started.
	ErrAlreadyRunning = errors.New("manager already running")
)

// Kind identifies which stream a packet belongs to.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAudio
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Valid reports whether k routes to a stream buffer.
func (k Kind) Valid() bool {
	return k == KindAudio || k == KindVideo
}

// ParseKind accepts "audio" or "video", case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "audio":
		return KindAudio, nil
	case "video":
		return KindVideo, nil
	default:
		return KindUnknown, fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// Packet is one unit of media. CapturedAt must come from the same monotonic
// clock for both kinds. Producers hand the payload over on submission and
// must not modify it afterwards.
type Packet struct {
	Kind       Kind
	CapturedAt time.Time
	Payload    []byte
}

// Age returns how long before now the packet was captured.
func (p Packet) Age(now time.Time) time.Duration {
	return now.Sub(p.CapturedAt)
}

// Clock supplies the synchronizer's notion of now.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads time.Now, which carries a monotonic reading.
var SystemClock Clock = systemClock{}

const (
	DefaultChannelCapacity = 100
	DefaultStalenessBound  = 100 * time.Millisecond
	DefaultTickInterval    = 20 * time.Millisecond
)

// Config holds synchronizer configuration
type Config struct {
	ChannelCapacity int           // Ingest queue capacity
	StalenessBound  time.Duration // Maximum age of a buffered packet
	TickInterval    time.Duration // Flush cadence when nothing is being admitted
}

// DefaultConfig returns default synchronizer configuration
func DefaultConfig() *Config {
	return &Config{
		ChannelCapacity: DefaultChannelCapacity,
		StalenessBound:  DefaultStalenessBound,
		TickInterval:    DefaultTickInterval,
	}
}

func (c *Config) Validate() error {
	if c.ChannelCapacity <= 0 {
		return fmt.Errorf("channel capacity must be positive, got %d", c.ChannelCapacity)
	}
	if c.StalenessBound <= 0 {
		return fmt.Errorf("staleness bound must be positive, got %s", c.StalenessBound)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.TickInterval)
	}
	return nil
}
