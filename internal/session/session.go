package session

import (
	"context"
	"time"

	"github.com/zsiec/lipsync/internal/avsync"
	"github.com/zsiec/lipsync/internal/sink"
)

// Purger is implemented by sinks that hold external state worth removing
// together with the session.
type Purger interface {
	Purge(ctx context.Context) error
}

// Session is one synchronizer with its own ingest queue and sinks. Packet
// capture times are expressed as offsets from the session epoch.
type Session struct {
	id        string
	createdAt time.Time
	epoch     time.Time
	manager   *avsync.Manager
	recorder  *sink.Recorder
	extra     avsync.Sink
}

func (s *Session) ID() string { return s.id }

func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Epoch is the clock reading that offset zero maps to.
func (s *Session) Epoch() time.Time { return s.epoch }

// Submit queues a packet captured offset after the session epoch. It blocks
// while the session's ingest queue is full.
func (s *Session) Submit(ctx context.Context, kind avsync.Kind, offset time.Duration, payload []byte) error {
	return s.manager.Submit(ctx, avsync.Packet{
		Kind:       kind,
		CapturedAt: s.epoch.Add(offset),
		Payload:    payload,
	})
}

// SubmitPacket queues a packet whose capture time is already on the shared clock.
func (s *Session) SubmitPacket(ctx context.Context, p avsync.Packet) error {
	return s.manager.Submit(ctx, p)
}

func (s *Session) Stats() avsync.Stats { return s.manager.Stats() }

// Recent returns the latest emissions, oldest first.
func (s *Session) Recent(limit int) []sink.Emission { return s.recorder.Recent(limit) }

// Done is closed once the session's consumer has stopped.
func (s *Session) Done() <-chan struct{} { return s.manager.Done() }

// Purge removes external output produced by the session.
func (s *Session) Purge(ctx context.Context) error {
	if p, ok := s.extra.(Purger); ok {
		return p.Purge(ctx)
	}
	return nil
}
