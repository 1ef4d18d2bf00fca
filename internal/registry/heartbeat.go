package registry

import (
	"context"
	"time"

	"github.com/zsiec/lipsync/internal/avsync"
	"github.com/zsiec/lipsync/internal/logger"
	"github.com/zsiec/lipsync/internal/metrics"
)

// Source supplies the sessions to publish.
type Source interface {
	Snapshots() []avsync.Stats
}

// Heartbeat periodically publishes every session's stats and removes
// records for sessions that went away.
type Heartbeat struct {
	registry Registry
	source   Source
	instance string
	interval time.Duration
	logger   logger.Logger

	published map[string]struct{}
}

func NewHeartbeat(reg Registry, src Source, instance string, interval time.Duration, log logger.Logger) *Heartbeat {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Heartbeat{
		registry:  reg,
		source:    src,
		instance:  instance,
		interval:  interval,
		logger:    log.WithField("component", "registry.heartbeat"),
		published: make(map[string]struct{}),
	}
}

// Run publishes on every interval until ctx is done, then removes what it
// published.
func (h *Heartbeat) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.PublishOnce(ctx)
	for {
		select {
		case <-ticker.C:
			h.PublishOnce(ctx)
		case <-ctx.Done():
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			h.removeAll(cleanupCtx)
			cancel()
			return nil
		}
	}
}

// PublishOnce runs a single heartbeat round.
func (h *Heartbeat) PublishOnce(ctx context.Context) {
	seen := make(map[string]struct{})
	for _, st := range h.source.Snapshots() {
		seen[st.StreamID] = struct{}{}
		err := h.registry.Publish(ctx, NewRecord(h.instance, st))
		metrics.RecordRegistryPublish(err == nil)
		if err != nil {
			h.logger.WithError(err).WithField("stream_id", st.StreamID).Warn("Failed to publish session")
			continue
		}
		h.published[st.StreamID] = struct{}{}
	}

	for id := range h.published {
		if _, ok := seen[id]; ok {
			continue
		}
		if err := h.registry.Remove(ctx, id); err != nil {
			h.logger.WithError(err).WithField("stream_id", id).Debug("Failed to remove session")
		}
		delete(h.published, id)
	}
}

func (h *Heartbeat) removeAll(ctx context.Context) {
	for id := range h.published {
		if err := h.registry.Remove(ctx, id); err != nil {
			h.logger.WithError(err).WithField("stream_id", id).Debug("Failed to remove session")
		}
		delete(h.published, id)
	}
}
