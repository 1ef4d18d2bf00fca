package avsync

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/zsiec/lipsync/internal/logger"
	"github.com/zsiec/lipsync/internal/metrics"
)

// Manager runs one synchronizer behind a bounded ingest queue. Producers
// call Submit from any goroutine; Run is the single consumer that owns the
// buffers, admits packets, evicts stale ones and hands emissions to the sink.
type Manager struct {
	streamID string
	cfg      *Config
	queue    *IngestQueue
	sync     *Synchronizer
	sink     Sink
	clock    Clock
	logger   logger.Logger
	limited  *logger.RateLimited

	stats     counters
	startedAt atomic.Pointer[time.Time]
	running   atomic.Bool
	done      chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the system clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// NewManager creates a manager for streamID. A nil cfg uses DefaultConfig and
// a nil sink discards emissions.
func NewManager(streamID string, cfg *Config, sink Sink, log logger.Logger, opts ...Option) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = Discard
	}
	if log == nil {
		log = logger.NewNullLogger()
	}
	log = log.WithFields(map[string]interface{}{
		"component": "avsync.manager",
		"stream_id": streamID,
	})

	m := &Manager{
		streamID: streamID,
		cfg:      cfg,
		queue:    NewIngestQueue(cfg.ChannelCapacity),
		sink:     sink,
		clock:    SystemClock,
		logger:   log,
		limited:  logger.NewRateLimited(log, time.Second, 5),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.sync = NewSynchronizer(cfg.StalenessBound, (*managerObserver)(m))
	return m, nil
}

func (m *Manager) StreamID() string { return m.streamID }

// Submit hands p to the consumer, blocking while the queue is full.
func (m *Manager) Submit(ctx context.Context, p Packet) error {
	if !p.Kind.Valid() {
		m.stats.rejected.Add(1)
		metrics.RecordRejected("invalid_kind")
		return ErrInvalidKind
	}
	err := m.queue.Submit(ctx, p)
	switch {
	case err == nil:
	case errors.Is(err, ErrClosed):
		m.stats.rejected.Add(1)
		metrics.RecordRejected("closed")
	default:
		m.stats.rejected.Add(1)
		metrics.RecordRejected("canceled")
	}
	return err
}

// Run consumes the queue until ctx is done or Close is called, then drains
// what was already accepted, flushes once more and releases the buffers.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(m.done)

	started := m.clock.Now()
	m.startedAt.Store(&started)
	m.logger.WithFields(map[string]interface{}{
		"channel_capacity": m.cfg.ChannelCapacity,
		"staleness_bound":  m.cfg.StalenessBound.String(),
		"tick_interval":    m.cfg.TickInterval.String(),
	}).Info("Sync manager started")

	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	in := m.queue.C()
	ctxDone := ctx.Done()
	for {
		select {
		case p, ok := <-in:
			if !ok {
				m.shutdown()
				return nil
			}
			m.admit(p)
			m.flush()

		case <-ticker.C:
			m.flush()

		case <-ctxDone:
			ctxDone = nil
			m.logger.Debug("Context cancelled, draining ingest queue")
			m.queue.Close()
		}
	}
}

// Close stops accepting packets. Run finishes after draining.
func (m *Manager) Close() {
	m.queue.Close()
}

// Done is closed when Run has returned.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Stats returns a snapshot of the manager's counters.
func (m *Manager) Stats() Stats {
	s := Stats{
		StreamID:      m.streamID,
		Admitted:      m.stats.admitted.load(),
		Emitted:       m.stats.emitted.load(),
		Evicted:       m.stats.evicted.load(),
		OutOfOrder:    m.stats.outOfOrder.load(),
		Rejected:      m.stats.rejected.Load(),
		Released:      m.stats.released.Load(),
		SinkErrors:    m.stats.sinkErrors.Load(),
		AudioDepth:    int(m.stats.audioDepth.Load()),
		VideoDepth:    int(m.stats.videoDepth.Load()),
		QueueDepth:    m.queue.Len(),
		QueueCapacity: m.queue.Cap(),
	}
	if t := m.startedAt.Load(); t != nil {
		s.StartedAt = *t
	}
	select {
	case <-m.done:
	default:
		s.Running = m.running.Load()
	}
	return s
}

func (m *Manager) admit(p Packet) {
	if err := m.sync.Admit(p); err != nil {
		// Submit filters invalid kinds, so this only guards direct queue use.
		m.stats.rejected.Add(1)
		metrics.RecordRejected("invalid_kind")
	}
}

// flush emits every packet that is ready at the current instant.
func (m *Manager) flush() {
	for {
		now := m.clock.Now()
		p, ok := m.sync.TryEmit(now)
		if !ok {
			break
		}
		metrics.RecordEmitted(p.Kind.String(), now.Sub(p.CapturedAt).Seconds())
		if err := m.sink.Emit(p); err != nil {
			name := sinkName(m.sink)
			m.stats.sinkErrors.Add(1)
			metrics.RecordSinkError(name)
			m.limited.Error("sink_error", map[string]interface{}{
				"sink":  name,
				"kind":  p.Kind.String(),
				"error": err.Error(),
			}, "Sink failed to accept packet")
		}
	}
	m.publishDepth()
}

func (m *Manager) publishDepth() {
	audio := m.sync.Len(KindAudio)
	video := m.sync.Len(KindVideo)
	m.stats.audioDepth.Store(int64(audio))
	m.stats.videoDepth.Store(int64(video))
	metrics.SetBufferDepth(m.streamID, "audio", audio)
	metrics.SetBufferDepth(m.streamID, "video", video)
	metrics.SetQueueDepth(m.streamID, m.queue.Len())
}

func (m *Manager) shutdown() {
	m.flush()
	audio, video := m.sync.Release()
	released := audio + video
	if released > 0 {
		m.stats.released.Add(uint64(released))
		metrics.RecordReleased(released)
	}
	m.publishDepth()

	st := m.Stats()
	m.logger.WithFields(map[string]interface{}{
		"released_audio": audio,
		"released_video": video,
		"emitted":        st.Emitted.Total(),
		"evicted":        st.Evicted.Total(),
	}).Info("Sync manager stopped")
}

// managerObserver keeps the Observer methods off Manager's public API.
type managerObserver Manager

func (o *managerObserver) OnAdmit(p Packet, outOfOrder bool) {
	m := (*Manager)(o)
	m.stats.admitted.inc(p.Kind)
	metrics.RecordAdmitted(p.Kind.String())
	if !outOfOrder {
		return
	}
	m.stats.outOfOrder.inc(p.Kind)
	metrics.RecordOutOfOrder(p.Kind.String())
	m.limited.Warn("out_of_order", map[string]interface{}{
		"kind":        p.Kind.String(),
		"captured_at": p.CapturedAt,
	}, "Packet captured before buffer tail, appended without reordering")
}

func (o *managerObserver) OnEvict(p Packet, age time.Duration) {
	m := (*Manager)(o)
	m.stats.evicted.inc(p.Kind)
	metrics.RecordEvicted(p.Kind.String(), age.Seconds())
	m.limited.Debug("evicted", map[string]interface{}{
		"kind": p.Kind.String(),
		"age":  age.String(),
	}, "Evicted stale packet")
}

func (o *managerObserver) OnEmit(p Packet) {
	(*Manager)(o).stats.emitted.inc(p.Kind)
}
