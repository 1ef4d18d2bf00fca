package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/zsiec/lipsync/internal/avsync"
	"github.com/zsiec/lipsync/internal/config"
	"github.com/zsiec/lipsync/internal/logger"
	"github.com/zsiec/lipsync/internal/metrics"
	"github.com/zsiec/lipsync/internal/sink"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionExists    = errors.New("session already exists")
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrHubClosed        = errors.New("session hub closed")
)

var validID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// SinkFactory builds the extra sink for a new session. The recorder is
// always attached; the factory adds outputs such as a Redis stream.
type SinkFactory func(streamID string, epoch time.Time) (avsync.Sink, error)

// ManagerConfig converts the sync section of the service config.
func ManagerConfig(c config.SyncConfig) *avsync.Config {
	return &avsync.Config{
		ChannelCapacity: c.ChannelCapacity,
		StalenessBound:  c.StalenessBound,
		TickInterval:    c.TickInterval,
	}
}

// Hub owns every running session. Each session's consumer runs in its own
// goroutine under the hub's context.
type Hub struct {
	cfg         *avsync.Config
	historySize int
	clock       avsync.Clock
	factory     SinkFactory
	logger      logger.Logger
	baseLogger  logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// Option configures a Hub.
type Option func(*Hub)

func WithClock(c avsync.Clock) Option {
	return func(h *Hub) {
		if c != nil {
			h.clock = c
		}
	}
}

func WithSinkFactory(f SinkFactory) Option {
	return func(h *Hub) { h.factory = f }
}

func WithHistorySize(n int) Option {
	return func(h *Hub) { h.historySize = n }
}

// NewHub creates an empty hub. Every session gets a copy of cfg.
func NewHub(cfg *avsync.Config, log logger.Logger, opts ...Option) (*Hub, error) {
	if cfg == nil {
		cfg = avsync.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sync config: %w", err)
	}
	if log == nil {
		log = logger.NewNullLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		cfg:         cfg,
		historySize: sink.DefaultHistorySize,
		clock:       avsync.SystemClock,
		baseLogger:  log,
		logger:      log.WithField("component", "session.hub"),
		ctx:         ctx,
		cancel:      cancel,
		sessions:    make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Create starts a session. An empty id gets a generated one.
func (h *Hub) Create(id string) (*Session, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if !validID.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	if _, exists := h.sessions[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}

	epoch := h.clock.Now()
	recorder := sink.NewRecorder(h.historySize, h.clock)

	var extra avsync.Sink
	if h.factory != nil {
		s, err := h.factory(id, epoch)
		if err != nil {
			return nil, fmt.Errorf("failed to create sink for %s: %w", id, err)
		}
		extra = s
	}

	cfg := *h.cfg
	mgr, err := avsync.NewManager(id, &cfg, sink.NewFanout(recorder, extra), h.baseLogger, avsync.WithClock(h.clock))
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:        id,
		createdAt: epoch,
		epoch:     epoch,
		manager:   mgr,
		recorder:  recorder,
		extra:     extra,
	}
	h.sessions[id] = s
	metrics.SetActiveSessions(len(h.sessions))

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := mgr.Run(h.ctx); err != nil {
			h.logger.WithError(err).WithField("stream_id", id).Error("Session consumer exited")
		}
	}()

	h.logger.WithField("stream_id", id).Info("Session created")
	return s, nil
}

func (h *Hub) Get(id string) (*Session, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s, ok := h.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// GetOrCreate returns the named session, creating it when missing.
func (h *Hub) GetOrCreate(id string) (*Session, error) {
	if s, err := h.Get(id); err == nil {
		return s, nil
	}
	s, err := h.Create(id)
	if errors.Is(err, ErrSessionExists) {
		return h.Get(id)
	}
	return s, err
}

// List returns sessions ordered by id.
func (h *Hub) List() []*Session {
	h.mu.RLock()
	out := lo.Values(h.sessions)
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Snapshots returns the stats of every session ordered by id.
func (h *Hub) Snapshots() []avsync.Stats {
	return lo.Map(h.List(), func(s *Session, _ int) avsync.Stats {
		return s.Stats()
	})
}

// Close stops a session. Packets already accepted are drained and flushed
// before it is released. Close waits for the consumer unless ctx ends first.
func (h *Hub) Close(ctx context.Context, id string) error {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if ok {
		delete(h.sessions, id)
		metrics.SetActiveSessions(len(h.sessions))
	}
	h.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.manager.Close()
	select {
	case <-s.Done():
	case <-ctx.Done():
		// The consumer is still flushing; drop its series once it exits.
		go func() {
			<-s.Done()
			metrics.DeleteSession(id)
		}()
		return ctx.Err()
	}
	metrics.DeleteSession(id)

	st := s.Stats()
	h.logger.WithFields(map[string]interface{}{
		"stream_id": id,
		"emitted":   st.Emitted.Total(),
		"evicted":   st.Evicted.Total(),
		"released":  st.Released,
	}).Info("Session closed")
	return nil
}

// Run blocks until ctx is done, then shuts the hub down.
func (h *Hub) Run(ctx context.Context) error {
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return h.Shutdown(shutdownCtx)
}

// Shutdown closes every session and waits for their consumers.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	ids := lo.Keys(h.sessions)
	h.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := h.Close(ctx, id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			errs = append(errs, err)
		}
	}
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	h.logger.WithField("sessions", len(ids)).Info("Session hub stopped")
	return errors.Join(errs...)
}
