package rtp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/zsiec/lipsync/internal/avsync"
	"github.com/zsiec/lipsync/internal/logger"
)

// Submitter accepts packets already on the shared clock.
type Submitter interface {
	SubmitPacket(ctx context.Context, p avsync.Packet) error
}

// ListenerConfig configures the UDP listener.
type ListenerConfig struct {
	ListenAddr     string
	Port           int
	ReadBufferSize int
	Mapping        Mapping
}

// Listener reads RTP over UDP and submits each datagram as one packet.
// Submission blocks when the session's queue is full, which in turn stops
// reads and lets the socket buffer absorb or drop the excess.
type Listener struct {
	cfg    ListenerConfig
	target Submitter
	depack *Depacketizer
	clock  avsync.Clock
	logger logger.Logger
	warn   *logger.RateLimited

	conn     atomic.Pointer[net.UDPConn]
	ready    chan struct{}
	received atomic.Uint64
	dropped  atomic.Uint64
}

func NewListener(cfg ListenerConfig, target Submitter, clock avsync.Clock, log logger.Logger) *Listener {
	if clock == nil {
		clock = avsync.SystemClock
	}
	if log == nil {
		log = logger.NewNullLogger()
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = 1500
	}
	log = log.WithField("component", "rtp_listener")
	return &Listener{
		cfg:    cfg,
		target: target,
		depack: NewDepacketizer(cfg.Mapping),
		clock:  clock,
		logger: log,
		warn:   logger.NewRateLimited(log, time.Second, 3),
		ready:  make(chan struct{}),
	}
}

// Run listens until ctx is done or the target stops accepting packets.
func (l *Listener) Run(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", l.cfg.ListenAddr, l.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to resolve RTP address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on RTP port: %w", err)
	}
	defer conn.Close()
	l.conn.Store(conn)
	close(l.ready)

	l.logger.WithField("address", conn.LocalAddr().String()).Info("RTP listener started")

	buf := make([]byte, l.cfg.ReadBufferSize)
	for {
		if ctx.Err() != nil {
			l.logger.Info("RTP listener stopped")
			return nil
		}

		_ = conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("RTP read failed: %w", err)
		}
		l.received.Add(1)

		p, err := l.depack.Decode(buf[:n], l.clock.Now())
		if err != nil {
			l.dropped.Add(1)
			l.warn.Warn("decode", map[string]interface{}{"error": err.Error()}, "Dropping RTP packet")
			continue
		}

		if err := l.target.SubmitPacket(ctx, p); err != nil {
			if errors.Is(err, avsync.ErrClosed) {
				l.logger.Info("Session closed, stopping RTP listener")
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			l.dropped.Add(1)
			l.warn.Warn("submit", map[string]interface{}{"error": err.Error()}, "Failed to submit RTP packet")
		}
	}
}

// Addr returns the bound address once Run has started listening.
func (l *Listener) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-l.ready:
		return l.conn.Load().LocalAddr(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *Listener) Received() uint64 { return l.received.Load() }

func (l *Listener) Dropped() uint64 { return l.dropped.Load() }
