package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/lipsync/internal/avsync"
	"github.com/zsiec/lipsync/internal/config"
	"github.com/zsiec/lipsync/internal/health"
	"github.com/zsiec/lipsync/internal/ingest/rtp"
	"github.com/zsiec/lipsync/internal/logger"
	"github.com/zsiec/lipsync/internal/registry"
	"github.com/zsiec/lipsync/internal/server"
	"github.com/zsiec/lipsync/internal/session"
	"github.com/zsiec/lipsync/internal/sink"
	"github.com/zsiec/lipsync/pkg/version"
)

func main() {
	var (
		configPath  string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "configs/default.yaml", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Parse()

	if showVersion {
		fmt.Println(version.GetInfo().String())
		os.Exit(0)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithField("version", version.GetInfo().Short()).Info("Starting lipsync")
	log.WithField("config_path", configPath).Debug("Configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("lipsync exited with error")
	}
	log.Info("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	healthMgr := health.NewManager(log)

	var redisClient redis.UniversalClient
	if cfg.Redis.Enabled {
		redisClient = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:        cfg.Redis.Addresses,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})

		pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = redisClient.Close()
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Info("Connected to Redis successfully")
		healthMgr.Register(health.NewRedisChecker(redisClient))
	}

	hubOpts := []session.Option{session.WithHistorySize(cfg.Sync.HistorySize)}
	if cfg.Redis.PublishEmitted {
		sinkLog := logger.Component(log, "sink.redis_stream")
		hubOpts = append(hubOpts, session.WithSinkFactory(func(streamID string, epoch time.Time) (avsync.Sink, error) {
			return sink.NewRedisStreamSink(redisClient, streamID, cfg.Redis.StreamMaxLen, epoch, sinkLog), nil
		}))
	}

	hub, err := session.NewHub(session.ManagerConfig(cfg.Sync), logger.Component(log, "session.hub"), hubOpts...)
	if err != nil {
		return fmt.Errorf("failed to create session hub: %w", err)
	}
	healthMgr.Register(health.NewSessionChecker(hub, 0.9))

	srv := server.New(&cfg.Server, log, hub, healthMgr)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return srv.Start(gctx) })

	if cfg.Metrics.Enabled {
		g.Go(func() error { return serveMetrics(gctx, cfg.Metrics, log) })
	}

	var reg registry.Registry
	if cfg.Registry.Enabled {
		reg = registry.NewRedisRegistry(redisClient, logger.Component(log, "registry"), cfg.Registry.TTL)
		hb := registry.NewHeartbeat(reg, hub, instanceName(), cfg.Registry.HeartbeatInterval, logger.Component(log, "registry.heartbeat"))
		g.Go(func() error { return hb.Run(gctx) })
	}

	if cfg.RTP.Enabled {
		sess, err := hub.GetOrCreate(cfg.RTP.StreamID)
		if err != nil {
			return fmt.Errorf("failed to create rtp session: %w", err)
		}
		listener := rtp.NewListener(rtp.ListenerConfig{
			ListenAddr:     cfg.RTP.ListenAddr,
			Port:           cfg.RTP.Port,
			ReadBufferSize: cfg.RTP.ReadBufferSize,
			Mapping: rtp.Mapping{
				AudioPayloadTypes: cfg.RTP.AudioPayloadTypes,
				VideoPayloadTypes: cfg.RTP.VideoPayloadTypes,
				AudioClockRate:    cfg.RTP.AudioClockRate,
				VideoClockRate:    cfg.RTP.VideoClockRate,
			},
		}, sess, avsync.SystemClock, logger.Component(log, "ingest.rtp"))
		g.Go(func() error { return listener.Run(gctx) })
	}

	err = g.Wait()

	// The registry owns the client when enabled; heartbeat cleanup runs before this.
	switch {
	case reg != nil:
		if cerr := reg.Close(); cerr != nil {
			log.WithError(cerr).Error("Failed to close registry")
		}
	case redisClient != nil:
		if cerr := redisClient.Close(); cerr != nil {
			log.WithError(cerr).Error("Failed to close Redis connection")
		}
	}

	return err
}

func serveMetrics(ctx context.Context, cfg config.MetricsConfig, log *logrus.Logger) error {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", addr).Info("Starting metrics server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func instanceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "lipsync"
	}
	return host
}
