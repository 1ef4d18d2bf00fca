package config

import (
	"fmt"
	"os"
)

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("redis config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync config: %w", err)
	}

	if err := c.Registry.Validate(); err != nil {
		return fmt.Errorf("registry config: %w", err)
	}

	if c.Registry.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("registry requires redis to be enabled")
	}

	if c.Redis.PublishEmitted && !c.Redis.Enabled {
		return fmt.Errorf("publish_emitted requires redis to be enabled")
	}

	if err := c.RTP.Validate(); err != nil {
		return fmt.Errorf("rtp config: %w", err)
	}

	return nil
}

func (s *ServerConfig) Validate() error {
	if s.HTTPPort < 1 || s.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", s.HTTPPort)
	}

	if s.IngestRateLimit < 0 {
		return fmt.Errorf("ingest_rate_limit cannot be negative")
	}

	if s.IngestRateLimit > 0 && s.IngestBurst <= 0 {
		return fmt.Errorf("ingest_burst must be positive when rate limiting is enabled")
	}

	if !s.HTTP3Enabled {
		return nil
	}

	if s.HTTP3Port < 1 || s.HTTP3Port > 65535 {
		return fmt.Errorf("invalid HTTP3 port: %d", s.HTTP3Port)
	}

	if s.HTTP3Port == s.HTTPPort {
		return fmt.Errorf("HTTP and HTTP3 ports must be different")
	}

	if s.TLSCertFile == "" {
		return fmt.Errorf("TLS certificate file is required")
	}

	if s.TLSKeyFile == "" {
		return fmt.Errorf("TLS key file is required")
	}

	if _, err := os.Stat(s.TLSCertFile); os.IsNotExist(err) {
		return fmt.Errorf("TLS certificate file not found: %s", s.TLSCertFile)
	}

	if _, err := os.Stat(s.TLSKeyFile); os.IsNotExist(err) {
		return fmt.Errorf("TLS key file not found: %s", s.TLSKeyFile)
	}

	return nil
}

func (r *RedisConfig) Validate() error {
	if !r.Enabled {
		return nil
	}

	if len(r.Addresses) == 0 {
		return fmt.Errorf("at least one Redis address is required")
	}

	if r.DB < 0 {
		return fmt.Errorf("invalid Redis database number: %d", r.DB)
	}

	if r.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}

	if r.PoolSize <= 0 {
		return fmt.Errorf("pool_size must be positive")
	}

	if r.MinIdleConns < 0 {
		return fmt.Errorf("min_idle_conns cannot be negative")
	}

	if r.MinIdleConns > r.PoolSize {
		return fmt.Errorf("min_idle_conns cannot be greater than pool_size")
	}

	if r.PublishEmitted && r.StreamMaxLen <= 0 {
		return fmt.Errorf("stream_max_len must be positive")
	}

	return nil
}

func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"panic": true,
		"fatal": true,
		"error": true,
		"warn":  true,
		"info":  true,
		"debug": true,
		"trace": true,
	}

	if !validLevels[l.Level] {
		return fmt.Errorf("invalid log level: %s", l.Level)
	}

	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("log format must be 'json' or 'text'")
	}

	if l.Output != "stdout" && l.Output != "stderr" {
		if l.MaxSize <= 0 {
			return fmt.Errorf("max_size must be positive for file output")
		}
		if l.MaxBackups < 0 {
			return fmt.Errorf("max_backups cannot be negative")
		}
		if l.MaxAge < 0 {
			return fmt.Errorf("max_age cannot be negative")
		}
	}

	return nil
}

func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.Port < 1 || m.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", m.Port)
		}

		if m.Path == "" {
			return fmt.Errorf("metrics path cannot be empty")
		}
	}

	return nil
}

func (s *SyncConfig) Validate() error {
	if s.ChannelCapacity <= 0 {
		return fmt.Errorf("channel_capacity must be positive")
	}

	if s.StalenessBound <= 0 {
		return fmt.Errorf("staleness_bound must be positive")
	}

	if s.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive")
	}

	if s.TickInterval > s.StalenessBound {
		return fmt.Errorf("tick_interval (%s) should not exceed staleness_bound (%s)", s.TickInterval, s.StalenessBound)
	}

	if s.HistorySize < 0 {
		return fmt.Errorf("history_size cannot be negative")
	}

	return nil
}

func (r *RegistryConfig) Validate() error {
	if !r.Enabled {
		return nil
	}

	if r.TTL <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	if r.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive")
	}

	if r.HeartbeatInterval >= r.TTL {
		return fmt.Errorf("heartbeat_interval (%s) must be shorter than ttl (%s)", r.HeartbeatInterval, r.TTL)
	}

	return nil
}

func (r *RTPConfig) Validate() error {
	if !r.Enabled {
		return nil
	}

	if r.Port < 1 || r.Port > 65535 {
		return fmt.Errorf("invalid RTP port: %d", r.Port)
	}

	if r.ListenAddr == "" {
		return fmt.Errorf("RTP listen address cannot be empty")
	}

	if r.StreamID == "" {
		return fmt.Errorf("RTP stream_id cannot be empty")
	}

	if r.ReadBufferSize <= 0 {
		return fmt.Errorf("read_buffer_size must be positive")
	}

	if len(r.AudioPayloadTypes) == 0 && len(r.VideoPayloadTypes) == 0 {
		return fmt.Errorf("at least one payload type must be mapped")
	}

	seen := make(map[uint8]bool)
	for _, pt := range append(append([]uint8{}, r.AudioPayloadTypes...), r.VideoPayloadTypes...) {
		if pt > 127 {
			return fmt.Errorf("invalid payload type: %d", pt)
		}
		if seen[pt] {
			return fmt.Errorf("payload type %d mapped more than once", pt)
		}
		seen[pt] = true
	}

	if r.AudioClockRate == 0 || r.VideoClockRate == 0 {
		return fmt.Errorf("clock rates must be positive")
	}

	return nil
}
