package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Registry RegistryConfig `mapstructure:"registry"`
	RTP      RTPConfig      `mapstructure:"rtp"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Packet submissions per second across all sessions, 0 disables limiting
	IngestRateLimit float64 `mapstructure:"ingest_rate_limit"`
	IngestBurst     int     `mapstructure:"ingest_burst"`

	// HTTP/3 listener, only started when enabled
	HTTP3Enabled   bool          `mapstructure:"http3_enabled"`
	HTTP3Port      int           `mapstructure:"http3_port"`
	TLSCertFile    string        `mapstructure:"tls_cert_file"`
	TLSKeyFile     string        `mapstructure:"tls_key_file"`
	MaxIdleTimeout time.Duration `mapstructure:"max_idle_timeout"`
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addresses    []string      `mapstructure:"addresses"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`

	// Emitted packets are appended to a per-session stream when set
	PublishEmitted bool  `mapstructure:"publish_emitted"`
	StreamMaxLen   int64 `mapstructure:"stream_max_len"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`     // json or text
	Output     string `mapstructure:"output"`     // stdout, stderr, or file path
	MaxSize    int    `mapstructure:"max_size"`   // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

type SyncConfig struct {
	ChannelCapacity int           `mapstructure:"channel_capacity"`
	StalenessBound  time.Duration `mapstructure:"staleness_bound"`
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	HistorySize     int           `mapstructure:"history_size"` // emissions kept per session for the API
}

type RegistryConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	TTL               time.Duration `mapstructure:"ttl"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

type RTPConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	ListenAddr        string  `mapstructure:"listen_addr"`
	Port              int     `mapstructure:"port"`
	StreamID          string  `mapstructure:"stream_id"`
	ReadBufferSize    int     `mapstructure:"read_buffer_size"`
	AudioPayloadTypes []uint8 `mapstructure:"audio_payload_types"`
	VideoPayloadTypes []uint8 `mapstructure:"video_payload_types"`
	AudioClockRate    uint32  `mapstructure:"audio_clock_rate"`
	VideoClockRate    uint32  `mapstructure:"video_clock_rate"`
}

func Load(configPath string) (*Config, error) {
	viper.SetConfigType("yaml")
	viper.SetConfigFile(configPath)

	// Environment variable override
	viper.SetEnvPrefix("LIPSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.shutdown_timeout", "10s")
	viper.SetDefault("server.ingest_rate_limit", 0)
	viper.SetDefault("server.ingest_burst", 1000)
	viper.SetDefault("server.http3_enabled", false)
	viper.SetDefault("server.http3_port", 8443)
	viper.SetDefault("server.max_idle_timeout", "30s")

	// Redis defaults
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addresses", []string{"localhost:6379"})
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.dial_timeout", "5s")
	viper.SetDefault("redis.read_timeout", "3s")
	viper.SetDefault("redis.write_timeout", "3s")
	viper.SetDefault("redis.pool_size", 20)
	viper.SetDefault("redis.min_idle_conns", 2)
	viper.SetDefault("redis.publish_emitted", false)
	viper.SetDefault("redis.stream_max_len", 10000)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
	viper.SetDefault("logging.max_size", 100)
	viper.SetDefault("logging.max_backups", 5)
	viper.SetDefault("logging.max_age", 30)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("metrics.port", 9090)

	// Sync defaults
	viper.SetDefault("sync.channel_capacity", 100)
	viper.SetDefault("sync.staleness_bound", "100ms")
	viper.SetDefault("sync.tick_interval", "20ms")
	viper.SetDefault("sync.history_size", 256)

	// Registry defaults
	viper.SetDefault("registry.enabled", false)
	viper.SetDefault("registry.ttl", "30s")
	viper.SetDefault("registry.heartbeat_interval", "10s")

	// RTP defaults (dynamic payload types for Opus and H.264)
	viper.SetDefault("rtp.enabled", false)
	viper.SetDefault("rtp.listen_addr", "0.0.0.0")
	viper.SetDefault("rtp.port", 5004)
	viper.SetDefault("rtp.stream_id", "rtp")
	viper.SetDefault("rtp.read_buffer_size", 1500)
	viper.SetDefault("rtp.audio_payload_types", []int{111})
	viper.SetDefault("rtp.video_payload_types", []int{96})
	viper.SetDefault("rtp.audio_clock_rate", 48000)
	viper.SetDefault("rtp.video_clock_rate", 90000)
}
