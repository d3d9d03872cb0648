package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the relay runtime parameters.
type Config struct {
	ListenAddress       string          `mapstructure:"listen_address"`
	LogLevel            string          `mapstructure:"log_level"`
	LogFormat           string          `mapstructure:"log_format"`
	Lobby               string          `mapstructure:"lobby"`
	StaticDir           string          `mapstructure:"static_dir"`
	AllowedOrigins      []string        `mapstructure:"allowed_origins"`
	ShutdownGracePeriod time.Duration   `mapstructure:"shutdown_grace_period"`
	Database            DatabaseConfig  `mapstructure:"database"`
	TLS                 TLSConfig       `mapstructure:"tls"`
	Limits              LimitsConfig    `mapstructure:"limits"`
	WebSocket           WebSocketConfig `mapstructure:"websocket"`
}

// DatabaseConfig points at the room activity store.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// TLSConfig enables wss:// when both files are set.
type TLSConfig struct {
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// Enabled reports whether a certificate was configured.
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

// LimitsConfig bounds per-connection resource use.
type LimitsConfig struct {
	SendQueue       int     `mapstructure:"send_queue"`
	MaxFrameBytes   int64   `mapstructure:"max_frame_bytes"`
	FramesPerSecond float64 `mapstructure:"frames_per_second"`
	Burst           int     `mapstructure:"burst"`
}

// WebSocketConfig holds keepalive timings.
type WebSocketConfig struct {
	PingInterval time.Duration `mapstructure:"ping_interval"`
	PongWait     time.Duration `mapstructure:"pong_wait"`
	WriteWait    time.Duration `mapstructure:"write_wait"`
}

const (
	defaultListenAddress       = ":3000"
	defaultLogLevel            = "info"
	defaultLogFormat           = "text"
	defaultLobby               = "Lobby"
	defaultStaticDir           = "client"
	defaultShutdownGracePeriod = 10 * time.Second
	defaultDSN                 = "file::memory:?cache=shared"
	defaultSendQueue           = 256
	defaultMaxFrameBytes       = 64 * 1024
	defaultFramesPerSecond     = 50
	defaultBurst               = 100
	defaultPingInterval        = 30 * time.Second
	defaultPongWait            = 60 * time.Second
	defaultWriteWait           = 10 * time.Second
)

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		ListenAddress:       defaultListenAddress,
		LogLevel:            defaultLogLevel,
		LogFormat:           defaultLogFormat,
		Lobby:               defaultLobby,
		StaticDir:           defaultStaticDir,
		ShutdownGracePeriod: defaultShutdownGracePeriod,
		Database:            DatabaseConfig{DSN: defaultDSN},
		Limits: LimitsConfig{
			SendQueue:       defaultSendQueue,
			MaxFrameBytes:   defaultMaxFrameBytes,
			FramesPerSecond: defaultFramesPerSecond,
			Burst:           defaultBurst,
		},
		WebSocket: WebSocketConfig{
			PingInterval: defaultPingInterval,
			PongWait:     defaultPongWait,
			WriteWait:    defaultWriteWait,
		},
	}
}

// Load reads configuration from the provided file path (if any) and the environment.
// Environment variables are prefixed with RELAY_ and override file values.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("listen_address", def.ListenAddress)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("log_format", def.LogFormat)
	v.SetDefault("lobby", def.Lobby)
	v.SetDefault("static_dir", def.StaticDir)
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("shutdown_grace_period", def.ShutdownGracePeriod)
	v.SetDefault("database.dsn", def.Database.DSN)
	v.SetDefault("tls.cert_file", "")
	v.SetDefault("tls.key_file", "")
	v.SetDefault("limits.send_queue", def.Limits.SendQueue)
	v.SetDefault("limits.max_frame_bytes", def.Limits.MaxFrameBytes)
	v.SetDefault("limits.frames_per_second", def.Limits.FramesPerSecond)
	v.SetDefault("limits.burst", def.Limits.Burst)
	v.SetDefault("websocket.ping_interval", def.WebSocket.PingInterval)
	v.SetDefault("websocket.pong_wait", def.WebSocket.PongWait)
	v.SetDefault("websocket.write_wait", def.WebSocket.WriteWait)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	// a comma separated env value arrives as a single element
	if len(cfg.AllowedOrigins) == 1 && strings.Contains(cfg.AllowedOrigins[0], ",") {
		cfg.AllowedOrigins = splitList(cfg.AllowedOrigins[0])
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the relay cannot run with.
func (c Config) Validate() error {
	switch {
	case c.ListenAddress == "":
		return fmt.Errorf("listen_address must not be empty")
	case strings.TrimSpace(c.Lobby) == "":
		return fmt.Errorf("lobby must not be empty")
	case c.Limits.SendQueue <= 0:
		return fmt.Errorf("limits.send_queue must be positive, got %d", c.Limits.SendQueue)
	case c.Limits.MaxFrameBytes <= 0:
		return fmt.Errorf("limits.max_frame_bytes must be positive, got %d", c.Limits.MaxFrameBytes)
	case c.Limits.FramesPerSecond < 0:
		return fmt.Errorf("limits.frames_per_second must not be negative")
	case c.WebSocket.PongWait <= c.WebSocket.PingInterval:
		return fmt.Errorf("websocket.pong_wait (%s) must exceed ping_interval (%s)", c.WebSocket.PongWait, c.WebSocket.PingInterval)
	case (c.TLS.CertFile == "") != (c.TLS.KeyFile == ""):
		return fmt.Errorf("tls.cert_file and tls.key_file must be set together")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
