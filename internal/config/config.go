package config

import (
	"time"

	"github.com/rickgao/wsbridge/internal/transport"
)

// Config is the root configuration for a wsprobe instance.
type Config struct {
	Endpoint   EndpointConfig   `yaml:"endpoint"`
	Connection ConnectionConfig `yaml:"connection"`
	Reconnect  ReconnectConfig  `yaml:"reconnect"`
	Journal    JournalConfig    `yaml:"journal"`
	Log        LogConfig        `yaml:"log"`
}

// EndpointConfig identifies the remote websocket server.
type EndpointConfig struct {
	URL         string               `yaml:"url"`
	Driver      string               `yaml:"driver"`       // gorilla or nhooyr
	SubProtocol string               `yaml:"sub_protocol"` // Optional
	Cookies     []transport.KeyValue `yaml:"cookies"`
	Headers     []transport.KeyValue `yaml:"headers"`
}

// ConnectionConfig holds per-connection timing and limits.
type ConnectionConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"` // 0 = wait for the handshake timeout
	PingInterval     time.Duration `yaml:"ping_interval"`   // 0 = no pings
	PingTimeout      time.Duration `yaml:"ping_timeout"`    // 0 = never treat as stale
	ReadLimit        int64         `yaml:"read_limit"`
}

// ReconnectConfig holds reconnection backoff settings.
type ReconnectConfig struct {
	Enabled    bool          `yaml:"enabled"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	MaxElapsed time.Duration `yaml:"max_elapsed"` // 0 = retry forever
}

// JournalConfig holds event journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Database      DBConfig      `yaml:"database"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
