package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultDriver             = "gorilla"
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultPingInterval       = 30 * time.Second
	DefaultPingTimeout        = 60 * time.Second
	DefaultReadLimit          = 32 << 20
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 4
	DefaultMinConns           = 1
	DefaultBatchSize          = 500
	DefaultFlushInterval      = 1 * time.Second
	DefaultBufferSize         = 10000
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

// Default returns a Config with every default applied and no endpoint set. Optional
// features whose zero value means "off" (connect timeout, reconnect, journal) stay off.
func Default() *Config {
	return &Config{
		Endpoint: EndpointConfig{
			Driver: DefaultDriver,
		},
		Connection: ConnectionConfig{
			HandshakeTimeout: DefaultHandshakeTimeout,
			WriteTimeout:     DefaultWriteTimeout,
			PingInterval:     DefaultPingInterval,
			PingTimeout:      DefaultPingTimeout,
			ReadLimit:        DefaultReadLimit,
		},
		Reconnect: ReconnectConfig{
			BaseDelay: DefaultReconnectBaseDelay,
			MaxDelay:  DefaultReconnectMaxDelay,
		},
		Journal: JournalConfig{
			Database: DBConfig{
				Port:     DefaultDBPort,
				SSLMode:  DefaultDBSSLMode,
				MaxConns: DefaultMaxConns,
				MinConns: DefaultMinConns,
			},
			BatchSize:     DefaultBatchSize,
			FlushInterval: DefaultFlushInterval,
			BufferSize:    DefaultBufferSize,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
