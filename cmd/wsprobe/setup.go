package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/rickgao/wsbridge/internal/config"
	"github.com/rickgao/wsbridge/internal/connection"
	"github.com/rickgao/wsbridge/internal/journal"
	"github.com/rickgao/wsbridge/internal/transport"
	"github.com/rickgao/wsbridge/internal/version"
)

// endpoint is what main needs from either a Connection or a Reconnector.
type endpoint interface {
	OnOpened(h func()) connection.Subscription
	OnMessage(h func(message string)) connection.Subscription
	OnData(h func(data []byte)) connection.Subscription
	OnError(h func(err error)) connection.Subscription
	OnClosed(h func(info connection.CloseInfo)) connection.Subscription
	Send(message string)
	CloseWithStatus(code int16, reason string)
	Dispose()
}

// newLogger builds the slog handler selected by the log section.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// connectionConfig maps the file config onto connection.Config. A User-Agent header is
// added unless the endpoint already sets one.
func connectionConfig(cfg *config.Config) connection.Config {
	cc := connection.DefaultConfig()
	cc.URL = cfg.Endpoint.URL
	cc.SubProtocol = cfg.Endpoint.SubProtocol
	cc.Cookies = append([]transport.KeyValue(nil), cfg.Endpoint.Cookies...)
	cc.Headers = append([]transport.KeyValue(nil), cfg.Endpoint.Headers...)

	hasUA := false
	for _, h := range cc.Headers {
		if strings.EqualFold(h.Key, "User-Agent") {
			hasUA = true
			break
		}
	}
	if !hasUA {
		cc.Headers = append(cc.Headers, transport.KeyValue{Key: "User-Agent", Value: version.UserAgent()})
	}

	cc.HandshakeTimeout = cfg.Connection.HandshakeTimeout
	cc.WriteTimeout = cfg.Connection.WriteTimeout
	cc.ReadLimit = cfg.Connection.ReadLimit
	cc.ConnectTimeout = cfg.Connection.ConnectTimeout
	cc.PingInterval = cfg.Connection.PingInterval
	cc.PingTimeout = cfg.Connection.PingTimeout
	return cc
}

func reconnectConfig(cfg *config.Config) connection.ReconnectConfig {
	return connection.ReconnectConfig{
		BaseDelay:  cfg.Reconnect.BaseDelay,
		MaxDelay:   cfg.Reconnect.MaxDelay,
		MaxElapsed: cfg.Reconnect.MaxElapsed,
	}
}

func writerConfig(cfg *config.Config) journal.WriterConfig {
	return journal.WriterConfig{
		BatchSize:     cfg.Journal.BatchSize,
		FlushInterval: cfg.Journal.FlushInterval,
		BufferSize:    cfg.Journal.BufferSize,
	}
}

// newEndpoint builds a plain Connection, or a Reconnector when reconnect is enabled.
// start opens it. attach, if non-nil, runs for every underlying Connection.
func newEndpoint(cfg *config.Config, factory transport.Factory, attach func(*connection.Connection), logger *slog.Logger) (ep endpoint, start func(), err error) {
	cc := connectionConfig(cfg)

	if cfg.Reconnect.Enabled {
		r, err := connection.NewReconnector(cc, reconnectConfig(cfg), factory, logger)
		if err != nil {
			return nil, nil, err
		}
		if attach != nil {
			r.OnNewConnection(attach)
		}
		return r, r.Start, nil
	}

	conn, err := connection.New(cc, factory, logger)
	if err != nil {
		return nil, nil, err
	}
	if attach != nil {
		attach(conn)
	}
	return conn, conn.Open, nil
}
