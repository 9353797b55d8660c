package connection

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rickgao/wsbridge/internal/transport"
)

// Errors
var (
	ErrNotOpen            = errors.New("you must send data by websocket after websocket is opened")
	ErrStaleConnection    = errors.New("connection stale (no activity within ping timeout)")
	ErrInvalidRange       = errors.New("invalid send range")
	ErrInvalidConfig      = errors.New("invalid connection config")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// Close status codes used by this package.
const (
	StatusNormalClosure int16 = 1000
	StatusGoingAway     int16 = 1001
)

// State is the lifecycle state of a Connection.
type State int32

const (
	StateNone State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// CloseInfo is the status code and reason associated with a closure.
// The zero value marks a closure with no known code, such as a transport failure.
type CloseInfo struct {
	Code   int16
	Reason string
}

// IsZero reports whether c carries no close information.
func (c CloseInfo) IsZero() bool {
	return c.Code == 0 && c.Reason == ""
}

// Config configures a Connection. It is copied at construction and never changes afterwards.
type Config struct {
	URL         string               // ws:// or wss:// endpoint
	SubProtocol string               // Sec-WebSocket-Protocol to request, empty for none
	Cookies     []transport.KeyValue // Sent in the upgrade request Cookie header
	Headers     []transport.KeyValue // Extra upgrade request headers

	HandshakeTimeout time.Duration // Dial + upgrade deadline
	WriteTimeout     time.Duration // Per-frame write deadline
	ReadLimit        int64         // Max inbound frame size

	ConnectTimeout time.Duration // Close if not open within this long (0 = wait forever)
	PingInterval   time.Duration // Ping period while open (0 = no pings)
	PingTimeout    time.Duration // Max time without inbound activity (0 = never stale)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: transport.DefaultHandshakeTimeout,
		WriteTimeout:     transport.DefaultWriteTimeout,
		ReadLimit:        transport.DefaultReadLimit,
		PingInterval:     30 * time.Second,
		PingTimeout:      60 * time.Second,
	}
}

func (c Config) validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("url scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url host is required")
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"handshake_timeout", c.HandshakeTimeout},
		{"write_timeout", c.WriteTimeout},
		{"connect_timeout", c.ConnectTimeout},
		{"ping_interval", c.PingInterval},
		{"ping_timeout", c.PingTimeout},
	}
	for _, d := range durations {
		if d.d < 0 {
			return fmt.Errorf("%s must be >= 0, got %s", d.name, d.d)
		}
	}
	if c.ReadLimit < 0 {
		return fmt.Errorf("read_limit must be >= 0, got %d", c.ReadLimit)
	}
	for _, h := range c.Headers {
		if h.Key == "" {
			return errors.New("header key is required")
		}
	}
	for _, ck := range c.Cookies {
		if ck.Key == "" {
			return errors.New("cookie key is required")
		}
	}
	return nil
}

func (c Config) transportOptions() transport.Options {
	return transport.Options{
		URL:              c.URL,
		SubProtocol:      c.SubProtocol,
		Cookies:          c.Cookies,
		Headers:          c.Headers,
		HandshakeTimeout: c.HandshakeTimeout,
		WriteTimeout:     c.WriteTimeout,
		ReadLimit:        c.ReadLimit,
	}.Clone()
}
