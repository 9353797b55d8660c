// Package transport defines the raw socket capability wrapped by the connection package.
//
// A Transport is single-use: it is connected at most once and never reused after it
// closes. Drivers report everything that happens on the socket through Handlers, which
// they invoke from their own goroutine.
package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("transport not connected")
	ErrTransportClosed = errors.New("transport closed")
	ErrUnknownDriver   = errors.New("unknown transport driver")
)

// Transport is the underlying socket implementation.
type Transport interface {
	// Connect starts dialing in the background. The outcome is reported through
	// Handlers.OnOpen or Handlers.OnError.
	Connect()

	// SendText writes a text frame.
	SendText(message string) error

	// SendBinary writes a binary frame.
	SendBinary(data []byte) error

	// Ping writes a ping control frame. The matching pong is reported via Handlers.OnPong.
	Ping(payload []byte) error

	// Close starts the closing handshake and returns without waiting for it.
	// Handlers.OnClosed is invoked once the socket is gone.
	Close(code int, reason string) error
}

// Handlers receive notifications from a Transport. Nil fields are skipped.
type Handlers struct {
	OnOpen   func()
	OnText   func(message string)
	OnBinary func(data []byte)
	OnPong   func(payload string)
	OnError  func(err error)
	OnClosed func(code int, reason string)
}

func (h Handlers) Open() {
	if h.OnOpen != nil {
		h.OnOpen()
	}
}

func (h Handlers) Text(message string) {
	if h.OnText != nil {
		h.OnText(message)
	}
}

func (h Handlers) Binary(data []byte) {
	if h.OnBinary != nil {
		h.OnBinary(data)
	}
}

func (h Handlers) Pong(payload string) {
	if h.OnPong != nil {
		h.OnPong(payload)
	}
}

func (h Handlers) Error(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

func (h Handlers) Closed(code int, reason string) {
	if h.OnClosed != nil {
		h.OnClosed(code, reason)
	}
}

// Factory builds a Transport for one connection attempt.
type Factory func(opts Options, handlers Handlers, logger *slog.Logger) Transport

var drivers = map[string]Factory{}

// Register makes a driver available by name. Drivers call it from init.
func Register(name string, factory Factory) {
	if factory == nil {
		panic("transport: Register factory is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("transport: Register called twice for driver " + name)
	}
	drivers[name] = factory
}

// Lookup returns the factory registered under name.
func Lookup(name string) (Factory, error) {
	f, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
	}
	return f, nil
}

// Drivers returns the sorted names of registered drivers.
func Drivers() []string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CloseDeadline bounds how long a driver waits for the peer to answer a close frame
// before dropping the socket.
const CloseDeadline = 5 * time.Second
