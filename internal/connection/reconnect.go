package connection

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rickgao/wsbridge/internal/scheduler"
	"github.com/rickgao/wsbridge/internal/transport"
)

// ReconnectConfig configures the delay between reconnection attempts.
type ReconnectConfig struct {
	BaseDelay  time.Duration // First retry delay
	MaxDelay   time.Duration // Cap on the retry delay
	MaxElapsed time.Duration // Give up after this long without an open connection (0 = never)
}

// DefaultReconnectConfig returns sensible defaults.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		BaseDelay: 1 * time.Second,
		MaxDelay:  60 * time.Second,
	}
}

// Reconnector keeps a connection to one endpoint alive by replacing each closed
// Connection with a new one after an exponential backoff delay. Handlers registered on
// its Dispatcher see the events of every underlying connection.
type Reconnector struct {
	*Dispatcher

	cfg     Config
	factory transport.Factory
	logger  *slog.Logger
	pool    *scheduler.Pool

	mu       sync.Mutex
	current  *Connection
	backoff  *backoff.ExponentialBackOff
	retry    *scheduler.Task
	started  bool
	stopped  bool
	attempts int
	onNew    []func(*Connection)
}

// NewReconnector validates cfg and returns a Reconnector that has not started yet.
func NewReconnector(cfg Config, rcfg ReconnectConfig, factory transport.Factory, logger *slog.Logger) (*Reconnector, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: transport factory is nil", ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := backoff.NewExponentialBackOff()
	if rcfg.BaseDelay > 0 {
		b.InitialInterval = rcfg.BaseDelay
	}
	if rcfg.MaxDelay > 0 {
		b.MaxInterval = rcfg.MaxDelay
	}
	b.MaxElapsedTime = rcfg.MaxElapsed
	b.Reset()

	return &Reconnector{
		Dispatcher: NewDispatcher(),
		cfg:        cfg,
		factory:    factory,
		logger:     logger.With("url", cfg.URL),
		pool:       scheduler.Default(),
		backoff:    b,
	}, nil
}

// OnNewConnection registers f to run for every Connection the Reconnector creates,
// before it is opened. f runs with the Reconnector locked and must not call back into it.
func (r *Reconnector) OnNewConnection(f func(*Connection)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onNew = append(r.onNew, f)
}

// Start opens the first connection. Later calls do nothing.
func (r *Reconnector) Start() {
	r.mu.Lock()
	if r.started || r.stopped {
		r.mu.Unlock()
		return
	}
	r.started = true
	conn, err := r.newConnection()
	if err != nil {
		r.retryLocked(err)
		return
	}
	r.mu.Unlock()

	conn.Open()
}

// Current returns the active connection, nil before Start.
func (r *Reconnector) Current() *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Attempts returns the number of reconnections since the last successful open.
func (r *Reconnector) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// State returns the state of the active connection.
func (r *Reconnector) State() State {
	if conn := r.Current(); conn != nil {
		return conn.State()
	}
	return StateNone
}

// Handshaked reports whether the active connection is open.
func (r *Reconnector) Handshaked() bool {
	conn := r.Current()
	return conn != nil && conn.Handshaked()
}

// Send writes a text message on the active connection.
func (r *Reconnector) Send(message string) {
	if conn := r.Current(); conn != nil {
		conn.Send(message)
		return
	}
	r.fireError(ErrNotOpen)
}

// SendData writes data[offset:offset+length] on the active connection.
func (r *Reconnector) SendData(data []byte, offset, length int) {
	if conn := r.Current(); conn != nil {
		conn.SendData(data, offset, length)
		return
	}
	r.fireError(ErrNotOpen)
}

// SendSegments writes the concatenated segments on the active connection.
func (r *Reconnector) SendSegments(segments [][]byte) {
	if conn := r.Current(); conn != nil {
		conn.SendSegments(segments)
		return
	}
	r.fireError(ErrNotOpen)
}

// Close stops reconnecting and closes the active connection with StatusNormalClosure.
func (r *Reconnector) Close() {
	r.CloseWithStatus(StatusNormalClosure, "")
}

// CloseWithStatus stops reconnecting and closes the active connection.
func (r *Reconnector) CloseWithStatus(code int16, reason string) {
	if conn := r.stop(); conn != nil {
		conn.CloseWithStatus(code, reason)
	}
}

// Dispose stops reconnecting and disposes the active connection, waiting for it to finish.
func (r *Reconnector) Dispose() {
	if conn := r.stop(); conn != nil {
		r.pool.RunBlocking(conn.Dispose)
	}
}

func (r *Reconnector) stop() *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	scheduler.Cancel(r.retry)
	r.retry = nil
	return r.current
}

// newConnection builds and wires a connection. Called with r.mu held.
func (r *Reconnector) newConnection() (*Connection, error) {
	conn, err := New(r.cfg, r.factory, r.logger)
	if err != nil {
		r.logger.Error("failed to create connection", "error", err)
		return nil, err
	}

	conn.OnOpened(func() { r.onOpened(conn) })
	conn.OnMessage(r.fireMessage)
	conn.OnData(r.fireData)
	conn.OnError(r.fireError)
	conn.OnClosed(func(info CloseInfo) { r.onClosed(conn, info) })

	for _, f := range r.onNew {
		f(conn)
	}

	r.current = conn
	return conn, nil
}

func (r *Reconnector) onOpened(conn *Connection) {
	r.mu.Lock()
	if conn != r.current {
		r.mu.Unlock()
		return
	}
	r.backoff.Reset()
	r.attempts = 0
	r.mu.Unlock()

	r.fireOpened()
}

func (r *Reconnector) onClosed(conn *Connection, info CloseInfo) {
	r.fireClosed(info)

	r.mu.Lock()
	if r.stopped || conn != r.current {
		r.mu.Unlock()
		return
	}

	r.logger.Warn("connection closed, reconnecting",
		"conn_id", conn.ID(),
		"code", info.Code,
	)
	// Dispose off the transport goroutine that is delivering this event.
	r.pool.RunFireAndForget(conn.Dispose)

	r.retryLocked(nil)
}

// retryLocked schedules the next attempt after the backoff delay, or gives up with
// ErrReconnectExhausted. Called with r.mu held; it unlocks, then fires cause (if any)
// and the give-up error.
func (r *Reconnector) retryLocked(cause error) {
	wait := r.backoff.NextBackOff()
	exhausted := wait == backoff.Stop
	if exhausted {
		r.stopped = true
	} else {
		r.retry = scheduler.After(wait, r.reconnect)
	}
	elapsed := r.backoff.GetElapsedTime()
	next := r.attempts + 1
	r.mu.Unlock()

	if cause != nil {
		r.fireError(cause)
	}
	if exhausted {
		r.logger.Error("giving up reconnecting", "elapsed", elapsed)
		r.fireError(ErrReconnectExhausted)
		return
	}
	r.logger.Debug("reconnect scheduled", "wait", wait, "attempt", next)
}

func (r *Reconnector) reconnect() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.attempts++
	r.logger.Info("attempting reconnection", "attempt", r.attempts)
	conn, err := r.newConnection()
	if err != nil {
		r.retryLocked(err)
		return
	}
	r.mu.Unlock()

	conn.Open()
}
