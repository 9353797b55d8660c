package connection

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/wsbridge/internal/scheduler"
	"github.com/rickgao/wsbridge/internal/transport"
)

// Connection wraps one transport.Transport and exposes its lifecycle as events.
// Subscribe through the embedded Dispatcher before calling Open.
type Connection struct {
	*Dispatcher

	id        uuid.UUID
	cfg       Config
	logger    *slog.Logger
	transport transport.Transport
	state     stateMachine

	// Written from the transport goroutine, read from anywhere
	closeInfo  atomic.Pointer[CloseInfo]
	lastActive atomic.Int64 // unix nanos
	lastPong   atomic.Pointer[string]

	itemsMu sync.Mutex
	items   map[string]any

	// Scheduled work, guarded so a late start cannot outlive the close
	taskMu      sync.Mutex
	pingTask    *scheduler.Task
	connectTask *scheduler.Task

	// Set by Dispose; transport notifications are ignored afterwards
	detached    atomic.Bool
	disposeOnce sync.Once
}

// New validates cfg and builds the transport through factory. Malformed configuration is
// the only failure reported synchronously.
func New(cfg Config, factory transport.Factory, logger *slog.Logger) (*Connection, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: transport factory is nil", ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.New()
	c := &Connection{
		Dispatcher: NewDispatcher(),
		id:         id,
		cfg:        cfg,
		logger:     logger.With("conn_id", id, "url", cfg.URL),
		items:      make(map[string]any),
	}
	c.cfg.Cookies = append([]transport.KeyValue(nil), cfg.Cookies...)
	c.cfg.Headers = append([]transport.KeyValue(nil), cfg.Headers...)

	c.transport = factory(c.cfg.transportOptions(), transport.Handlers{
		OnOpen:   c.onConnected,
		OnText:   c.onMessage,
		OnBinary: c.onData,
		OnPong:   c.onPong,
		OnError:  c.onError,
		OnClosed: c.onClosed,
	}, c.logger)
	if c.transport == nil {
		return nil, fmt.Errorf("%w: transport factory returned nil", ErrInvalidConfig)
	}

	return c, nil
}

// ID returns the identifier assigned at construction.
func (c *Connection) ID() uuid.UUID {
	return c.id
}

// Config returns a copy of the configuration.
func (c *Connection) Config() Config {
	cfg := c.cfg
	cfg.Cookies = append([]transport.KeyValue(nil), c.cfg.Cookies...)
	cfg.Headers = append([]transport.KeyValue(nil), c.cfg.Headers...)
	return cfg
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	return c.state.Current()
}

// Handshaked reports whether application data can be sent, i.e. the state is StateOpen.
func (c *Connection) Handshaked() bool {
	return c.state.Current() == StateOpen
}

// CloseInfo returns the code and reason captured by Close, if Close was called.
func (c *Connection) CloseInfo() (CloseInfo, bool) {
	if info := c.closeInfo.Load(); info != nil {
		return *info, true
	}
	return CloseInfo{}, false
}

// LastActiveTime returns when the connection last saw inbound activity.
// It is zero before Open.
func (c *Connection) LastActiveTime() time.Time {
	ns := c.lastActive.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// LastPongResponse returns the payload of the most recent pong.
func (c *Connection) LastPongResponse() (string, bool) {
	if p := c.lastPong.Load(); p != nil {
		return *p, true
	}
	return "", false
}

// SetItem stores per-connection state for upper layers. Items are cleared each time
// the transport reports a new connection.
func (c *Connection) SetItem(key string, value any) {
	c.itemsMu.Lock()
	defer c.itemsMu.Unlock()
	c.items[key] = value
}

// Item returns a value stored with SetItem.
func (c *Connection) Item(key string) (any, bool) {
	c.itemsMu.Lock()
	defer c.itemsMu.Unlock()
	v, ok := c.items[key]
	return v, ok
}

// Open starts connecting. It only has an effect on a connection that was never opened
// or closed; failures are reported later through Error and Closed.
func (c *Connection) Open() {
	if !c.state.TryTransition(StateNone, StateConnecting) {
		c.logger.Debug("open ignored", "state", c.state.Current())
		return
	}

	c.touch()
	if c.cfg.ConnectTimeout > 0 {
		c.startTask(&c.connectTask, func() *scheduler.Task {
			return scheduler.After(c.cfg.ConnectTimeout, c.connectTimedOut)
		})
	}

	c.logger.Info("connection opening")
	c.transport.Connect()
}

// Send writes a text message.
func (c *Connection) Send(message string) {
	if !c.ensureOpen() {
		return
	}
	if err := c.transport.SendText(message); err != nil {
		c.fireErrorf("send text: %w", err)
	}
}

// SendData writes data[offset:offset+length] as one binary message.
func (c *Connection) SendData(data []byte, offset, length int) {
	if offset < 0 || length < 0 || offset > len(data) || length > len(data)-offset {
		c.fireErrorf("%w: offset %d length %d over %d bytes", ErrInvalidRange, offset, length, len(data))
		return
	}
	if !c.ensureOpen() {
		return
	}
	if err := c.transport.SendBinary(data[offset : offset+length]); err != nil {
		c.fireErrorf("send binary: %w", err)
	}
}

// SendSegments concatenates segments and writes them as one binary message.
func (c *Connection) SendSegments(segments [][]byte) {
	if len(segments) == 0 {
		return
	}
	if !c.ensureOpen() {
		return
	}

	size := 0
	for _, s := range segments {
		size += len(s)
	}
	buf := make([]byte, 0, size)
	for _, s := range segments {
		buf = append(buf, s...)
	}

	if err := c.transport.SendBinary(buf); err != nil {
		c.fireErrorf("send binary: %w", err)
	}
}

// ensureOpen reports ErrNotOpen through the Error event when the connection is not open.
func (c *Connection) ensureOpen() bool {
	if c.Handshaked() {
		return true
	}
	c.fireError(ErrNotOpen)
	return false
}

// Close closes with StatusNormalClosure and no reason.
func (c *Connection) Close() {
	c.CloseWithStatus(StatusNormalClosure, "")
}

// CloseWithReason closes with StatusNormalClosure and reason.
func (c *Connection) CloseWithReason(reason string) {
	c.CloseWithStatus(StatusNormalClosure, reason)
}

// CloseWithStatus closes the connection. A connection that was never opened closes
// immediately and fires Closed without touching the transport. Otherwise the transport
// is asked to close and its notification fires Closed later. Repeated or concurrent
// calls fire Closed at most once.
func (c *Connection) CloseWithStatus(code int16, reason string) {
	if c.state.Current() == StateClosed {
		return
	}
	info := CloseInfo{Code: code, Reason: reason}
	c.closeInfo.Store(&info)

	// Never opened
	if c.state.TryTransition(StateNone, StateClosed) {
		c.stopTasks()
		c.logger.Info("connection closed before open", "code", code, "reason", reason)
		c.fireClosed(info)
		return
	}

	if !c.state.TryTransition(StateOpen, StateClosing) {
		c.state.TryTransition(StateConnecting, StateClosing)
	}

	if err := c.transport.Close(int(code), reason); err != nil {
		c.logger.Warn("transport close failed", "error", err)
		c.handleClosed(info)
	}
}

// Dispose releases the transport. It stops listening to transport notifications, asks the
// transport to close, cancels scheduled work and moves the connection to StateClosed,
// firing Closed if the connection was live and had not closed yet. Safe from any state;
// calls after the first do nothing.
func (c *Connection) Dispose() {
	c.disposeOnce.Do(func() {
		c.detached.Store(true)
		c.stopTasks()

		info, ok := c.CloseInfo()
		if !ok {
			info = CloseInfo{Code: StatusNormalClosure}
		}
		if err := c.transport.Close(int(info.Code), info.Reason); err != nil {
			c.logger.Debug("transport close on dispose failed", "error", err)
		}

		c.handleClosed(info)
		c.logger.Debug("connection disposed")
	})
}

func (c *Connection) onConnected() {
	if c.detached.Load() {
		return
	}
	c.touch()

	c.itemsMu.Lock()
	clear(c.items)
	c.itemsMu.Unlock()

	if !c.state.TryTransition(StateConnecting, StateOpen) {
		c.logger.Debug("transport connected after close was requested", "state", c.state.Current())
		return
	}

	c.stopTask(&c.connectTask)
	if c.cfg.PingInterval > 0 {
		c.startTask(&c.pingTask, func() *scheduler.Task {
			return scheduler.Every(c.cfg.PingInterval, c.ping)
		})
	}

	c.logger.Info("connection opened")
	c.fireOpened()
}

// onMessage and onData deliver regardless of state so nothing received before the
// close completes is lost.
func (c *Connection) onMessage(message string) {
	if c.detached.Load() {
		return
	}
	c.touch()
	c.fireMessage(message)
}

func (c *Connection) onData(data []byte) {
	if c.detached.Load() {
		return
	}
	c.touch()
	c.fireData(data)
}

func (c *Connection) onPong(payload string) {
	if c.detached.Load() {
		return
	}
	c.touch()
	c.lastPong.Store(&payload)
	c.logger.Debug("pong received", "payload", payload)
}

// onError treats every transport failure as terminal.
func (c *Connection) onError(err error) {
	if c.detached.Load() {
		return
	}
	c.logger.Error("transport error", "error", err, "state", c.state.Current())
	c.fireError(err)
	c.handleClosed(CloseInfo{})
}

func (c *Connection) onClosed(code int, reason string) {
	if c.detached.Load() {
		return
	}
	c.handleClosed(CloseInfo{Code: int16(code), Reason: reason})
}

// handleClosed forces StateClosed. Only the caller that performs the transition fires
// Closed, and only if the connection had left StateNone. The local CloseInfo wins over
// the one reported by the transport.
func (c *Connection) handleClosed(reported CloseInfo) {
	prev, ok := c.state.forceClosed()
	if !ok {
		return
	}
	c.stopTasks()

	if prev == StateNone {
		return
	}

	info := reported
	if local, ok := c.CloseInfo(); ok {
		info = local
	}

	c.logger.Info("connection closed",
		"code", info.Code,
		"reason", info.Reason,
		"from", prev,
	)
	c.fireClosed(info)
}

func (c *Connection) touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

// startTask installs a task unless the connection already closed. handleClosed moves to
// StateClosed before calling stopTasks, so a task started here is always cancelled.
func (c *Connection) startTask(slot **scheduler.Task, start func() *scheduler.Task) {
	c.taskMu.Lock()
	defer c.taskMu.Unlock()

	if c.state.Current() == StateClosed || c.detached.Load() {
		return
	}
	scheduler.Cancel(*slot)
	*slot = start()
}

func (c *Connection) stopTask(slot **scheduler.Task) {
	c.taskMu.Lock()
	defer c.taskMu.Unlock()

	scheduler.Cancel(*slot)
	*slot = nil
}

func (c *Connection) stopTasks() {
	c.stopTask(&c.pingTask)
	c.stopTask(&c.connectTask)
}

// isTransportGone reports errors that mean the transport is already closing.
func isTransportGone(err error) bool {
	return errors.Is(err, transport.ErrTransportClosed) || errors.Is(err, transport.ErrNotConnected)
}
