// Package gorilla implements transport.Transport on top of github.com/gorilla/websocket.
package gorilla

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"gopkg.in/tomb.v2"

	"github.com/rickgao/wsbridge/internal/transport"
)

// DriverName is the name this driver registers under.
const DriverName = "gorilla"

func init() {
	transport.Register(DriverName, New)
}

// Transport is a single-use gorilla websocket connection.
type Transport struct {
	opts     transport.Options
	handlers transport.Handlers
	logger   *slog.Logger

	// Owns the dial + read goroutine.
	tmb tomb.Tomb

	// Write serialization
	writeMu sync.Mutex

	// State
	mu          sync.Mutex
	conn        *websocket.Conn
	raw         net.Conn // set once TCP is up, closed by Close to abort the handshake
	started     bool
	closing     bool
	closeCode   int
	closeReason string
}

// New creates a Transport. Nothing happens on the network until Connect.
func New(opts transport.Options, handlers transport.Handlers, logger *slog.Logger) transport.Transport {
	if logger == nil {
		logger = slog.Default()
	}

	return &Transport{
		opts:     opts.WithDefaults(),
		handlers: handlers,
		logger:   logger,
	}
}

// Connect dials in the background.
func (t *Transport) Connect() {
	t.mu.Lock()
	if t.started || t.closing {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.mu.Unlock()

	t.tmb.Go(t.run)
}

func (t *Transport) run() error {
	ctx, cancel := context.WithTimeout(t.tmb.Context(context.Background()), t.opts.HandshakeTimeout)
	defer cancel()

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: t.opts.HandshakeTimeout,
		Subprotocols:     t.opts.SubProtocols(),
		NetDialContext:   t.dialNet,
	}

	conn, resp, err := dialer.DialContext(ctx, t.opts.URL, t.opts.Header())
	if err != nil {
		if closing, code, reason := t.closeRequest(); closing {
			t.handlers.Closed(code, reason)
			return nil
		}
		err = dialError(resp, err)
		t.logger.Debug("websocket dial failed", "url", t.opts.URL, "error", err)
		t.handlers.Error(err)
		return err
	}

	t.mu.Lock()
	t.conn = conn
	closing, code, reason := t.closing, t.closeCode, t.closeReason
	t.mu.Unlock()

	// Close was requested while we were dialing
	if closing {
		conn.Close()
		t.handlers.Closed(code, reason)
		return nil
	}

	conn.SetReadLimit(t.opts.ReadLimit)
	conn.SetPongHandler(func(data string) error {
		t.handlers.Pong(data)
		return nil
	})

	t.logger.Debug("websocket connected", "url", t.opts.URL, "subprotocol", conn.Subprotocol())
	t.handlers.Open()

	return t.readLoop(conn)
}

// dialNet records the TCP connection so Close can abort an upgrade that never completes.
// gorilla does not watch the context once the TCP connect has returned.
func (t *Transport) dialNet(ctx context.Context, network, addr string) (net.Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closing {
		nc.Close()
		return nil, transport.ErrTransportClosed
	}
	t.raw = nc
	return nc, nil
}

// readLoop delivers frames until the socket fails or closes.
func (t *Transport) readLoop(conn *websocket.Conn) error {
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			return t.finish(conn, err)
		}

		switch typ {
		case websocket.TextMessage:
			t.handlers.Text(string(data))
		case websocket.BinaryMessage:
			t.handlers.Binary(data)
		}
	}
}

// finish reports exactly one terminal notification for a read failure. gorilla reports a
// dropped socket as CloseAbnormalClosure, which is treated as an error, not a close frame.
func (t *Transport) finish(conn *websocket.Conn, err error) error {
	conn.Close()

	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure {
		t.handlers.Closed(ce.Code, ce.Text)
		return nil
	}

	if closing, code, reason := t.closeRequest(); closing {
		t.handlers.Closed(code, reason)
		return nil
	}

	err = fmt.Errorf("read: %w", err)
	t.handlers.Error(err)
	return err
}

// SendText writes a text frame.
func (t *Transport) SendText(message string) error {
	return t.write(websocket.TextMessage, []byte(message))
}

// SendBinary writes a binary frame.
func (t *Transport) SendBinary(data []byte) error {
	return t.write(websocket.BinaryMessage, data)
}

func (t *Transport) write(typ int, data []byte) error {
	conn, err := t.writable()
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout))
	return conn.WriteMessage(typ, data)
}

// Ping writes a ping control frame.
func (t *Transport) Ping(payload []byte) error {
	conn, err := t.writable()
	if err != nil {
		return err
	}
	return conn.WriteControl(websocket.PingMessage, payload, time.Now().Add(t.opts.WriteTimeout))
}

func (t *Transport) writable() (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closing {
		return nil, transport.ErrTransportClosed
	}
	if t.conn == nil {
		return nil, transport.ErrNotConnected
	}
	return t.conn, nil
}

// Close sends a close frame and drops the socket if the peer does not answer
// within transport.CloseDeadline. Subsequent calls are no-ops.
func (t *Transport) Close(code int, reason string) error {
	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		return nil
	}
	t.closing = true
	t.closeCode = code
	t.closeReason = reason
	conn := t.conn
	raw := t.raw
	started := t.started
	t.mu.Unlock()

	if !started {
		return nil
	}

	// Still dialing: cancel the dial and drop the socket, run reports the close.
	if conn == nil {
		t.tmb.Kill(nil)
		if raw != nil {
			raw.Close()
		}
		return nil
	}

	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		t.logger.Debug("failed to send close frame", "error", err)
		conn.Close()
		return nil
	}

	go func() {
		select {
		case <-t.tmb.Dead():
		case <-time.After(transport.CloseDeadline):
			t.logger.Debug("peer did not answer close frame, dropping socket")
			conn.Close()
		}
	}()

	return nil
}

func (t *Transport) closeRequest() (bool, int, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closing, t.closeCode, t.closeReason
}

// dialError adds the handshake response status and a body excerpt to a dial failure.
func dialError(resp *http.Response, err error) error {
	if resp == nil {
		return fmt.Errorf("dial: %w", err)
	}

	var body []byte
	if resp.Body != nil {
		body, _ = io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
	}
	return fmt.Errorf("dial: handshake status %d: %w (body=%q)", resp.StatusCode, err, body)
}
