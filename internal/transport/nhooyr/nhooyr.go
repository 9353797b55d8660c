// Package nhooyr implements transport.Transport on top of nhooyr.io/websocket.
package nhooyr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"nhooyr.io/websocket"

	"github.com/rickgao/wsbridge/internal/transport"
)

// DriverName is the name this driver registers under.
const DriverName = "nhooyr"

func init() {
	transport.Register(DriverName, New)
}

// Transport is a single-use nhooyr websocket connection.
// nhooyr serializes writes internally, so unlike the gorilla driver there is no write mutex.
type Transport struct {
	opts     transport.Options
	handlers transport.Handlers
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	conn        *websocket.Conn
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

	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		opts:     opts.WithDefaults(),
		handlers: handlers,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
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

	go t.run()
}

func (t *Transport) run() {
	defer t.cancel()

	dialCtx, cancel := context.WithTimeout(t.ctx, t.opts.HandshakeTimeout)
	conn, resp, err := websocket.Dial(dialCtx, t.opts.URL, &websocket.DialOptions{
		HTTPHeader:   t.opts.Header(),
		Subprotocols: t.opts.SubProtocols(),
	})
	cancel()
	if err != nil {
		if closing, code, reason := t.closeRequest(); closing {
			t.handlers.Closed(code, reason)
			return
		}
		if resp != nil {
			err = fmt.Errorf("dial: handshake status %d: %w", resp.StatusCode, err)
		} else {
			err = fmt.Errorf("dial: %w", err)
		}
		t.logger.Debug("websocket dial failed", "url", t.opts.URL, "error", err)
		t.handlers.Error(err)
		return
	}

	t.mu.Lock()
	t.conn = conn
	closing, code, reason := t.closing, t.closeCode, t.closeReason
	t.mu.Unlock()

	if closing {
		conn.CloseNow()
		t.handlers.Closed(code, reason)
		return
	}

	conn.SetReadLimit(t.opts.ReadLimit)

	t.logger.Debug("websocket connected", "url", t.opts.URL, "subprotocol", conn.Subprotocol())
	t.handlers.Open()

	t.readLoop(conn)
}

func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		typ, data, err := conn.Read(t.ctx)
		if err != nil {
			t.finish(conn, err)
			return
		}

		switch typ {
		case websocket.MessageText:
			t.handlers.Text(string(data))
		case websocket.MessageBinary:
			t.handlers.Binary(data)
		}
	}
}

// finish reports exactly one terminal notification for a read failure.
// StatusCode -1 from CloseStatus means the error did not carry a close frame.
func (t *Transport) finish(conn *websocket.Conn, err error) {
	conn.CloseNow()

	if status := websocket.CloseStatus(err); status != -1 {
		var ce websocket.CloseError
		errors.As(err, &ce)
		t.handlers.Closed(int(status), ce.Reason)
		return
	}

	if closing, code, reason := t.closeRequest(); closing {
		t.handlers.Closed(code, reason)
		return
	}

	t.handlers.Error(fmt.Errorf("read: %w", err))
}

// SendText writes a text frame.
func (t *Transport) SendText(message string) error {
	return t.write(websocket.MessageText, []byte(message))
}

// SendBinary writes a binary frame.
func (t *Transport) SendBinary(data []byte) error {
	return t.write(websocket.MessageBinary, data)
}

func (t *Transport) write(typ websocket.MessageType, data []byte) error {
	conn, err := t.writable()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(t.ctx, t.opts.WriteTimeout)
	defer cancel()
	return conn.Write(ctx, typ, data)
}

// Ping blocks until the pong arrives or the write timeout passes. nhooyr picks its own
// ping payload, so the pong is reported with the payload the caller asked for.
func (t *Transport) Ping(payload []byte) error {
	conn, err := t.writable()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(t.ctx, t.opts.WriteTimeout)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return err
	}

	t.handlers.Pong(string(payload))
	return nil
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

// Close runs the closing handshake in the background. Subsequent calls are no-ops.
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
	started := t.started
	t.mu.Unlock()

	if !started {
		t.cancel()
		return nil
	}

	// Still dialing: abort the dial, run reports the close.
	if conn == nil {
		t.cancel()
		return nil
	}

	go func() {
		if err := conn.Close(websocket.StatusCode(code), reason); err != nil {
			t.logger.Debug("websocket close handshake failed", "error", err)
			conn.CloseNow()
		}
	}()

	return nil
}

func (t *Transport) closeRequest() (bool, int, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closing, t.closeCode, t.closeReason
}
