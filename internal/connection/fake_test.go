package connection

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/wsbridge/internal/transport"
)

// fakeTransport records calls and lets tests raise notifications.
type fakeTransport struct {
	handlers transport.Handlers
	opts     transport.Options

	// closeNotifies makes Close report OnClosed synchronously with the given code.
	closeNotifies bool

	mu       sync.Mutex
	connects int
	closes   []CloseInfo
	texts    []string
	binaries [][]byte
	pings    []string
	sendErr  error
	closeErr error
}

func (f *fakeTransport) Connect() {
	f.mu.Lock()
	f.connects++
	f.mu.Unlock()
}

func (f *fakeTransport) SendText(message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.texts = append(f.texts, message)
	return nil
}

func (f *fakeTransport) SendBinary(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.binaries = append(f.binaries, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) Ping(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings = append(f.pings, string(payload))
	return nil
}

func (f *fakeTransport) Close(code int, reason string) error {
	f.mu.Lock()
	f.closes = append(f.closes, CloseInfo{Code: int16(code), Reason: reason})
	err := f.closeErr
	notify := f.closeNotifies
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if notify {
		f.handlers.Closed(code, reason)
	}
	return nil
}

func (f *fakeTransport) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeTransport) closeCalls() []CloseInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CloseInfo(nil), f.closes...)
}

func (f *fakeTransport) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func (f *fakeTransport) sentBinaries() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.binaries...)
}

func (f *fakeTransport) pingCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pings)
}

// fakeFactory hands out fakeTransports and remembers each one it built.
type fakeFactory struct {
	closeNotifies bool

	mu      sync.Mutex
	built   []*fakeTransport
	refuse  int // next calls that return nil
	refused int
}

func (ff *fakeFactory) New(opts transport.Options, handlers transport.Handlers, _ *slog.Logger) transport.Transport {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if ff.refuse > 0 {
		ff.refuse--
		ff.refused++
		return nil
	}
	ft := &fakeTransport{handlers: handlers, opts: opts, closeNotifies: ff.closeNotifies}
	ff.built = append(ff.built, ft)
	return ft
}

func (ff *fakeFactory) refuseNext(n int) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	ff.refuse = n
}

func (ff *fakeFactory) refusedCount() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.refused
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.built)
}

func (ff *fakeFactory) last() *fakeTransport {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.built) == 0 {
		return nil
	}
	return ff.built[len(ff.built)-1]
}

// recorder captures every event fired by a Dispatcher.
type recorder struct {
	mu       sync.Mutex
	opened   int
	messages []string
	data     [][]byte
	errs     []error
	closed   []CloseInfo
}

func record(d *Dispatcher) *recorder {
	r := &recorder{}
	d.OnOpened(func() {
		r.mu.Lock()
		r.opened++
		r.mu.Unlock()
	})
	d.OnMessage(func(m string) {
		r.mu.Lock()
		r.messages = append(r.messages, m)
		r.mu.Unlock()
	})
	d.OnData(func(b []byte) {
		r.mu.Lock()
		r.data = append(r.data, b)
		r.mu.Unlock()
	})
	d.OnError(func(err error) {
		r.mu.Lock()
		r.errs = append(r.errs, err)
		r.mu.Unlock()
	})
	d.OnClosed(func(info CloseInfo) {
		r.mu.Lock()
		r.closed = append(r.closed, info)
		r.mu.Unlock()
	})
	return r
}

func (r *recorder) openedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opened
}

func (r *recorder) closedEvents() []CloseInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CloseInfo(nil), r.closed...)
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) messageList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.URL = "ws://example.test/socket"
	cfg.PingInterval = 0
	cfg.PingTimeout = 0
	return cfg
}

// newTestConnection builds a Connection over a fakeTransport.
func newTestConnection(t *testing.T, cfg Config, closeNotifies bool) (*Connection, *fakeTransport, *recorder) {
	t.Helper()

	ff := &fakeFactory{closeNotifies: closeNotifies}
	conn, err := New(cfg, ff.New, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(conn.Dispose)

	return conn, ff.last(), record(conn.Dispatcher)
}

// openTestConnection returns a connection already in StateOpen.
func openTestConnection(t *testing.T, cfg Config, closeNotifies bool) (*Connection, *fakeTransport, *recorder) {
	t.Helper()

	conn, ft, rec := newTestConnection(t, cfg, closeNotifies)
	conn.Open()
	ft.handlers.Open()
	if conn.State() != StateOpen {
		t.Fatalf("state = %s, want open", conn.State())
	}
	return conn, ft, rec
}

// waitFor polls cond until it holds or timeout passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
