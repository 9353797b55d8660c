package connection

import (
	"errors"
	"testing"
	"time"
)

func fastReconnect() ReconnectConfig {
	return ReconnectConfig{
		BaseDelay: 5 * time.Millisecond,
		MaxDelay:  20 * time.Millisecond,
	}
}

func newTestReconnector(t *testing.T, rcfg ReconnectConfig) (*Reconnector, *fakeFactory, *recorder) {
	t.Helper()

	ff := &fakeFactory{closeNotifies: true}
	r, err := NewReconnector(testConfig(), rcfg, ff.New, nil)
	if err != nil {
		t.Fatalf("NewReconnector failed: %v", err)
	}
	t.Cleanup(r.Dispose)

	return r, ff, record(r.Dispatcher)
}

func TestNewReconnector_InvalidConfig(t *testing.T) {
	ff := &fakeFactory{}
	cfg := testConfig()
	cfg.URL = "ftp://example.test"

	if _, err := NewReconnector(cfg, DefaultReconnectConfig(), ff.New, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("error = %v, want ErrInvalidConfig", err)
	}
	if _, err := NewReconnector(testConfig(), DefaultReconnectConfig(), nil, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("nil factory error = %v, want ErrInvalidConfig", err)
	}
	if ff.count() != 0 {
		t.Errorf("factory called %d times, want 0", ff.count())
	}
}

func TestReconnector_BeforeStart(t *testing.T) {
	r, ff, rec := newTestReconnector(t, fastReconnect())

	if r.Current() != nil {
		t.Error("expected no connection before Start")
	}
	if r.State() != StateNone || r.Handshaked() {
		t.Errorf("State = %s, Handshaked = %v; want none, false", r.State(), r.Handshaked())
	}

	r.Send("x")
	if errs := rec.errors(); len(errs) != 1 || !errors.Is(errs[0], ErrNotOpen) {
		t.Errorf("errors = %v, want ErrNotOpen", errs)
	}
	if ff.count() != 0 {
		t.Errorf("factory called %d times, want 0", ff.count())
	}
}

func TestReconnector_ForwardsEvents(t *testing.T) {
	r, ff, rec := newTestReconnector(t, fastReconnect())

	var hooked int
	r.OnNewConnection(func(*Connection) { hooked++ })
	r.Start()
	r.Start()

	if ff.count() != 1 || hooked != 1 {
		t.Fatalf("connections = %d, hooked = %d; want 1, 1", ff.count(), hooked)
	}

	ft := ff.last()
	ft.handlers.Open()
	ft.handlers.Text("hello")
	ft.handlers.Binary([]byte{1})

	if !r.Handshaked() {
		t.Error("expected Handshaked after open")
	}
	if rec.openedCount() != 1 {
		t.Errorf("opened = %d, want 1", rec.openedCount())
	}
	if msgs := rec.messageList(); len(msgs) != 1 || msgs[0] != "hello" {
		t.Errorf("messages = %v, want [hello]", msgs)
	}

	r.Send("out")
	r.SendData([]byte("abc"), 1, 1)
	r.SendSegments([][]byte{[]byte("x"), []byte("y")})
	if texts := ft.sentTexts(); len(texts) != 1 || texts[0] != "out" {
		t.Errorf("texts = %v, want [out]", texts)
	}
	if bins := ft.sentBinaries(); len(bins) != 2 || string(bins[0]) != "b" || string(bins[1]) != "xy" {
		t.Errorf("binaries = %q, want [b xy]", bins)
	}
}

func TestReconnector_ReconnectsAfterRemoteClose(t *testing.T) {
	r, ff, rec := newTestReconnector(t, fastReconnect())
	r.Start()

	first := ff.last()
	first.handlers.Open()
	firstConn := r.Current()

	first.handlers.Closed(1011, "server restart")

	if !waitFor(t, time.Second, func() bool { return ff.count() == 2 }) {
		t.Fatalf("connections = %d, want 2", ff.count())
	}
	if r.Current() == firstConn {
		t.Error("expected a new current connection")
	}
	if r.Attempts() != 1 {
		t.Errorf("Attempts = %d, want 1", r.Attempts())
	}

	second := ff.last()
	if !waitFor(t, time.Second, func() bool { return second.connectCount() == 1 }) {
		t.Fatal("new connection was not opened")
	}
	second.handlers.Open()

	if r.Attempts() != 0 {
		t.Errorf("Attempts after open = %d, want 0", r.Attempts())
	}
	if rec.openedCount() != 2 {
		t.Errorf("opened = %d, want 2", rec.openedCount())
	}
	if closed := rec.closedEvents(); len(closed) != 1 || closed[0].Code != 1011 {
		t.Errorf("closed = %v, want [{1011 server restart}]", closed)
	}

	// The replaced connection is disposed off the transport goroutine.
	if !waitFor(t, time.Second, func() bool { return len(first.closeCalls()) == 1 }) {
		t.Error("old connection was not disposed")
	}
}

func TestReconnector_CloseStopsReconnecting(t *testing.T) {
	r, ff, rec := newTestReconnector(t, fastReconnect())
	r.Start()
	ff.last().handlers.Open()

	r.CloseWithStatus(1000, "done")

	time.Sleep(50 * time.Millisecond)
	if ff.count() != 1 {
		t.Errorf("connections = %d, want 1", ff.count())
	}
	if closed := rec.closedEvents(); len(closed) != 1 || closed[0] != (CloseInfo{Code: 1000, Reason: "done"}) {
		t.Errorf("closed = %v, want [{1000 done}]", closed)
	}

	// Start after Close does nothing
	r.Start()
	if ff.count() != 1 {
		t.Errorf("connections after Start = %d, want 1", ff.count())
	}
}

func TestReconnector_DisposeCancelsPendingRetry(t *testing.T) {
	r, ff, _ := newTestReconnector(t, ReconnectConfig{BaseDelay: 50 * time.Millisecond, MaxDelay: 50 * time.Millisecond})
	r.Start()
	ff.last().handlers.Open()
	ff.last().handlers.Error(errors.New("reset"))

	r.Dispose()
	time.Sleep(120 * time.Millisecond)

	if ff.count() != 1 {
		t.Errorf("connections = %d, want 1", ff.count())
	}
}

func TestReconnector_GivesUp(t *testing.T) {
	r, ff, rec := newTestReconnector(t, ReconnectConfig{
		BaseDelay:  5 * time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		MaxElapsed: 30 * time.Millisecond,
	})
	r.Start()

	// Every connection fails immediately.
	failed := 0
	exhausted := func() bool {
		for _, err := range rec.errors() {
			if errors.Is(err, ErrReconnectExhausted) {
				return true
			}
		}
		return false
	}
	deadline := time.Now().Add(2 * time.Second)
	for !exhausted() && time.Now().Before(deadline) {
		if ff.count() > failed {
			ft := ff.last()
			if ft.connectCount() == 1 {
				ft.handlers.Error(errors.New("refused"))
				failed++
			}
		}
		time.Sleep(time.Millisecond)
	}

	if !exhausted() {
		t.Fatalf("ErrReconnectExhausted not reported after %d failures", failed)
	}
	count := ff.count()
	time.Sleep(30 * time.Millisecond)
	if ff.count() != count {
		t.Errorf("connections grew after giving up: %d -> %d", count, ff.count())
	}
}

func TestReconnector_RetriesWhenConnectionCannotBeBuilt(t *testing.T) {
	r, ff, rec := newTestReconnector(t, fastReconnect())
	r.Start()

	ff.last().handlers.Open()
	ff.refuseNext(2)
	ff.last().handlers.Closed(1011, "server restart")

	if !waitFor(t, time.Second, func() bool { return ff.count() == 2 }) {
		t.Fatalf("connections = %d, want 2 after %d refused builds", ff.count(), ff.refusedCount())
	}
	if ff.refusedCount() != 2 {
		t.Errorf("refused = %d, want 2", ff.refusedCount())
	}

	invalid := 0
	for _, err := range rec.errors() {
		if errors.Is(err, ErrInvalidConfig) {
			invalid++
		}
	}
	if invalid != 2 {
		t.Errorf("ErrInvalidConfig reported %d times, want 2", invalid)
	}

	second := ff.last()
	if !waitFor(t, time.Second, func() bool { return second.connectCount() == 1 }) {
		t.Fatal("rebuilt connection was not opened")
	}
}

func TestReconnector_GivesUpWhenConnectionCannotBeBuilt(t *testing.T) {
	r, ff, rec := newTestReconnector(t, ReconnectConfig{
		BaseDelay:  5 * time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		MaxElapsed: 30 * time.Millisecond,
	})
	ff.refuseNext(1 << 20)
	r.Start()

	exhausted := func() bool {
		for _, err := range rec.errors() {
			if errors.Is(err, ErrReconnectExhausted) {
				return true
			}
		}
		return false
	}
	if !waitFor(t, 2*time.Second, exhausted) {
		t.Fatalf("ErrReconnectExhausted not reported after %d refused builds", ff.refusedCount())
	}
	if r.Current() != nil {
		t.Error("Current should stay nil when no connection was built")
	}

	refused := ff.refusedCount()
	time.Sleep(30 * time.Millisecond)
	if ff.refusedCount() != refused {
		t.Errorf("attempts continued after giving up: %d -> %d", refused, ff.refusedCount())
	}
}
