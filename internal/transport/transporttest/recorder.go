// Package transporttest provides helpers for testing transport drivers.
package transporttest

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/wsbridge/internal/transport"
)

// Closed is a close notification.
type Closed struct {
	Code   int
	Reason string
}

// Recorder turns driver notifications into channels.
type Recorder struct {
	Opened  chan struct{}
	Texts   chan string
	Binary  chan []byte
	Pongs   chan string
	Errors  chan error
	Closeds chan Closed
}

// NewRecorder creates a Recorder with buffered channels.
func NewRecorder() *Recorder {
	return &Recorder{
		Opened:  make(chan struct{}, 4),
		Texts:   make(chan string, 64),
		Binary:  make(chan []byte, 64),
		Pongs:   make(chan string, 16),
		Errors:  make(chan error, 4),
		Closeds: make(chan Closed, 4),
	}
}

// Handlers returns Handlers that feed the recorder.
func (r *Recorder) Handlers() transport.Handlers {
	return transport.Handlers{
		OnOpen:   func() { r.Opened <- struct{}{} },
		OnText:   func(m string) { r.Texts <- m },
		OnBinary: func(b []byte) { r.Binary <- b },
		OnPong:   func(p string) { r.Pongs <- p },
		OnError:  func(err error) { r.Errors <- err },
		OnClosed: func(code int, reason string) { r.Closeds <- Closed{code, reason} },
	}
}

// WaitOpen fails the test unless OnOpen fires within timeout.
func (r *Recorder) WaitOpen(t *testing.T, timeout time.Duration) {
	t.Helper()
	select {
	case <-r.Opened:
	case err := <-r.Errors:
		t.Fatalf("expected open, got error: %v", err)
	case <-time.After(timeout):
		t.Fatal("timed out waiting for open")
	}
}

// WaitClosed returns the next close notification.
func (r *Recorder) WaitClosed(t *testing.T, timeout time.Duration) Closed {
	t.Helper()
	select {
	case c := <-r.Closeds:
		return c
	case err := <-r.Errors:
		t.Fatalf("expected close, got error: %v", err)
	case <-time.After(timeout):
		t.Fatal("timed out waiting for close")
	}
	return Closed{}
}

// WaitError returns the next error notification.
func (r *Recorder) WaitError(t *testing.T, timeout time.Duration) error {
	t.Helper()
	select {
	case err := <-r.Errors:
		return err
	case c := <-r.Closeds:
		t.Fatalf("expected error, got close %d %q", c.Code, c.Reason)
	case <-time.After(timeout):
		t.Fatal("timed out waiting for error")
	}
	return nil
}

// WaitText returns the next text message.
func (r *Recorder) WaitText(t *testing.T, timeout time.Duration) string {
	t.Helper()
	select {
	case m := <-r.Texts:
		return m
	case <-time.After(timeout):
		t.Fatal("timed out waiting for text message")
	}
	return ""
}

// WaitBinary returns the next binary message.
func (r *Recorder) WaitBinary(t *testing.T, timeout time.Duration) []byte {
	t.Helper()
	select {
	case b := <-r.Binary:
		return b
	case <-time.After(timeout):
		t.Fatal("timed out waiting for binary message")
	}
	return nil
}

// WaitPong returns the next pong payload.
func (r *Recorder) WaitPong(t *testing.T, timeout time.Duration) string {
	t.Helper()
	select {
	case p := <-r.Pongs:
		return p
	case <-time.After(timeout):
		t.Fatal("timed out waiting for pong")
	}
	return ""
}

// WSURL converts an httptest server URL to a websocket URL.
func WSURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}
