package connection

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateNone, "none"},
		{StateConnecting, "connecting"},
		{StateOpen, "open"},
		{StateClosing, "closing"},
		{StateClosed, "closed"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestStateMachine_TryTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     State
		expected State
		target   State
		want     bool
	}{
		{"none to connecting", StateNone, StateNone, StateConnecting, true},
		{"none to closed", StateNone, StateNone, StateClosed, true},
		{"none to open", StateNone, StateNone, StateOpen, false},
		{"connecting to open", StateConnecting, StateConnecting, StateOpen, true},
		{"connecting to closing", StateConnecting, StateConnecting, StateClosing, true},
		{"open to closing", StateOpen, StateOpen, StateClosing, true},
		{"open to connecting", StateOpen, StateOpen, StateConnecting, false},
		{"closing to closed", StateClosing, StateClosing, StateClosed, true},
		{"closing to open", StateClosing, StateClosing, StateOpen, false},
		{"closed to connecting", StateClosed, StateClosed, StateConnecting, false},
		{"closed to none", StateClosed, StateClosed, StateNone, false},
		{"stale expectation", StateOpen, StateConnecting, StateOpen, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m stateMachine
			m.v.Store(int32(tt.from))

			if got := m.TryTransition(tt.expected, tt.target); got != tt.want {
				t.Errorf("TryTransition(%s, %s) = %v, want %v", tt.expected, tt.target, got, tt.want)
			}

			want := tt.from
			if tt.want {
				want = tt.target
			}
			if m.Current() != want {
				t.Errorf("Current() = %s, want %s", m.Current(), want)
			}
		})
	}
}

func TestStateMachine_ForceClosedOnce(t *testing.T) {
	var m stateMachine
	m.v.Store(int32(StateOpen))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if prev, ok := m.forceClosed(); ok {
				wins.Add(1)
				if prev != StateOpen {
					t.Errorf("prev = %s, want open", prev)
				}
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("forceClosed won %d times, want 1", wins.Load())
	}
	if m.Current() != StateClosed {
		t.Errorf("Current() = %s, want closed", m.Current())
	}
}

func TestStateMachine_ClosedIsTerminal(t *testing.T) {
	var m stateMachine
	if _, ok := m.forceClosed(); !ok {
		t.Fatal("forceClosed from none failed")
	}
	for _, s := range []State{StateNone, StateConnecting, StateOpen, StateClosing} {
		if m.TryTransition(StateClosed, s) {
			t.Errorf("left closed for %s", s)
		}
	}
}
