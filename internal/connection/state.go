package connection

import "sync/atomic"

// stateMachine holds the lifecycle state. TryTransition is the only way to change it.
type stateMachine struct {
	v atomic.Int32
}

// edges lists every legal transition. Nothing leaves StateClosed.
var edges = map[State][]State{
	StateNone:       {StateConnecting, StateClosed},
	StateConnecting: {StateOpen, StateClosing, StateClosed},
	StateOpen:       {StateClosing, StateClosed},
	StateClosing:    {StateClosed},
}

func validEdge(from, to State) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Current returns the state without locking. It may be stale by the time the caller acts on it.
func (m *stateMachine) Current() State {
	return State(m.v.Load())
}

// TryTransition moves from expected to target if the current state is expected and the
// edge is legal. It reports whether the transition happened.
func (m *stateMachine) TryTransition(expected, target State) bool {
	if !validEdge(expected, target) {
		return false
	}
	return m.v.CompareAndSwap(int32(expected), int32(target))
}

// forceClosed moves any live state to StateClosed and returns the state it left.
// ok is false when the state was already closed, so exactly one caller wins.
func (m *stateMachine) forceClosed() (prev State, ok bool) {
	for {
		prev = m.Current()
		if prev == StateClosed {
			return prev, false
		}
		if m.TryTransition(prev, StateClosed) {
			return prev, true
		}
	}
}
