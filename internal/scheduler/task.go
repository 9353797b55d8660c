// Package scheduler runs deferred and periodic callbacks off the caller's goroutine.
//
// A Task is owned by whoever scheduled it. Cancel stops future firings but never
// interrupts a callback that is already running; once cancelled a Task stays inert.
package scheduler

import (
	"log/slog"
	"sync/atomic"
	"time"

	"gopkg.in/tomb.v2"
)

// Task is a cancelable one-shot or periodic callback.
type Task struct {
	tmb       tomb.Tomb
	cancelled atomic.Bool
	callback  func()
	delay     time.Duration
	period    time.Duration
}

// Schedule fires callback after initialDelay, then every period until cancelled.
// A period of zero or less makes the task one-shot.
func Schedule(callback func(), initialDelay, period time.Duration) *Task {
	t := &Task{
		callback: callback,
		delay:    initialDelay,
		period:   period,
	}
	t.tmb.Go(t.loop)
	return t
}

// After fires callback once after delay.
func After(delay time.Duration, callback func()) *Task {
	return Schedule(callback, delay, 0)
}

// Every fires callback every period, starting one period from now.
func Every(period time.Duration, callback func()) *Task {
	return Schedule(callback, period, period)
}

// Cancel cancels t if it is non-nil.
func Cancel(t *Task) {
	if t != nil {
		t.Cancel()
	}
}

func (t *Task) loop() error {
	timer := time.NewTimer(t.delay)
	defer timer.Stop()

	select {
	case <-t.tmb.Dying():
		return nil
	case <-timer.C:
	}

	if !t.fire() || t.period <= 0 {
		return nil
	}

	ticker := time.NewTicker(t.period)
	defer ticker.Stop()

	for {
		select {
		case <-t.tmb.Dying():
			return nil
		case <-ticker.C:
			if !t.fire() {
				return nil
			}
		}
	}
}

// fire runs the callback unless the task was cancelled while the timer was pending.
// A panicking callback is logged and the task keeps its schedule, as Pool does.
func (t *Task) fire() bool {
	if !t.tmb.Alive() {
		return false
	}
	if t.callback == nil {
		return true
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Default().Error("scheduled task panicked", "panic", r)
		}
	}()
	t.callback()
	return true
}

// Cancel stops future firings. It does not wait for an in-flight callback,
// so it is safe to call from inside the callback itself.
func (t *Task) Cancel() {
	t.cancelled.Store(true)
	t.tmb.Kill(nil)
}

// Cancelled reports whether Cancel was called. A one-shot that fired and finished on
// its own is not cancelled; use Done to learn that a task will not fire again.
func (t *Task) Cancelled() bool {
	return t.cancelled.Load()
}

// Done is closed once the task will never fire again: after a one-shot fired,
// or after Cancel and any in-flight callback returned.
func (t *Task) Done() <-chan struct{} {
	return t.tmb.Dead()
}
