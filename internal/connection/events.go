package connection

import (
	"container/list"
	"fmt"
	"sync"
)

// EventKind identifies one of the five event streams.
type EventKind int

const (
	EventOpened EventKind = iota
	EventMessage
	EventData
	EventError
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventMessage:
		return "message"
	case EventData:
		return "data"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Subscription identifies a registered handler so it can be removed later.
type Subscription struct {
	kind EventKind
	id   uint64
}

// Kind returns the event kind the handler was registered for.
func (s Subscription) Kind() EventKind {
	return s.kind
}

// registry is an insertion-ordered handler set for one event kind.
type registry[T any] struct {
	mu       sync.Mutex
	nextID   uint64
	handlers *list.List
	index    map[uint64]*list.Element
}

type entry[T any] struct {
	id uint64
	fn func(T)
}

func (r *registry[T]) add(fn func(T)) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handlers == nil {
		r.handlers = list.New()
		r.index = make(map[uint64]*list.Element)
	}

	r.nextID++
	r.index[r.nextID] = r.handlers.PushBack(entry[T]{id: r.nextID, fn: fn})
	return r.nextID
}

func (r *registry[T]) remove(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	el, ok := r.index[id]
	if !ok {
		return false
	}
	r.handlers.Remove(el)
	delete(r.index, id)
	return true
}

func (r *registry[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.index)
}

// snapshot copies the handlers so they run without the lock held.
func (r *registry[T]) snapshot() []func(T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.index) == 0 {
		return nil
	}
	fns := make([]func(T), 0, len(r.index))
	for el := r.handlers.Front(); el != nil; el = el.Next() {
		fns = append(fns, el.Value.(entry[T]).fn)
	}
	return fns
}

// fire builds the payload only when someone is listening.
func (r *registry[T]) fire(payload func() T) {
	fns := r.snapshot()
	if len(fns) == 0 {
		return
	}
	v := payload()
	for _, fn := range fns {
		fn(v)
	}
}

// Dispatcher fans events out to subscribers. Subscribe and Unsubscribe are safe to call
// concurrently with firing and from inside a handler. Handlers run synchronously on the
// goroutine that fires the event, usually the transport's read goroutine, so they must not
// block for long.
type Dispatcher struct {
	opened  registry[struct{}]
	message registry[string]
	data    registry[[]byte]
	errs    registry[error]
	closed  registry[CloseInfo]
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// OnOpened registers h for the Opened event.
func (d *Dispatcher) OnOpened(h func()) Subscription {
	return Subscription{EventOpened, d.opened.add(func(struct{}) { h() })}
}

// OnMessage registers h for text messages.
func (d *Dispatcher) OnMessage(h func(message string)) Subscription {
	return Subscription{EventMessage, d.message.add(h)}
}

// OnData registers h for binary messages.
func (d *Dispatcher) OnData(h func(data []byte)) Subscription {
	return Subscription{EventData, d.data.add(h)}
}

// OnError registers h for errors.
func (d *Dispatcher) OnError(h func(err error)) Subscription {
	return Subscription{EventError, d.errs.add(h)}
}

// OnClosed registers h for the Closed event.
func (d *Dispatcher) OnClosed(h func(info CloseInfo)) Subscription {
	return Subscription{EventClosed, d.closed.add(h)}
}

// Unsubscribe removes a handler. A dispatch already in progress still calls it.
// It reports whether the subscription was registered.
func (d *Dispatcher) Unsubscribe(s Subscription) bool {
	switch s.kind {
	case EventOpened:
		return d.opened.remove(s.id)
	case EventMessage:
		return d.message.remove(s.id)
	case EventData:
		return d.data.remove(s.id)
	case EventError:
		return d.errs.remove(s.id)
	case EventClosed:
		return d.closed.remove(s.id)
	}
	return false
}

// HandlerCount returns the number of handlers registered for kind.
func (d *Dispatcher) HandlerCount(kind EventKind) int {
	switch kind {
	case EventOpened:
		return d.opened.len()
	case EventMessage:
		return d.message.len()
	case EventData:
		return d.data.len()
	case EventError:
		return d.errs.len()
	case EventClosed:
		return d.closed.len()
	}
	return 0
}

func (d *Dispatcher) fireOpened() {
	d.opened.fire(func() struct{} { return struct{}{} })
}

func (d *Dispatcher) fireMessage(message string) {
	d.message.fire(func() string { return message })
}

func (d *Dispatcher) fireData(data []byte) {
	d.data.fire(func() []byte { return data })
}

func (d *Dispatcher) fireError(err error) {
	d.errs.fire(func() error { return err })
}

// fireErrorf formats the error only when an Error handler is registered.
func (d *Dispatcher) fireErrorf(format string, args ...any) {
	d.errs.fire(func() error { return fmt.Errorf(format, args...) })
}

func (d *Dispatcher) fireClosed(info CloseInfo) {
	d.closed.fire(func() CloseInfo { return info })
}
