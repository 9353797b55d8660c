package journal

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/rickgao/wsbridge/internal/connection"
)

// DefaultMaxDetail caps the Detail column in bytes.
const DefaultMaxDetail = 256

// Sink accepts rows without blocking. *Writer is the production Sink.
type Sink interface {
	Enqueue(row Row) bool
}

// Recorder converts connection events into journal rows.
type Recorder struct {
	sink      Sink
	maxDetail int
	now       func() time.Time
}

// NewRecorder creates a Recorder that sends rows to sink.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{
		sink:      sink,
		maxDetail: DefaultMaxDetail,
		now:       time.Now,
	}
}

// Attach subscribes to every event kind of conn. The returned func removes the subscriptions.
func (r *Recorder) Attach(conn *connection.Connection) (detach func()) {
	id := conn.ID()

	subs := []connection.Subscription{
		conn.OnOpened(func() {
			r.record(id, Row{Kind: KindOpened})
		}),
		conn.OnMessage(func(message string) {
			r.record(id, Row{Kind: KindMessage, Size: len(message), Detail: r.truncate(message)})
		}),
		conn.OnData(func(data []byte) {
			r.record(id, Row{Kind: KindData, Size: len(data)})
		}),
		conn.OnError(func(err error) {
			r.record(id, Row{Kind: KindError, Detail: r.truncate(err.Error())})
		}),
		conn.OnClosed(func(info connection.CloseInfo) {
			r.record(id, Row{Kind: KindClosed, Code: int(info.Code), Reason: info.Reason})
		}),
	}

	return func() {
		for _, s := range subs {
			conn.Unsubscribe(s)
		}
	}
}

func (r *Recorder) record(connID uuid.UUID, row Row) {
	row.ID = uuid.New()
	row.ConnID = connID
	row.OccurredAt = r.now()
	r.sink.Enqueue(row)
}

// truncate cuts s to maxDetail bytes without splitting a UTF-8 sequence.
func (r *Recorder) truncate(s string) string {
	if len(s) <= r.maxDetail {
		return s
	}
	cut := r.maxDetail
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
