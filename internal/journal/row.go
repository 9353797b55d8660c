package journal

import (
	"time"

	"github.com/google/uuid"
)

// Kind names the event a Row was recorded from.
type Kind string

const (
	KindOpened  Kind = "opened"
	KindMessage Kind = "message"
	KindData    Kind = "data"
	KindError   Kind = "error"
	KindClosed  Kind = "closed"
)

// Row is one journaled event.
type Row struct {
	ID         uuid.UUID
	ConnID     uuid.UUID
	Kind       Kind
	Code       int    // Close code, Closed rows only
	Reason     string // Close reason, Closed rows only
	Size       int    // Payload bytes, Message and Data rows
	Detail     string // Truncated text message or error text
	OccurredAt time.Time
}
