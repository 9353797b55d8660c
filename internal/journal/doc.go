// Package journal records connection events to PostgreSQL.
//
// A Recorder subscribes to a connection's events and turns each one into a Row. Rows are
// queued without blocking the transport goroutine and written in batches by a Writer.
// The journal is append-only; rows are never updated.
package journal
