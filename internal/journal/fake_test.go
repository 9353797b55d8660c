package journal

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/wsbridge/internal/transport"
)

// fakeDB records statements instead of talking to PostgreSQL.
type fakeDB struct {
	mu       sync.Mutex
	execs    []string
	batches  [][]*pgx.QueuedQuery
	execErr  error
	batchErr error
}

func (f *fakeDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs = append(f.execs, sql)
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag("CREATE TABLE"), nil
}

func (f *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, b.QueuedQueries)
	return &fakeResults{err: f.batchErr}
}

func (f *fakeDB) rows() [][]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]any
	for _, b := range f.batches {
		for _, q := range b {
			out = append(out, q.Arguments)
		}
	}
	return out
}

func (f *fakeDB) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

type fakeResults struct {
	err error
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeResults) Query() (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (r *fakeResults) QueryRow() pgx.Row {
	return nil
}

func (r *fakeResults) Close() error {
	return nil
}

// stubTransport lets recorder tests drive a real connection.Connection.
type stubTransport struct {
	handlers transport.Handlers
}

func (s *stubTransport) Connect()                {}
func (s *stubTransport) SendText(string) error   { return nil }
func (s *stubTransport) SendBinary([]byte) error { return nil }
func (s *stubTransport) Ping([]byte) error       { return nil }
func (s *stubTransport) Close(int, string) error { return nil }

type stubFactory struct {
	last *stubTransport
}

func (f *stubFactory) New(_ transport.Options, h transport.Handlers, _ *slog.Logger) transport.Transport {
	f.last = &stubTransport{handlers: h}
	return f.last
}

// memSink collects rows in memory.
type memSink struct {
	mu   sync.Mutex
	rows []Row
}

func (s *memSink) Enqueue(row Row) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return true
}

func (s *memSink) all() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Row(nil), s.rows...)
}
