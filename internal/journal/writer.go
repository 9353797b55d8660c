package journal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the writer needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// WriterConfig holds batching settings.
type WriterConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// Stats tracks writer activity.
type Stats struct {
	Inserts int64
	Flushes int64
	Errors  int64
	Dropped int64 // Rows rejected because the queue was full or closed
}

// Writer queues journal rows and writes them to the connection_events table in batches.
type Writer struct {
	cfg    WriterConfig
	logger *slog.Logger

	// Input from Recorders
	queue *queue[Row]

	// Database
	db DB

	// Batching
	batch       []Row
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx          context.Context
	cancel       context.CancelFunc
	consumerDone chan struct{}
	wg           sync.WaitGroup

	// Metrics
	stats Stats
}

// NewWriter creates a Writer. Rows enqueued before Start wait in the queue.
func NewWriter(cfg WriterConfig, db DB, logger *slog.Logger) *Writer {
	def := DefaultWriterConfig()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = def.BufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Writer{
		cfg:    cfg,
		logger: logger,
		queue:  newQueue[Row](cfg.BufferSize),
		db:     db,
		batch:  make([]Row, 0, cfg.BatchSize),
	}
}

// Enqueue adds a row without blocking. It returns false and counts the row as dropped
// when the queue is full or the writer has stopped.
func (w *Writer) Enqueue(row Row) bool {
	if w.queue.Send(row) {
		return true
	}

	w.batchMu.Lock()
	w.stats.Dropped++
	dropped := w.stats.Dropped
	w.batchMu.Unlock()

	// Log the first drop and then every 1000th to avoid flooding.
	if dropped == 1 || dropped%1000 == 0 {
		w.logger.Warn("journal queue full, dropping rows", "dropped", dropped)
	}
	return false
}

// Start begins consuming rows and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)
	w.consumerDone = make(chan struct{})

	// Consumer goroutine
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("journal writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
		"buffer_size", w.cfg.BufferSize,
	)
	return nil
}

// Stop closes the queue, waits for queued rows to be batched and performs a final flush
// with ctx. Rows enqueued after Stop are dropped.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping journal writer")

	w.queue.Close()

	if w.consumerDone != nil {
		select {
		case <-w.consumerDone:
		case <-ctx.Done():
			w.logger.Warn("journal writer stop timed out", "queued", w.queue.Len())
		}
	}

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}
	w.wg.Wait()

	// Final flush
	w.flush(ctx)

	w.logger.Info("journal writer stopped")
	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() Stats {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.stats
}

// consumeLoop moves rows from the queue into the batch until the queue is closed and drained.
func (w *Writer) consumeLoop() {
	defer close(w.consumerDone)

	for {
		row, ok := w.queue.Receive()
		if !ok {
			return
		}
		w.handleRow(row)
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// handleRow adds a row to the batch and flushes when the batch is full.
func (w *Writer) handleRow(row Row) {
	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// flush writes the current batch to the database.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]Row, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	inserted, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.stats.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.stats.Inserts += inserted
	w.stats.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed journal rows",
		"count", len(batch),
		"inserted", inserted,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(ctx context.Context, rows []Row) (inserted int64, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertRow,
			r.ID, r.ConnID, string(r.Kind), r.Code, r.Reason, r.Size, r.Detail, r.OccurredAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		inserted += ct.RowsAffected()
	}

	return inserted, nil
}
