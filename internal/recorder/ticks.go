package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/laplace-analytics/laplace-go/livefeed"
)

// TickWriter consumes price updates from a buffer and writes them to
// the ticks table in batches.
type TickWriter struct {
	cfg    Config
	logger *slog.Logger

	// Input from the live feed dispatch
	input *Buffer[livefeed.Update]

	// Database
	db DB

	// Batching
	batch       []tickRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// NewTickWriter creates a TickWriter.
func NewTickWriter(cfg Config, input *Buffer[livefeed.Update], db DB, logger *slog.Logger) *TickWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &TickWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]tickRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming updates and writing to the database.
func (w *TickWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("tick writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer, flushing what remains. The
// run context is canceled here, so the drain and the final flush run
// on the shutdown context.
func (w *TickWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping tick writer")

	if w.cancel != nil {
		w.cancel()
	}

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("tick writer stop timed out")
	}

	w.drainInput()
	w.flush(ctx)

	w.logger.Info("tick writer stopped")
	return nil
}

// drainInput moves whatever the consume loop left in the input buffer
// into the batch.
func (w *TickWriter) drainInput() {
	remaining := w.input.DrainTo(0)
	if len(remaining) == 0 {
		return
	}

	w.batchMu.Lock()
	for _, u := range remaining {
		if row, ok := transformTick(u); ok {
			w.batch = append(w.batch, row)
		}
	}
	w.batchMu.Unlock()
}

// Stats returns current metrics.
func (w *TickWriter) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads from the input buffer and accumulates batches.
func (w *TickWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			u, ok := w.input.TryReceive()
			if !ok {
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}

			w.handleUpdate(u)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *TickWriter) flushLoop() {
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

// handleUpdate transforms an update and adds it to the batch. Updates
// without a quote payload (depth events, unknown feeds) are skipped.
func (w *TickWriter) handleUpdate(u livefeed.Update) {
	row, ok := transformTick(u)
	if !ok {
		return
	}

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// transformTick converts a quote update to a tickRow.
func transformTick(u livefeed.Update) (tickRow, bool) {
	row := tickRow{
		Feed:       string(u.Feed),
		Symbol:     u.Symbol,
		ReceivedAt: u.ReceivedAt.UnixMicro(),
	}

	switch {
	case u.BIST != nil:
		row.Price = u.BIST.Close
		row.ChangePct = u.BIST.PercentChange
		row.EventTs = u.BIST.Date
	case u.US != nil:
		row.Price = u.US.Price
		row.EventTs = u.US.Timestamp
	default:
		return tickRow{}, false
	}

	return row, true
}

// flush writes the current batch to the database.
func (w *TickWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	batch := w.batch
	w.batch = make([]tickRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed ticks",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *TickWriter) batchInsert(ctx context.Context, rows []tickRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO ticks (feed, symbol, price, change_pct, event_ts, received_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (feed, symbol, event_ts) DO NOTHING
		`, r.Feed, r.Symbol, r.Price, r.ChangePct, r.EventTs, r.ReceivedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
