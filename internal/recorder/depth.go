package recorder

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/laplace-analytics/laplace-go/livefeed"
)

// DepthWriter consumes order book updates from a buffer and writes them
// to the depth_events table in batches. Level lists are stored as JSONB.
type DepthWriter struct {
	cfg    Config
	logger *slog.Logger

	input *Buffer[livefeed.Update]

	db DB

	batch       []depthRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// NewDepthWriter creates a DepthWriter.
func NewDepthWriter(cfg Config, input *Buffer[livefeed.Update], db DB, logger *slog.Logger) *DepthWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &DepthWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]depthRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming updates and writing to the database.
func (w *DepthWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("depth writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer, flushing what remains. The
// run context is canceled here, so the drain and the final flush run
// on the shutdown context.
func (w *DepthWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping depth writer")

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
		w.logger.Warn("depth writer stop timed out")
	}

	w.drainInput()
	w.flush(ctx)

	w.logger.Info("depth writer stopped")
	return nil
}

// drainInput moves whatever the consume loop left in the input buffer
// into the batch.
func (w *DepthWriter) drainInput() {
	remaining := w.input.DrainTo(0)
	if len(remaining) == 0 {
		return
	}

	w.batchMu.Lock()
	for _, u := range remaining {
		if row, ok := transformDepth(u); ok {
			w.batch = append(w.batch, row)
		}
	}
	w.batchMu.Unlock()
}

// Stats returns current metrics.
func (w *DepthWriter) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *DepthWriter) consumeLoop() {
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

func (w *DepthWriter) flushLoop() {
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
// that carry no depth payload are skipped.
func (w *DepthWriter) handleUpdate(u livefeed.Update) {
	row, ok := transformDepth(u)
	if !ok {
		w.logger.Debug("skipping non-depth update", "feed", u.Feed, "symbol", u.Symbol)
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

// transformDepth converts a depth update to a depthRow.
func transformDepth(u livefeed.Update) (depthRow, bool) {
	if u.Depth == nil {
		return depthRow{}, false
	}

	updated, err := json.Marshal(u.Depth.Updated)
	if err != nil {
		return depthRow{}, false
	}
	deleted, err := json.Marshal(u.Depth.Deleted)
	if err != nil {
		return depthRow{}, false
	}

	return depthRow{
		Symbol:     u.Symbol,
		ReceivedAt: u.ReceivedAt.UnixMicro(),
		Updated:    updated,
		Deleted:    deleted,
	}, true
}

func (w *DepthWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	batch := w.batch
	w.batch = make([]depthRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	if err := w.batchInsert(ctx, batch); err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch))
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed depth events",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch. Depth events have no
// natural key, so inserts are unconditional.
func (w *DepthWriter) batchInsert(ctx context.Context, rows []depthRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO depth_events (symbol, received_at, updated, deleted)
			VALUES ($1, $2, $3, $4)
		`, r.Symbol, r.ReceivedAt, r.Updated, r.Deleted)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}

	return nil
}
