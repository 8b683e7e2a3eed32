package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	laplace "github.com/laplace-analytics/laplace-go"
)

// StatsWriter consumes polled stock statistics from a buffer and writes
// them to the stock_stats table, one row per symbol per day.
type StatsWriter struct {
	cfg    Config
	logger *slog.Logger

	input *Buffer[laplace.StockStats]

	db DB

	batch       []statsRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// NewStatsWriter creates a StatsWriter.
func NewStatsWriter(cfg Config, input *Buffer[laplace.StockStats], db DB, logger *slog.Logger) *StatsWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		batch:  make([]statsRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming statistics and writing to the database.
func (w *StatsWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("stats writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer, flushing what remains. The
// run context is canceled here, so the drain and the final flush run
// on the shutdown context.
func (w *StatsWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping stats writer")

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
		w.logger.Warn("stats writer stop timed out")
	}

	w.drainInput()
	w.flush(ctx)

	w.logger.Info("stats writer stopped")
	return nil
}

// drainInput moves whatever the consume loop left in the input buffer
// into the batch.
func (w *StatsWriter) drainInput() {
	remaining := w.input.DrainTo(0)
	if len(remaining) == 0 {
		return
	}

	now := time.Now().UTC()
	w.batchMu.Lock()
	for _, s := range remaining {
		w.batch = append(w.batch, transformStats(s, now))
	}
	w.batchMu.Unlock()
}

// Stats returns current metrics.
func (w *StatsWriter) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *StatsWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			s, ok := w.input.TryReceive()
			if !ok {
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}

			w.handleStats(s)
		}
	}
}

func (w *StatsWriter) flushLoop() {
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

func (w *StatsWriter) handleStats(s laplace.StockStats) {
	row := transformStats(s, time.Now().UTC())

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// transformStats converts fetched statistics to a statsRow keyed by the
// UTC day they were observed on.
func transformStats(s laplace.StockStats, now time.Time) statsRow {
	return statsRow{
		Symbol:        s.Symbol,
		AsOf:          now.Truncate(24 * time.Hour),
		EPS:           s.EPS,
		PERatio:       s.PERatio,
		PBRatio:       s.PBRatio,
		MarketCap:     s.MarketCap,
		LatestPrice:   s.LatestPrice,
		PreviousClose: s.PreviousClose,
		DayLow:        s.DayLow,
		DayHigh:       s.DayHigh,
		YearLow:       s.YearLow,
		YearHigh:      s.YearHigh,
		ReceivedAt:    now.UnixMicro(),
	}
}

func (w *StatsWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	batch := w.batch
	w.batch = make([]statsRow, 0, w.cfg.BatchSize)
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

	w.logger.Debug("flushed stock stats",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *StatsWriter) batchInsert(ctx context.Context, rows []statsRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO stock_stats (symbol, as_of, eps, pe_ratio, pb_ratio, market_cap, latest_price, previous_close, day_low, day_high, year_low, year_high, received_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (symbol, as_of) DO NOTHING
		`, r.Symbol, r.AsOf, r.EPS, r.PERatio, r.PBRatio, r.MarketCap, r.LatestPrice, r.PreviousClose, r.DayLow, r.DayHigh, r.YearLow, r.YearHigh, r.ReceivedAt)
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
