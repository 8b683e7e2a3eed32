package recorder

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	laplace "github.com/laplace-analytics/laplace-go"
)

// StatsFetcher fetches statistics for a batch of symbols. *laplace.Client
// satisfies it through GetStockStats.
type StatsFetcher interface {
	GetStockStats(ctx context.Context, symbols []string, region laplace.Region) ([]laplace.StockStats, error)
}

// StatsHandler receives fetched statistics.
type StatsHandler interface {
	HandleStats(stats []laplace.StockStats) error
}

// StatsHandlerFunc is a function adapter for StatsHandler.
type StatsHandlerFunc func([]laplace.StockStats) error

func (f StatsHandlerFunc) HandleStats(stats []laplace.StockStats) error {
	return f(stats)
}

// PollerConfig holds stats poller configuration.
type PollerConfig struct {
	Interval    time.Duration  // Poll interval (default: 15m)
	Concurrency int            // Max concurrent requests (default: 10)
	ChunkSize   int            // Symbols per request (default: 50)
	Timeout     time.Duration  // Per-request timeout (default: 10s)
	Region      laplace.Region // Market region (default: tr)
}

// DefaultPollerConfig returns sensible defaults.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval:    15 * time.Minute,
		Concurrency: 10,
		ChunkSize:   50,
		Timeout:     10 * time.Second,
		Region:      laplace.RegionTR,
	}
}

// StatsPoller periodically fetches stock statistics via the REST API
// and hands them to a handler, chunking the symbol list and bounding
// request concurrency.
type StatsPoller struct {
	cfg     PollerConfig
	client  StatsFetcher
	symbols []string
	handler StatsHandler
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStatsPoller creates a StatsPoller.
func NewStatsPoller(cfg PollerConfig, client StatsFetcher, symbols []string, handler StatsHandler, logger *slog.Logger) *StatsPoller {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsPoller{
		cfg:     cfg,
		client:  client,
		symbols: symbols,
		handler: handler,
		logger:  logger,
	}
}

// Start begins the polling loop.
func (p *StatsPoller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("stats poller started",
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
		"symbols", len(p.symbols),
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *StatsPoller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("stats poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main polling loop.
func (p *StatsPoller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.pollAll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollAll()
		}
	}
}

// pollAll fetches statistics for all symbols in chunks, concurrently.
func (p *StatsPoller) pollAll() {
	start := time.Now()

	chunks := chunkSymbols(p.symbols, p.cfg.ChunkSize)
	if len(chunks) == 0 {
		p.logger.Debug("no symbols to poll")
		return
	}

	// Semaphore for bounded concurrency.
	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup
	var fetched, errors atomic.Int64

	for _, chunk := range chunks {
		wg.Add(1)
		go func(symbols []string) {
			defer wg.Done()

			// Acquire semaphore slot.
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-p.ctx.Done():
				return
			}

			n, err := p.pollChunk(symbols)
			if err != nil {
				p.logger.Warn("failed to poll stats",
					"symbols", len(symbols),
					"err", err,
				)
				errors.Add(1)
				return
			}

			fetched.Add(int64(n))
		}(chunk)
	}

	wg.Wait()

	p.logger.Info("poll cycle complete",
		"symbols", len(p.symbols),
		"fetched", fetched.Load(),
		"errors", errors.Load(),
		"duration", time.Since(start),
	)
}

// pollChunk fetches and handles statistics for one symbol chunk.
func (p *StatsPoller) pollChunk(symbols []string) (int, error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	stats, err := p.client.GetStockStats(ctx, symbols, p.cfg.Region)
	if err != nil {
		return 0, err
	}

	if p.handler != nil {
		if err := p.handler.HandleStats(stats); err != nil {
			return 0, err
		}
	}

	return len(stats), nil
}

// chunkSymbols splits symbols into slices of at most size elements.
func chunkSymbols(symbols []string, size int) [][]string {
	if size < 1 {
		size = 1
	}

	var chunks [][]string
	for len(symbols) > 0 {
		n := size
		if n > len(symbols) {
			n = len(symbols)
		}
		chunks = append(chunks, symbols[:n])
		symbols = symbols[n:]
	}

	return chunks
}
