// laplace-recorder subscribes to Laplace live feeds and records price
// ticks, order book events and daily stock statistics to PostgreSQL.
//
// Usage: go run ./cmd/laplace-recorder -config configs/recorder.yaml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	laplace "github.com/laplace-analytics/laplace-go"
	"github.com/laplace-analytics/laplace-go/internal/config"
	"github.com/laplace-analytics/laplace-go/internal/database"
	"github.com/laplace-analytics/laplace-go/internal/recorder"
	"github.com/laplace-analytics/laplace-go/internal/version"
	"github.com/laplace-analytics/laplace-go/livefeed"
)

func main() {
	configPath := flag.String("config", "configs/recorder.yaml", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Logging.Level),
	}))
	slog.SetDefault(logger)

	logger.Info("starting recorder",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("database connected")

	// Create API client
	client := laplace.NewClient(cfg.API.APIKey,
		laplace.WithBaseURL(cfg.API.BaseURL),
		laplace.WithTimeout(cfg.API.Timeout),
		laplace.WithRetries(cfg.API.MaxRetries, time.Second),
		laplace.WithLogger(logger),
	)

	feeds := make([]livefeed.Feed, 0, len(cfg.Feed.Feeds))
	for _, f := range cfg.Feed.Feeds {
		feeds = append(feeds, livefeed.Feed(f))
	}

	// Create live feed manager
	mgr := client.LiveFeed(cfg.Feed.ExternalUserID, feeds, livefeed.Config{
		ReconnectAttempts: cfg.Feed.ReconnectAttempts,
		ReconnectDelay:    cfg.Feed.ReconnectDelay,
		MaxReconnectDelay: cfg.Feed.MaxReconnectDelay,
		StaleTimeout:      cfg.Feed.StaleTimeout,
		Logger:            logger,
		OnError: func(err error) {
			logger.Error("live feed error", "error", err)
		},
	})

	// Buffers decouple feed dispatch from database writes
	tickBuf := recorder.NewBuffer[livefeed.Update](cfg.Recorder.BufferSize)
	depthBuf := recorder.NewBuffer[livefeed.Update](cfg.Recorder.BufferSize)
	statsBuf := recorder.NewBuffer[laplace.StockStats](cfg.Recorder.BufferSize)

	writerCfg := recorder.Config{
		BatchSize:     cfg.Recorder.BatchSize,
		FlushInterval: cfg.Recorder.FlushInterval,
	}
	tickWriter := recorder.NewTickWriter(writerCfg, tickBuf, pool, logger)
	depthWriter := recorder.NewDepthWriter(writerCfg, depthBuf, pool, logger)
	statsWriter := recorder.NewStatsWriter(writerCfg, statsBuf, pool, logger)

	for _, w := range []interface{ Start(context.Context) error }{tickWriter, depthWriter, statsWriter} {
		if err := w.Start(ctx); err != nil {
			logger.Error("failed to start writer", "error", err)
			os.Exit(1)
		}
	}

	// Route quote updates to the tick buffer, depth updates to the
	// depth buffer. Subscriptions queue until Connect succeeds.
	for _, feed := range feeds {
		if _, err := mgr.Subscribe(cfg.Feed.Symbols, feed, func(u livefeed.Update) error {
			if u.Depth != nil {
				depthBuf.Send(u)
			} else {
				tickBuf.Send(u)
			}
			return nil
		}); err != nil {
			logger.Error("subscribe failed", "feed", feed, "error", err)
			os.Exit(1)
		}
	}

	// Stats poller feeds the stats writer over REST
	pollerCfg := recorder.DefaultPollerConfig()
	pollerCfg.Interval = cfg.Poller.Interval
	pollerCfg.Concurrency = cfg.Poller.Concurrency
	pollerCfg.ChunkSize = cfg.Poller.ChunkSize
	pollerCfg.Region = laplace.Region(cfg.Poller.Region)

	poller := recorder.NewStatsPoller(pollerCfg, client, cfg.Feed.Symbols,
		recorder.StatsHandlerFunc(func(stats []laplace.StockStats) error {
			for _, s := range stats {
				statsBuf.Send(s)
			}
			return nil
		}), logger)

	if err := poller.Start(ctx); err != nil {
		logger.Error("failed to start stats poller", "error", err)
		os.Exit(1)
	}

	// Health server
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: createHealthHandler(cfg.Health.Path, pool, mgr),
	}

	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	// Connect the live feed
	logger.Info("connecting live feed", "feeds", cfg.Feed.Feeds, "symbols", len(cfg.Feed.Symbols))
	if err := mgr.Connect(ctx); err != nil {
		logger.Error("failed to connect live feed", "error", err)
		os.Exit(1)
	}

	// Periodic stats logging
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				feedStats := mgr.Stats()
				logger.Info("stats",
					"feed_state", feedStats.State,
					"feed_messages", feedStats.Messages,
					"feed_reconnects", feedStats.Reconnects,
					"tick_buf", tickBuf.Len(),
					"depth_buf", depthBuf.Len(),
					"tick_inserts", tickWriter.Stats().Inserts,
					"depth_inserts", depthWriter.Stats().Inserts,
					"stats_inserts", statsWriter.Stats().Inserts,
				)
			}
		}
	}()

	logger.Info("recorder running",
		"health_url", fmt.Sprintf("http://localhost:%d%s", cfg.Health.Port, cfg.Health.Path),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	mgr.Close()
	poller.Stop(shutdownCtx)

	// Close buffers so writers drain what remains, then stop them.
	tickBuf.Close()
	depthBuf.Close()
	statsBuf.Close()
	tickWriter.Stop(shutdownCtx)
	depthWriter.Stop(shutdownCtx)
	statsWriter.Stop(shutdownCtx)

	healthServer.Shutdown(shutdownCtx)

	logger.Info("recorder stopped")
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(path string, pool *pgxpool.Pool, mgr *livefeed.Manager) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		// Check database
		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["database"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["database"] = "connected"
		}

		// Check live feed
		feedStats := mgr.Stats()
		health.Components["live_feed"] = map[string]any{
			"state":         string(feedStats.State),
			"subscriptions": feedStats.Subscriptions,
			"messages":      feedStats.Messages,
		}
		if feedStats.State != livefeed.StateConnected {
			health.Status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
