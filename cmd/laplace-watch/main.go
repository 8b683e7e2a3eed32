// laplace-watch connects to the Laplace live feed and prints updates to
// the console.
//
// Usage: go run ./cmd/laplace-watch -user my-app-user -feed live_price_tr -symbols TUPRS,SASA
//
// The API key is read from the LAPLACE_API_KEY environment variable
// unless -api-key is given.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	laplace "github.com/laplace-analytics/laplace-go"
	"github.com/laplace-analytics/laplace-go/livefeed"
)

func main() {
	apiKey := flag.String("api-key", os.Getenv("LAPLACE_API_KEY"), "Laplace API key (defaults to LAPLACE_API_KEY)")
	user := flag.String("user", "", "external user id the connection acts for")
	feedName := flag.String("feed", string(livefeed.FeedLiveBIST), "feed to watch")
	symbolsArg := flag.String("symbols", "", "comma-separated symbols to watch")
	verbose := flag.Bool("verbose", false, "print full update JSON")
	flag.Parse()

	// Setup logger
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	if *apiKey == "" {
		logger.Error("an API key is required (set LAPLACE_API_KEY or pass -api-key)")
		os.Exit(1)
	}
	if *user == "" {
		logger.Error("-user is required")
		os.Exit(1)
	}

	symbols := splitSymbols(*symbolsArg)
	if len(symbols) == 0 {
		logger.Error("-symbols must list at least one symbol")
		os.Exit(1)
	}

	feed := livefeed.Feed(*feedName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	client := laplace.NewClient(*apiKey, laplace.WithLogger(logger))

	mgr := client.LiveFeed(*user, []livefeed.Feed{feed}, livefeed.Config{
		Logger: logger,
		OnError: func(err error) {
			logger.Error("feed error", "error", err)
		},
	})

	unsubscribe, err := mgr.Subscribe(symbols, feed, func(u livefeed.Update) error {
		printUpdate(u, *verbose)
		return nil
	})
	if err != nil {
		logger.Error("subscribe failed", "error", err)
		os.Exit(1)
	}
	defer unsubscribe()

	logger.Info("connecting", "feed", feed, "symbols", len(symbols))
	if err := mgr.Connect(ctx); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}
	defer mgr.Close()

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := mgr.Stats()
				logger.Info("stats",
					"state", stats.State,
					"subscriptions", stats.Subscriptions,
					"messages", stats.Messages,
					"decode_errors", stats.DecodeErrors,
					"handler_errors", stats.HandlerErrors,
					"reconnects", stats.Reconnects,
				)
			}
		}
	}()

	logger.Info("watching - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	mgr.Close()
	logger.Info("shutdown complete")
}

func printUpdate(u livefeed.Update, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(u, "", "  ")
		fmt.Printf("[%s] %s\n", u.Feed, data)
		return
	}

	switch {
	case u.BIST != nil:
		fmt.Printf("[%s] symbol=%s price=%.2f change=%.2f%%\n",
			u.Feed, u.Symbol, u.BIST.Close, u.BIST.PercentChange)
	case u.US != nil:
		fmt.Printf("[%s] symbol=%s price=%.2f\n",
			u.Feed, u.Symbol, u.US.Price)
	case u.Depth != nil:
		fmt.Printf("[%s] symbol=%s updated_levels=%d deleted_levels=%d\n",
			u.Feed, u.Symbol, len(u.Depth.Updated), len(u.Depth.Deleted))
	default:
		fmt.Printf("[%s] symbol=%s raw=%s\n", u.Feed, u.Symbol, u.Raw)
	}
}

func splitSymbols(arg string) []string {
	var symbols []string
	for _, s := range strings.Split(arg, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			symbols = append(symbols, s)
		}
	}
	return symbols
}
