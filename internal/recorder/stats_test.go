package recorder

import (
	"context"
	"testing"
	"time"

	laplace "github.com/laplace-analytics/laplace-go"
)

func TestStatsWriter_StopDrainsInput(t *testing.T) {
	cfg := Config{
		BatchSize:     100,
		FlushInterval: time.Hour,
	}
	input := NewBuffer[laplace.StockStats](10)
	db := &fakeDB{}

	// Never started, so nothing consumes the buffer. Stop alone must
	// pick up what is left.
	w := NewStatsWriter(cfg, input, db, nil)

	input.Send(laplace.StockStats{Symbol: "TUPRS", LatestPrice: 171.3})
	input.Send(laplace.StockStats{Symbol: "SASA", LatestPrice: 4.1})
	input.Close()

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := w.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if got := db.rowCount(); got != 2 {
		t.Errorf("rows written = %d, want 2", got)
	}
	if got := input.Len(); got != 0 {
		t.Errorf("input buffer length after Stop = %d, want 0", got)
	}

	stats := w.Stats()
	if stats.Inserts != 2 {
		t.Errorf("Inserts = %d, want 2", stats.Inserts)
	}
	if stats.Errors != 0 {
		t.Errorf("Errors = %d, want 0", stats.Errors)
	}
}
