package recorder

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// DB is the database surface the batch writers use. *pgxpool.Pool
// satisfies it.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config holds shared batch writer settings.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns sensible writer defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     1000,
		FlushInterval: time.Second,
	}
}

// Metrics counts writer activity.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Errors    int64
}

// tickRow is one row destined for the ticks table.
type tickRow struct {
	Feed       string
	Symbol     string
	Price      float64
	ChangePct  float64
	EventTs    int64
	ReceivedAt int64
}

// depthRow is one row destined for the depth_events table. Updated and
// Deleted hold the level lists as JSON.
type depthRow struct {
	Symbol     string
	ReceivedAt int64
	Updated    []byte
	Deleted    []byte
}

// statsRow is one row destined for the stock_stats table.
type statsRow struct {
	Symbol        string
	AsOf          time.Time
	EPS           float64
	PERatio       float64
	PBRatio       float64
	MarketCap     float64
	LatestPrice   float64
	PreviousClose float64
	DayLow        float64
	DayHigh       float64
	YearLow       float64
	YearHigh      float64
	ReceivedAt    int64
}
