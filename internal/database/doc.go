// Package database provides the PostgreSQL connection pool for the
// recorder daemon.
//
// The recorder keeps everything in a single database: price ticks,
// order book events and daily stock statistics, all written append-only
// by the batch writers in internal/recorder.
package database
