// Package recorder persists live feed updates and polled statistics to
// PostgreSQL.
//
// Components:
//   - Buffer: growable FIFO decoupling feed dispatch from database writes
//   - TickWriter: batches price updates into the ticks table
//   - DepthWriter: batches order book events into the depth_events table
//   - StatsWriter: batches polled statistics into the stock_stats table
//   - StatsPoller: periodically fetches stock statistics over REST
//
// All writers are append-only (never update, only insert) and flush on
// either batch size or a timer, whichever comes first.
package recorder
