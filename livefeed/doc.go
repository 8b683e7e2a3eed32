// Package livefeed maintains a single WebSocket connection to the
// Laplace live price service and multiplexes per-symbol subscriptions
// over it.
//
// A Manager owns the connection lifecycle: it resolves the connection
// URL through a URLSource, replays the active subscription set after
// every reconnect, and retries dropped connections with bounded
// exponential backoff. Handlers that watch the same symbol share one
// upstream subscription; the newest handler is primed with the last
// update seen for each symbol that is already flowing.
package livefeed
