package livefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Errors
var (
	ErrClosed         = errors.New("livefeed: manager closed")
	ErrConnectionLost = errors.New("livefeed: connection lost")
)

// HandlerError wraps an error returned by, or a panic recovered from, a
// subscription handler. It is delivered through Config.OnError.
type HandlerError struct {
	Feed   Feed
	Symbol string
	Err    error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("livefeed: handler for %s %s: %v", e.Feed, e.Symbol, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Feed identifies one market data stream. The server accepts feed names
// beyond the constants listed here; unknown feeds still dispatch on the
// payload's symbol keys.
type Feed string

const (
	FeedLiveBIST    Feed = "live_price_tr"
	FeedLiveUS      Feed = "live_price_us"
	FeedDelayedBIST Feed = "delayed_price_tr"
	FeedDepthBIST   Feed = "depth_tr"
)

// State is the manager's connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

// BISTQuote is one BIST price update.
type BISTQuote struct {
	Symbol        string  `json:"symbol"`
	Close         float64 `json:"cl"`
	PercentChange float64 `json:"c"`
	Date          int64   `json:"d"`
}

// USQuote is one US price update.
type USQuote struct {
	Symbol    string  `json:"s"`
	Price     float64 `json:"p"`
	Timestamp int64   `json:"t"`
}

// DepthLevel is one updated order book level.
type DepthLevel struct {
	Level int     `json:"level"`
	Side  string  `json:"side"`
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// DepthDeletedLevel identifies a removed order book level.
type DepthDeletedLevel struct {
	Level int    `json:"level"`
	Side  string `json:"side"`
}

// DepthUpdate is one incremental order book change.
type DepthUpdate struct {
	Symbol  string              `json:"s"`
	Updated []DepthLevel        `json:"updated"`
	Deleted []DepthDeletedLevel `json:"deleted"`
}

// Update is one decoded feed message. At most one of BIST, US or Depth
// is set, matching the feed family. Raw always holds the undecoded
// payload, so handlers on unknown feeds can parse it themselves.
type Update struct {
	Feed       Feed
	Symbol     string
	ReceivedAt time.Time

	BIST  *BISTQuote
	US    *USQuote
	Depth *DepthUpdate
	Raw   json.RawMessage
}

// Handler receives updates for the symbols a subscription watches. A
// returned error is reported through Config.OnError and does not affect
// other handlers.
type Handler func(Update) error

// URLSource resolves the WebSocket URL for a connection attempt. It is
// called again before every reconnect, so short-lived URLs stay valid.
type URLSource func(ctx context.Context) (string, error)

// FixedURL returns a URLSource that always yields the same URL.
func FixedURL(url string) URLSource {
	return func(context.Context) (string, error) {
		return url, nil
	}
}

// Config configures a Manager.
type Config struct {
	// URL resolves the WebSocket URL for each connection attempt.
	URL URLSource

	// ReconnectAttempts is how many consecutive failed dials the
	// manager tolerates before giving up.
	ReconnectAttempts int

	// ReconnectDelay is the wait before the first reconnect attempt.
	// The wait doubles after each failure, capped at MaxReconnectDelay.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration

	// HandshakeTimeout bounds the WebSocket handshake.
	HandshakeTimeout time.Duration

	// WriteTimeout is the write deadline for outbound frames.
	WriteTimeout time.Duration

	// StaleTimeout drops the connection when no frame arrives for this
	// long. Zero disables the check.
	StaleTimeout time.Duration

	Logger *slog.Logger

	// OnError receives asynchronous failures: handler errors and an
	// ErrConnectionLost once the reconnect budget is spent. It is
	// called from manager goroutines and must not block.
	OnError func(error)
}

// DefaultConfig returns the defaults New applies to unset fields.
func DefaultConfig() Config {
	return Config{
		ReconnectAttempts: 5,
		ReconnectDelay:    5 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// Stats is a point-in-time snapshot of manager activity.
type Stats struct {
	State         State
	Subscriptions int
	Symbols       int
	PendingFrames int
	Reconnects    int64
	Messages      int64
	DecodeErrors  int64
	HandlerErrors int64
	LastMessageAt time.Time
	LastHeartbeat time.Time
}

// frame is one subscribe or unsubscribe control message.
type frame struct {
	Action  string   `json:"action"`
	Feed    Feed     `json:"feed"`
	Symbols []string `json:"symbols"`
}

// envelope is the outer shape of every inbound frame.
type envelope struct {
	Feed    Feed            `json:"feed"`
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
}
