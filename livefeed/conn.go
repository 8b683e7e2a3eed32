package livefeed

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// conn wraps a single WebSocket connection. The manager replaces the
// whole conn on reconnect instead of reusing it, so late errors from a
// dead connection can be told apart from errors on the live one.
type conn struct {
	ws *websocket.Conn

	writeTimeout time.Duration
	staleTimeout time.Duration

	// Write serialization
	writeMu sync.Mutex

	closeOnce sync.Once
}

// dial opens a WebSocket connection to url.
func dial(ctx context.Context, url string, cfg Config) (*conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
	}

	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	// Server pings are answered with pongs so idle connections stay up.
	ws.SetPingHandler(func(data string) error {
		return ws.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	return &conn{
		ws:           ws,
		writeTimeout: cfg.WriteTimeout,
		staleTimeout: cfg.StaleTimeout,
	}, nil
}

// writeJSON marshals v and writes it as a single text frame.
func (c *conn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteJSON(v)
}

// readMessage blocks until one frame arrives. With a stale timeout set,
// a quiet connection fails the read instead of hanging forever.
func (c *conn) readMessage() ([]byte, error) {
	if c.staleTimeout > 0 {
		c.ws.SetReadDeadline(time.Now().Add(c.staleTimeout))
	}

	_, data, err := c.ws.ReadMessage()
	return data, err
}

// close tears the connection down. Safe to call more than once.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.ws.Close()
	})
}
