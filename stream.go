package laplace

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MessageType tags events on the BIST live price stream.
type MessageType string

const (
	MessagePrice       MessageType = "pr"
	MessageStateChange MessageType = "state_change"
	MessageHeartbeat   MessageType = "heartbeat"
	MessageOrderBook   MessageType = "ob"
)

// LiveEvent wraps a BIST stream payload with its symbol and event type.
type LiveEvent[T any] struct {
	Data   T           `json:"data"`
	Symbol string      `json:"symbol"`
	Type   MessageType `json:"type"`
}

// BISTLivePrice is one price tick on the BIST price stream.
type BISTLivePrice struct {
	Symbol        string  `json:"s"`
	PercentChange float64 `json:"ch"`
	Price         float64 `json:"p"`
	Date          int64   `json:"d"`
}

// USLivePrice is one price tick on the US price stream.
type USLivePrice struct {
	Symbol string  `json:"s"`
	Price  float64 `json:"p"`
	Date   int64   `json:"d"`
}

// OrderBookSide marks which side of the book a level sits on.
type OrderBookSide string

const (
	OrderBookBid OrderBookSide = "bid"
	OrderBookAsk OrderBookSide = "ask"
)

// OrderBookLevel is one updated price level.
type OrderBookLevel struct {
	Level int           `json:"level"`
	Side  OrderBookSide `json:"side"`
	Price float64       `json:"price"`
	Size  float64       `json:"size"`
}

// OrderBookDeletedLevel identifies a removed price level.
type OrderBookDeletedLevel struct {
	Level int           `json:"level"`
	Side  OrderBookSide `json:"side"`
}

// OrderBookUpdate is one incremental order book change on the depth stream.
type OrderBookUpdate struct {
	Symbol  string                  `json:"s"`
	Updated []OrderBookLevel        `json:"updated"`
	Deleted []OrderBookDeletedLevel `json:"deleted"`
}

// StreamResult carries one decoded event or a terminal stream error.
type StreamResult[T any] struct {
	Data T
	Err  error
}

// Stream is a server-sent events subscription. Read decoded events from
// Events; the channel closes when the stream ends for any reason. Close
// releases the underlying connection and is safe to call more than once.
type Stream[T any] struct {
	events    chan StreamResult[T]
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Events returns the channel stream events arrive on.
func (s *Stream[T]) Events() <-chan StreamResult[T] {
	return s.events
}

// Close tears down the stream. Events is closed shortly after.
func (s *Stream[T]) Close() {
	s.closeOnce.Do(s.cancel)
}

// newStream opens a server-sent events connection and decodes each data
// line into T. Streams authenticate with a bearer header instead of the
// api_key query parameter.
func newStream[T any](ctx context.Context, c *Client, path string, symbols []string, region Region) (*Stream[T], error) {
	query := url.Values{}
	query.Set("filter", strings.Join(symbols, ","))
	query.Set("region", string(region))
	query.Set("stream", uuid.New().String())

	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+path+"?"+query.Encode(), nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create stream request: %w", err)
	}

	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	// The configured client carries a wall-clock timeout that would
	// sever a long-lived stream, so dial with its transport only.
	transport := c.httpClient.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	streamClient := &http.Client{Transport: transport}

	resp, err := streamClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}
	}

	s := &Stream[T]{
		events: make(chan StreamResult[T]),
		ctx:    ctx,
		cancel: cancel,
	}
	go s.run(resp)

	return s, nil
}

func (s *Stream[T]) run(resp *http.Response) {
	defer close(s.events)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var event T
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			s.emit(StreamResult[T]{Err: fmt.Errorf("decode stream event: %w", err)})
			return
		}

		if !s.emit(StreamResult[T]{Data: event}) {
			return
		}
	}

	if err := scanner.Err(); err != nil && s.ctx.Err() == nil {
		s.emit(StreamResult[T]{Err: fmt.Errorf("read stream: %w", err)})
	}
}

func (s *Stream[T]) emit(result StreamResult[T]) bool {
	select {
	case s.events <- result:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// StreamBISTLivePrice streams real-time BIST price ticks over SSE. An
// empty symbols slice streams every stock.
func (c *Client) StreamBISTLivePrice(ctx context.Context, symbols []string) (*Stream[LiveEvent[BISTLivePrice]], error) {
	return newStream[LiveEvent[BISTLivePrice]](ctx, c, "v2/stock/price/live", symbols, RegionTR)
}

// StreamUSLivePrice streams real-time US price ticks over SSE. An empty
// symbols slice streams every stock.
func (c *Client) StreamUSLivePrice(ctx context.Context, symbols []string) (*Stream[USLivePrice], error) {
	return newStream[USLivePrice](ctx, c, "v2/stock/price/live", symbols, RegionUS)
}

// StreamBISTDelayedPrice streams BIST price ticks on a fifteen minute
// delay, available without a real-time data license.
func (c *Client) StreamBISTDelayedPrice(ctx context.Context, symbols []string) (*Stream[LiveEvent[BISTLivePrice]], error) {
	return newStream[LiveEvent[BISTLivePrice]](ctx, c, "v1/stock/price/delayed", symbols, RegionTR)
}

// StreamBISTOrderBook streams incremental BIST order book updates.
func (c *Client) StreamBISTOrderBook(ctx context.Context, symbols []string) (*Stream[OrderBookUpdate], error) {
	return newStream[OrderBookUpdate](ctx, c, "v1/stock/orderbook/live", symbols, RegionTR)
}
