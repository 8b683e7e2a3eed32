package livefeed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// feedServer is a scripted live price endpoint. It records every control
// frame managers send and mirrors them into a per-feed symbol set, so tests
// can compare the wire-level state against the subscription table.
type feedServer struct {
	t   *testing.T
	srv *httptest.Server

	mu     sync.Mutex
	conns  []*websocket.Conn
	frames []frame
	live   map[Feed]map[string]bool
}

func newFeedServer(t *testing.T) *feedServer {
	fs := &feedServer{t: t, live: make(map[Feed]map[string]bool)}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}

		fs.mu.Lock()
		fs.conns = append(fs.conns, conn)
		fs.mu.Unlock()

		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			fs.record(f)
		}
	}))

	return fs
}

func (fs *feedServer) record(f frame) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.frames = append(fs.frames, f)

	set := fs.live[f.Feed]
	if set == nil {
		set = make(map[string]bool)
		fs.live[f.Feed] = set
	}
	for _, s := range f.Symbols {
		if f.Action == "subscribe" {
			set[s] = true
		} else {
			delete(set, s)
		}
	}
}

func (fs *feedServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

// waitFrames blocks until the server has recorded at least n control
// frames, then returns a copy of all of them.
func (fs *feedServer) waitFrames(n int) []frame {
	deadline := time.Now().Add(3 * time.Second)
	for {
		fs.mu.Lock()
		if len(fs.frames) >= n {
			out := make([]frame, len(fs.frames))
			copy(out, fs.frames)
			fs.mu.Unlock()
			return out
		}
		fs.mu.Unlock()

		if time.Now().After(deadline) {
			fs.t.Fatalf("timeout waiting for %d control frames", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (fs *feedServer) frameCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.frames)
}

// liveSymbols returns the wire-level subscribed set for a feed, sorted.
func (fs *feedServer) liveSymbols(feed Feed) []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var out []string
	for s := range fs.live[feed] {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// push writes one raw frame to the most recent connection.
func (fs *feedServer) push(raw string) {
	fs.mu.Lock()
	conn := fs.conns[len(fs.conns)-1]
	fs.mu.Unlock()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		fs.t.Logf("push error: %v", err)
	}
}

// dropConn severs the most recent connection without stopping the server,
// simulating a transient network failure.
func (fs *feedServer) dropConn() {
	fs.mu.Lock()
	conn := fs.conns[len(fs.conns)-1]
	fs.mu.Unlock()
	conn.Close()
}

func (fs *feedServer) connCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.conns)
}

func (fs *feedServer) waitConns(n int) {
	deadline := time.Now().Add(3 * time.Second)
	for fs.connCount() < n {
		if time.Now().After(deadline) {
			fs.t.Fatalf("timeout waiting for %d connections", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (fs *feedServer) Close() {
	fs.srv.Close()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(url string) Config {
	return Config{
		URL:               FixedURL(url),
		ReconnectAttempts: 3,
		ReconnectDelay:    20 * time.Millisecond,
		MaxReconnectDelay: 100 * time.Millisecond,
		HandshakeTimeout:  2 * time.Second,
		WriteTimeout:      2 * time.Second,
		Logger:            quietLogger(),
	}
}

func bistData(symbol string, price float64) string {
	return fmt.Sprintf(`{"feed":"live_price_tr","type":"data","message":{"symbol":%q,"cl":%g,"c":0.5,"d":1724400000000}}`, symbol, price)
}

func usData(symbol string, price float64) string {
	return fmt.Sprintf(`{"feed":"live_price_us","type":"data","message":{"s":%q,"p":%g,"t":1724400000000}}`, symbol, price)
}

// collector is a handler that records the updates it receives.
type collector struct {
	mu      sync.Mutex
	updates []Update
	notify  chan struct{}
}

func newCollector() *collector {
	return &collector{notify: make(chan struct{}, 100)}
}

func (c *collector) handler(u Update) error {
	c.mu.Lock()
	c.updates = append(c.updates, u)
	c.mu.Unlock()
	c.notify <- struct{}{}
	return nil
}

func (c *collector) wait(t *testing.T, n int) []Update {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		c.mu.Lock()
		if len(c.updates) >= n {
			out := make([]Update, len(c.updates))
			copy(out, c.updates)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()

		select {
		case <-c.notify:
		case <-deadline:
			t.Fatalf("timeout waiting for %d updates", n)
		}
	}
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.updates)
}

func TestManager_ConnectSubscribeDispatch(t *testing.T) {
	fs := newFeedServer(t)
	defer fs.Close()

	m := New(testConfig(fs.url()))
	defer m.Close()

	if got := m.State(); got != StateDisconnected {
		t.Errorf("State() = %s, want %s", got, StateDisconnected)
	}

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if got := m.State(); got != StateConnected {
		t.Errorf("State() = %s, want %s", got, StateConnected)
	}

	col := newCollector()
	unsub, err := m.Subscribe([]string{"TUPRS", "THYAO"}, FeedLiveBIST, col.handler)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer unsub()

	frames := fs.waitFrames(1)
	if frames[0].Action != "subscribe" {
		t.Errorf("frame action = %q, want %q", frames[0].Action, "subscribe")
	}
	if frames[0].Feed != FeedLiveBIST {
		t.Errorf("frame feed = %s, want %s", frames[0].Feed, FeedLiveBIST)
	}
	if len(frames[0].Symbols) != 2 {
		t.Errorf("frame symbols = %v, want 2 symbols", frames[0].Symbols)
	}

	fs.push(bistData("TUPRS", 170.4))

	updates := col.wait(t, 1)
	u := updates[0]
	if u.Feed != FeedLiveBIST {
		t.Errorf("update feed = %s, want %s", u.Feed, FeedLiveBIST)
	}
	if u.Symbol != "TUPRS" {
		t.Errorf("update symbol = %q, want %q", u.Symbol, "TUPRS")
	}
	if u.BIST == nil || u.BIST.Close != 170.4 {
		t.Errorf("update BIST quote = %+v, want close 170.4", u.BIST)
	}
	if u.US != nil || u.Depth != nil {
		t.Error("unexpected non-BIST payload on a BIST update")
	}
	if u.ReceivedAt.IsZero() {
		t.Error("ReceivedAt should not be zero")
	}
}

func TestManager_SubscribeBeforeConnect(t *testing.T) {
	fs := newFeedServer(t)
	defer fs.Close()

	m := New(testConfig(fs.url()))
	defer m.Close()

	col := newCollector()
	if _, err := m.Subscribe([]string{"AAPL"}, FeedLiveUS, col.handler); err != nil {
		t.Fatalf("Subscribe before Connect failed: %v", err)
	}

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	frames := fs.waitFrames(1)
	if frames[0].Action != "subscribe" || frames[0].Feed != FeedLiveUS {
		t.Errorf("replay frame = %+v, want subscribe on %s", frames[0], FeedLiveUS)
	}

	fs.push(usData("AAPL", 231.5))

	updates := col.wait(t, 1)
	if updates[0].US == nil || updates[0].US.Price != 231.5 {
		t.Errorf("update US quote = %+v, want price 231.5", updates[0].US)
	}
}

// TestManager_WireUnionInvariant drives a sequence of subscribes and
// unsubscribes and checks after every step that what the server believes
// is subscribed equals the union of symbols across active subscriptions.
func TestManager_WireUnionInvariant(t *testing.T) {
	fs := newFeedServer(t)
	defer fs.Close()

	m := New(testConfig(fs.url()))
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	check := func(step string, nframes int, want []string) {
		t.Helper()
		fs.waitFrames(nframes)
		got := fs.liveSymbols(FeedLiveUS)
		if len(got) != len(want) {
			t.Fatalf("%s: wire symbols = %v, want %v", step, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%s: wire symbols = %v, want %v", step, got, want)
			}
		}
	}

	noop := func(Update) error { return nil }

	unsubA, err := m.Subscribe([]string{"AAPL", "MSFT"}, FeedLiveUS, noop)
	if err != nil {
		t.Fatalf("subscribe A: %v", err)
	}
	check("after A", 1, []string{"AAPL", "MSFT"})

	unsubB, err := m.Subscribe([]string{"AAPL", "TSLA"}, FeedLiveUS, noop)
	if err != nil {
		t.Fatalf("subscribe B: %v", err)
	}
	// Only TSLA is new on the wire.
	frames := fs.waitFrames(2)
	if len(frames[1].Symbols) != 1 || frames[1].Symbols[0] != "TSLA" {
		t.Errorf("second subscribe frame symbols = %v, want [TSLA]", frames[1].Symbols)
	}
	check("after B", 2, []string{"AAPL", "MSFT", "TSLA"})

	// Dropping A releases MSFT but must keep AAPL for B.
	unsubA()
	frames = fs.waitFrames(3)
	last := frames[2]
	if last.Action != "unsubscribe" || len(last.Symbols) != 1 || last.Symbols[0] != "MSFT" {
		t.Errorf("unsubscribe frame = %+v, want unsubscribe [MSFT]", last)
	}
	check("after unsub A", 3, []string{"AAPL", "TSLA"})

	// Second invocation is a no-op.
	unsubA()
	time.Sleep(50 * time.Millisecond)
	if n := fs.frameCount(); n != 3 {
		t.Errorf("frame count after repeated unsubscribe = %d, want 3", n)
	}
	check("after repeated unsub A", 3, []string{"AAPL", "TSLA"})

	unsubB()
	check("after unsub B", 4, nil)
}

func TestManager_SharedSymbolTwoHandlers(t *testing.T) {
	fs := newFeedServer(t)
	defer fs.Close()

	m := New(testConfig(fs.url()))
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	var mu sync.Mutex
	var order []string
	seen := make(chan struct{}, 10)

	handler := func(name string) Handler {
		return func(Update) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			seen <- struct{}{}
			return nil
		}
	}

	unsubA, err := m.Subscribe([]string{"AAPL"}, FeedLiveUS, handler("A"))
	if err != nil {
		t.Fatalf("subscribe A: %v", err)
	}
	if _, err := m.Subscribe([]string{"AAPL"}, FeedLiveUS, handler("B")); err != nil {
		t.Fatalf("subscribe B: %v", err)
	}

	// One wire subscription serves both handlers.
	fs.waitFrames(1)
	time.Sleep(50 * time.Millisecond)
	if n := fs.frameCount(); n != 1 {
		t.Errorf("frame count = %d, want 1 (second subscription reuses the wire)", n)
	}

	fs.push(usData("AAPL", 230.0))

	for i := 0; i < 2; i++ {
		select {
		case <-seen:
		case <-time.After(3 * time.Second):
			t.Fatal("timeout waiting for handler invocations")
		}
	}

	mu.Lock()
	if len(order) != 2 || order[0] != "A" || order[1] != "B" {
		t.Errorf("dispatch order = %v, want [A B]", order)
	}
	order = nil
	mu.Unlock()

	// Unsubscribing A must not emit a wire frame (B still needs AAPL)
	// and must not silence B.
	unsubA()
	time.Sleep(50 * time.Millisecond)
	if n := fs.frameCount(); n != 1 {
		t.Errorf("frame count after unsub A = %d, want 1", n)
	}

	fs.push(usData("AAPL", 230.5))

	select {
	case <-seen:
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for B after A unsubscribed")
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 1 || order[0] != "B" {
		t.Errorf("dispatch after unsub A = %v, want [B]", order)
	}
}

func TestManager_EmptySymbolsIsNoop(t *testing.T) {
	fs := newFeedServer(t)
	defer fs.Close()

	m := New(testConfig(fs.url()))
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	unsub, err := m.Subscribe(nil, FeedLiveUS, func(Update) error { return nil })
	if err != nil {
		t.Fatalf("Subscribe with empty symbols failed: %v", err)
	}
	if unsub == nil {
		t.Fatal("expected a callable unsubscribe func")
	}
	unsub()
	unsub()

	time.Sleep(50 * time.Millisecond)
	if n := fs.frameCount(); n != 0 {
		t.Errorf("frame count = %d, want 0", n)
	}
	if got := m.Stats().Subscriptions; got != 0 {
		t.Errorf("Subscriptions = %d, want 0", got)
	}
}

func TestManager_SubscribeAfterClose(t *testing.T) {
	m := New(testConfig("ws://localhost:1"))

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if got := m.State(); got != StateClosed {
		t.Errorf("State() = %s, want %s", got, StateClosed)
	}

	_, err := m.Subscribe([]string{"AAPL"}, FeedLiveUS, func(Update) error { return nil })
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe after Close = %v, want ErrClosed", err)
	}

	if err := m.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Connect after Close = %v, want ErrClosed", err)
	}
}

func TestManager_HandlerFailuresDoNotStopDispatch(t *testing.T) {
	fs := newFeedServer(t)
	defer fs.Close()

	var reported []error
	var reportedMu sync.Mutex

	cfg := testConfig(fs.url())
	cfg.OnError = func(err error) {
		reportedMu.Lock()
		reported = append(reported, err)
		reportedMu.Unlock()
	}

	m := New(cfg)
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if _, err := m.Subscribe([]string{"AAPL"}, FeedLiveUS, func(Update) error {
		panic("boom")
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Subscribe([]string{"AAPL"}, FeedLiveUS, func(Update) error {
		return errors.New("handler failed")
	}); err != nil {
		t.Fatal(err)
	}

	col := newCollector()
	if _, err := m.Subscribe([]string{"AAPL"}, FeedLiveUS, col.handler); err != nil {
		t.Fatal(err)
	}

	fs.waitFrames(1)
	fs.push(usData("AAPL", 230.0))

	// The well-behaved handler still gets the update.
	col.wait(t, 1)

	reportedMu.Lock()
	defer reportedMu.Unlock()
	if len(reported) != 2 {
		t.Fatalf("reported errors = %d, want 2", len(reported))
	}
	for _, err := range reported {
		var herr *HandlerError
		if !errors.As(err, &herr) {
			t.Errorf("reported error %v is not a HandlerError", err)
			continue
		}
		if herr.Feed != FeedLiveUS || herr.Symbol != "AAPL" {
			t.Errorf("HandlerError = %+v, want feed %s symbol AAPL", herr, FeedLiveUS)
		}
	}

	if got := m.Stats().HandlerErrors; got != 2 {
		t.Errorf("Stats().HandlerErrors = %d, want 2", got)
	}
}

func TestManager_ReconnectReplaysSubscriptions(t *testing.T) {
	fs := newFeedServer(t)
	defer fs.Close()

	m := New(testConfig(fs.url()))
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	colUS := newCollector()
	colTR := newCollector()
	if _, err := m.Subscribe([]string{"AAPL", "MSFT"}, FeedLiveUS, colUS.handler); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Subscribe([]string{"TUPRS"}, FeedLiveBIST, colTR.handler); err != nil {
		t.Fatal(err)
	}
	fs.waitFrames(2)

	fs.dropConn()
	fs.waitConns(2)

	// The replay covers both feeds, one frame per feed, before any new
	// Subscribe call happens.
	frames := fs.waitFrames(4)
	replay := frames[2:]
	byFeed := make(map[Feed][]string)
	for _, f := range replay {
		if f.Action != "subscribe" {
			t.Errorf("replay frame action = %q, want subscribe", f.Action)
		}
		byFeed[f.Feed] = f.Symbols
	}
	if got := byFeed[FeedLiveUS]; len(got) != 2 {
		t.Errorf("replayed US symbols = %v, want [AAPL MSFT]", got)
	}
	if got := byFeed[FeedLiveBIST]; len(got) != 1 || got[0] != "TUPRS" {
		t.Errorf("replayed BIST symbols = %v, want [TUPRS]", got)
	}

	// Updates on the new connection reach the original handlers.
	fs.push(usData("MSFT", 420.1))
	fs.push(bistData("TUPRS", 171.0))
	colUS.wait(t, 1)
	colTR.wait(t, 1)

	stats := m.Stats()
	if stats.Reconnects != 1 {
		t.Errorf("Stats().Reconnects = %d, want 1", stats.Reconnects)
	}
	if stats.State != StateConnected {
		t.Errorf("Stats().State = %s, want %s", stats.State, StateConnected)
	}
}

func TestManager_ReconnectExhaustionReportsConnectionLost(t *testing.T) {
	fs := newFeedServer(t)

	var dials atomic.Int64
	errCh := make(chan error, 10)

	cfg := Config{
		URL: func(ctx context.Context) (string, error) {
			dials.Add(1)
			return fs.url(), nil
		},
		ReconnectAttempts: 3,
		ReconnectDelay:    10 * time.Millisecond,
		MaxReconnectDelay: 40 * time.Millisecond,
		HandshakeTimeout:  500 * time.Millisecond,
		WriteTimeout:      time.Second,
		Logger:            quietLogger(),
		OnError:           func(err error) { errCh <- err },
	}

	m := New(cfg)
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if _, err := m.Subscribe([]string{"AAPL"}, FeedLiveUS, func(Update) error { return nil }); err != nil {
		t.Fatal(err)
	}
	fs.waitFrames(1)

	// Kill the endpoint entirely so every reconnect attempt fails.
	// Closing the test server does not sever hijacked WebSocket
	// connections, so drop the live one explicitly.
	fs.Close()
	fs.dropConn()

	var lost error
	select {
	case lost = <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for ConnectionLost")
	}

	if !errors.Is(lost, ErrConnectionLost) {
		t.Fatalf("reported error = %v, want ErrConnectionLost", lost)
	}

	// Exactly one notification, then the manager stays quiet.
	select {
	case extra := <-errCh:
		t.Fatalf("unexpected second error notification: %v", extra)
	case <-time.After(200 * time.Millisecond):
	}

	if got := m.State(); got != StateDisconnected {
		t.Errorf("State() after exhaustion = %s, want %s", got, StateDisconnected)
	}

	// 1 initial connect + 3 reconnect attempts, then no further dials.
	settled := dials.Load()
	if settled != 4 {
		t.Errorf("url resolutions = %d, want 4", settled)
	}
	time.Sleep(200 * time.Millisecond)
	if now := dials.Load(); now != settled {
		t.Errorf("dials kept happening after exhaustion: %d -> %d", settled, now)
	}
}

func TestManager_CloseStopsReconnect(t *testing.T) {
	fs := newFeedServer(t)
	defer fs.Close()

	errCh := make(chan error, 10)
	cfg := testConfig(fs.url())
	cfg.ReconnectDelay = 500 * time.Millisecond
	cfg.OnError = func(err error) { errCh <- err }

	m := New(cfg)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if _, err := m.Subscribe([]string{"AAPL"}, FeedLiveUS, func(Update) error { return nil }); err != nil {
		t.Fatal(err)
	}
	fs.waitFrames(1)

	fs.dropConn()

	// Wait for the manager to notice and enter the backoff wait.
	deadline := time.Now().Add(2 * time.Second)
	for m.State() != StateReconnecting {
		if time.Now().After(deadline) {
			t.Fatal("manager never entered reconnecting state")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := m.State(); got != StateClosed {
		t.Errorf("State() = %s, want %s", got, StateClosed)
	}

	// No reconnect fires after Close, so no new connection and no error.
	time.Sleep(700 * time.Millisecond)
	if n := fs.connCount(); n != 1 {
		t.Errorf("connection count after Close = %d, want 1", n)
	}
	select {
	case err := <-errCh:
		t.Errorf("unexpected error after Close: %v", err)
	default:
	}
}

func TestManager_ConnectFailureIsRetryable(t *testing.T) {
	// Nothing listens on this address, so the handshake fails fast.
	cfg := testConfig("ws://127.0.0.1:1")
	m := New(cfg)
	defer m.Close()

	if err := m.Connect(context.Background()); err == nil {
		t.Fatal("expected Connect to fail against a dead endpoint")
	}
	if got := m.State(); got != StateDisconnected {
		t.Errorf("State() after failed Connect = %s, want %s", got, StateDisconnected)
	}

	// The caller may retry against a live endpoint.
	fs := newFeedServer(t)
	defer fs.Close()
	m2 := New(testConfig(fs.url()))
	defer m2.Close()

	if err := m2.Connect(context.Background()); err != nil {
		t.Fatalf("retry Connect failed: %v", err)
	}
}

func TestManager_BadFramesAreDropped(t *testing.T) {
	fs := newFeedServer(t)
	defer fs.Close()

	m := New(testConfig(fs.url()))
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	col := newCollector()
	if _, err := m.Subscribe([]string{"AAPL"}, FeedLiveUS, col.handler); err != nil {
		t.Fatal(err)
	}
	fs.waitFrames(1)

	fs.push(`not json at all`)
	fs.push(`{"feed":"live_price_us","type":"data","message":{"p":"not a number"}}`)
	fs.push(usData("AAPL", 230.0))

	// The valid frame still comes through on the same connection.
	col.wait(t, 1)

	stats := m.Stats()
	if stats.DecodeErrors != 2 {
		t.Errorf("Stats().DecodeErrors = %d, want 2", stats.DecodeErrors)
	}
	if stats.State != StateConnected {
		t.Errorf("State = %s, want %s (bad frames must not drop the connection)", stats.State, StateConnected)
	}
}

func TestManager_HeartbeatAndServerNotices(t *testing.T) {
	fs := newFeedServer(t)
	defer fs.Close()

	m := New(testConfig(fs.url()))
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	col := newCollector()
	if _, err := m.Subscribe([]string{"AAPL"}, FeedLiveUS, col.handler); err != nil {
		t.Fatal(err)
	}
	fs.waitFrames(1)

	fs.push(`{"feed":"live_price_us","type":"heartbeat"}`)
	fs.push(`{"feed":"live_price_us","type":"error","message":{"detail":"rate limited"}}`)
	fs.push(`{"feed":"live_price_us","type":"warning","message":{"detail":"slow consumer"}}`)

	deadline := time.Now().Add(2 * time.Second)
	for m.Stats().LastHeartbeat.IsZero() {
		if time.Now().After(deadline) {
			t.Fatal("heartbeat never recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if got := col.count(); got != 0 {
		t.Errorf("handler invocations = %d, want 0 for control traffic", got)
	}
}

func TestManager_CachedUpdatePrimesNewSubscriber(t *testing.T) {
	fs := newFeedServer(t)
	defer fs.Close()

	m := New(testConfig(fs.url()))
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	first := newCollector()
	if _, err := m.Subscribe([]string{"AAPL"}, FeedLiveUS, first.handler); err != nil {
		t.Fatal(err)
	}
	fs.waitFrames(1)

	fs.push(usData("AAPL", 229.9))
	first.wait(t, 1)

	// The late subscriber gets the cached update without any new frame
	// on the wire.
	second := newCollector()
	if _, err := m.Subscribe([]string{"AAPL"}, FeedLiveUS, second.handler); err != nil {
		t.Fatal(err)
	}

	updates := second.wait(t, 1)
	if updates[0].US == nil || updates[0].US.Price != 229.9 {
		t.Errorf("primed update = %+v, want cached price 229.9", updates[0].US)
	}
	if n := fs.frameCount(); n != 1 {
		t.Errorf("frame count = %d, want 1", n)
	}
}

func TestManager_ConcurrentSubscribers(t *testing.T) {
	fs := newFeedServer(t)
	defer fs.Close()

	m := New(testConfig(fs.url()))
	defer m.Close()

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	symbols := []string{"AAPL", "MSFT", "TSLA", "NVDA", "AMZN"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sym := symbols[i%len(symbols)]
			unsub, err := m.Subscribe([]string{sym}, FeedLiveUS, func(Update) error { return nil })
			if err != nil {
				t.Errorf("concurrent Subscribe failed: %v", err)
				return
			}
			time.Sleep(time.Duration(i%5) * time.Millisecond)
			unsub()
		}(i)
	}
	wg.Wait()

	// Every subscription was released, so the wire set drains to empty.
	deadline := time.Now().Add(3 * time.Second)
	for len(fs.liveSymbols(FeedLiveUS)) > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("wire symbols never drained: %v", fs.liveSymbols(FeedLiveUS))
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := m.Stats().Subscriptions; got != 0 {
		t.Errorf("Subscriptions = %d, want 0", got)
	}
}

func TestDecodeUpdate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		feed       Feed
		message    string
		wantSymbol string
		wantErr    bool
	}{
		{
			name:       "bist live quote",
			feed:       FeedLiveBIST,
			message:    `{"symbol":"TUPRS","cl":170.5,"c":1.25,"d":1724400000000}`,
			wantSymbol: "TUPRS",
		},
		{
			name:       "bist delayed quote",
			feed:       FeedDelayedBIST,
			message:    `{"symbol":"THYAO","cl":295.0,"c":-0.4,"d":1724400000000}`,
			wantSymbol: "THYAO",
		},
		{
			name:       "us quote",
			feed:       FeedLiveUS,
			message:    `{"s":"AAPL","p":230.11,"t":1724400000000}`,
			wantSymbol: "AAPL",
		},
		{
			name:       "depth update",
			feed:       FeedDepthBIST,
			message:    `{"s":"GARAN","updated":[{"level":1,"side":"bid","price":45.1,"size":1000}],"deleted":[{"level":5,"side":"ask"}]}`,
			wantSymbol: "GARAN",
		},
		{
			name:       "unknown feed with symbol key",
			feed:       Feed("index_tr"),
			message:    `{"symbol":"XU100","v":11250.3}`,
			wantSymbol: "XU100",
		},
		{
			name:       "unknown feed with s key",
			feed:       Feed("trades_us"),
			message:    `{"s":"AAPL","q":12}`,
			wantSymbol: "AAPL",
		},
		{
			name:    "empty message",
			feed:    FeedLiveUS,
			message: "",
			wantErr: true,
		},
		{
			name:    "missing symbol",
			feed:    FeedLiveUS,
			message: `{"p":1.0}`,
			wantErr: true,
		},
		{
			name:    "malformed payload",
			feed:    FeedLiveBIST,
			message: `{"symbol":123}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := envelope{Feed: tt.feed, Type: "data", Message: []byte(tt.message)}
			u, err := decodeUpdate(env, now)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected decode error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeUpdate failed: %v", err)
			}
			if u.Symbol != tt.wantSymbol {
				t.Errorf("symbol = %q, want %q", u.Symbol, tt.wantSymbol)
			}
			if u.Feed != tt.feed {
				t.Errorf("feed = %s, want %s", u.Feed, tt.feed)
			}
			if len(u.Raw) == 0 {
				t.Error("Raw payload should be preserved")
			}
		})
	}
}

func TestDecodeUpdate_DepthLevels(t *testing.T) {
	env := envelope{
		Feed: FeedDepthBIST,
		Type: "data",
		Message: []byte(`{"s":"GARAN",
			"updated":[{"level":1,"side":"bid","price":45.1,"size":1000},{"level":2,"side":"ask","price":45.3,"size":250}],
			"deleted":[{"level":5,"side":"ask"}]}`),
	}

	u, err := decodeUpdate(env, time.Now())
	if err != nil {
		t.Fatalf("decodeUpdate failed: %v", err)
	}
	if u.Depth == nil {
		t.Fatal("Depth payload missing")
	}
	if len(u.Depth.Updated) != 2 {
		t.Errorf("updated levels = %d, want 2", len(u.Depth.Updated))
	}
	if len(u.Depth.Deleted) != 1 {
		t.Errorf("deleted levels = %d, want 1", len(u.Depth.Deleted))
	}
	if u.Depth.Updated[0].Price != 45.1 || u.Depth.Updated[0].Side != "bid" {
		t.Errorf("first level = %+v, want bid at 45.1", u.Depth.Updated[0])
	}
}

func TestDefaultConfig(t *testing.T) {
	def := DefaultConfig()
	if def.ReconnectAttempts != 5 {
		t.Errorf("ReconnectAttempts = %d, want 5", def.ReconnectAttempts)
	}
	if def.ReconnectDelay != 5*time.Second {
		t.Errorf("ReconnectDelay = %v, want 5s", def.ReconnectDelay)
	}
	if def.MaxReconnectDelay != 30*time.Second {
		t.Errorf("MaxReconnectDelay = %v, want 30s", def.MaxReconnectDelay)
	}
	if def.HandshakeTimeout != 10*time.Second {
		t.Errorf("HandshakeTimeout = %v, want 10s", def.HandshakeTimeout)
	}

	// New fills unset fields from the defaults.
	m := New(Config{URL: FixedURL("ws://example.invalid")})
	defer m.Close()
	if m.cfg.ReconnectAttempts != def.ReconnectAttempts {
		t.Errorf("New left ReconnectAttempts = %d, want default %d", m.cfg.ReconnectAttempts, def.ReconnectAttempts)
	}
	if m.cfg.Logger == nil {
		t.Error("New left Logger nil")
	}
}

func TestFixedURL(t *testing.T) {
	src := FixedURL("ws://example.com/feed")
	got, err := src(context.Background())
	if err != nil {
		t.Fatalf("FixedURL source failed: %v", err)
	}
	if got != "ws://example.com/feed" {
		t.Errorf("url = %q, want %q", got, "ws://example.com/feed")
	}
}
