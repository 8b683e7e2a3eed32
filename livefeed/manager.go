package livefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// subscription is one Subscribe registration. Dispatch order follows
// registration order, so the table is kept as an append-ordered slice.
type subscription struct {
	id      int64
	feed    Feed
	symbols map[string]struct{}
	handler Handler
}

// lastKey addresses the per-symbol cache of most recent updates.
type lastKey struct {
	feed   Feed
	symbol string
}

// Manager multiplexes per-symbol subscriptions over a single WebSocket
// connection. All methods are safe for concurrent use. Subscribe and
// Close never perform network I/O; outbound control frames are queued
// and written by a dedicated goroutine.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	state   State
	conn    *conn
	subs    []*subscription
	nextID  int64
	pending []frame
	last    map[lastKey]Update

	reconnects    int64
	messages      int64
	decodeErrors  int64
	handlerErrors int64
	lastMessageAt time.Time
	lastHeartbeat time.Time

	// kick wakes the write loop when pending frames appear.
	kick       chan struct{}
	writerOnce sync.Once
}

// New creates a Manager. Unset Config fields take the DefaultConfig
// values. Call Connect to establish the feed; Subscribe works before
// Connect and queues until the connection is up.
func New(cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.ReconnectAttempts <= 0 {
		cfg.ReconnectAttempts = def.ReconnectAttempts
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = def.MaxReconnectDelay
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		cfg:    cfg,
		logger: cfg.Logger,
		ctx:    ctx,
		cancel: cancel,
		state:  StateDisconnected,
		last:   make(map[lastKey]Update),
		kick:   make(chan struct{}, 1),
	}
}

// Connect dials the feed and starts the manager. Subscriptions made
// before Connect are replayed once the connection is up. A dial or
// replay failure is returned directly; automatic reconnection only
// covers connections that drop after Connect succeeds.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateClosed:
		m.mu.Unlock()
		return ErrClosed
	case StateDisconnected:
	default:
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("livefeed: connect while %s", state)
	}
	m.state = StateConnecting
	m.mu.Unlock()

	c, err := m.dialOnce(ctx)
	if err == nil {
		err = m.promote(c)
	}
	if err != nil {
		m.mu.Lock()
		if m.state == StateClosed {
			m.mu.Unlock()
			return ErrClosed
		}
		m.state = StateDisconnected
		m.mu.Unlock()
		return fmt.Errorf("livefeed: connect: %w", err)
	}

	return nil
}

// Subscribe registers handler for symbols on feed and returns an
// idempotent unsubscribe function. Symbols already flowing keep their
// single upstream subscription however many handlers watch them, and
// the new handler is immediately primed with the last cached update for
// each. An empty symbols slice registers nothing and returns a no-op.
func (m *Manager) Subscribe(symbols []string, feed Feed, handler Handler) (func(), error) {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return nil, ErrClosed
	}

	if len(symbols) == 0 {
		m.mu.Unlock()
		return func() {}, nil
	}

	sub := &subscription{
		id:      m.nextID,
		feed:    feed,
		symbols: make(map[string]struct{}, len(symbols)),
		handler: handler,
	}
	m.nextID++

	var added []string
	var primed []Update
	for _, s := range symbols {
		if _, ok := sub.symbols[s]; ok {
			continue
		}
		sub.symbols[s] = struct{}{}

		if m.needCountLocked(feed, s) == 0 {
			added = append(added, s)
		} else if u, ok := m.last[lastKey{feed, s}]; ok {
			primed = append(primed, u)
		}
	}
	m.subs = append(m.subs, sub)

	if len(added) > 0 {
		m.pending = append(m.pending, frame{Action: "subscribe", Feed: feed, Symbols: added})
	}
	m.mu.Unlock()

	if len(added) > 0 {
		m.kickWriter()
	}
	for _, u := range primed {
		m.invoke(sub, u)
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() { m.removeSubscription(sub) })
	}

	return unsubscribe, nil
}

// Close shuts the manager down: the connection is torn down, any
// reconnect in progress is abandoned and the subscription table is
// discarded. Safe to call from any goroutine and more than once. A
// closed manager cannot be reused.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return nil
	}
	m.state = StateClosed
	c := m.conn
	m.conn = nil
	m.subs = nil
	m.pending = nil
	m.mu.Unlock()

	m.cancel()
	if c != nil {
		c.close()
	}

	m.logger.Debug("live feed closed")
	return nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns a snapshot of manager activity.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	symbols := make(map[lastKey]struct{})
	for _, sub := range m.subs {
		for s := range sub.symbols {
			symbols[lastKey{sub.feed, s}] = struct{}{}
		}
	}

	return Stats{
		State:         m.state,
		Subscriptions: len(m.subs),
		Symbols:       len(symbols),
		PendingFrames: len(m.pending),
		Reconnects:    m.reconnects,
		Messages:      m.messages,
		DecodeErrors:  m.decodeErrors,
		HandlerErrors: m.handlerErrors,
		LastMessageAt: m.lastMessageAt,
		LastHeartbeat: m.lastHeartbeat,
	}
}

// dialOnce resolves the URL and dials it one time.
func (m *Manager) dialOnce(ctx context.Context) (*conn, error) {
	if m.cfg.URL == nil {
		return nil, errors.New("no url source configured")
	}

	url, err := m.cfg.URL(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve url: %w", err)
	}

	return dial(ctx, url, m.cfg)
}

// promote installs a freshly dialed connection: it writes one subscribe
// frame per feed covering the whole table, then opens the manager for
// traffic. Queued frames are dropped because the table mutates before
// its delta is queued, so the replay already carries their end state.
func (m *Manager) promote(c *conn) error {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		c.close()
		return ErrClosed
	}
	m.conn = c
	m.pending = m.pending[:0]
	replay := m.replayFramesLocked()
	m.mu.Unlock()

	for _, f := range replay {
		if err := c.writeJSON(f); err != nil {
			m.mu.Lock()
			if m.conn == c {
				m.conn = nil
			}
			m.mu.Unlock()
			c.close()
			return fmt.Errorf("replay %s: %w", f.Feed, err)
		}
	}

	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		c.close()
		return ErrClosed
	}
	m.state = StateConnected
	m.mu.Unlock()

	go m.readLoop(c)
	m.writerOnce.Do(func() { go m.writeLoop() })
	m.kickWriter()

	m.logger.Info("live feed connected", "replayed_feeds", len(replay))
	return nil
}

// replayFramesLocked builds one subscribe frame per feed covering every
// symbol the table needs. Feeds and symbols are sorted so the replay is
// deterministic. Caller holds mu.
func (m *Manager) replayFramesLocked() []frame {
	byFeed := make(map[Feed][]string)
	seen := make(map[lastKey]struct{})

	for _, sub := range m.subs {
		for s := range sub.symbols {
			k := lastKey{sub.feed, s}
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			byFeed[sub.feed] = append(byFeed[sub.feed], s)
		}
	}

	feeds := make([]Feed, 0, len(byFeed))
	for f := range byFeed {
		feeds = append(feeds, f)
	}
	sort.Slice(feeds, func(i, j int) bool { return feeds[i] < feeds[j] })

	frames := make([]frame, 0, len(feeds))
	for _, f := range feeds {
		symbols := byFeed[f]
		sort.Strings(symbols)
		frames = append(frames, frame{Action: "subscribe", Feed: f, Symbols: symbols})
	}

	return frames
}

// needCountLocked counts subscriptions watching symbol on feed. Caller
// holds mu.
func (m *Manager) needCountLocked(feed Feed, symbol string) int {
	n := 0
	for _, sub := range m.subs {
		if sub.feed != feed {
			continue
		}
		if _, ok := sub.symbols[symbol]; ok {
			n++
		}
	}
	return n
}

// removeSubscription drops sub from the table and releases upstream
// symbols no remaining subscription watches.
func (m *Manager) removeSubscription(sub *subscription) {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}

	idx := -1
	for i, s := range m.subs {
		if s == sub {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return
	}
	m.subs = append(m.subs[:idx], m.subs[idx+1:]...)

	var removed []string
	for s := range sub.symbols {
		if m.needCountLocked(sub.feed, s) == 0 {
			removed = append(removed, s)
			delete(m.last, lastKey{sub.feed, s})
		}
	}

	if len(removed) > 0 {
		sort.Strings(removed)
		m.pending = append(m.pending, frame{Action: "unsubscribe", Feed: sub.feed, Symbols: removed})
	}
	m.mu.Unlock()

	if len(removed) > 0 {
		m.kickWriter()
	}
}

// kickWriter wakes the write loop. The channel holds one token, so a
// kick against a busy writer is never lost and never blocks.
func (m *Manager) kickWriter() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// writeLoop owns every outbound control frame. It lives from the first
// successful connect until Close and drains the pending queue whenever
// the connection is up.
func (m *Manager) writeLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.kick:
		}
		m.drainPending()
	}
}

// drainPending writes queued frames head-first while connected. A
// failed write is not requeued: the reconnect replay rebuilds the
// subscription set from the table instead.
func (m *Manager) drainPending() {
	for {
		m.mu.Lock()
		if m.state != StateConnected || m.conn == nil || len(m.pending) == 0 {
			m.mu.Unlock()
			return
		}
		f := m.pending[0]
		m.pending = m.pending[1:]
		c := m.conn
		m.mu.Unlock()

		if err := c.writeJSON(f); err != nil {
			m.logger.Warn("control frame write failed",
				"action", f.Action,
				"feed", f.Feed,
				"error", err,
			)
			m.handleConnError(c, err)
			return
		}

		m.logger.Debug("control frame sent",
			"action", f.Action,
			"feed", f.Feed,
			"symbols", len(f.Symbols),
		)
	}
}

// readLoop pumps frames from one connection until it fails or the
// manager closes. Each promoted connection gets its own read loop.
func (m *Manager) readLoop(c *conn) {
	for {
		data, err := c.readMessage()
		receivedAt := time.Now()

		if err != nil {
			select {
			case <-m.ctx.Done():
				return
			default:
			}
			m.handleConnError(c, err)
			return
		}

		m.dispatch(data, receivedAt)
	}
}

// handleConnError tears down a failed connection and starts the
// reconnect loop. Errors from connections the manager has already
// replaced or discarded are ignored.
func (m *Manager) handleConnError(c *conn, err error) {
	m.mu.Lock()
	if m.state == StateClosed || m.conn != c {
		m.mu.Unlock()
		c.close()
		return
	}
	m.conn = nil
	m.state = StateReconnecting
	m.mu.Unlock()

	c.close()
	m.logger.Warn("live feed connection lost", "error", err)

	go m.reconnectLoop()
}

// reconnectLoop retries the dial with exponential backoff until one
// attempt succeeds, the budget is spent, or the manager closes. When
// the budget is spent the manager reports ErrConnectionLost exactly
// once and goes back to disconnected; a later Connect may revive it.
func (m *Manager) reconnectLoop() {
	wait := m.cfg.ReconnectDelay
	var lastErr error

	for attempt := 1; attempt <= m.cfg.ReconnectAttempts; attempt++ {
		select {
		case <-m.ctx.Done():
			return
		case <-time.After(wait):
		}

		m.logger.Info("reconnecting",
			"attempt", attempt,
			"max_attempts", m.cfg.ReconnectAttempts,
		)

		c, err := m.dialOnce(m.ctx)
		if err == nil {
			err = m.promote(c)
			if err == nil {
				m.mu.Lock()
				m.reconnects++
				m.mu.Unlock()
				m.logger.Info("reconnected", "attempt", attempt)
				return
			}
			if errors.Is(err, ErrClosed) {
				return
			}
		}

		lastErr = err
		m.logger.Warn("reconnect failed", "attempt", attempt, "error", err)

		wait *= 2
		if wait > m.cfg.MaxReconnectDelay {
			wait = m.cfg.MaxReconnectDelay
		}
	}

	m.mu.Lock()
	if m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	m.state = StateDisconnected
	m.mu.Unlock()

	err := fmt.Errorf("%w after %d attempts, last error: %v",
		ErrConnectionLost, m.cfg.ReconnectAttempts, lastErr)
	m.logger.Error("live feed gave up reconnecting",
		"attempts", m.cfg.ReconnectAttempts,
		"error", lastErr,
	)
	m.notifyError(err)
}

// dispatch decodes one inbound frame and fans it out to every matching
// handler in registration order. Handlers run outside the lock.
func (m *Manager) dispatch(data []byte, receivedAt time.Time) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		m.mu.Lock()
		m.decodeErrors++
		m.mu.Unlock()
		m.logger.Warn("undecodable frame", "error", err)
		return
	}

	m.mu.Lock()
	m.messages++
	m.lastMessageAt = receivedAt
	m.mu.Unlock()

	switch env.Type {
	case "data":
	case "heartbeat":
		m.mu.Lock()
		m.lastHeartbeat = receivedAt
		m.mu.Unlock()
		return
	case "error":
		m.logger.Error("feed error", "feed", env.Feed, "message", string(env.Message))
		return
	case "warning":
		m.logger.Warn("feed warning", "feed", env.Feed, "message", string(env.Message))
		return
	default:
		m.logger.Warn("unknown frame type", "type", env.Type)
		return
	}

	u, err := decodeUpdate(env, receivedAt)
	if err != nil {
		m.mu.Lock()
		m.decodeErrors++
		m.mu.Unlock()
		m.logger.Warn("bad data frame", "feed", env.Feed, "error", err)
		return
	}

	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.last[lastKey{u.Feed, u.Symbol}] = u

	var targets []*subscription
	for _, sub := range m.subs {
		if sub.feed != u.Feed {
			continue
		}
		if _, ok := sub.symbols[u.Symbol]; ok {
			targets = append(targets, sub)
		}
	}
	m.mu.Unlock()

	for _, sub := range targets {
		m.invoke(sub, u)
	}
}

// decodeUpdate parses a data frame's payload by feed family. Unknown
// feeds are still dispatched on the payload's symbol key, with only Raw
// populated.
func decodeUpdate(env envelope, receivedAt time.Time) (Update, error) {
	if len(env.Message) == 0 {
		return Update{}, errors.New("empty message")
	}

	u := Update{Feed: env.Feed, ReceivedAt: receivedAt, Raw: env.Message}

	switch env.Feed {
	case FeedLiveBIST, FeedDelayedBIST:
		var q BISTQuote
		if err := json.Unmarshal(env.Message, &q); err != nil {
			return Update{}, err
		}
		u.Symbol = q.Symbol
		u.BIST = &q

	case FeedLiveUS:
		var q USQuote
		if err := json.Unmarshal(env.Message, &q); err != nil {
			return Update{}, err
		}
		u.Symbol = q.Symbol
		u.US = &q

	case FeedDepthBIST:
		var d DepthUpdate
		if err := json.Unmarshal(env.Message, &d); err != nil {
			return Update{}, err
		}
		u.Symbol = d.Symbol
		u.Depth = &d

	default:
		var probe struct {
			Symbol string `json:"symbol"`
			S      string `json:"s"`
		}
		if err := json.Unmarshal(env.Message, &probe); err != nil {
			return Update{}, err
		}
		u.Symbol = probe.Symbol
		if u.Symbol == "" {
			u.Symbol = probe.S
		}
	}

	if u.Symbol == "" {
		return Update{}, errors.New("message without symbol")
	}

	return u, nil
}

// invoke runs one handler, converting an error return or a panic into a
// HandlerError. One misbehaving handler never affects the others.
func (m *Manager) invoke(sub *subscription, u Update) {
	defer func() {
		if r := recover(); r != nil {
			m.reportHandlerError(u, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := sub.handler(u); err != nil {
		m.reportHandlerError(u, err)
	}
}

func (m *Manager) reportHandlerError(u Update, err error) {
	m.mu.Lock()
	m.handlerErrors++
	m.mu.Unlock()

	m.logger.Warn("handler error", "feed", u.Feed, "symbol", u.Symbol, "error", err)
	m.notifyError(&HandlerError{Feed: u.Feed, Symbol: u.Symbol, Err: err})
}

func (m *Manager) notifyError(err error) {
	if m.cfg.OnError != nil {
		m.cfg.OnError(err)
	}
}
