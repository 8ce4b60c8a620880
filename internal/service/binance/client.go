package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"SignalGate/internal/domain/models"
	drepo "SignalGate/internal/domain/repository"
	"SignalGate/pkg/logger"
	"SignalGate/pkg/metrics"
)

var (
	// ErrNotConnected is returned by control operations while the transport is down.
	ErrNotConnected = errors.New("binance stream not connected")
	// ErrMaxReconnect is carried by the terminal disconnect event.
	ErrMaxReconnect = errors.New("binance stream: max reconnect attempts reached")
	ErrClosed       = errors.New("binance stream closed")
)

// Client implements a MarketStream over one multiplexed Binance websocket.
// All events, including connection state changes, are delivered in order on Events().
type Client struct {
	baseURL           string
	dialer            *websocket.Dialer
	pingInterval      time.Duration
	writeTimeout      time.Duration
	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	maxAttempts       int
	log               *logger.Logger
	metrics           drepo.Metrics
	now               func() time.Time

	mu        sync.Mutex
	ctx       context.Context
	conn      *websocket.Conn
	connected bool
	closing   bool
	attempts  int
	active    []string
	pending   map[int64]string
	stopPing  chan struct{}
	timer     *time.Timer

	writeMu sync.Mutex
	nextID  atomic.Int64

	events    chan models.StreamEvent
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type Option func(*Client)

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func WithMetrics(m drepo.Metrics) Option {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pingInterval = d
		}
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// WithReconnect sets the initial backoff delay, its cap and the attempt budget.
func WithReconnect(initial, max time.Duration, attempts int) Option {
	return func(c *Client) {
		if initial > 0 {
			c.reconnectDelay = initial
		}
		if max > 0 {
			c.maxReconnectDelay = max
		}
		if attempts >= 0 {
			c.maxAttempts = attempts
		}
	}
}

func WithEventBuffer(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.events = make(chan models.StreamEvent, n)
		}
	}
}

// New creates a stream client for baseURL, e.g. wss://stream.binance.com:9443.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:           baseURL,
		dialer:            &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		pingInterval:      20 * time.Second,
		writeTimeout:      10 * time.Second,
		reconnectDelay:    time.Second,
		maxReconnectDelay: 60 * time.Second,
		maxAttempts:       10,
		log:               logger.Nop(),
		metrics:           metrics.Nop{},
		now:               time.Now,
		pending:           make(map[int64]string),
		events:            make(chan models.StreamEvent, 1024),
		done:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ drepo.MarketStream = (*Client)(nil)

// Connect dials the combined stream for streams and starts the read and heartbeat loops.
// ctx bounds the lifetime of the client including reconnects.
func (c *Client) Connect(ctx context.Context, streams []string) error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return ErrClosed
	}
	c.ctx = ctx
	c.active = mergeStreams(c.active, streams)
	c.mu.Unlock()

	if err := c.dial(ctx, false); err != nil {
		return err
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-c.done:
		}
	}()
	return nil
}

func (c *Client) dial(ctx context.Context, resubscribe bool) error {
	streams := c.Subscriptions()
	url := streamURL(c.baseURL, streams)

	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("binance connect: %w", err)
	}
	conn.SetReadLimit(4 << 20)

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	c.conn = conn
	c.connected = true
	c.attempts = 0
	stop := make(chan struct{})
	c.stopPing = stop
	c.mu.Unlock()

	c.log.Info("stream connected", logger.String("url", url), logger.Int("streams", len(streams)))
	c.metrics.RecordSubscriptions(len(streams))
	c.emit(models.StreamEvent{Kind: models.StreamConnected})

	if resubscribe && len(streams) > 0 {
		if err := c.send(conn, methodSubscribe, streams); err != nil {
			c.log.Warn("resubscribe failed", logger.Error(err))
		}
	}

	c.wg.Add(2)
	go c.readLoop(conn)
	go c.heartbeat(conn, stop)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}
		c.handleFrame(b)
	}
}

// heartbeat only touches the transport.
func (c *Client) heartbeat(conn *websocket.Conn, stop <-chan struct{}) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-c.done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout)); err != nil {
				c.log.Debug("ping failed", logger.Error(err))
			}
		}
	}
}

func (c *Client) handleFrame(b []byte) {
	fr, err := decodeFrame(b, c.now())
	switch {
	case errors.Is(err, errUnsupportedEvent):
		c.metrics.RecordFrame("unsupported")
		c.log.Debug("ignoring frame", logger.String("stream", fr.stream), logger.Error(err))
		return
	case err != nil:
		c.metrics.RecordFrame("malformed")
		c.metrics.RecordError("stream_parse")
		c.log.Warn("dropping malformed frame", logger.Error(err), logger.Int("bytes", len(b)))
		return
	}

	if fr.ack != nil {
		c.handleAck(*fr.ack)
		return
	}
	c.metrics.RecordFrame(string(fr.event.Type()))
	c.emit(models.StreamEvent{Kind: models.StreamMarket, Market: fr.event})
}

func (c *Client) handleAck(a ack) {
	c.mu.Lock()
	method := c.pending[a.ID]
	delete(c.pending, a.ID)
	c.mu.Unlock()

	if a.Err != nil {
		err := fmt.Errorf("%s id=%d rejected: code=%d %s", method, a.ID, a.Err.Code, a.Err.Msg)
		c.log.Warn("control frame rejected", logger.Error(err))
		c.metrics.RecordError("stream_ack")
		c.emit(models.StreamEvent{Kind: models.StreamError, Err: err})
		return
	}
	c.log.Debug("control frame acknowledged",
		logger.Int64("id", a.ID),
		logger.String("method", method),
		logger.String("result", string(a.Result)),
	)
	if method == methodList {
		var streams []string
		if err := json.Unmarshal(a.Result, &streams); err == nil {
			c.log.Info("server subscriptions", logger.Strings("streams", streams))
		}
	}
}

func (c *Client) handleClose(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	if c.stopPing != nil {
		close(c.stopPing)
		c.stopPing = nil
	}
	c.conn = nil
	c.connected = false
	closing := c.closing
	c.mu.Unlock()

	code, reason := websocket.CloseAbnormalClosure, err.Error()
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		code, reason = ce.Code, ce.Text
	}
	_ = conn.Close()

	c.emit(models.StreamEvent{Kind: models.StreamDisconnected, Code: code, Reason: reason})
	if closing {
		c.log.Info("stream closed")
		return
	}
	c.log.Warn("stream disconnected", logger.Int("code", code), logger.String("reason", reason))
	c.metrics.RecordError("stream_disconnect")
	c.scheduleReconnect()
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.closing || c.ctx == nil || c.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.maxAttempts {
		attempts := c.attempts
		c.mu.Unlock()
		c.log.Error("stream terminated", logger.Int("attempts", attempts), logger.Error(ErrMaxReconnect))
		c.metrics.RecordReconnect("exhausted")
		c.emit(models.StreamEvent{
			Kind:     models.StreamDisconnected,
			Code:     websocket.CloseAbnormalClosure,
			Reason:   ErrMaxReconnect.Error(),
			Terminal: true,
			Err:      ErrMaxReconnect,
		})
		return
	}
	c.attempts++
	attempt := c.attempts
	delay := Backoff(c.reconnectDelay, c.maxReconnectDelay, attempt)
	c.wg.Add(1)
	c.timer = time.AfterFunc(delay, func() {
		defer c.wg.Done()
		c.reconnect(attempt)
	})
	c.mu.Unlock()

	c.log.Info("reconnect scheduled", logger.Int("attempt", attempt), logger.Duration("delay_ms", delay))
}

func (c *Client) reconnect(attempt int) {
	c.mu.Lock()
	ctx := c.ctx
	closing := c.closing
	c.timer = nil
	c.mu.Unlock()
	if closing || ctx.Err() != nil {
		return
	}

	start := time.Now()
	if err := c.dial(ctx, true); err != nil {
		if errors.Is(err, ErrClosed) {
			return
		}
		c.metrics.RecordReconnect("failed")
		c.log.Warn("reconnect failed", logger.Int("attempt", attempt), logger.Error(err))
		c.emit(models.StreamEvent{Kind: models.StreamError, Err: err})
		c.scheduleReconnect()
		return
	}
	c.metrics.RecordReconnect("ok")
	c.metrics.RecordLatency("stream_reconnect", time.Since(start).Seconds())
}

// Subscribe adds streams to the active set and sends SUBSCRIBE. Without an open
// transport it does nothing and returns ErrNotConnected.
func (c *Client) Subscribe(streams []string) error {
	return c.control(methodSubscribe, streams)
}

func (c *Client) Unsubscribe(streams []string) error {
	return c.control(methodUnsubscribe, streams)
}

// ListSubscriptions asks the server for its view; the ack is logged.
func (c *Client) ListSubscriptions() error {
	return c.control(methodList, []string{})
}

func (c *Client) control(method string, streams []string) error {
	c.mu.Lock()
	conn, connected := c.conn, c.connected
	if !connected || conn == nil {
		c.mu.Unlock()
		c.log.Warn("control frame skipped: transport not open",
			logger.String("method", method), logger.Strings("streams", streams))
		return ErrNotConnected
	}
	switch method {
	case methodSubscribe:
		c.active = mergeStreams(c.active, streams)
	case methodUnsubscribe:
		c.active = removeStreams(c.active, streams)
	}
	n := len(c.active)
	c.mu.Unlock()

	c.metrics.RecordSubscriptions(n)
	return c.send(conn, method, streams)
}

// send allocates the frame id under writeMu so ids reach the wire in order.
func (c *Client) send(conn *websocket.Conn, method string, streams []string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	id := c.nextID.Add(1)
	c.mu.Lock()
	c.pending[id] = method
	c.mu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := conn.WriteJSON(controlFrame{Method: method, Params: streams, ID: id}); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("%s: %w", method, err)
	}
	c.log.Debug("control frame sent", logger.String("method", method), logger.Int64("id", id), logger.Strings("streams", streams))
	return nil
}

// Subscriptions returns a copy of the active stream set.
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.active...)
}

func (c *Client) Events() <-chan models.StreamEvent { return c.events }

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close performs a client-initiated close: no reconnect is scheduled and the
// event channel is closed once every loop has exited.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		conn := c.conn
		if c.timer != nil && c.timer.Stop() {
			c.wg.Done()
		}
		c.timer = nil
		c.mu.Unlock()

		if conn != nil {
			c.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			c.writeMu.Unlock()
			err = conn.Close()
		}

		close(c.done)
		c.wg.Wait()
		close(c.events)
	})
	return err
}

// emit blocks to keep arrival order; Close unblocks it.
func (c *Client) emit(ev models.StreamEvent) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func mergeStreams(active, add []string) []string {
	seen := make(map[string]struct{}, len(active))
	for _, s := range active {
		seen[s] = struct{}{}
	}
	for _, s := range add {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		active = append(active, s)
	}
	return active
}

func removeStreams(active, drop []string) []string {
	rm := make(map[string]struct{}, len(drop))
	for _, s := range drop {
		rm[s] = struct{}{}
	}
	out := active[:0]
	for _, s := range active {
		if _, ok := rm[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}
