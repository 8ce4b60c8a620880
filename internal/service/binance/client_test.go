package binance

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalGate/internal/domain/models"
	"SignalGate/pkg/logger"
)

type wsServer struct {
	*httptest.Server
	conns    chan *websocket.Conn
	urls     chan *url.URL
	accepted atomic.Int32
	maxConns int32
}

// newWSServer upgrades up to maxConns connections and answers 503 afterwards.
func newWSServer(t *testing.T, maxConns int32) *wsServer {
	t.Helper()
	s := &wsServer{
		conns:    make(chan *websocket.Conn, 8),
		urls:     make(chan *url.URL, 8),
		maxConns: maxConns,
	}
	up := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.maxConns > 0 && s.accepted.Load() >= s.maxConns {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		c, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.accepted.Add(1)
		s.urls <- r.URL
		s.conns <- c
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *wsServer) wsURL() string { return "ws" + strings.TrimPrefix(s.URL, "http") }

func (s *wsServer) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		t.Cleanup(func() { _ = c.Close() })
		return c
	case <-time.After(3 * time.Second):
		t.Fatalf("no websocket connection")
		return nil
	}
}

func nextEvent(t *testing.T, ch <-chan models.StreamEvent) models.StreamEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(3 * time.Second):
		t.Fatalf("no stream event")
		return models.StreamEvent{}
	}
}

func readControl(t *testing.T, c *websocket.Conn) controlFrame {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	var f controlFrame
	require.NoError(t, c.ReadJSON(&f))
	return f
}

func newTestClient(t *testing.T, s *wsServer, opts ...Option) *Client {
	t.Helper()
	c := New(s.wsURL(), opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestConnectUsesCombinedStreamAndEmitsEvents(t *testing.T) {
	s := newWSServer(t, 0)
	c := newTestClient(t, s)

	require.NoError(t, c.Connect(context.Background(), []string{"btcusdt@trade", "ethusdt@trade"}))
	u := <-s.urls
	assert.Equal(t, "/stream", u.Path)
	assert.Equal(t, "btcusdt@trade/ethusdt@trade", u.Query().Get("streams"))

	srv := s.nextConn(t)
	assert.Equal(t, models.StreamConnected, nextEvent(t, c.Events()).Kind)
	assert.True(t, c.IsConnected())

	require.NoError(t, srv.WriteMessage(websocket.TextMessage, []byte(`garbage`)))
	require.NoError(t, srv.WriteMessage(websocket.TextMessage,
		[]byte(`{"stream":"btcusdt@trade","data":{"e":"trade","E":2,"s":"BTCUSDT","t":1,"p":"100","q":"2","T":1}}`)))

	ev := nextEvent(t, c.Events())
	require.Equal(t, models.StreamMarket, ev.Kind)
	tr := ev.Market.(models.Trade)
	assert.Equal(t, "BTCUSDT", tr.Symbol)
	assert.Equal(t, 100.0, tr.Price)
}

func TestConnectWithoutStreamsUsesRawPath(t *testing.T) {
	s := newWSServer(t, 0)
	c := newTestClient(t, s)

	require.NoError(t, c.Connect(context.Background(), nil))
	u := <-s.urls
	assert.Equal(t, "/ws", u.Path)
}

func TestSubscribeSendsIncreasingIDs(t *testing.T) {
	s := newWSServer(t, 0)
	c := newTestClient(t, s)
	require.NoError(t, c.Connect(context.Background(), []string{"btcusdt@trade"}))
	srv := s.nextConn(t)
	nextEvent(t, c.Events())

	require.NoError(t, c.Subscribe([]string{"ethusdt@trade"}))
	require.NoError(t, c.Unsubscribe([]string{"btcusdt@trade"}))
	require.NoError(t, c.ListSubscriptions())

	first := readControl(t, srv)
	second := readControl(t, srv)
	third := readControl(t, srv)

	assert.Equal(t, "SUBSCRIBE", first.Method)
	assert.Equal(t, []string{"ethusdt@trade"}, first.Params)
	assert.Equal(t, "UNSUBSCRIBE", second.Method)
	assert.Equal(t, "LIST_SUBSCRIPTIONS", third.Method)
	assert.Empty(t, third.Params)
	assert.Less(t, first.ID, second.ID)
	assert.Less(t, second.ID, third.ID)

	assert.Equal(t, []string{"ethusdt@trade"}, c.Subscriptions())

	// acks are logged only and never reach the event channel
	require.NoError(t, srv.WriteJSON(map[string]interface{}{"result": nil, "id": first.ID}))
	require.NoError(t, srv.WriteMessage(websocket.TextMessage,
		[]byte(`{"e":"trade","E":2,"s":"ETHUSDT","t":1,"p":"10","q":"1","T":1}`)))
	assert.Equal(t, models.StreamMarket, nextEvent(t, c.Events()).Kind)
}

func TestConcurrentControlFramesKeepIDOrder(t *testing.T) {
	s := newWSServer(t, 0)
	c := newTestClient(t, s)
	require.NoError(t, c.Connect(context.Background(), nil))
	srv := s.nextConn(t)
	nextEvent(t, c.Events())

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = c.Subscribe([]string{fmt.Sprintf("sym%d@trade", i)})
		}(i)
	}

	var last int64
	for i := 0; i < n; i++ {
		f := readControl(t, srv)
		if f.ID <= last {
			t.Fatalf("frame %d: id %d arrived after %d", i, f.ID, last)
		}
		last = f.ID
	}
	wg.Wait()
	assert.Len(t, c.Subscriptions(), n)
}

func TestSubscribeWhenNotConnectedIsNoop(t *testing.T) {
	c := New("ws://127.0.0.1:1")
	defer c.Close()

	err := c.Subscribe([]string{"btcusdt@trade"})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, c.Subscriptions())
}

func TestReconnectResubscribesActiveSet(t *testing.T) {
	s := newWSServer(t, 0)
	c := newTestClient(t, s, WithReconnect(10*time.Millisecond, 50*time.Millisecond, 3))
	require.NoError(t, c.Connect(context.Background(), []string{"btcusdt@trade"}))
	<-s.urls
	srv := s.nextConn(t)
	nextEvent(t, c.Events())

	require.NoError(t, c.Subscribe([]string{"ethusdt@bookTicker"}))
	readControl(t, srv)

	require.NoError(t, srv.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "maintenance"), time.Now().Add(time.Second)))
	_ = srv.Close()

	ev := nextEvent(t, c.Events())
	require.Equal(t, models.StreamDisconnected, ev.Kind)
	assert.Equal(t, websocket.CloseGoingAway, ev.Code)
	assert.False(t, ev.Terminal)

	u := <-s.urls
	assert.Equal(t, "btcusdt@trade/ethusdt@bookTicker", u.Query().Get("streams"))
	srv2 := s.nextConn(t)
	assert.Equal(t, models.StreamConnected, nextEvent(t, c.Events()).Kind)

	resub := readControl(t, srv2)
	assert.Equal(t, "SUBSCRIBE", resub.Method)
	assert.ElementsMatch(t, []string{"btcusdt@trade", "ethusdt@bookTicker"}, resub.Params)
}

func TestReconnectExhaustionIsTerminal(t *testing.T) {
	s := newWSServer(t, 1)
	c := newTestClient(t, s, WithReconnect(5*time.Millisecond, 10*time.Millisecond, 2))
	require.NoError(t, c.Connect(context.Background(), []string{"btcusdt@trade"}))
	srv := s.nextConn(t)
	nextEvent(t, c.Events())
	_ = srv.Close()

	deadline := time.After(3 * time.Second)
	errorsSeen := 0
	for {
		select {
		case ev := <-c.Events():
			if ev.Kind == models.StreamError {
				errorsSeen++
			}
			if ev.Kind == models.StreamDisconnected && ev.Terminal {
				assert.ErrorIs(t, ev.Err, ErrMaxReconnect)
				assert.Equal(t, 2, errorsSeen)
				assert.False(t, c.IsConnected())
				return
			}
		case <-deadline:
			t.Fatalf("no terminal disconnect")
		}
	}
}

func TestCloseIsClientInitiated(t *testing.T) {
	s := newWSServer(t, 0)
	c := New(s.wsURL(), WithReconnect(5*time.Millisecond, 10*time.Millisecond, 3))
	require.NoError(t, c.Connect(context.Background(), []string{"btcusdt@trade"}))
	s.nextConn(t)
	nextEvent(t, c.Events())

	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())

	for range c.Events() {
	}
	assert.Equal(t, int32(1), s.accepted.Load())
	assert.ErrorIs(t, c.Connect(context.Background(), nil), ErrClosed)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) count(msg string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Count(b.buf.String(), msg)
}

// countPings answers pings on srv and counts them until srv fails to read.
func countPings(srv *websocket.Conn) *atomic.Int32 {
	var pings atomic.Int32
	srv.SetPingHandler(func(data string) error {
		pings.Add(1)
		return srv.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	go func() {
		for {
			if _, _, err := srv.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return &pings
}

func TestHeartbeatPingsUntilClose(t *testing.T) {
	s := newWSServer(t, 0)
	logs := &lockedBuffer{}
	c := New(s.wsURL(), WithPingInterval(20*time.Millisecond), WithLogger(logger.NewWithWriter(logs, "debug")))
	require.NoError(t, c.Connect(context.Background(), []string{"btcusdt@trade"}))
	pings := countPings(s.nextConn(t))
	nextEvent(t, c.Events())

	assert.Eventually(t, func() bool { return pings.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.Close())
	for range c.Events() {
	}
	sent := pings.Load()
	failed := logs.count("ping failed")

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, sent, pings.Load())
	assert.Equal(t, failed, logs.count("ping failed"))
}

func TestHeartbeatStopsAfterServerDrop(t *testing.T) {
	s := newWSServer(t, 1)
	logs := &lockedBuffer{}
	c := newTestClient(t, s,
		WithPingInterval(20*time.Millisecond),
		WithReconnect(5*time.Millisecond, 10*time.Millisecond, 1),
		WithLogger(logger.NewWithWriter(logs, "debug")))
	require.NoError(t, c.Connect(context.Background(), []string{"btcusdt@trade"}))
	srv := s.nextConn(t)
	pings := countPings(srv)
	nextEvent(t, c.Events())

	assert.Eventually(t, func() bool { return pings.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	_ = srv.Close()

	deadline := time.After(3 * time.Second)
	for terminal := false; !terminal; {
		select {
		case ev := <-c.Events():
			terminal = ev.Kind == models.StreamDisconnected && ev.Terminal
		case <-deadline:
			t.Fatalf("no terminal disconnect")
		}
	}
	assert.False(t, c.IsConnected())

	// one tick may race the disconnect; after that the heartbeat must be gone
	time.Sleep(60 * time.Millisecond)
	failed := logs.count("ping failed")
	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, failed, logs.count("ping failed"))
}
