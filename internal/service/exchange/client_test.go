package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalGate/internal/domain/models"
	"SignalGate/pkg/cache"
	xhttp "SignalGate/pkg/http"
)

const testSecret = "s3cret"

func verifySignature(t *testing.T, r *http.Request) {
	t.Helper()
	raw := r.URL.RawQuery
	i := strings.LastIndex(raw, "&signature=")
	if !assert.GreaterOrEqual(t, i, 0, "signature must be the last parameter") {
		return
	}
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(raw[:i]))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), raw[i+len("&signature="):])
	assert.Equal(t, "key", r.Header.Get("X-MBX-APIKEY"))
}

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	opts = append([]Option{WithClock(func() time.Time { return time.UnixMilli(1_700_000_000_000) })}, opts...)
	c, err := NewClient(ts.URL, "key", testSecret, xhttp.NewClient(xhttp.WithHTTPClient(ts.Client())), opts...)
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient("http://x", "", "", nil)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestPlaceOrderSignsAndComputesAveragePrice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		verifySignature(t, r)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v3/order", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "BTCUSDT", q.Get("symbol"))
		assert.Equal(t, "BUY", q.Get("side"))
		assert.Equal(t, "MARKET", q.Get("type"))
		assert.Equal(t, "0.012345", q.Get("quantity"))
		assert.Equal(t, "cid-1", q.Get("newClientOrderId"))
		assert.Equal(t, "1700000000000", q.Get("timestamp"))
		_, _ = w.Write([]byte(`{"orderId":42,"executedQty":"0.5","cummulativeQuoteQty":"50.5","status":"FILLED"}`))
	})

	resp, err := c.PlaceOrder(context.Background(), models.OrderRequest{
		Symbol:        "BTCUSDT",
		Side:          models.DirectionBuy,
		Quantity:      decimal.RequireFromString("0.012345"),
		ClientOrderID: "cid-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "42", resp.OrderID)
	assert.True(t, resp.AvgPrice.Equal(decimal.NewFromInt(101)), resp.AvgPrice.String())
}

func TestPlaceOrderRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-2010,"msg":"Account has insufficient balance for requested action."}`))
	})

	_, err := c.PlaceOrder(context.Background(), models.OrderRequest{Symbol: "BTCUSDT", Side: models.DirectionSell, Quantity: decimal.NewFromInt(1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOrderRejected)
	var ae *APIError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, -2010, ae.Code)
}

func TestPlaceOrderServerErrorIsNotRejection(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := c.PlaceOrder(context.Background(), models.OrderRequest{Symbol: "BTCUSDT", Side: models.DirectionBuy, Quantity: decimal.NewFromInt(1)})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrOrderRejected))
}

func TestBalanceIsCached(t *testing.T) {
	var calls atomic.Int32
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		verifySignature(t, r)
		assert.Equal(t, "/api/v3/account", r.URL.Path)
		_, _ = w.Write([]byte(`{"balances":[{"asset":"USDT","free":"1234.5","locked":"0"},{"asset":"BTC","free":"0.25","locked":"0"}]}`))
	}, WithBalanceCache(mc, time.Minute))

	ctx := context.Background()
	usdt, err := c.Balance(ctx, "usdt")
	require.NoError(t, err)
	assert.Equal(t, 1234.5, usdt)

	btc, err := c.Balance(ctx, "BTC")
	require.NoError(t, err)
	assert.Equal(t, 0.25, btc)

	eth, err := c.Balance(ctx, "ETH")
	require.NoError(t, err)
	assert.Zero(t, eth)

	assert.Equal(t, int32(1), calls.Load())
}

func TestPaperAccountFills(t *testing.T) {
	p := NewPaperAccount(map[string]float64{"usdt": 1000})
	ctx := context.Background()

	id, err := p.ApplyFill("BTC", "USDT", models.DirectionBuy, decimal.RequireFromString("0.5"), decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Equal(t, "paper-1", id)

	usdt, _ := p.Balance(ctx, "USDT")
	btc, _ := p.Balance(ctx, "btc")
	assert.Equal(t, 950.0, usdt)
	assert.Equal(t, 0.5, btc)

	_, err = p.ApplyFill("BTC", "USDT", models.DirectionSell, decimal.NewFromInt(1), decimal.NewFromInt(100))
	require.Error(t, err)
	btc, _ = p.Balance(ctx, "BTC")
	assert.Equal(t, 0.5, btc, "rejected fill leaves balances untouched")

	_, err = p.ApplyFill("BTC", "USDT", models.DirectionSell, decimal.RequireFromString("0.5"), decimal.NewFromInt(110))
	require.NoError(t, err)
	assert.Equal(t, "1005", p.Balances()["USDT"])
}
