package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"SignalGate/internal/domain/models"
	"SignalGate/pkg/cache"
	xhttp "SignalGate/pkg/http"
	"SignalGate/pkg/logger"
)

var (
	// ErrOrderRejected matches every *APIError returned by the venue.
	ErrOrderRejected = errors.New("exchange: order rejected")
	ErrNoCredentials = errors.New("exchange: api key and secret are required")
)

const balancesKey = "exchange:balances"

// APIError is the venue's {"code","msg"} error body.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange error %d: %s", e.Code, e.Message)
}

func (e *APIError) Is(target error) bool { return target == ErrOrderRejected }

type orderResponse struct {
	OrderID             int64           `json:"orderId"`
	ClientOrderID       string          `json:"clientOrderId"`
	ExecutedQty         decimal.Decimal `json:"executedQty"`
	CummulativeQuoteQty decimal.Decimal `json:"cummulativeQuoteQty"`
	Status              string          `json:"status"`
}

type accountResponse struct {
	Balances []struct {
		Asset string          `json:"asset"`
		Free  decimal.Decimal `json:"free"`
	} `json:"balances"`
}

// Option configures Client.
type Option func(*Client)

func WithLogger(l *logger.Logger) Option { return func(c *Client) { c.log = l } }

func WithRecvWindow(d time.Duration) Option { return func(c *Client) { c.recvWindow = d } }

// WithBalanceCache caches the account balances in svc for ttl.
func WithBalanceCache(svc cache.Service, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = svc
		c.cacheTTL = ttl
	}
}

// WithClock overrides the timestamp source used for signing.
func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

// Client is the signed REST collaborator for order placement and balances.
type Client struct {
	baseURL    string
	apiKey     string
	secret     []byte
	http       *xhttp.Client
	log        *logger.Logger
	recvWindow time.Duration
	cache      cache.Service
	cacheTTL   time.Duration
	now        func() time.Time
}

func NewClient(baseURL, apiKey, apiSecret string, hc *xhttp.Client, opts ...Option) (*Client, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, ErrNoCredentials
	}
	if hc == nil {
		hc = xhttp.NewClient(xhttp.WithTimeout(10 * time.Second))
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		secret:     []byte(apiSecret),
		http:       hc,
		log:        logger.Nop(),
		recvWindow: 5 * time.Second,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// PlaceOrder sends a MARKET order and reports the fill. AvgPrice is quote spent over quantity filled.
func (c *Client) PlaceOrder(ctx context.Context, req models.OrderRequest) (models.OrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", string(req.Side))
	params.Set("type", orderType(req.Type))
	params.Set("quantity", req.Quantity.String())
	if req.ClientOrderID != "" {
		params.Set("newClientOrderId", req.ClientOrderID)
	}
	params.Set("newOrderRespType", "RESULT")

	var resp orderResponse
	if err := c.signed(ctx, xhttp.MethodPost, "/api/v3/order", params, &resp); err != nil {
		return models.OrderResponse{}, err
	}

	avg := decimal.Zero
	if resp.ExecutedQty.IsPositive() {
		avg = resp.CummulativeQuoteQty.Div(resp.ExecutedQty)
	}
	c.invalidateBalances(ctx)

	c.log.Info("order placed",
		logger.String("symbol", req.Symbol),
		logger.String("side", string(req.Side)),
		logger.Int64("order_id", resp.OrderID),
		logger.String("status", resp.Status),
		logger.String("executed_qty", resp.ExecutedQty.String()),
	)
	return models.OrderResponse{
		OrderID:     strconv.FormatInt(resp.OrderID, 10),
		ExecutedQty: resp.ExecutedQty,
		AvgPrice:    avg,
	}, nil
}

// Balance returns the free balance of asset, zero when the account has none.
func (c *Client) Balance(ctx context.Context, asset string) (float64, error) {
	balances, err := c.balances(ctx)
	if err != nil {
		return 0, err
	}
	return balances[strings.ToUpper(asset)], nil
}

func (c *Client) balances(ctx context.Context) (map[string]float64, error) {
	if c.cache != nil {
		var cached map[string]float64
		if err := c.cache.Get(ctx, balancesKey, &cached); err == nil {
			return cached, nil
		}
	}

	var resp accountResponse
	if err := c.signed(ctx, xhttp.MethodGet, "/api/v3/account", url.Values{}, &resp); err != nil {
		return nil, fmt.Errorf("fetch account: %w", err)
	}
	out := make(map[string]float64, len(resp.Balances))
	for _, b := range resp.Balances {
		out[b.Asset] = b.Free.InexactFloat64()
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, balancesKey, out, c.cacheTTL); err != nil {
			c.log.Warn("balance cache set failed", logger.Error(err))
		}
	}
	return out, nil
}

func (c *Client) invalidateBalances(ctx context.Context) {
	if c.cache != nil {
		_ = c.cache.Delete(ctx, balancesKey)
	}
}

// signed appends timestamp, recvWindow and the HMAC-SHA256 signature of the encoded query.
// The signature goes last so the signed payload is exactly what the venue receives.
func (c *Client) signed(ctx context.Context, method, path string, params url.Values, dest interface{}) error {
	params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.recvWindow.Milliseconds(), 10))
	query := params.Encode()
	query += "&signature=" + c.sign(query)

	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  method,
		URL:     c.baseURL + path + "?" + query,
		Headers: map[string]string{"X-MBX-APIKEY": c.apiKey},
	}, dest)
	return apiError(err)
}

func (c *Client) sign(payload string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// apiError converts a non-2xx body carrying the venue error shape into *APIError.
func apiError(err error) error {
	var se *xhttp.StatusError
	if !errors.As(err, &se) {
		return err
	}
	var ae APIError
	if jerr := json.Unmarshal(se.Body, &ae); jerr != nil || ae.Code == 0 {
		return err
	}
	return &ae
}

func orderType(t string) string {
	if t == "" {
		return "MARKET"
	}
	return strings.ToUpper(t)
}
