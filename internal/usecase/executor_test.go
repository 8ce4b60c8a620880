package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalGate/internal/domain/models"
	"SignalGate/internal/service/exchange"
	"SignalGate/internal/service/ratelimit"
	"SignalGate/pkg/logger"
	"SignalGate/pkg/metrics"
)

var btcSnap = models.MarketSnapshot{Symbol: "BTCUSDT", Price: 105, Timestamp: time.Unix(1, 0)}

func execDecision(dir models.Direction) models.TradeDecision {
	return models.TradeDecision{Action: models.ActionExecute, Reason: models.ReasonConsensusReached, Direction: dir, Votes: 7}
}

func baseExecConfig(live bool) ExecutorConfig {
	return ExecutorConfig{
		Live:                live,
		PositionSizePercent: 10,
		MinQuantity:         0.00001,
		QuoteAssets:         quotes,
		OrderRatePerSec:     5,
		OrderBurst:          5,
	}
}

func TestPaperExecutionMovesPaperBalances(t *testing.T) {
	paper := exchange.NewPaperAccount(map[string]float64{"USDT": 10000})
	e := NewTradeExecutor(baseExecConfig(false), nil, nil, paper, nil, nil, metrics.Nop{}, logger.Nop())

	res := e.Execute(context.Background(), execDecision(models.DirectionBuy), btcSnap)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, models.StatusSimulated, res.Status)
	assert.Equal(t, "9.523809", res.SizedQuantity.String())
	assert.Equal(t, "paper-1", res.OrderID)
	assert.True(t, res.FillPrice.Equal(decimal.NewFromInt(105)))

	btc, _ := paper.Balance(context.Background(), "BTC")
	assert.InDelta(t, 9.523809, btc, 1e-9)
}

func TestExecutionBelowMinimumAborts(t *testing.T) {
	e := NewTradeExecutor(baseExecConfig(false), nil, nil, exchange.NewPaperAccount(nil), nil, nil, metrics.Nop{}, logger.Nop())

	res := e.Execute(context.Background(), execDecision(models.DirectionSell), btcSnap)
	assert.False(t, res.Success)
	assert.Equal(t, models.StatusAborted, res.Status)
}

func TestLiveExecutionPlacesOrder(t *testing.T) {
	orders := &fakeOrders{resp: models.OrderResponse{
		OrderID:     "42",
		ExecutedQty: decimal.RequireFromString("9.5"),
		AvgPrice:    decimal.RequireFromString("104.9"),
	}}
	e := NewTradeExecutor(baseExecConfig(true), orders, staticBalances{"USDT": 10000}, nil,
		ratelimit.New(), nil, metrics.Nop{}, logger.Nop())

	res := e.Execute(context.Background(), execDecision(models.DirectionBuy), btcSnap)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, models.StatusFilled, res.Status)
	assert.Equal(t, "42", res.OrderID)
	assert.Equal(t, "9.5", res.SizedQuantity.String())
	assert.Equal(t, "104.9", res.FillPrice.String())

	require.Len(t, orders.reqs, 1)
	req := orders.reqs[0]
	assert.Equal(t, "MARKET", req.Type)
	assert.Equal(t, models.DirectionBuy, req.Side)
	assert.Equal(t, "9.523809", req.Quantity.String())
	assert.True(t, strings.HasPrefix(req.ClientOrderID, "sg-"))
	assert.LessOrEqual(t, len(req.ClientOrderID), 36)
}

func TestLiveExecutionSurvivesCancelledContext(t *testing.T) {
	orders := &fakeOrders{resp: models.OrderResponse{OrderID: "7"}}
	e := NewTradeExecutor(baseExecConfig(true), orders, staticBalances{"USDT": 10000}, nil,
		nil, nil, metrics.Nop{}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := e.Execute(ctx, execDecision(models.DirectionBuy), btcSnap)
	require.True(t, res.Success)
	assert.Equal(t, "9.523809", res.SizedQuantity.String(), "executed qty falls back to sized qty")
	assert.Equal(t, "105", res.FillPrice.String(), "fill price falls back to snapshot price")
}

func TestLiveExecutionFailureRaisesAlert(t *testing.T) {
	alerts := &recordingAlerts{}
	orders := &fakeOrders{err: &exchange.APIError{Code: -2010, Message: "Account has insufficient balance"}}
	e := NewTradeExecutor(baseExecConfig(true), orders, staticBalances{"USDT": 10000}, nil,
		nil, alerts, metrics.Nop{}, logger.Nop())

	res := e.Execute(context.Background(), execDecision(models.DirectionBuy), btcSnap)
	assert.False(t, res.Success)
	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Contains(t, res.Message, "insufficient balance")

	got := alerts.all()
	require.Len(t, got, 1)
	assert.Equal(t, models.AlertExecutionFailed, got[0].Kind)
	assert.Equal(t, "BTCUSDT", got[0].Symbol)
	assert.True(t, errors.Is(orders.err, exchange.ErrOrderRejected))
}

func TestLiveExecutionRateLimited(t *testing.T) {
	now := time.Unix(100, 0)
	cfg := baseExecConfig(true)
	cfg.OrderBurst, cfg.OrderRatePerSec = 1, 0.001
	orders := &fakeOrders{resp: models.OrderResponse{OrderID: "1"}}
	e := NewTradeExecutor(cfg, orders, staticBalances{"USDT": 10000}, nil,
		ratelimit.NewWithClock(func() time.Time { return now }), nil, metrics.Nop{}, logger.Nop())

	first := e.Execute(context.Background(), execDecision(models.DirectionBuy), btcSnap)
	second := e.Execute(context.Background(), execDecision(models.DirectionBuy), btcSnap)
	assert.True(t, first.Success)
	assert.False(t, second.Success)
	assert.Equal(t, "rate limited", second.Message)
	assert.Len(t, orders.reqs, 1)
}

func TestExecuteIgnoresSkipDecision(t *testing.T) {
	orders := &fakeOrders{}
	e := NewTradeExecutor(baseExecConfig(true), orders, staticBalances{}, nil, nil, nil, metrics.Nop{}, logger.Nop())
	res := e.Execute(context.Background(), models.TradeDecision{Action: models.ActionSkip}, btcSnap)
	assert.False(t, res.Success)
	assert.Empty(t, orders.reqs)
}
