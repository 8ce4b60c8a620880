package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"SignalGate/internal/domain/models"
	drepo "SignalGate/internal/domain/repository"
	"SignalGate/internal/service/exchange"
	"SignalGate/internal/service/ratelimit"
	"SignalGate/pkg/logger"
)

// Executor turns an EXECUTE decision into an order. It never returns an error:
// failures are reported through ExecutionResult.
type Executor interface {
	Execute(ctx context.Context, d models.TradeDecision, snap models.MarketSnapshot) models.ExecutionResult
}

type ExecutorConfig struct {
	Live                bool
	PositionSizePercent float64
	MinQuantity         float64
	QuoteAssets         []string
	OrderTimeout        time.Duration
	OrderRatePerSec     float64
	OrderBurst          float64
}

// TradeExecutor sizes orders from balances and routes them to the paper account
// or to the live order collaborator.
type TradeExecutor struct {
	cfg      ExecutorConfig
	orders   drepo.OrderExecutor
	balances drepo.BalanceProvider
	paper    *exchange.PaperAccount
	limiter  *ratelimit.Limiter
	alerts   drepo.AlertPublisher
	metrics  drepo.Metrics
	log      *logger.Logger
}

// NewTradeExecutor wires the executor. In paper mode orders may be nil and
// balances come from paper.
func NewTradeExecutor(
	cfg ExecutorConfig,
	orders drepo.OrderExecutor,
	balances drepo.BalanceProvider,
	paper *exchange.PaperAccount,
	limiter *ratelimit.Limiter,
	alerts drepo.AlertPublisher,
	metrics drepo.Metrics,
	log *logger.Logger,
) *TradeExecutor {
	if !cfg.Live && paper != nil {
		balances = paper
	}
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 15 * time.Second
	}
	return &TradeExecutor{
		cfg:      cfg,
		orders:   orders,
		balances: balances,
		paper:    paper,
		limiter:  limiter,
		alerts:   alerts,
		metrics:  metrics,
		log:      log,
	}
}

func (e *TradeExecutor) Execute(ctx context.Context, d models.TradeDecision, snap models.MarketSnapshot) models.ExecutionResult {
	if !d.Execute() {
		return models.ExecutionResult{Status: models.StatusAborted, Message: "decision is not EXECUTE"}
	}

	base, quote, err := SplitSymbol(snap.Symbol, e.cfg.QuoteAssets)
	if err != nil {
		return e.fail(ctx, snap.Symbol, err.Error(), decimal.Zero)
	}
	asset := quote
	if d.Direction == models.DirectionSell {
		asset = base
	}

	balance, err := e.balances.Balance(ctx, asset)
	if err != nil {
		return e.fail(ctx, snap.Symbol, fmt.Sprintf("balance %s: %v", asset, err), decimal.Zero)
	}

	qty, err := SizeOrder(d.Direction, balance, snap.Price, e.cfg.PositionSizePercent, e.cfg.MinQuantity)
	if err != nil {
		if errors.Is(err, ErrBelowMinQuantity) {
			e.log.Warn("order aborted: quantity below minimum",
				logger.String("symbol", snap.Symbol),
				logger.String("side", string(d.Direction)),
				logger.String("quantity", qty.String()),
				logger.Float64("balance", balance),
			)
			e.metrics.RecordOrder(snap.Symbol, string(models.StatusAborted))
			return models.ExecutionResult{Status: models.StatusAborted, Message: err.Error(), SizedQuantity: qty}
		}
		return e.fail(ctx, snap.Symbol, err.Error(), decimal.Zero)
	}

	price := decimal.NewFromFloat(snap.Price)
	if !e.cfg.Live {
		return e.simulate(ctx, base, quote, d.Direction, qty, price, snap.Symbol)
	}
	return e.place(ctx, d.Direction, qty, price, snap.Symbol)
}

func (e *TradeExecutor) simulate(ctx context.Context, base, quote string, side models.Direction, qty, price decimal.Decimal, symbol string) models.ExecutionResult {
	id := "dry-run"
	if e.paper != nil {
		var err error
		if id, err = e.paper.ApplyFill(base, quote, side, qty, price); err != nil {
			return e.fail(ctx, symbol, err.Error(), qty)
		}
	}
	e.log.Info("dry-run order",
		logger.String("symbol", symbol),
		logger.String("side", string(side)),
		logger.String("quantity", qty.String()),
		logger.String("price", price.String()),
	)
	e.metrics.RecordOrder(symbol, string(models.StatusSimulated))
	return models.ExecutionResult{
		Success:       true,
		Status:        models.StatusSimulated,
		OrderID:       id,
		Message:       "simulated fill",
		SizedQuantity: qty,
		FillPrice:     price,
	}
}

// place sends a live order once. The call outlives ctx cancellation, bounded by
// OrderTimeout, so shutdown never drops an order mid-flight.
func (e *TradeExecutor) place(ctx context.Context, side models.Direction, qty, ref decimal.Decimal, symbol string) models.ExecutionResult {
	if e.orders == nil {
		return e.fail(ctx, symbol, "no order executor configured", qty)
	}
	if e.limiter != nil && !e.limiter.Allow(symbol, e.cfg.OrderBurst, e.cfg.OrderRatePerSec) {
		return e.fail(ctx, symbol, "rate limited", qty)
	}

	octx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.OrderTimeout)
	defer cancel()

	start := time.Now()
	resp, err := e.orders.PlaceOrder(octx, models.OrderRequest{
		Symbol:        symbol,
		Side:          side,
		Type:          "MARKET",
		Quantity:      qty,
		ClientOrderID: "sg-" + uuid.NewString()[:24],
	})
	e.metrics.RecordLatency("order_place", time.Since(start).Seconds())
	if err != nil {
		return e.fail(ctx, symbol, err.Error(), qty)
	}

	fill := resp.AvgPrice
	if !fill.IsPositive() {
		fill = ref
	}
	filled := resp.ExecutedQty
	if !filled.IsPositive() {
		filled = qty
	}
	e.metrics.RecordOrder(symbol, string(models.StatusFilled))
	return models.ExecutionResult{
		Success:       true,
		Status:        models.StatusFilled,
		OrderID:       resp.OrderID,
		Message:       "order filled",
		SizedQuantity: filled,
		FillPrice:     fill,
	}
}

func (e *TradeExecutor) fail(ctx context.Context, symbol, msg string, qty decimal.Decimal) models.ExecutionResult {
	e.log.Error("order failed", logger.String("symbol", symbol), logger.String("reason", msg))
	e.metrics.RecordOrder(symbol, string(models.StatusFailed))
	if e.alerts != nil {
		alert := models.Alert{Kind: models.AlertExecutionFailed, Symbol: symbol, Message: msg, Time: time.Now().UTC()}
		if err := e.alerts.PublishMessage(context.WithoutCancel(ctx), alert.Kind, alert); err != nil {
			e.log.Warn("alert publish failed", logger.Error(err))
		}
	}
	return models.ExecutionResult{Status: models.StatusFailed, Message: msg, SizedQuantity: qty}
}
