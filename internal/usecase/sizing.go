package usecase

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"SignalGate/internal/domain/models"
)

// QuantityPrecision is the number of decimals order quantities are floored to.
const QuantityPrecision = 6

var (
	ErrBelowMinQuantity = errors.New("order quantity below minimum")
	ErrUnknownQuote     = errors.New("symbol has no known quote asset")
)

// SplitSymbol splits BTCUSDT into BTC and USDT using the longest matching quote suffix.
func SplitSymbol(symbol string, quotes []string) (base, quote string, err error) {
	symbol = strings.ToUpper(symbol)
	for _, q := range quotes {
		q = strings.ToUpper(q)
		if len(q) > len(quote) && len(symbol) > len(q) && strings.HasSuffix(symbol, q) {
			quote = q
		}
	}
	if quote == "" {
		return "", "", fmt.Errorf("%s: %w", symbol, ErrUnknownQuote)
	}
	return strings.TrimSuffix(symbol, quote), quote, nil
}

// SizeOrder computes the order quantity for direction. BUY spends percent of the
// quote balance at price; SELL sells percent of the base balance. The result is
// floored to QuantityPrecision decimals.
func SizeOrder(dir models.Direction, balance, price, percent, minQty float64) (decimal.Decimal, error) {
	frac := decimal.NewFromFloat(balance).Mul(decimal.NewFromFloat(percent)).Div(decimal.NewFromInt(100))

	var qty decimal.Decimal
	switch dir {
	case models.DirectionBuy:
		if price <= 0 {
			return decimal.Zero, fmt.Errorf("invalid price %v", price)
		}
		qty = frac.Div(decimal.NewFromFloat(price))
	case models.DirectionSell:
		qty = frac
	default:
		return decimal.Zero, fmt.Errorf("cannot size %s order", dir)
	}

	qty = qty.RoundFloor(QuantityPrecision)
	if qty.IsZero() || qty.LessThan(decimal.NewFromFloat(minQty)) {
		return qty, fmt.Errorf("%s < %v: %w", qty.String(), minQty, ErrBelowMinQuantity)
	}
	return qty, nil
}
