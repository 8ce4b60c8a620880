package usecase

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalGate/internal/domain/models"
)

var quotes = []string{"USDT", "BTC", "ETH", "FDUSD", "USDC"}

func TestSplitSymbol(t *testing.T) {
	tests := []struct{ sym, base, quote string }{
		{"BTCUSDT", "BTC", "USDT"},
		{"ethbtc", "ETH", "BTC"},
		{"BTCFDUSD", "BTC", "FDUSD"},
	}
	for _, tt := range tests {
		b, q, err := SplitSymbol(tt.sym, quotes)
		require.NoError(t, err, tt.sym)
		assert.Equal(t, tt.base, b)
		assert.Equal(t, tt.quote, q)
	}

	_, _, err := SplitSymbol("USDT", quotes)
	assert.ErrorIs(t, err, ErrUnknownQuote)
	_, _, err = SplitSymbol("DOGEXYZ", quotes)
	assert.ErrorIs(t, err, ErrUnknownQuote)
}

func TestSizeOrderFloorsToSixDecimals(t *testing.T) {
	qty, err := SizeOrder(models.DirectionBuy, 10000, 105, 10, 0.00001)
	require.NoError(t, err)
	assert.Equal(t, "9.523809", qty.String())

	qty, err = SizeOrder(models.DirectionSell, 0.12345678, 105, 50, 0.00001)
	require.NoError(t, err)
	assert.Equal(t, "0.061728", qty.String())
}

func TestSizeOrderBelowMinimum(t *testing.T) {
	_, err := SizeOrder(models.DirectionBuy, 1, 60000, 10, 0.00001)
	if !errors.Is(err, ErrBelowMinQuantity) {
		t.Fatalf("err = %v, want ErrBelowMinQuantity", err)
	}
	_, err = SizeOrder(models.DirectionSell, 0, 100, 10, 0)
	assert.ErrorIs(t, err, ErrBelowMinQuantity)
}

func TestSizeOrderRejectsHoldAndBadPrice(t *testing.T) {
	_, err := SizeOrder(models.DirectionHold, 100, 1, 10, 0)
	assert.Error(t, err)
	_, err = SizeOrder(models.DirectionBuy, 100, 0, 10, 0)
	assert.Error(t, err)
}
