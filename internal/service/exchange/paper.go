package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"SignalGate/internal/domain/models"
)

// PaperAccount holds simulated balances for dry-run sizing. Fills move base and quote.
type PaperAccount struct {
	mu       sync.RWMutex
	balances map[string]decimal.Decimal
	seq      atomic.Int64
}

func NewPaperAccount(initial map[string]float64) *PaperAccount {
	b := make(map[string]decimal.Decimal, len(initial))
	for asset, v := range initial {
		b[strings.ToUpper(asset)] = decimal.NewFromFloat(v)
	}
	return &PaperAccount{balances: b}
}

func (p *PaperAccount) Balance(_ context.Context, asset string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.balances[strings.ToUpper(asset)].InexactFloat64(), nil
}

// ApplyFill books a simulated fill and returns a synthetic order id.
// Balances may not go negative; such a fill is rejected untouched.
func (p *PaperAccount) ApplyFill(base, quote string, side models.Direction, qty, price decimal.Decimal) (string, error) {
	notional := qty.Mul(price)

	p.mu.Lock()
	defer p.mu.Unlock()
	switch side {
	case models.DirectionBuy:
		if p.balances[quote].LessThan(notional) {
			return "", fmt.Errorf("paper: insufficient %s balance", quote)
		}
		p.balances[quote] = p.balances[quote].Sub(notional)
		p.balances[base] = p.balances[base].Add(qty)
	case models.DirectionSell:
		if p.balances[base].LessThan(qty) {
			return "", fmt.Errorf("paper: insufficient %s balance", base)
		}
		p.balances[base] = p.balances[base].Sub(qty)
		p.balances[quote] = p.balances[quote].Add(notional)
	default:
		return "", fmt.Errorf("paper: unsupported side %q", side)
	}
	return fmt.Sprintf("paper-%d", p.seq.Add(1)), nil
}

// Balances returns a copy of all simulated balances.
func (p *PaperAccount) Balances() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]string, len(p.balances))
	for k, v := range p.balances {
		out[k] = v.String()
	}
	return out
}
