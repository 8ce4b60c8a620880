package features

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"SignalGate/internal/domain/models"
	"SignalGate/pkg/util"
)

const (
	// TradeBufferSize bounds the per-symbol price history.
	TradeBufferSize = 100
	// StatsWindow is the number of most recent prices volatility and momentum are computed over.
	StatsWindow = 10
)

var ErrInvalidEvent = errors.New("invalid market event")

type symbolState struct {
	snap   models.MarketSnapshot
	prices *util.Ring[float64]
}

// Aggregator maintains the rolling snapshot of every symbol it has seen.
// Events must be fed from a single goroutine in arrival order; readers get copies.
type Aggregator struct {
	mu      sync.RWMutex
	symbols map[string]*symbolState
}

func NewAggregator() *Aggregator {
	return &Aggregator{symbols: make(map[string]*symbolState)}
}

// OnMarketEvent applies one event. An invalid event is dropped and the prior
// snapshot is kept; the returned error describes why.
func (a *Aggregator) OnMarketEvent(ev models.MarketEvent) error {
	if ev == nil {
		return fmt.Errorf("%w: nil", ErrInvalidEvent)
	}
	symbol := ev.EventSymbol()
	if symbol == "" {
		return fmt.Errorf("%w: %s without symbol", ErrInvalidEvent, ev.Type())
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	st, ok := a.symbols[symbol]
	if !ok {
		st = &symbolState{
			snap:   models.MarketSnapshot{Symbol: symbol},
			prices: util.NewRing[float64](TradeBufferSize),
		}
	}

	switch e := ev.(type) {
	case models.Trade:
		if err := validPrice(e.Price); err != nil {
			return fmt.Errorf("trade %s: %w", symbol, err)
		}
		st.applyTrade(e.Price, e.Quantity)
	case models.AggTrade:
		if err := validPrice(e.Price); err != nil {
			return fmt.Errorf("aggTrade %s: %w", symbol, err)
		}
		st.applyTrade(e.Price, e.Quantity)
	case models.DepthUpdate:
		bid, hasBid := e.BestBid()
		ask, hasAsk := e.BestAsk()
		if !hasBid && !hasAsk {
			return fmt.Errorf("%w: depthUpdate %s has no live levels", ErrInvalidEvent, symbol)
		}
		st.applyBook(bid, ask)
	case models.BookTicker:
		if e.BidPrice <= 0 && e.AskPrice <= 0 {
			return fmt.Errorf("%w: bookTicker %s has empty book", ErrInvalidEvent, symbol)
		}
		st.applyBook(e.BidPrice, e.AskPrice)
	case models.MiniTicker:
		if err := validPrice(e.Close); err != nil {
			return fmt.Errorf("miniTicker %s: %w", symbol, err)
		}
		st.snap.Price = e.Close
		st.snap.Volume = e.Volume
	case models.Kline:
		if !e.Closed {
			return nil
		}
		if err := validPrice(e.Close); err != nil {
			return fmt.Errorf("kline %s: %w", symbol, err)
		}
		st.snap.Price = e.Close
		st.snap.Volume = e.Volume
	default:
		return fmt.Errorf("%w: unsupported %T", ErrInvalidEvent, ev)
	}

	if ts := ev.EventTime(); ts.After(st.snap.Timestamp) {
		st.snap.Timestamp = ts
	}
	st.recompute()
	a.symbols[symbol] = st
	return nil
}

func (s *symbolState) applyTrade(price, qty float64) {
	s.prices.Push(price)
	s.snap.Price = price
	s.snap.Volume = qty
	s.snap.TradeCount++
}

func (s *symbolState) applyBook(bid, ask float64) {
	if bid > 0 {
		s.snap.BidPrice = bid
	}
	if ask > 0 {
		s.snap.AskPrice = ask
	}
	// A one-sided update leaves the spread as it was; pairing it with the
	// stale opposite side can cross the book.
	if bid > 0 && ask > 0 && ask >= bid {
		s.snap.Spread = ask - bid
	}
}

// recompute derives volatility and momentum from scratch over the last StatsWindow prices.
func (s *symbolState) recompute() {
	if s.prices.Len() < StatsWindow {
		return
	}
	window := s.prices.Last(StatsWindow)
	s.snap.Volatility = CoefficientOfVariation(window)
	s.snap.Momentum = Momentum(window)
}

func validPrice(p float64) error {
	if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
		return fmt.Errorf("%w: price %v", ErrInvalidEvent, p)
	}
	return nil
}

// Snapshot returns a copy of the symbol's snapshot.
func (a *Aggregator) Snapshot(symbol string) (models.MarketSnapshot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	st, ok := a.symbols[symbol]
	if !ok {
		return models.MarketSnapshot{}, false
	}
	return st.snap, true
}

// Prices returns a copy of the symbol's trade buffer, oldest first.
func (a *Aggregator) Prices(symbol string) []float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	st, ok := a.symbols[symbol]
	if !ok {
		return nil
	}
	return st.prices.Values()
}

// Symbols lists tracked symbols in sorted order.
func (a *Aggregator) Symbols() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.symbols))
	for s := range a.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
