package middleware

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"SignalGate/internal/domain/models"
	domrepo "SignalGate/internal/domain/repository"
)

// Sink is the minimal downstream the pipeline needs, normally the snapshot aggregator.
type Sink interface {
	OnMarketEvent(ev models.MarketEvent) error
}

// RealtimePipeline sits between the stream client and the aggregator.
// It validates, optionally throttles and forwards events synchronously, so
// per-symbol arrival order is preserved.
type RealtimePipeline struct {
	sink     Sink
	metrics  domrepo.Metrics
	maxRPS   float64
	mu       sync.Mutex
	lastSeen map[string]time.Time // per symbol+type last accepted time
	now      func() time.Time
	// optional format transform hook
	transform func(models.MarketEvent) models.MarketEvent
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS caps book-style updates per symbol and event type. Trades are never throttled.
func WithMaxRPS(n float64) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithTransform sets a transformation hook applied before validation.
func WithTransform(fn func(models.MarketEvent) models.MarketEvent) PipelineOption {
	return func(p *RealtimePipeline) { p.transform = fn }
}

func withClock(now func() time.Time) PipelineOption {
	return func(p *RealtimePipeline) { p.now = now }
}

func NewRealtimePipeline(sink Sink, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		sink:     sink,
		metrics:  metrics,
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process validates, throttles and forwards one event.
func (p *RealtimePipeline) Process(ev models.MarketEvent) error {
	start := p.now()
	if p.transform != nil && ev != nil {
		ev = p.transform(ev)
	}
	if err := validateEvent(ev); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.allow(ev, start) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}
	if err := p.sink.OnMarketEvent(ev); err != nil {
		p.metrics.RecordError("pipeline_aggregate")
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

// UppercaseSymbols normalizes the symbol of every event.
func UppercaseSymbols(ev models.MarketEvent) models.MarketEvent {
	switch e := ev.(type) {
	case models.Trade:
		e.Symbol = strings.ToUpper(e.Symbol)
		return e
	case models.AggTrade:
		e.Symbol = strings.ToUpper(e.Symbol)
		return e
	case models.DepthUpdate:
		e.Symbol = strings.ToUpper(e.Symbol)
		return e
	case models.BookTicker:
		e.Symbol = strings.ToUpper(e.Symbol)
		return e
	case models.MiniTicker:
		e.Symbol = strings.ToUpper(e.Symbol)
		return e
	case models.Kline:
		e.Symbol = strings.ToUpper(e.Symbol)
		return e
	default:
		return ev
	}
}

func validateEvent(ev models.MarketEvent) error {
	if ev == nil {
		return fmt.Errorf("event nil")
	}
	if ev.EventSymbol() == "" {
		return fmt.Errorf("%s: symbol empty", ev.Type())
	}
	if ev.EventTime().IsZero() {
		return fmt.Errorf("%s %s: timestamp missing", ev.Type(), ev.EventSymbol())
	}
	return nil
}

func (p *RealtimePipeline) allow(ev models.MarketEvent, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	switch ev.Type() {
	case models.EventTrade, models.EventAggTrade, models.EventKline:
		return true
	}
	key := ev.EventSymbol() + "|" + string(ev.Type())

	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastSeen[key]
	if !last.IsZero() && now.Sub(last) < time.Duration(float64(time.Second)/p.maxRPS) {
		return false
	}
	p.lastSeen[key] = now
	return true
}
