package models

import "time"

// EventType tags a normalized market event.
type EventType string

const (
	EventTrade       EventType = "trade"
	EventAggTrade    EventType = "aggTrade"
	EventDepthUpdate EventType = "depthUpdate"
	EventBookTicker  EventType = "bookTicker"
	EventMiniTicker  EventType = "miniTicker"
	EventKline       EventType = "kline"
)

// MarketEvent is the tagged union of everything the stream client emits.
// Concrete values are Trade, AggTrade, DepthUpdate, BookTicker, MiniTicker and Kline.
type MarketEvent interface {
	Type() EventType
	EventSymbol() string
	EventTime() time.Time
}

// PriceLevel is one [price, qty] entry of a depth update.
type PriceLevel struct {
	Price    float64
	Quantity float64
}

type Trade struct {
	Symbol    string
	Price     float64
	Quantity  float64
	TradeTime time.Time
}

func (t Trade) Type() EventType      { return EventTrade }
func (t Trade) EventSymbol() string  { return t.Symbol }
func (t Trade) EventTime() time.Time { return t.TradeTime }

type AggTrade struct {
	Symbol    string
	Price     float64
	Quantity  float64
	TradeTime time.Time
}

func (t AggTrade) Type() EventType      { return EventAggTrade }
func (t AggTrade) EventSymbol() string  { return t.Symbol }
func (t AggTrade) EventTime() time.Time { return t.TradeTime }

type DepthUpdate struct {
	Symbol string
	Bids   []PriceLevel
	Asks   []PriceLevel
	Time   time.Time
}

func (d DepthUpdate) Type() EventType      { return EventDepthUpdate }
func (d DepthUpdate) EventSymbol() string  { return d.Symbol }
func (d DepthUpdate) EventTime() time.Time { return d.Time }

// BestBid returns the highest bid with a non-zero quantity.
func (d DepthUpdate) BestBid() (float64, bool) {
	best, ok := 0.0, false
	for _, l := range d.Bids {
		if l.Quantity <= 0 {
			continue
		}
		if !ok || l.Price > best {
			best, ok = l.Price, true
		}
	}
	return best, ok
}

// BestAsk returns the lowest ask with a non-zero quantity.
func (d DepthUpdate) BestAsk() (float64, bool) {
	best, ok := 0.0, false
	for _, l := range d.Asks {
		if l.Quantity <= 0 {
			continue
		}
		if !ok || l.Price < best {
			best, ok = l.Price, true
		}
	}
	return best, ok
}

// BookTicker frames carry no server time; Time is the receive time.
type BookTicker struct {
	Symbol   string
	UpdateID int64
	BidPrice float64
	BidQty   float64
	AskPrice float64
	AskQty   float64
	Time     time.Time
}

func (b BookTicker) Type() EventType      { return EventBookTicker }
func (b BookTicker) EventSymbol() string  { return b.Symbol }
func (b BookTicker) EventTime() time.Time { return b.Time }

type MiniTicker struct {
	Symbol string
	Close  float64
	Volume float64
	Time   time.Time
}

func (m MiniTicker) Type() EventType      { return EventMiniTicker }
func (m MiniTicker) EventSymbol() string  { return m.Symbol }
func (m MiniTicker) EventTime() time.Time { return m.Time }

type Kline struct {
	Symbol     string
	Close      float64
	Volume     float64
	TradeCount int64
	Closed     bool
	Time       time.Time
}

func (k Kline) Type() EventType      { return EventKline }
func (k Kline) EventSymbol() string  { return k.Symbol }
func (k Kline) EventTime() time.Time { return k.Time }

// StreamEventKind classifies what the stream client reports on its event channel.
type StreamEventKind int

const (
	StreamConnected StreamEventKind = iota
	StreamDisconnected
	StreamMarket
	StreamError
)

func (k StreamEventKind) String() string {
	switch k {
	case StreamConnected:
		return "connected"
	case StreamDisconnected:
		return "disconnected"
	case StreamMarket:
		return "marketEvent"
	case StreamError:
		return "error"
	default:
		return "unknown"
	}
}

// StreamEvent is a single message on the stream client's ordered output channel.
// Terminal is set on the disconnect that follows the last failed reconnect attempt.
type StreamEvent struct {
	Kind     StreamEventKind
	Market   MarketEvent
	Code     int
	Reason   string
	Terminal bool
	Err      error
}
