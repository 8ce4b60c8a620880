package models

import "time"

// MarketSnapshot is the rolling per-symbol summary derived from market events.
type MarketSnapshot struct {
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"timestamp"`
	Price      float64   `json:"price"`
	Volume     float64   `json:"volume"`
	BidPrice   float64   `json:"bidPrice"`
	AskPrice   float64   `json:"askPrice"`
	Spread     float64   `json:"spread"`
	Volatility float64   `json:"volatility"`
	Momentum   float64   `json:"momentum"`
	TradeCount int64     `json:"tradeCount"`
}

// Ready reports whether the snapshot has a usable price.
func (s MarketSnapshot) Ready() bool { return s.Price > 0 }
