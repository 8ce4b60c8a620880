package analytics

import (
	"math"

	"SignalGate/internal/domain/models"
)

// DefaultEnsemble returns the nine weighted detectors in declaration order.
// Each response is a pure, tanh-bounded function of the snapshot. Labels and
// frequencies are configuration only; no behavior depends on the label text.
func DefaultEnsemble() []models.DetectorSpec {
	return []models.DetectorSpec{
		{ID: "momentum", Label: "Momentum", Weight: 1.0, Frequency: 0.5, Response: momentumResponse},
		{ID: "trend", Label: "Risk-adjusted trend", Weight: 0.9, Frequency: 0.75, Response: trendResponse},
		{ID: "reversion", Label: "Mean reversion", Weight: 0.8, Frequency: 1.0, Response: reversionResponse},
		{ID: "microprice", Label: "Price vs mid", Weight: 1.1, Frequency: 1.25, Response: micropriceResponse},
		{ID: "spread", Label: "Spread pressure", Weight: 0.7, Frequency: 1.5, Response: spreadResponse},
		{ID: "volume", Label: "Volume thrust", Weight: 1.2, Frequency: 1.75, Response: volumeResponse},
		{ID: "volatility", Label: "Volatility regime", Weight: 0.6, Frequency: 2.0, Response: volatilityResponse},
		{ID: "activity", Label: "Trade activity", Weight: 1.0, Frequency: 2.5, Response: activityResponse},
		{ID: "stability", Label: "Stability", Weight: 0.5, Frequency: 3.0, Response: stabilityResponse},
	}
}

func momentumResponse(s models.MarketSnapshot) float64 {
	return math.Tanh(s.Momentum * 100)
}

func trendResponse(s models.MarketSnapshot) float64 {
	if s.Volatility <= 0 {
		return 0
	}
	return math.Tanh(s.Momentum / s.Volatility)
}

func reversionResponse(s models.MarketSnapshot) float64 {
	return -math.Tanh(s.Momentum * 50)
}

func micropriceResponse(s models.MarketSnapshot) float64 {
	if s.BidPrice <= 0 || s.AskPrice <= 0 || s.Price <= 0 {
		return 0
	}
	mid := (s.BidPrice + s.AskPrice) / 2
	return math.Tanh((s.Price - mid) / mid * 1000)
}

func spreadResponse(s models.MarketSnapshot) float64 {
	if s.Price <= 0 || s.Spread <= 0 {
		return 0
	}
	return -math.Tanh(s.Spread / s.Price * 1000)
}

func volumeResponse(s models.MarketSnapshot) float64 {
	if s.Volume <= 0 {
		return 0
	}
	return math.Tanh(math.Log1p(s.Volume)) * sign(s.Momentum)
}

func volatilityResponse(s models.MarketSnapshot) float64 {
	return math.Tanh(s.Volatility*100) * sign(s.Momentum)
}

func activityResponse(s models.MarketSnapshot) float64 {
	return math.Tanh(float64(s.TradeCount)/100) * sign(s.Momentum)
}

func stabilityResponse(s models.MarketSnapshot) float64 {
	return 1 - 2*math.Tanh(s.Volatility*100)
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}
