package models

// DetectorSpec is one entry of the weighted detector ensemble.
// Frequency is an opaque tuning constant used by the consensus resonance test.
type DetectorSpec struct {
	ID        string
	Label     string
	Weight    float64
	Frequency float64
	Response  func(MarketSnapshot) float64
}

// SignalState is produced fresh every cycle by the composite signal engine.
type SignalState struct {
	Lambda             float64            `json:"lambda"`
	Coherence          float64            `json:"coherence"`
	Substrate          float64            `json:"substrate"`
	Observer           float64            `json:"observer"`
	Echo               float64            `json:"echo"`
	DominantDetectorID string             `json:"dominantDetectorId"`
	DetectorResponses  map[string]float64 `json:"detectorResponses"`
}

// Direction is the trade direction implied by the fused signal.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionHold Direction = "HOLD"
)

// ConsensusResult is the outcome of one consensus vote.
type ConsensusResult struct {
	Votes           int             `json:"votes"`
	Direction       Direction       `json:"direction"`
	PerDetectorVote map[string]bool `json:"perDetectorVote"`
}

// AdaptiveThreshold is the coherence bar applied in one cycle.
type AdaptiveThreshold struct {
	Value      float64 `json:"value"`
	Base       float64 `json:"base"`
	Floor      float64 `json:"floor"`
	SampleSize int     `json:"sampleSize"`
}
