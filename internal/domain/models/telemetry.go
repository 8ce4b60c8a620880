package models

import "time"

// TelemetryRecord is the JSON line appended once per decision cycle.
type TelemetryRecord struct {
	Ts               time.Time       `json:"ts"`
	Cycle            int64           `json:"cycle"`
	Symbol           string          `json:"symbol"`
	Lambda           float64         `json:"lambda"`
	Coherence        float64         `json:"coherence"`
	AppliedThreshold float64         `json:"appliedThreshold"`
	BaseThreshold    float64         `json:"baseThreshold"`
	Votes            int             `json:"votes"`
	RequiredVotes    int             `json:"requiredVotes"`
	Direction        Direction       `json:"direction"`
	Decision         Action          `json:"decision"`
	Reason           string          `json:"reason"`
	ExecutionStatus  ExecutionStatus `json:"executionStatus,omitempty"`
	Quantity         string          `json:"quantity,omitempty"`
}

// SymbolState is the per-symbol view published to the state store after every cycle.
type SymbolState struct {
	Symbol      string          `json:"symbol"`
	Mode        string          `json:"mode"`
	Cycles      int64           `json:"cycles"`
	TotalTrades int64           `json:"totalTrades"`
	TotalProfit string          `json:"totalProfit"`
	Snapshot    MarketSnapshot  `json:"snapshot"`
	Signal      SignalState     `json:"signal"`
	Consensus   ConsensusResult `json:"consensus"`
	Threshold   float64         `json:"threshold"`
	Decision    TradeDecision   `json:"decision"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}
