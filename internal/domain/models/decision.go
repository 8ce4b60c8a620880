package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Action is the outcome of the decision gate.
type Action string

const (
	ActionExecute Action = "EXECUTE"
	ActionSkip    Action = "SKIP"
)

// Reason values recorded alongside every decision.
const (
	ReasonInsufficientVotes = "INSUFFICIENT_VOTES"
	ReasonLowCoherence      = "LOW_COHERENCE"
	ReasonNeutralSignal     = "NEUTRAL_SIGNAL"
	ReasonConsensusReached  = "CONSENSUS_REACHED"
	ReasonNoData            = "NO_DATA"
	ReasonLocked            = "LOCKED"
)

// TradeDecision is logged once per cycle.
type TradeDecision struct {
	Action           Action    `json:"action"`
	Reason           string    `json:"reason"`
	Direction        Direction `json:"direction"`
	Votes            int       `json:"votes"`
	AppliedThreshold float64   `json:"appliedThreshold"`
}

// Execute reports whether the gate let the cycle through.
func (d TradeDecision) Execute() bool { return d.Action == ActionExecute }

// ExecutionStatus describes what happened to an EXECUTE decision.
type ExecutionStatus string

const (
	StatusFilled    ExecutionStatus = "FILLED"
	StatusSimulated ExecutionStatus = "SIMULATED"
	StatusFailed    ExecutionStatus = "FAILED"
	StatusAborted   ExecutionStatus = "ABORTED"
)

// ExecutionResult is what the execution adapter returns for one EXECUTE decision.
type ExecutionResult struct {
	Success       bool            `json:"success"`
	Status        ExecutionStatus `json:"status"`
	OrderID       string          `json:"orderId,omitempty"`
	Message       string          `json:"message"`
	SizedQuantity decimal.Decimal `json:"sizedQuantity"`
	FillPrice     decimal.Decimal `json:"fillPrice"`
}

// OrderRequest is sent to the external execution collaborator.
type OrderRequest struct {
	Symbol        string          `json:"symbol"`
	Side          Direction       `json:"side"`
	Type          string          `json:"type"`
	Quantity      decimal.Decimal `json:"quantity"`
	ClientOrderID string          `json:"clientOrderId,omitempty"`
}

// OrderResponse is the collaborator's reply to a placed order.
type OrderResponse struct {
	OrderID     string          `json:"orderId"`
	ExecutedQty decimal.Decimal `json:"executedQty"`
	AvgPrice    decimal.Decimal `json:"avgPrice"`
}

// Alert is pushed to the notification boundary for failures an operator must see.
type Alert struct {
	Kind    string    `json:"kind"`
	Symbol  string    `json:"symbol,omitempty"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

const (
	AlertExecutionFailed  = "execution_failed"
	AlertStreamTerminated = "stream_terminated"
	AlertLogDigest        = "log_digest"
)
