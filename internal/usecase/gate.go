package usecase

import "SignalGate/internal/domain/models"

// Decide applies the gate in fixed precedence: votes, then coherence, then direction.
func Decide(c models.ConsensusResult, coherence, appliedThreshold float64, requiredVotes int) models.TradeDecision {
	d := models.TradeDecision{
		Action:           models.ActionSkip,
		Direction:        c.Direction,
		Votes:            c.Votes,
		AppliedThreshold: appliedThreshold,
	}
	switch {
	case c.Votes < requiredVotes:
		d.Reason = models.ReasonInsufficientVotes
	case coherence < appliedThreshold:
		d.Reason = models.ReasonLowCoherence
	case c.Direction == models.DirectionHold:
		d.Reason = models.ReasonNeutralSignal
	default:
		d.Action = models.ActionExecute
		d.Reason = models.ReasonConsensusReached
	}
	return d
}

// skip builds a SKIP decision that bypassed the gate.
func skip(reason string, appliedThreshold float64) models.TradeDecision {
	return models.TradeDecision{
		Action:           models.ActionSkip,
		Reason:           reason,
		Direction:        models.DirectionHold,
		AppliedThreshold: appliedThreshold,
	}
}
