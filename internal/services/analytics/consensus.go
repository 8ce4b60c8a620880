package analytics

import (
	"math"

	"SignalGate/internal/domain/models"
)

const DefaultVoteThreshold = 0.7

// Voter re-evaluates the ensemble against lambda. It holds no state besides
// its threshold, so Vote is pure.
type Voter struct {
	threshold float64
}

func NewVoter(threshold float64) *Voter {
	return &Voter{threshold: threshold}
}

func (v *Voter) Vote(lambda float64, ensemble []models.DetectorSpec) models.ConsensusResult {
	res := models.ConsensusResult{
		Direction:       DirectionOf(lambda),
		PerDetectorVote: make(map[string]bool, len(ensemble)),
	}
	for _, d := range ensemble {
		ok := Resonance(d.Frequency, lambda) >= v.threshold
		res.PerDetectorVote[d.ID] = ok
		if ok {
			res.Votes++
		}
	}
	return res
}

// Resonance is |sin(2π·f·λ)|.
func Resonance(frequency, lambda float64) float64 {
	return math.Abs(math.Sin(2 * math.Pi * frequency * lambda))
}

func DirectionOf(lambda float64) models.Direction {
	switch {
	case lambda > 0:
		return models.DirectionBuy
	case lambda < 0:
		return models.DirectionSell
	default:
		return models.DirectionHold
	}
}
