package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"SignalGate/internal/domain/models"
)

func TestVoteIsDeterministic(t *testing.T) {
	v := NewVoter(DefaultVoteThreshold)
	ens := DefaultEnsemble()
	for _, lambda := range []float64{-0.73, -0.1, 0, 0.05, 0.31, 0.999, 12.5} {
		a := v.Vote(lambda, ens)
		b := v.Vote(lambda, ens)
		assert.Equal(t, a.Votes, b.Votes)
		assert.Equal(t, a.Direction, b.Direction)
		assert.Equal(t, a.PerDetectorVote, b.PerDetectorVote)
	}
}

func TestVoteCountsResonance(t *testing.T) {
	v := NewVoter(0.7)
	ens := []models.DetectorSpec{
		{ID: "quarter", Frequency: 1},
		{ID: "half", Frequency: 2},
	}
	// sin(2π·1·0.25) = 1, sin(2π·2·0.25) = 0
	res := v.Vote(0.25, ens)
	assert.Equal(t, 1, res.Votes)
	assert.True(t, res.PerDetectorVote["quarter"])
	assert.False(t, res.PerDetectorVote["half"])
	assert.Equal(t, models.DirectionBuy, res.Direction)
}

func TestDirectionOf(t *testing.T) {
	assert.Equal(t, models.DirectionBuy, DirectionOf(1e-9))
	assert.Equal(t, models.DirectionSell, DirectionOf(-1e-9))
	assert.Equal(t, models.DirectionHold, DirectionOf(0))
	assert.Equal(t, 0.0, Resonance(3, 0))
	assert.InDelta(t, 1.0, Resonance(0.5, 0.5), 1e-12)
	assert.InDelta(t, math.Abs(math.Sin(-math.Pi)), Resonance(1, -0.5), 1e-12)
}
