package analytics

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SignalGate/internal/domain/models"
)

func constDetector(id string, weight, value float64) models.DetectorSpec {
	return models.DetectorSpec{ID: id, Weight: weight, Frequency: 1, Response: func(models.MarketSnapshot) float64 { return value }}
}

func TestCoherenceBound(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		xs := make([]float64, 9)
		scale := math.Pow(10, float64(rng.Intn(6)-2))
		for j := range xs {
			xs[j] = (rng.Float64()*2 - 1) * scale
		}
		c := Coherence(xs, mean(xs))
		require.GreaterOrEqual(t, c, 0.0)
		require.LessOrEqual(t, c, 1.0)
	}
	assert.Equal(t, 1.0, Coherence([]float64{0.3, 0.3, 0.3}, 0.3))
	assert.Equal(t, 0.0, Coherence([]float64{-100, 100}, 0))
}

func TestStepComposition(t *testing.T) {
	e := NewEngine([]models.DetectorSpec{
		constDetector("a", 1, 0.2),
		constDetector("b", 2, 0.1),
		constDetector("c", 1, -0.1),
	})

	first := e.Step(models.MarketSnapshot{})
	assert.InDelta(t, (0.2+0.2-0.1)/3, first.Substrate, 1e-12)
	assert.Zero(t, first.Observer)
	assert.Zero(t, first.Echo)
	assert.Equal(t, first.Substrate, first.Lambda)
	assert.Equal(t, "a", first.DominantDetectorID, "ties resolve to declaration order")
	assert.InDelta(t, 0.2, first.DetectorResponses["b"], 1e-12)

	second := e.Step(models.MarketSnapshot{})
	assert.InDelta(t, first.Lambda*0.3, second.Observer, 1e-12)
	assert.Zero(t, second.Echo)

	for i := 0; i < 3; i++ {
		e.Step(models.MarketSnapshot{})
	}
	hist := e.History()
	require.Len(t, hist, 5)
	sixth := e.Step(models.MarketSnapshot{})
	assert.InDelta(t, mean(hist)*0.2, sixth.Echo, 1e-12)
	assert.InDelta(t, hist[4]*0.3, sixth.Observer, 1e-12)
	assert.InDelta(t, sixth.Substrate+sixth.Observer+sixth.Echo, sixth.Lambda, 1e-12)
}

func TestHistoryIsBounded(t *testing.T) {
	e := NewEngine(DefaultEnsemble())
	for i := 0; i < 250; i++ {
		e.Step(models.MarketSnapshot{Price: 100, Momentum: 0.01, Volatility: 0.002})
	}
	assert.Len(t, e.History(), LambdaHistorySize)
}

func TestNonFiniteResponsesAreZeroed(t *testing.T) {
	e := NewEngine([]models.DetectorSpec{
		constDetector("nan", 1, math.NaN()),
		constDetector("inf", 1, math.Inf(1)),
		constDetector("ok", 1, 0.3),
	})
	st := e.Step(models.MarketSnapshot{})
	assert.False(t, math.IsNaN(st.Lambda))
	assert.InDelta(t, 0.1, st.Substrate, 1e-12)
	assert.GreaterOrEqual(t, st.Coherence, 0.0)
}

func TestDefaultEnsembleIsBounded(t *testing.T) {
	ens := DefaultEnsemble()
	require.Len(t, ens, 9)
	snaps := []models.MarketSnapshot{
		{},
		{Price: 100, BidPrice: 99.9, AskPrice: 100.1, Spread: 0.2, Volume: 3, Volatility: 0.02, Momentum: 0.05, TradeCount: 500},
		{Price: 100, Volatility: 1e9, Momentum: -1e9, Volume: 1e12},
	}
	ids := map[string]bool{}
	for _, d := range ens {
		ids[d.ID] = true
		for _, s := range snaps {
			r := d.Response(s)
			assert.False(t, math.IsNaN(r), d.ID)
			assert.LessOrEqual(t, math.Abs(r), 1.0, d.ID)
		}
	}
	assert.Len(t, ids, 9, "detector ids are unique")
}
