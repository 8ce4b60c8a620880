package analytics

import (
	"math"
	"sort"

	"SignalGate/internal/domain/models"
	"SignalGate/pkg/util"
)

const (
	DefaultThresholdWindow = 500
	ThresholdWarmup        = 20
	ThresholdPercentile    = 0.65
	ThresholdFloor         = 0.9
	ThresholdCeiling       = 0.995
)

// Calibrator derives the coherence bar from a bounded window of past coherence values.
type Calibrator struct {
	history *util.Ring[float64]
}

func NewCalibrator(window int) *Calibrator {
	if window < ThresholdWarmup {
		window = DefaultThresholdWindow
	}
	return &Calibrator{history: util.NewRing[float64](window)}
}

// Observe records one coherence value; non-finite values are ignored.
func (c *Calibrator) Observe(coherence float64) {
	if math.IsNaN(coherence) || math.IsInf(coherence, 0) {
		return
	}
	c.history.Push(coherence)
}

// Threshold returns base unchanged during warm-up, else the clamped 65th percentile.
func (c *Calibrator) Threshold(base float64) models.AdaptiveThreshold {
	n := c.history.Len()
	t := models.AdaptiveThreshold{Base: base, Floor: ThresholdFloor, SampleSize: n}
	if n < ThresholdWarmup {
		t.Value = base
		return t
	}
	sorted := c.history.Values()
	sort.Float64s(sorted)
	candidate := sorted[int(math.Floor(ThresholdPercentile*float64(n-1)))]
	t.Value = clamp(candidate, ThresholdFloor, ThresholdCeiling)
	return t
}

func (c *Calibrator) SampleSize() int { return c.history.Len() }
