package analytics

import (
	"math"

	"SignalGate/internal/domain/models"
	"SignalGate/pkg/util"
)

const (
	LambdaHistorySize = 100
	observerGain      = 0.3
	echoGain          = 0.2
	echoWindow        = 5
	coherenceDivisor  = 10
)

// Engine fuses a snapshot through the detector ensemble. It owns the lambda
// history and is not safe for concurrent use; each symbol's loop has its own.
type Engine struct {
	ensemble []models.DetectorSpec
	history  *util.Ring[float64]
}

func NewEngine(ensemble []models.DetectorSpec) *Engine {
	return &Engine{
		ensemble: ensemble,
		history:  util.NewRing[float64](LambdaHistorySize),
	}
}

func (e *Engine) Ensemble() []models.DetectorSpec { return e.ensemble }

// Step computes a fresh SignalState and appends its lambda to the history.
func (e *Engine) Step(snap models.MarketSnapshot) models.SignalState {
	weighted := make([]float64, len(e.ensemble))
	responses := make(map[string]float64, len(e.ensemble))
	dominant := ""
	best := math.Inf(-1)
	for i, d := range e.ensemble {
		r := 0.0
		if d.Response != nil {
			r = finite(d.Response(snap) * d.Weight)
		}
		weighted[i] = r
		responses[d.ID] = r
		if r > best {
			best, dominant = r, d.ID
		}
	}

	substrate := mean(weighted)

	observer := 0.0
	if last, ok := e.history.Newest(); ok {
		observer = last * observerGain
	}
	echo := 0.0
	if e.history.Len() >= echoWindow {
		echo = mean(e.history.Last(echoWindow)) * echoGain
	}

	lambda := finite(substrate + observer + echo)
	e.history.Push(lambda)

	return models.SignalState{
		Lambda:             lambda,
		Coherence:          Coherence(weighted, substrate),
		Substrate:          substrate,
		Observer:           observer,
		Echo:               echo,
		DominantDetectorID: dominant,
		DetectorResponses:  responses,
	}
}

// History returns a copy of the lambda history, oldest first.
func (e *Engine) History() []float64 { return e.history.Values() }

// Coherence is clamp(1 - variance/10, 0, 1) where variance is taken around center.
func Coherence(weighted []float64, center float64) float64 {
	if len(weighted) == 0 {
		return 1
	}
	ss := 0.0
	for _, r := range weighted {
		d := r - center
		ss += d * d
	}
	return clamp(1-(ss/float64(len(weighted)))/coherenceDivisor, 0, 1)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	return math.Max(lo, math.Min(hi, x))
}

func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
