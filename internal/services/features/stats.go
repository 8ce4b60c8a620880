package features

import "math"

// Mean returns the arithmetic mean, or 0 for an empty window.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev is the population standard deviation, computed in two passes.
func StdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := Mean(xs)
	ss := 0.0
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}

// CoefficientOfVariation returns stddev/mean, or 0 when the mean is 0.
func CoefficientOfVariation(xs []float64) float64 {
	m := Mean(xs)
	if m == 0 {
		return 0
	}
	return math.Abs(StdDev(xs) / m)
}

// Momentum returns (last-first)/first over the window, or 0 when first is 0.
func Momentum(xs []float64) float64 {
	if len(xs) < 2 || xs[0] == 0 {
		return 0
	}
	return (xs[len(xs)-1] - xs[0]) / xs[0]
}
