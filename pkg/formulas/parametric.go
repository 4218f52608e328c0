// Package formulas holds closed-form statistics shared by the risk engine.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// ParametricVaR returns the Gaussian Value at Risk: the (1-confidence)
// quantile of N(mean, stdDev). Losses are negative returns, so the result is
// a return threshold rather than a positive loss figure.
//
// Callers must ensure stdDev > 0 and 0 < confidence < 1.
func ParametricVaR(mean, stdDev, confidence float64) float64 {
	return distuv.Normal{Mu: mean, Sigma: stdDev}.Quantile(1 - confidence)
}

// ParametricCVaR returns the Gaussian expected shortfall
//
//	CVaR = μ - σ·φ(Φ⁻¹(c)) / (1 - c)
//
// where φ and Φ⁻¹ are the standard normal density and quantile.
func ParametricCVaR(mean, stdDev, confidence float64) float64 {
	z := distuv.UnitNormal.Quantile(confidence)
	return mean - stdDev*distuv.UnitNormal.Prob(z)/(1-confidence)
}

// GaussianDensity samples the N(mean, stdDev) pdf at points evenly spaced over
// mean ± width·stdDev. It returns the x values and their densities.
func GaussianDensity(mean, stdDev, width float64, points int) ([]float64, []float64) {
	if points < 2 || stdDev <= 0 {
		return nil, nil
	}
	dist := distuv.Normal{Mu: mean, Sigma: stdDev}
	xs := Linspace(mean-width*stdDev, mean+width*stdDev, points)
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = dist.Prob(x)
	}
	return xs, ys
}

// Linspace returns n evenly spaced values over [start, end], both included.
func Linspace(start, end float64, n int) []float64 {
	switch {
	case n <= 0:
		return []float64{}
	case n == 1:
		return []float64{start}
	}
	return floats.Span(make([]float64, n), start, end)
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
