package formulas

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// PortfolioMean returns wᵀμ.
func PortfolioMean(weights, means []float64) float64 {
	return floats.Dot(weights, means)
}

// PortfolioVolatility returns sqrt(wᵀΣw). Tiny negative variances produced by
// rounding are clamped to zero.
func PortfolioVolatility(weights []float64, cov mat.Symmetric) float64 {
	w := mat.NewVecDense(len(weights), weights)
	variance := mat.Inner(w, cov, w)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

// SharpeRatio returns (ret - riskFree) / vol, or 0 when vol is zero.
func SharpeRatio(ret, vol, riskFree float64) float64 {
	if vol == 0 {
		return 0
	}
	return (ret - riskFree) / vol
}
