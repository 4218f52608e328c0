package optimization

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/quantumfolio/pkg/formulas"
)

// DefaultVaRConfidence is the confidence level used when none is configured.
const DefaultVaRConfidence = 0.95

// RiskMetrics holds parametric Gaussian tail measures of a portfolio's
// periodic returns. VaR and CVaR are return thresholds (negative values are losses).
type RiskMetrics struct {
	Confidence float64 `json:"confidence"`
	Mean       float64 `json:"mean"`
	StdDev     float64 `json:"std_dev"`
	VaR        float64 `json:"var"`
	CVaR       float64 `json:"cvar"`
}

// DensityCurve is a sampled Gaussian pdf of portfolio returns.
type DensityCurve struct {
	X []float64 `json:"x"`
	Y []float64 `json:"y"`
}

// Density samples the fitted return distribution over mean ± 4σ.
func (rm RiskMetrics) Density(points int) DensityCurve {
	xs, ys := formulas.GaussianDensity(rm.Mean, rm.StdDev, 4, points)
	return DensityCurve{X: xs, Y: ys}
}

// CalculateRiskMetrics fits a normal distribution to the portfolio's realized
// returns and derives VaR and CVaR at the given confidence.
//
// The moments come from the raw periodic series (unbiased covariance, no
// annualization), independently of the posterior used for optimization.
func CalculateRiskMetrics(series ReturnSeries, weights PortfolioWeights, confidence float64) (RiskMetrics, error) {
	if math.IsNaN(confidence) || confidence <= 0 || confidence >= 1 {
		return RiskMetrics{}, configErr("var_confidence", "", "confidence must lie strictly between 0 and 1")
	}
	universe := series.Universe()
	for _, asset := range sortedKeys(weights) {
		if _, ok := universe.Index(asset); !ok {
			return RiskMetrics{}, configErr("weights", asset, "asset is not in the universe")
		}
	}
	if t := series.Observations(); t < minObservations {
		return RiskMetrics{}, &InsufficientDataError{Observations: t, Required: minObservations}
	}

	w := weights.Vector(universe)
	means := make([]float64, universe.Len())
	for j := range means {
		means[j] = stat.Mean(series.Column(j), nil)
	}

	cov := mat.NewSymDense(universe.Len(), nil)
	stat.CovarianceMatrix(cov, series.Matrix(), nil)

	mean := formulas.PortfolioMean(w, means)
	std := formulas.PortfolioVolatility(w, cov)
	if !(std > 0) {
		return RiskMetrics{}, &DegenerateDistributionError{StdDev: std}
	}

	return RiskMetrics{
		Confidence: confidence,
		Mean:       mean,
		StdDev:     std,
		VaR:        formulas.ParametricVaR(mean, std, confidence),
		CVaR:       formulas.ParametricCVaR(mean, std, confidence),
	}, nil
}

// CorrelationMatrix returns the Pearson correlation of the series' columns.
func CorrelationMatrix(series ReturnSeries) (*mat.SymDense, error) {
	if t := series.Observations(); t < minObservations {
		return nil, &InsufficientDataError{Observations: t, Required: minObservations}
	}
	corr := mat.NewSymDense(series.Universe().Len(), nil)
	stat.CorrelationMatrix(corr, series.Matrix(), nil)
	return corr, nil
}
