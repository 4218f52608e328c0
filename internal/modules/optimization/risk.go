package optimization

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// CovarianceEstimator names a covariance estimation method.
type CovarianceEstimator string

const (
	// EstimatorSample is the unbiased sample covariance.
	EstimatorSample CovarianceEstimator = "sample"
	// EstimatorLedoitWolf shrinks the sample covariance towards a constant-correlation target.
	EstimatorLedoitWolf CovarianceEstimator = "ledoit_wolf"
)

// minObservations is the smallest T for which a sample covariance is defined.
const minObservations = 2

// SampleCovariance computes the unbiased (T-1) sample covariance of the series
// and scales it by frequency (periods per year). A frequency <= 1 leaves the
// covariance periodic.
//
// The result is a fresh matrix; identical input produces bit-identical output.
func SampleCovariance(series ReturnSeries, frequency int) (*mat.SymDense, error) {
	t := series.Observations()
	if t < minObservations {
		return nil, &InsufficientDataError{Observations: t, Required: minObservations}
	}

	n := series.Universe().Len()
	cov := mat.NewSymDense(n, nil)
	stat.CovarianceMatrix(cov, series.Matrix(), nil)

	if frequency > 1 {
		cov.ScaleSym(float64(frequency), cov)
	}
	return cov, nil
}

// EstimateCovariance dispatches to the configured estimator.
func EstimateCovariance(series ReturnSeries, frequency int, estimator CovarianceEstimator) (*mat.SymDense, error) {
	cov, err := SampleCovariance(series, frequency)
	if err != nil {
		return nil, err
	}

	switch estimator {
	case "", EstimatorSample:
		return cov, nil
	case EstimatorLedoitWolf:
		shrunk, _ := LedoitWolfShrinkage(cov)
		return shrunk, nil
	default:
		return nil, configErr("estimator", "", "unknown covariance estimator "+string(estimator))
	}
}

// LedoitWolfShrinkage shrinks a covariance matrix towards a constant-correlation
// target: Σ_shrunk = (1-δ)Σ + δF, where F has the average variance on the
// diagonal and the average covariance elsewhere. It returns the shrunk matrix
// and the intensity δ, which is capped at 0.5.
//
// Reference: Ledoit, O., & Wolf, M. (2004). "A well-conditioned estimator for
// large-dimensional covariance matrices"
func LedoitWolfShrinkage(cov mat.Symmetric) (*mat.SymDense, float64) {
	n := cov.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	out.CopySym(cov)
	if n < 2 {
		return out, 0
	}

	var avgVar, avgCov float64
	for i := 0; i < n; i++ {
		avgVar += cov.At(i, i)
		for j := 0; j < n; j++ {
			if i != j {
				avgCov += cov.At(i, j)
			}
		}
	}
	avgVar /= float64(n)
	avgCov /= float64(n * (n - 1))

	target := func(i, j int) float64 {
		if i == j {
			return avgVar
		}
		if avgVar > 0 {
			return avgCov
		}
		return 0
	}

	shrinkage := 0.2
	if n > 2 && avgVar > 0 {
		var sumSqDiff, sum, sumSq float64
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				v := cov.At(i, j)
				d := v - target(i, j)
				sumSqDiff += d * d
				sum += v
				sumSq += v * v
			}
		}
		count := float64(n * n)
		meanSqDiff := sumSqDiff / count
		mean := sum / count
		varSample := sumSq/count - mean*mean

		if varSample > 0 && meanSqDiff > 0 {
			shrinkage = math.Min(0.5, math.Max(0.0, varSample/(varSample+meanSqDiff)))
		}
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, (1-shrinkage)*cov.At(i, j)+shrinkage*target(i, j))
		}
	}
	return out, shrinkage
}
