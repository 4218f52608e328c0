package optimization

import (
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/quantumfolio/pkg/formulas"
)

const (
	// DefaultWeightCutoff zeroes weights whose magnitude falls below it.
	DefaultWeightCutoff = 1e-4
	// negativeWeightTolerance is the most negative weight accepted as zero.
	negativeWeightTolerance = -1e-8
	// volatilityTolerance absorbs rounding when comparing against the minimum volatility.
	volatilityTolerance = 1e-9
	// bisectionIterations bounds the return search in EfficientRisk.
	bisectionIterations = 100
)

// PortfolioWeights maps each asset to its allocation.
type PortfolioWeights map[string]float64

// Vector aligns the weights to the universe order.
func (pw PortfolioWeights) Vector(universe AssetUniverse) []float64 {
	out := make([]float64, universe.Len())
	for i := range out {
		out[i] = pw[universe.Asset(i)]
	}
	return out
}

// Performance is the expected return, volatility and Sharpe ratio of a portfolio.
type Performance struct {
	ExpectedReturn float64 `json:"expected_return"`
	Volatility     float64 `json:"volatility"`
	Sharpe         float64 `json:"sharpe"`
}

// MVOptions configures the optimizer.
type MVOptions struct {
	RiskFreeRate float64
	WeightCutoff float64 // DefaultWeightCutoff when zero; negative disables the cutoff
}

// MVOptimizer solves long-only mean-variance problems over a posterior estimate.
type MVOptimizer struct {
	solver       Solver
	riskFreeRate float64
	cutoff       float64
	log          zerolog.Logger
}

// NewMVOptimizer creates a new mean-variance optimizer. A nil solver selects
// the active-set solver.
func NewMVOptimizer(solver Solver, opts MVOptions, log zerolog.Logger) *MVOptimizer {
	if solver == nil {
		solver = NewActiveSetSolver()
	}
	cutoff := opts.WeightCutoff
	switch {
	case cutoff == 0:
		cutoff = DefaultWeightCutoff
	case cutoff < 0:
		cutoff = 0
	}
	return &MVOptimizer{
		solver:       solver,
		riskFreeRate: opts.RiskFreeRate,
		cutoff:       cutoff,
		log:          log.With().Str("component", "mv_optimizer").Logger(),
	}
}

// RiskFreeRate returns the rate used for Sharpe ratios.
func (o *MVOptimizer) RiskFreeRate() float64 {
	return o.riskFreeRate
}

// MaxSharpe returns the cleaned long-only portfolio with the highest Sharpe ratio.
//
// It solves min yᵀΣy subject to (μ - r_f)ᵀy = 1, y ≥ 0 and rescales w = y/Σy.
func (o *MVOptimizer) MaxSharpe(est PosteriorEstimate, universe AssetUniverse) (PortfolioWeights, error) {
	if err := checkEstimate(est, universe); err != nil {
		return nil, err
	}
	n := universe.Len()
	excess := make([]float64, n)
	for i := range excess {
		excess[i] = est.Returns.AtVec(i) - o.riskFreeRate
	}

	best := floats.MaxIdx(excess)
	if excess[best] <= 0 {
		return nil, infeasible("max_sharpe", math.NaN(), "no asset has an expected return above the risk-free rate")
	}

	y0 := make([]float64, n)
	y0[best] = 1 / excess[best]

	y, err := o.solver.Solve(QuadraticProblem{
		G:  est.Covariance,
		A:  mat.NewDense(1, n, excess),
		B:  []float64{1},
		X0: y0,
	})
	if err != nil {
		return nil, err
	}

	total := floats.Sum(y)
	if !(total > 0) {
		return nil, infeasible("max_sharpe", math.NaN(), "solver returned an empty allocation")
	}
	floats.Scale(1/total, y)

	weights, err := CleanWeights(y, universe, o.cutoff)
	if err != nil {
		return nil, err
	}

	perf := o.Performance(weights, est, universe)
	o.log.Debug().
		Float64("expected_return", perf.ExpectedReturn).
		Float64("volatility", perf.Volatility).
		Float64("sharpe", perf.Sharpe).
		Msg("Max-Sharpe portfolio solved")
	return weights, nil
}

// MinVolatility returns the global minimum-variance long-only portfolio.
func (o *MVOptimizer) MinVolatility(est PosteriorEstimate, universe AssetUniverse) (PortfolioWeights, error) {
	if err := checkEstimate(est, universe); err != nil {
		return nil, err
	}
	w, err := o.minVariance(est.Covariance)
	if err != nil {
		return nil, err
	}
	return CleanWeights(w, universe, o.cutoff)
}

// EfficientReturn returns the minimum-variance long-only portfolio whose
// expected return equals target.
func (o *MVOptimizer) EfficientReturn(est PosteriorEstimate, universe AssetUniverse, target float64) (PortfolioWeights, error) {
	if err := checkEstimate(est, universe); err != nil {
		return nil, err
	}
	w, err := o.efficientReturn(est, target)
	if err != nil {
		return nil, err
	}
	return CleanWeights(w, universe, o.cutoff)
}

// EfficientRisk returns the long-only portfolio with the highest expected
// return whose volatility does not exceed targetVolatility. On the efficient
// branch the constraint binds.
func (o *MVOptimizer) EfficientRisk(est PosteriorEstimate, universe AssetUniverse, targetVolatility float64) (PortfolioWeights, error) {
	if err := checkEstimate(est, universe); err != nil {
		return nil, err
	}
	anchors, err := o.frontierAnchors(est)
	if err != nil {
		return nil, err
	}
	w, err := o.efficientRisk(est, anchors, targetVolatility)
	if err != nil {
		return nil, err
	}
	return CleanWeights(w, universe, 0)
}

// Performance evaluates a portfolio against the estimate.
func (o *MVOptimizer) Performance(weights PortfolioWeights, est PosteriorEstimate, universe AssetUniverse) Performance {
	return performanceOf(weights.Vector(universe), est, o.riskFreeRate)
}

func performanceOf(w []float64, est PosteriorEstimate, rf float64) Performance {
	ret := formulas.PortfolioMean(w, vectorData(est.Returns))
	vol := formulas.PortfolioVolatility(w, est.Covariance)
	return Performance{
		ExpectedReturn: ret,
		Volatility:     vol,
		Sharpe:         formulas.SharpeRatio(ret, vol, rf),
	}
}

func (o *MVOptimizer) minVariance(cov mat.Symmetric) ([]float64, error) {
	n := cov.SymmetricDim()
	ones := make([]float64, n)
	x0 := make([]float64, n)
	for i := range ones {
		ones[i] = 1
		x0[i] = 1 / float64(n)
	}
	return o.solver.Solve(QuadraticProblem{
		G:  cov,
		A:  mat.NewDense(1, n, ones),
		B:  []float64{1},
		X0: x0,
	})
}

func (o *MVOptimizer) efficientReturn(est PosteriorEstimate, target float64) ([]float64, error) {
	n := est.Covariance.SymmetricDim()
	mu := vectorData(est.Returns)
	lo, hi := floats.MinIdx(mu), floats.MaxIdx(mu)
	muMin, muMax := mu[lo], mu[hi]
	tol := 1e-12 * (1 + math.Abs(muMax) + math.Abs(muMin))

	if muMax-muMin <= tol {
		// Every portfolio has the same return; the return constraint is redundant.
		if math.Abs(target-muMax) > tol {
			return nil, infeasible("efficient_return", target, "all assets have the same expected return")
		}
		return o.minVariance(est.Covariance)
	}
	if target > muMax+tol || target < muMin-tol {
		return nil, infeasible("efficient_return", target, "target return is outside the range of asset returns")
	}
	target = math.Max(muMin, math.Min(muMax, target))

	if target >= muMax-tol && uniqueMax(mu, tol) {
		// Only the top asset alone reaches the maximum return.
		x := make([]float64, n)
		x[hi] = 1
		return x, nil
	}

	// Feasible start mixing the lowest- and highest-return assets.
	x0 := make([]float64, n)
	x0[hi] = (target - muMin) / (muMax - muMin)
	x0[lo] = 1 - x0[hi]

	a := mat.NewDense(2, n, nil)
	for j := 0; j < n; j++ {
		a.Set(0, j, 1)
		a.Set(1, j, mu[j])
	}
	return o.solver.Solve(QuadraticProblem{
		G:  est.Covariance,
		A:  a,
		B:  []float64{1, target},
		X0: x0,
	})
}

// frontierAnchors holds the two ends of the efficient branch.
type frontierAnchors struct {
	minVol    []float64
	minVolVol float64
	minVolRet float64
	top       []float64
	topVol    float64
	topRet    float64
}

func (o *MVOptimizer) frontierAnchors(est PosteriorEstimate) (frontierAnchors, error) {
	gmv, err := o.minVariance(est.Covariance)
	if err != nil {
		return frontierAnchors{}, err
	}
	gmvPerf := performanceOf(gmv, est, o.riskFreeRate)

	mu := vectorData(est.Returns)
	top, err := o.efficientReturn(est, floats.Max(mu))
	if err != nil {
		return frontierAnchors{}, err
	}
	topPerf := performanceOf(top, est, o.riskFreeRate)

	return frontierAnchors{
		minVol:    gmv,
		minVolVol: gmvPerf.Volatility,
		minVolRet: gmvPerf.ExpectedReturn,
		top:       top,
		topVol:    topPerf.Volatility,
		topRet:    topPerf.ExpectedReturn,
	}, nil
}

// efficientRisk bisects on the target return between the minimum-variance
// and maximum-return portfolios. Volatility along that branch is increasing
// in the target return.
func (o *MVOptimizer) efficientRisk(est PosteriorEstimate, anchors frontierAnchors, targetVol float64) ([]float64, error) {
	if math.IsNaN(targetVol) || targetVol < anchors.minVolVol-volatilityTolerance {
		return nil, infeasible("efficient_risk", targetVol,
			"target volatility is below the minimum achievable volatility")
	}
	if targetVol >= anchors.topVol || anchors.topRet <= anchors.minVolRet {
		return copyWeights(anchors.top), nil
	}

	lo, hi := anchors.minVolRet, anchors.topRet
	best := copyWeights(anchors.minVol)
	for i := 0; i < bisectionIterations && hi-lo > 1e-12*(1+math.Abs(hi)); i++ {
		mid := lo + (hi-lo)/2
		w, err := o.efficientReturn(est, mid)
		if err != nil {
			return nil, err
		}
		if formulas.PortfolioVolatility(w, est.Covariance) <= targetVol {
			lo, best = mid, w
		} else {
			hi = mid
		}
	}
	return best, nil
}

// CleanWeights zeroes weights below cutoff in magnitude and renormalizes so
// the weights sum to exactly one. A weight below -1e-8 is rejected.
func CleanWeights(raw []float64, universe AssetUniverse, cutoff float64) (PortfolioWeights, error) {
	if len(raw) != universe.Len() {
		return nil, configErr("weights", "", "weight vector length does not match the asset universe")
	}
	w := make([]float64, len(raw))
	for i, v := range raw {
		switch {
		case math.IsNaN(v):
			return nil, infeasible("clean_weights", math.NaN(), "weight is not a number")
		case v < negativeWeightTolerance:
			return nil, infeasible("clean_weights", math.NaN(), "solution violates the long-only constraint")
		case v < 0, math.Abs(v) < cutoff:
			w[i] = 0
		default:
			w[i] = v
		}
	}

	total := floats.Sum(w)
	if !(total > 0) {
		return nil, infeasible("clean_weights", math.NaN(), "every weight was removed by the cutoff")
	}
	floats.Scale(1/total, w)

	out := make(PortfolioWeights, len(w))
	for i, v := range w {
		out[universe.Asset(i)] = v
	}
	return out, nil
}

func checkEstimate(est PosteriorEstimate, universe AssetUniverse) error {
	if est.Returns == nil || est.Covariance == nil {
		return configErr("posterior", "", "posterior estimate is empty")
	}
	if est.Returns.Len() != universe.Len() || est.Covariance.SymmetricDim() != universe.Len() {
		return configErr("posterior", "", "posterior dimensions do not match the asset universe")
	}
	return nil
}

func uniqueMax(mu []float64, tol float64) bool {
	top := floats.Max(mu)
	count := 0
	for _, v := range mu {
		if v >= top-tol {
			count++
		}
	}
	return count == 1
}

func copyWeights(w []float64) []float64 {
	out := make([]float64, len(w))
	copy(out, w)
	return out
}

func vectorData(v mat.Vector) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
