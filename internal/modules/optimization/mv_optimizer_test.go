package optimization

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// twoAssetEstimate is uncorrelated with μ = [0.10, 0.20] and σ = [0.20, 0.30].
// The minimum-variance mix is 25:11.1̅ giving volatility √(1/36.1̅) ≈ 0.16641.
func twoAssetEstimate(t *testing.T) (AssetUniverse, PosteriorEstimate) {
	t.Helper()
	return mustUniverse(t, "A", "B"), PosteriorEstimate{
		Returns:    mat.NewVecDense(2, []float64{0.10, 0.20}),
		Covariance: mat.NewSymDense(2, []float64{0.04, 0, 0, 0.09}),
	}
}

func assertValidWeights(t *testing.T, w PortfolioWeights) {
	t.Helper()
	sum := 0.0
	for asset, v := range w {
		assert.GreaterOrEqual(t, v, 0.0, "weight for %s should be non-negative", asset)
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9, "weights should sum to 1")
}

func newTestOptimizer(rf float64) *MVOptimizer {
	return NewMVOptimizer(nil, MVOptions{RiskFreeRate: rf}, zerolog.Nop())
}

func TestMVOptimizer_MaxSharpe_Uncorrelated(t *testing.T) {
	u, est := twoAssetEstimate(t)

	w, err := newTestOptimizer(0).MaxSharpe(est, u)
	require.NoError(t, err)
	assertValidWeights(t, w)

	// Tangency weights are proportional to Σ⁻¹μ = [2.5, 2.2̅].
	assert.InDelta(t, 2.5/(2.5+20.0/9), w["A"], 1e-9)
	assert.InDelta(t, (20.0/9)/(2.5+20.0/9), w["B"], 1e-9)
}

func TestMVOptimizer_MaxSharpe_ExcludesNegativeExcessAsset(t *testing.T) {
	u := mustUniverse(t, "A", "B", "C")
	est := PosteriorEstimate{
		Returns:    mat.NewVecDense(3, []float64{0.10, -0.05, 0.08}),
		Covariance: mat.NewSymDense(3, []float64{0.04, 0, 0, 0, 0.04, 0, 0, 0, 0.04}),
	}

	w, err := newTestOptimizer(0).MaxSharpe(est, u)
	require.NoError(t, err)
	assertValidWeights(t, w)

	assert.InDelta(t, 2.5/4.5, w["A"], 1e-9)
	assert.Equal(t, 0.0, w["B"])
	assert.InDelta(t, 2.0/4.5, w["C"], 1e-9)
}

func TestMVOptimizer_MaxSharpe_BeatsAlternatives(t *testing.T) {
	u := mustUniverse(t, "A", "B", "C")
	est := PosteriorEstimate{
		Returns: mat.NewVecDense(3, []float64{0.08, 0.12, 0.10}),
		Covariance: mat.NewSymDense(3, []float64{
			0.040, 0.012, 0.006,
			0.012, 0.090, 0.018,
			0.006, 0.018, 0.060,
		}),
	}
	opt := newTestOptimizer(0.02)

	w, err := opt.MaxSharpe(est, u)
	require.NoError(t, err)
	assertValidWeights(t, w)
	best := opt.Performance(w, est, u).Sharpe

	alternatives := []PortfolioWeights{
		{"A": 1},
		{"B": 1},
		{"C": 1},
		{"A": 1.0 / 3, "B": 1.0 / 3, "C": 1.0 / 3},
		{"A": 0.5, "C": 0.5},
	}
	for _, alt := range alternatives {
		assert.GreaterOrEqual(t, best+1e-9, opt.Performance(alt, est, u).Sharpe)
	}
}

func trackerEstimate(t *testing.T, n int) (AssetUniverse, PosteriorEstimate) {
	t.Helper()
	assets := make([]string, n)
	mu := make([]float64, n)
	for i := range assets {
		assets[i] = fmt.Sprintf("T%d", i)
		mu[i] = 0.08 + 0.001*float64(i%3)
	}
	return mustUniverse(t, assets...), PosteriorEstimate{
		Returns:    mat.NewVecDense(n, mu),
		Covariance: trackerCovariance(n, 1e-6),
	}
}

func TestMVOptimizer_MaxSharpe_CorrelatedTrackers(t *testing.T) {
	opt := newTestOptimizer(0)

	for _, n := range []int{3, 4, 6, 8, 15} {
		u, est := trackerEstimate(t, n)

		w, err := opt.MaxSharpe(est, u)
		require.NoError(t, err, "n=%d", n)
		assertValidWeights(t, w)

		best := opt.Performance(w, est, u).Sharpe
		for _, asset := range u.Assets() {
			single := opt.Performance(PortfolioWeights{asset: 1}, est, u).Sharpe
			assert.GreaterOrEqual(t, best+1e-9, single, "n=%d asset=%s", n, asset)
		}

		_, err = opt.MinVolatility(est, u)
		require.NoError(t, err, "n=%d", n)
	}
}

func TestMVOptimizer_MaxSharpe_NoPositiveExcess(t *testing.T) {
	u, est := twoAssetEstimate(t)

	_, err := newTestOptimizer(0.25).MaxSharpe(est, u)
	var inf *InfeasibleError
	require.True(t, errors.As(err, &inf))
	assert.Equal(t, "max_sharpe", inf.Operation)
}

func TestMVOptimizer_MinVolatility(t *testing.T) {
	u, est := twoAssetEstimate(t)
	opt := newTestOptimizer(0)

	w, err := opt.MinVolatility(est, u)
	require.NoError(t, err)
	assertValidWeights(t, w)

	assert.InDelta(t, 25/(25+100.0/9), w["A"], 1e-9)
	assert.InDelta(t, math.Sqrt(1/(25+100.0/9)), opt.Performance(w, est, u).Volatility, 1e-9)
}

func TestMVOptimizer_EfficientReturn(t *testing.T) {
	u, est := twoAssetEstimate(t)
	opt := newTestOptimizer(0)

	w, err := opt.EfficientReturn(est, u, 0.15)
	require.NoError(t, err)
	assertValidWeights(t, w)
	assert.InDelta(t, 0.5, w["A"], 1e-9)
	assert.InDelta(t, 0.15, opt.Performance(w, est, u).ExpectedReturn, 1e-9)

	for _, target := range []float64{0.05, 0.25} {
		_, err := opt.EfficientReturn(est, u, target)
		var inf *InfeasibleError
		require.True(t, errors.As(err, &inf), "target %v", target)
		assert.Equal(t, target, inf.Target)
	}
}

func TestMVOptimizer_EfficientReturn_EqualReturns(t *testing.T) {
	u := mustUniverse(t, "A", "B")
	est := PosteriorEstimate{
		Returns:    mat.NewVecDense(2, []float64{0.1, 0.1}),
		Covariance: mat.NewSymDense(2, []float64{0.04, 0, 0, 0.04}),
	}
	opt := newTestOptimizer(0)

	w, err := opt.EfficientReturn(est, u, 0.1)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, w["A"], 1e-9)

	_, err = opt.EfficientReturn(est, u, 0.2)
	var inf *InfeasibleError
	assert.True(t, errors.As(err, &inf))
}

func TestMVOptimizer_EfficientRisk(t *testing.T) {
	u, est := twoAssetEstimate(t)
	opt := newTestOptimizer(0)

	t.Run("binding target", func(t *testing.T) {
		w, err := opt.EfficientRisk(est, u, 0.2)
		require.NoError(t, err)
		assertValidWeights(t, w)

		// 0.04(1-x)² + 0.09x² = 0.04 gives x = 8/13 in B.
		assert.InDelta(t, 8.0/13, w["B"], 1e-8)
		perf := opt.Performance(w, est, u)
		assert.LessOrEqual(t, perf.Volatility, 0.2+1e-9)
		assert.InDelta(t, 0.1+0.1*8.0/13, perf.ExpectedReturn, 1e-8)
	})

	t.Run("below minimum volatility", func(t *testing.T) {
		_, err := opt.EfficientRisk(est, u, 0.1)
		var inf *InfeasibleError
		require.True(t, errors.As(err, &inf))
		assert.Equal(t, "efficient_risk", inf.Operation)
		assert.Equal(t, 0.1, inf.Target)
	})

	t.Run("above maximum-return volatility", func(t *testing.T) {
		w, err := opt.EfficientRisk(est, u, 0.4)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, w["B"], 1e-9)
		assert.InDelta(t, 0.0, w["A"], 1e-9)
	})

	t.Run("exactly at minimum volatility", func(t *testing.T) {
		w, err := opt.EfficientRisk(est, u, math.Sqrt(1/(25+100.0/9)))
		require.NoError(t, err)
		assert.InDelta(t, 25/(25+100.0/9), w["A"], 1e-6)
	})
}

func TestMVOptimizer_Performance(t *testing.T) {
	u, est := twoAssetEstimate(t)
	opt := newTestOptimizer(0.02)

	perf := opt.Performance(PortfolioWeights{"A": 0.5, "B": 0.5}, est, u)
	assert.InDelta(t, 0.15, perf.ExpectedReturn, 1e-12)
	assert.InDelta(t, math.Sqrt(0.0325), perf.Volatility, 1e-12)
	assert.InDelta(t, 0.13/math.Sqrt(0.0325), perf.Sharpe, 1e-9)
	assert.Equal(t, 0.02, opt.RiskFreeRate())
}

func TestMVOptimizer_RejectsMismatchedEstimate(t *testing.T) {
	_, est := twoAssetEstimate(t)
	u := mustUniverse(t, "A", "B", "C")

	_, err := newTestOptimizer(0).MaxSharpe(est, u)
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "posterior", cfgErr.Field)

	_, err = newTestOptimizer(0).MinVolatility(PosteriorEstimate{}, u)
	require.True(t, errors.As(err, &cfgErr))
}

type stubSolver struct {
	x     []float64
	err   error
	calls int
}

func (s *stubSolver) Solve(QuadraticProblem) ([]float64, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]float64, len(s.x))
	copy(out, s.x)
	return out, nil
}

func TestMVOptimizer_UsesInjectedSolver(t *testing.T) {
	u, est := twoAssetEstimate(t)

	stub := &stubSolver{x: []float64{3, 1}}
	w, err := NewMVOptimizer(stub, MVOptions{}, zerolog.Nop()).MaxSharpe(est, u)
	require.NoError(t, err)
	assert.Equal(t, 1, stub.calls)
	assert.InDelta(t, 0.75, w["A"], 1e-12)
	assert.InDelta(t, 0.25, w["B"], 1e-12)

	failing := &stubSolver{err: infeasible("quadratic program", math.NaN(), "stub")}
	_, err = NewMVOptimizer(failing, MVOptions{}, zerolog.Nop()).MinVolatility(est, u)
	var inf *InfeasibleError
	assert.True(t, errors.As(err, &inf))
}

func TestCleanWeights(t *testing.T) {
	u := mustUniverse(t, "A", "B", "C")

	tests := []struct {
		name    string
		raw     []float64
		cutoff  float64
		want    PortfolioWeights
		wantErr bool
	}{
		{
			name:   "already clean",
			raw:    []float64{0.2, 0.3, 0.5},
			cutoff: DefaultWeightCutoff,
			want:   PortfolioWeights{"A": 0.2, "B": 0.3, "C": 0.5},
		},
		{
			name:   "tiny weight removed and renormalized",
			raw:    []float64{0.5, 0.49995, 0.00005},
			cutoff: DefaultWeightCutoff,
			want:   PortfolioWeights{"A": 0.5 / 0.99995, "B": 0.49995 / 0.99995, "C": 0},
		},
		{
			name:   "rounding noise below zero clipped",
			raw:    []float64{0.6, 0.4, -1e-9},
			cutoff: 0,
			want:   PortfolioWeights{"A": 0.6, "B": 0.4, "C": 0},
		},
		{
			name:    "real short position rejected",
			raw:     []float64{0.6, 0.5, -0.1},
			cutoff:  DefaultWeightCutoff,
			wantErr: true,
		},
		{
			name:    "nan rejected",
			raw:     []float64{math.NaN(), 0.5, 0.5},
			cutoff:  DefaultWeightCutoff,
			wantErr: true,
		},
		{
			name:    "everything below cutoff",
			raw:     []float64{0.00001, 0.00002, 0.00003},
			cutoff:  DefaultWeightCutoff,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CleanWeights(tt.raw, u, tt.cutoff)
			if tt.wantErr {
				var inf *InfeasibleError
				require.True(t, errors.As(err, &inf))
				return
			}
			require.NoError(t, err)
			for asset, want := range tt.want {
				assert.InDelta(t, want, got[asset], 1e-12, asset)
			}
			assertValidWeights(t, got)
		})
	}

	_, err := CleanWeights([]float64{1}, u, 0)
	var cfgErr *ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}
