package optimization

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateRiskMetrics(t *testing.T) {
	rs := fourPeriodSeries(t)

	// Portfolio returns are [0.015, -0.005, 0.01, 0.01]:
	// mean 0.0075, unbiased variance 7.5e-5.
	rm, err := CalculateRiskMetrics(rs, PortfolioWeights{"A": 0.5, "B": 0.5}, 0.95)
	require.NoError(t, err)

	std := math.Sqrt(7.5e-5)
	assert.Equal(t, 0.95, rm.Confidence)
	assert.InDelta(t, 0.0075, rm.Mean, 1e-15)
	assert.InDelta(t, std, rm.StdDev, 1e-12)
	assert.InDelta(t, 0.0075-1.6448536269514726*std, rm.VaR, 1e-9)
	assert.InDelta(t, 0.0075-2.0627128075074306*std, rm.CVaR, 1e-9)
	assert.LessOrEqual(t, rm.CVaR, rm.VaR)
}

func TestCalculateRiskMetrics_CVaRNeverAboveVaR(t *testing.T) {
	rs := fourPeriodSeries(t)
	weights := []PortfolioWeights{
		{"A": 1},
		{"B": 1},
		{"A": 0.3, "B": 0.7},
	}

	for _, w := range weights {
		for _, c := range []float64{0.5, 0.9, 0.95, 0.99, 0.999} {
			rm, err := CalculateRiskMetrics(rs, w, c)
			require.NoError(t, err)
			assert.LessOrEqual(t, rm.CVaR, rm.VaR, "weights %v confidence %v", w, c)
		}
	}
}

func TestCalculateRiskMetrics_IgnoresAbsentAssets(t *testing.T) {
	rs := fourPeriodSeries(t)

	rm, err := CalculateRiskMetrics(rs, PortfolioWeights{"A": 1}, 0.95)
	require.NoError(t, err)
	assert.InDelta(t, 0.005, rm.Mean, 1e-15)
	assert.InDelta(t, math.Sqrt(0.0013/3), rm.StdDev, 1e-12)
}

func TestCalculateRiskMetrics_Errors(t *testing.T) {
	rs := fourPeriodSeries(t)
	weights := PortfolioWeights{"A": 0.5, "B": 0.5}

	for _, c := range []float64{0, 1, -0.5, 1.5, math.NaN()} {
		_, err := CalculateRiskMetrics(rs, weights, c)
		var cfgErr *ConfigurationError
		require.True(t, errors.As(err, &cfgErr), "confidence %v", c)
		assert.Equal(t, "var_confidence", cfgErr.Field)
	}

	_, err := CalculateRiskMetrics(rs, PortfolioWeights{"Z": 1}, 0.95)
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "Z", cfgErr.Asset)

	u := mustUniverse(t, "A", "B")
	short, err := NewReturnSeries(u, nil, [][]float64{{0.01, 0.02}})
	require.NoError(t, err)
	_, err = CalculateRiskMetrics(short, weights, 0.95)
	var insufficient *InsufficientDataError
	assert.True(t, errors.As(err, &insufficient))
}

func TestCalculateRiskMetrics_Degenerate(t *testing.T) {
	u := mustUniverse(t, "A", "B")
	rs, err := NewReturnSeries(u, nil, [][]float64{
		{0, 0.01},
		{0, -0.01},
		{0, 0.02},
	})
	require.NoError(t, err)

	_, err = CalculateRiskMetrics(rs, PortfolioWeights{"A": 1}, 0.95)
	var degenerate *DegenerateDistributionError
	require.True(t, errors.As(err, &degenerate))
	assert.Equal(t, 0.0, degenerate.StdDev)
}

func TestRiskMetrics_Density(t *testing.T) {
	rm := RiskMetrics{Mean: 0.01, StdDev: 0.02}

	curve := rm.Density(201)
	require.Len(t, curve.X, 201)
	require.Len(t, curve.Y, 201)
	assert.InDelta(t, 0.01-0.08, curve.X[0], 1e-15)
	assert.InDelta(t, 0.01, curve.X[100], 1e-15)
	assert.InDelta(t, 1/(0.02*math.Sqrt(2*math.Pi)), curve.Y[100], 1e-9)

	assert.Empty(t, RiskMetrics{}.Density(10).X)
}

func TestCorrelationMatrix(t *testing.T) {
	rs := fourPeriodSeries(t)

	corr, err := CorrelationMatrix(rs)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, corr.At(0, 0), 1e-12)
	assert.InDelta(t, 1.0, corr.At(1, 1), 1e-12)
	want := (-0.0005 / 3) / math.Sqrt(0.0013/3*0.0002)
	assert.InDelta(t, want, corr.At(0, 1), 1e-12)
}
