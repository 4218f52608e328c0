package reporting

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/quantumfolio/internal/modules/optimization"
)

func TestRenderFrontierChart(t *testing.T) {
	f := optimization.Frontier{Points: []optimization.FrontierPoint{
		{Volatility: 0.10, Return: 0.05},
		{Volatility: 0.15, Return: 0.08},
		{Volatility: 0.20, Return: 0.10},
	}}

	png, err := RenderFrontierChart(f, "Efficient frontier")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")), "expected PNG output")
}

func TestRenderFrontierChart_Flat(t *testing.T) {
	f := optimization.Frontier{Points: []optimization.FrontierPoint{
		{Volatility: 0.10, Return: 0.05},
		{Volatility: 0.12, Return: 0.05},
	}}

	_, err := RenderFrontierChart(f, "flat frontier")
	assert.NoError(t, err)
}

func TestRenderFrontierChart_Empty(t *testing.T) {
	_, err := RenderFrontierChart(optimization.Frontier{Skipped: []optimization.SkippedPoint{{TargetVolatility: 0}}}, "empty")
	assert.True(t, errors.Is(err, ErrEmptyFrontier))
}

func TestRenderDensityChart(t *testing.T) {
	risk := optimization.RiskMetrics{Confidence: 0.95, Mean: 0.0004, StdDev: 0.012, VaR: -0.0193, CVaR: -0.0243}

	png, err := RenderDensityChart(risk.Density(50), risk, "Return density")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	_, err = RenderDensityChart(optimization.DensityCurve{}, risk, "empty")
	assert.Error(t, err)
}

func TestRenderAllocationChart(t *testing.T) {
	result := &optimization.Result{
		Assets:        []string{"AAPL", "MSFT", "GOOG"},
		MarketWeights: optimization.MarketWeights{"AAPL": 0.4, "MSFT": 0.35, "GOOG": 0.25},
		Weights:       optimization.PortfolioWeights{"AAPL": 0.6, "GOOG": 0.4},
	}

	png, err := RenderAllocationChart(result, "Allocation")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	_, err = RenderAllocationChart(&optimization.Result{}, "empty")
	assert.Error(t, err)
}
