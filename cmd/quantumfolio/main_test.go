package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/quantumfolio/internal/modules/optimization"
	"github.com/aristath/quantumfolio/internal/modules/universe"
	"github.com/aristath/quantumfolio/internal/reporting"
)

func sampleResult() *optimization.Result {
	return &optimization.Result{
		RunID:               "run-1",
		CreatedAt:           time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
		Assets:              []string{"AAPL", "MSFT"},
		Observations:        59,
		DroppedRows:         1,
		MarketWeights:       optimization.MarketWeights{"AAPL": 0.5, "MSFT": 0.5},
		MarketWeightsSource: optimization.WeightSourceEqualPlaceholder,
		ImpliedReturns:      map[string]float64{"AAPL": 0.08, "MSFT": 0.06},
		PosteriorReturns:    map[string]float64{"AAPL": 0.09, "MSFT": 0.05},
		Weights:             optimization.PortfolioWeights{"AAPL": 0.7, "MSFT": 0.3},
		Performance:         optimization.Performance{ExpectedReturn: 0.078, Volatility: 0.2, Sharpe: 0.39},
		Risk:                optimization.RiskMetrics{Confidence: 0.95, Mean: 0.0003, StdDev: 0.012, VaR: -0.019, CVaR: -0.024},
	}
}

func TestRendererFor(t *testing.T) {
	for _, format := range []string{"", "table", "JSON"} {
		_, err := rendererFor(format)
		assert.NoError(t, err, format)
	}
	_, err := rendererFor("yaml")
	assert.Error(t, err)
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderTable(&buf, sampleResult()))

	out := buf.String()
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "70.00%")
	assert.Contains(t, out, "VaR (95%)")
	assert.Contains(t, out, "-1.90%")
	assert.Contains(t, out, "equal placeholder")
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderJSON(&buf, sampleResult()))

	var decoded optimization.Result
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.InDelta(t, 0.7, decoded.Weights["AAPL"], 1e-12)
}

func TestRenderSyncReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderSyncReport(&buf, &universe.SyncReport{
		Symbols:  []string{"MSFT", "AAPL"},
		Stored:   map[string]int{"MSFT": 10},
		Rejected: map[string]int{"MSFT": 1},
		Skipped:  []string{"AAPL"},
	}))
	out := buf.String()
	assert.Contains(t, out, "up to date")
	assert.Contains(t, out, "synced")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("AAPL")), bytes.Index(buf.Bytes(), []byte("MSFT")))
}

func TestRenderRunList_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderRunList(&buf, nil))
	assert.Equal(t, "no runs stored\n", buf.String())
}

func TestSyncTargets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"assets": ["AAPL", "MSFT"],
		"start_date": "2024-01-01",
		"end_date": "2024-06-30",
		"risk_aversion": 2.5
	}`), 0o644))

	t.Run("from config", func(t *testing.T) {
		symbols, start, end, err := syncTargets(path, "", "", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)
		assert.Equal(t, "2024-01-01", start.Format("2006-01-02"))
		assert.Equal(t, "2024-06-30", end.Format("2006-01-02"))
	})

	t.Run("flags override config", func(t *testing.T) {
		symbols, start, _, err := syncTargets(path, " goog, amzn ,", "2024-03-01", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"GOOG", "AMZN"}, symbols)
		assert.Equal(t, "2024-03-01", start.Format("2006-01-02"))
	})

	t.Run("missing dates", func(t *testing.T) {
		_, _, _, err := syncTargets("", "AAPL", "2024-01-01", "")
		assert.Error(t, err)
	})

	t.Run("no symbols", func(t *testing.T) {
		_, _, _, err := syncTargets("", "", "2024-01-01", "2024-02-01")
		assert.Error(t, err)
	})

	t.Run("bad date", func(t *testing.T) {
		_, _, _, err := syncTargets("", "AAPL", "yesterday", "2024-02-01")
		assert.Error(t, err)
	})
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "quantumfolio dev")
}

func TestWriteFrontierChart(t *testing.T) {
	result := sampleResult()
	path := filepath.Join(t.TempDir(), "frontier.png")

	err := writeFrontierChart(path, result)
	assert.ErrorIs(t, err, reporting.ErrEmptyFrontier)

	result.Frontier = optimization.Frontier{Points: []optimization.FrontierPoint{
		{Volatility: 0.12, Return: 0.05, Sharpe: 0.42},
		{Volatility: 0.18, Return: 0.08, Sharpe: 0.44},
	}}
	require.NoError(t, writeFrontierChart(path, result))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))
}
