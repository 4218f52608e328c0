package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/aristath/quantumfolio/internal/modules/optimization"
	"github.com/aristath/quantumfolio/internal/modules/universe"
	"github.com/aristath/quantumfolio/internal/reporting"
)

type renderer func(w io.Writer, result *optimization.Result) error

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func rendererFor(format string) (renderer, error) {
	switch strings.ToLower(format) {
	case "", "table":
		return renderTable, nil
	case "json":
		return renderJSON, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (use table or json)", format)
	}
}

func renderJSON(w io.Writer, result *optimization.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style { return cellStyle }).
		Headers(headers...)
}

func renderTable(w io.Writer, result *optimization.Result) error {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s (%d observations, %d dropped)\n",
		titleStyle.Render("Run"), result.RunID, result.Observations, result.DroppedRows)
	if result.MarketWeightsSource == optimization.WeightSourceEqualPlaceholder {
		b.WriteString(warnStyle.Render("No market caps configured: equal placeholder weights were used for the prior"))
		b.WriteString("\n")
	}

	assets := newTable("Asset", "Market", "Implied", "Posterior", "Weight")
	for _, asset := range result.Assets {
		assets.Row(
			asset,
			pct(result.MarketWeights[asset]),
			pct(result.ImpliedReturns[asset]),
			pct(result.PosteriorReturns[asset]),
			pct(result.Weights[asset]),
		)
	}
	b.WriteString(assets.String())
	b.WriteString("\n")

	summary := newTable("Metric", "Value").
		Row("Expected return", pct(result.Performance.ExpectedReturn)).
		Row("Volatility", pct(result.Performance.Volatility)).
		Row("Sharpe ratio", fmt.Sprintf("%.3f", result.Performance.Sharpe)).
		Row(fmt.Sprintf("VaR (%.0f%%)", result.Risk.Confidence*100), pct(result.Risk.VaR)).
		Row(fmt.Sprintf("CVaR (%.0f%%)", result.Risk.Confidence*100), pct(result.Risk.CVaR))
	b.WriteString(summary.String())
	b.WriteString("\n")

	if f := result.Frontier; len(f.Points) > 0 || len(f.Skipped) > 0 {
		fmt.Fprintf(&b, "%s %d points solved, %d targets skipped\n",
			titleStyle.Render("Frontier"), len(f.Points), len(f.Skipped))
		if p := result.MaxSharpePoint; p != nil {
			fmt.Fprintf(&b, "  best sweep point: volatility %s, return %s, sharpe %.3f\n",
				pct(p.Volatility), pct(p.Return), p.Sharpe)
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func renderRunList(w io.Writer, runs []optimization.RunSummary) error {
	if len(runs) == 0 {
		_, err := io.WriteString(w, "no runs stored\n")
		return err
	}
	t := newTable("Run", "Created", "Assets", "Return", "Volatility", "Sharpe", "VaR")
	for _, r := range runs {
		t.Row(
			r.RunID,
			r.CreatedAt.Format("2006-01-02 15:04"),
			strings.Join(r.Assets, ","),
			pct(r.ExpectedReturn),
			pct(r.Volatility),
			fmt.Sprintf("%.3f", r.Sharpe),
			pct(r.VaR),
		)
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

func renderSyncReport(w io.Writer, report *universe.SyncReport) error {
	t := newTable("Symbol", "Stored", "Rejected", "Status")
	skipped := make(map[string]bool, len(report.Skipped))
	for _, s := range report.Skipped {
		skipped[s] = true
	}
	symbols := append([]string(nil), report.Symbols...)
	sort.Strings(symbols)
	for _, s := range symbols {
		status := "synced"
		if skipped[s] {
			status = "up to date"
		}
		t.Row(s, fmt.Sprint(report.Stored[s]), fmt.Sprint(report.Rejected[s]), status)
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

func pct(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

func writeFrontierChart(path string, result *optimization.Result) error {
	png, err := reporting.RenderFrontierChart(result.Frontier, "Efficient frontier "+result.RunID)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, png, 0644); err != nil {
		return fmt.Errorf("failed to write chart: %w", err)
	}
	return nil
}
