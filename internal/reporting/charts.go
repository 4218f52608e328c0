package reporting

import (
	"errors"
	"fmt"

	"github.com/vicanso/go-charts/v2"

	"github.com/aristath/quantumfolio/internal/modules/optimization"
)

// ErrEmptyFrontier is returned when there is nothing to plot.
var ErrEmptyFrontier = errors.New("frontier has no solved points")

// RenderFrontierChart draws expected return against volatility for the
// solved sweep points and returns PNG bytes.
func RenderFrontierChart(f optimization.Frontier, title string) ([]byte, error) {
	if len(f.Points) == 0 {
		return nil, ErrEmptyFrontier
	}

	xLabels := make([]string, len(f.Points))
	values := make([]float64, len(f.Points))
	yMin, yMax := f.Points[0].Return*100, f.Points[0].Return*100
	for i, p := range f.Points {
		xLabels[i] = fmt.Sprintf("%.1f%%", p.Volatility*100)
		values[i] = p.Return * 100
		yMin = min(yMin, values[i])
		yMax = max(yMax, values[i])
	}
	if yMax-yMin < 1e-9 {
		yMin, yMax = yMin-1, yMax+1
	}

	splitNum := len(xLabels) / 8
	if splitNum < 3 {
		splitNum = 3
	}

	p, err := charts.LineRender(
		[][]float64{values},
		charts.TitleTextOptionFunc(title, "expected return (%) by volatility"),
		charts.XAxisOptionFunc(charts.XAxisOption{
			Data:        xLabels,
			SplitNumber: splitNum,
			BoundaryGap: charts.FalseFlag(),
		}),
		charts.YAxisOptionFunc(charts.YAxisOption{
			Min:         &yMin,
			Max:         &yMax,
			DivideCount: 5,
		}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate chart bytes: %w", err)
	}
	return buf, nil
}

// RenderDensityChart draws the fitted portfolio return density with the
// VaR and CVaR thresholds in the subtitle.
func RenderDensityChart(curve optimization.DensityCurve, risk optimization.RiskMetrics, title string) ([]byte, error) {
	if len(curve.X) == 0 || len(curve.X) != len(curve.Y) {
		return nil, errors.New("density curve is empty")
	}

	xLabels := make([]string, len(curve.X))
	for i, x := range curve.X {
		xLabels[i] = fmt.Sprintf("%.2f%%", x*100)
	}
	subtitle := fmt.Sprintf("VaR %.2f%%  CVaR %.2f%% at %.0f%%", risk.VaR*100, risk.CVaR*100, risk.Confidence*100)

	p, err := charts.LineRender(
		[][]float64{curve.Y},
		charts.TitleTextOptionFunc(title, subtitle),
		charts.XAxisOptionFunc(charts.XAxisOption{
			Data:        xLabels,
			SplitNumber: 8,
			BoundaryGap: charts.FalseFlag(),
		}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate chart bytes: %w", err)
	}
	return buf, nil
}

// RenderAllocationChart draws market and optimized weights per asset as
// grouped bars, in universe order.
func RenderAllocationChart(result *optimization.Result, title string) ([]byte, error) {
	if result == nil || len(result.Assets) == 0 {
		return nil, errors.New("run has no assets")
	}

	market := make([]float64, len(result.Assets))
	optimal := make([]float64, len(result.Assets))
	for i, asset := range result.Assets {
		market[i] = result.MarketWeights[asset] * 100
		optimal[i] = result.Weights[asset] * 100
	}
	names := []string{"Market", "Optimized"}

	seriesList := charts.NewSeriesListDataFromValues([][]float64{market, optimal}, charts.ChartTypeBar)
	for i := range seriesList {
		seriesList[i].Name = names[i]
	}

	p, err := charts.Render(charts.ChartOption{SeriesList: seriesList},
		charts.TitleTextOptionFunc(title, "weight (%)"),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: result.Assets}),
		charts.LegendOptionFunc(charts.LegendOption{Data: names}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}

	buf, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate chart bytes: %w", err)
	}
	return buf, nil
}
