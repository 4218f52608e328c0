package testing

import (
	"math"
	"time"
)

// NewTickerFixtures returns the symbols used by price fixtures
func NewTickerFixtures() []string {
	return []string{"AAPL", "MSFT", "GOOG"}
}

// NewTradingDays returns n weekdays starting at start (inclusive when start is a weekday)
func NewTradingDays(start time.Time, n int) []time.Time {
	days := make([]time.Time, 0, n)
	for d := start; len(days) < n; d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		days = append(days, d)
	}
	return days
}

// NewPriceFixtures returns deterministic close prices for each ticker on
// n trading days. The paths are smooth oscillations around a drift, so the
// resulting returns have distinct volatilities and low correlation.
func NewPriceFixtures(n int) map[string][]float64 {
	params := []struct{ base, drift, amp, freq, phase float64 }{
		{180, 0.0010, 0.010, 0.7, 0},
		{400, 0.0005, 0.015, 1.3, 0.5},
		{140, 0.0008, 0.008, 2.1, 1},
	}
	out := make(map[string][]float64, len(params))
	for k, ticker := range NewTickerFixtures() {
		p := params[k]
		prices := make([]float64, n)
		price := p.base
		for i := range prices {
			if i > 0 {
				price *= 1 + p.drift + p.amp*math.Sin(p.freq*float64(i)+p.phase)
			}
			prices[i] = price
		}
		out[ticker] = prices
	}
	return out
}
