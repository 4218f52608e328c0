package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestParametricVaR(t *testing.T) {
	tests := []struct {
		name       string
		mean       float64
		stdDev     float64
		confidence float64
		want       float64
	}{
		{
			name:       "standard normal 95%",
			mean:       0,
			stdDev:     1,
			confidence: 0.95,
			want:       -1.6448536269514722,
		},
		{
			name:       "shifted and scaled 99%",
			mean:       0.001,
			stdDev:     0.02,
			confidence: 0.99,
			want:       0.001 - 0.02*2.3263478740408408,
		},
		{
			name:       "50% confidence is the mean",
			mean:       0.0005,
			stdDev:     0.01,
			confidence: 0.5,
			want:       0.0005,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParametricVaR(tt.mean, tt.stdDev, tt.confidence)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestParametricCVaR(t *testing.T) {
	// φ(1.6448536) / 0.05 = 2.0627128
	got := ParametricCVaR(0, 1, 0.95)
	assert.InDelta(t, -2.0627128075074, got, 1e-9)

	got = ParametricCVaR(0.001, 0.02, 0.95)
	assert.InDelta(t, 0.001-0.02*2.0627128075074, got, 1e-9)
}

func TestParametricCVaR_NeverAboveVaR(t *testing.T) {
	for _, c := range []float64{0.5, 0.8, 0.9, 0.95, 0.975, 0.99, 0.999} {
		for _, sigma := range []float64{1e-4, 0.01, 0.3, 2} {
			v := ParametricVaR(0.0003, sigma, c)
			cv := ParametricCVaR(0.0003, sigma, c)
			assert.LessOrEqual(t, cv, v, "confidence %v sigma %v", c, sigma)
		}
	}
}

func TestGaussianDensity(t *testing.T) {
	xs, ys := GaussianDensity(0, 1, 4, 9)
	require.Len(t, xs, 9)
	require.Len(t, ys, 9)

	assert.InDelta(t, -4.0, xs[0], 1e-12)
	assert.InDelta(t, 4.0, xs[8], 1e-12)
	assert.InDelta(t, 1/math.Sqrt(2*math.Pi), ys[4], 1e-12)
	assert.InDelta(t, ys[0], ys[8], 1e-15, "density is symmetric")

	xs, ys = GaussianDensity(0, 0, 4, 9)
	assert.Nil(t, xs)
	assert.Nil(t, ys)
}

func TestLinspace(t *testing.T) {
	assert.Equal(t, []float64{}, Linspace(0, 1, 0))
	assert.Equal(t, []float64{0.3}, Linspace(0.3, 1, 1))

	got := Linspace(0, 0.5, 100)
	require.Len(t, got, 100)
	assert.Equal(t, 0.0, got[0])
	assert.Equal(t, 0.5, got[99])
	assert.InDelta(t, 0.5/99, got[1], 1e-15)
}

func TestPortfolioStatistics(t *testing.T) {
	cov := mat.NewSymDense(2, []float64{
		0.04, 0.01,
		0.01, 0.09,
	})
	w := []float64{0.5, 0.5}

	// 0.25*0.04 + 0.25*0.09 + 2*0.25*0.01 = 0.0375
	assert.InDelta(t, math.Sqrt(0.0375), PortfolioVolatility(w, cov), 1e-12)
	assert.InDelta(t, 0.09, PortfolioMean(w, []float64{0.06, 0.12}), 1e-12)
	assert.InDelta(t, 0.5, SharpeRatio(0.12, 0.2, 0.02), 1e-12)
	assert.Equal(t, 0.0, SharpeRatio(0.12, 0, 0.02))
}

func TestMeanAndStdDev(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 0.0, StdDev([]float64{1}))
	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-12)
	assert.InDelta(t, 1.0, StdDev([]float64{1, 2, 3}), 1e-12)
	assert.True(t, IsFinite(1))
	assert.False(t, IsFinite(math.NaN()))
	assert.False(t, IsFinite(math.Inf(-1)))
}
