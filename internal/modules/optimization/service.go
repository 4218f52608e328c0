package optimization

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/quantumfolio/internal/workers"
)

// Market weight sources reported on a Result.
const (
	WeightSourceMarketCaps       = "market_caps"
	WeightSourceEqualPlaceholder = "equal_placeholder"
)

// Defaults applied by RunParameters.WithDefaults.
const (
	DefaultFrequency          = 252
	DefaultFrontierPoints     = 100
	DefaultFrontierMaxVol     = 0.5
	DefaultDensityPoints      = 200
	defaultFrontierMinVol     = 0.0
	defaultCovarianceEstimate = EstimatorSample
)

// FrontierSpec describes the volatility sweep.
type FrontierSpec struct {
	MinVolatility float64 `json:"min_volatility"`
	MaxVolatility float64 `json:"max_volatility"`
	Points        int     `json:"points"`
}

// RunParameters is everything the engine needs besides the return series.
type RunParameters struct {
	Assets        []string
	RiskAversion  float64
	Views         map[string]float64
	Confidences   map[string]float64
	MarketCaps    map[string]float64 // nil selects equal placeholder weights
	Tau           float64
	RiskFreeRate  float64
	Frequency     int
	Estimator     CovarianceEstimator
	VaRConfidence float64
	WeightCutoff  float64
	Frontier      *FrontierSpec
}

// WithDefaults fills unset optional parameters.
func (p RunParameters) WithDefaults() RunParameters {
	if p.Tau == 0 {
		p.Tau = DefaultTau
	}
	if p.Frequency == 0 {
		p.Frequency = DefaultFrequency
	}
	if p.Estimator == "" {
		p.Estimator = defaultCovarianceEstimate
	}
	if p.VaRConfidence == 0 {
		p.VaRConfidence = DefaultVaRConfidence
	}
	if p.WeightCutoff == 0 {
		p.WeightCutoff = DefaultWeightCutoff
	}
	if p.Frontier == nil {
		p.Frontier = &FrontierSpec{
			MinVolatility: defaultFrontierMinVol,
			MaxVolatility: DefaultFrontierMaxVol,
			Points:        DefaultFrontierPoints,
		}
	}
	return p
}

// Validate checks scalar parameters before any data is touched.
func (p RunParameters) Validate() error {
	if len(p.Assets) == 0 {
		return configErr("assets", "", "universe must contain at least one asset")
	}
	if math.IsNaN(p.RiskAversion) || p.RiskAversion <= 0 {
		return configErr("risk_aversion", "", "risk aversion must be positive")
	}
	if math.IsNaN(p.Tau) || p.Tau <= 0 {
		return configErr("tau", "", "tau must be positive")
	}
	if math.IsNaN(p.RiskFreeRate) || math.IsInf(p.RiskFreeRate, 0) {
		return configErr("risk_free_rate", "", "risk-free rate must be finite")
	}
	if p.Frequency < 0 {
		return configErr("frequency", "", "frequency must not be negative")
	}
	switch p.Estimator {
	case EstimatorSample, EstimatorLedoitWolf:
	default:
		return configErr("estimator", "", "unknown covariance estimator "+string(p.Estimator))
	}
	if math.IsNaN(p.VaRConfidence) || p.VaRConfidence <= 0 || p.VaRConfidence >= 1 {
		return configErr("var_confidence", "", "confidence must lie strictly between 0 and 1")
	}
	if math.IsNaN(p.WeightCutoff) || p.WeightCutoff < 0 || p.WeightCutoff >= 1 {
		return configErr("weight_cutoff", "", "cutoff must lie in [0, 1)")
	}
	if f := p.Frontier; f != nil {
		if f.Points < 0 {
			return configErr("frontier.points", "", "point count must not be negative")
		}
		if f.MinVolatility < 0 || f.MaxVolatility < f.MinVolatility {
			return configErr("frontier", "", "volatility range must satisfy 0 <= min <= max")
		}
	}
	return nil
}

// Result is the full output of one engine run.
type Result struct {
	RunID               string             `json:"run_id"`
	CreatedAt           time.Time          `json:"created_at"`
	Assets              []string           `json:"assets"`
	Observations        int                `json:"observations"`
	DroppedRows         int                `json:"dropped_rows"`
	MarketWeights       MarketWeights      `json:"market_weights"`
	MarketWeightsSource string             `json:"market_weights_source"`
	ImpliedReturns      map[string]float64 `json:"implied_returns"`
	PosteriorReturns    map[string]float64 `json:"posterior_returns"`
	PosteriorCovariance [][]float64        `json:"posterior_covariance"`
	Correlation         [][]float64        `json:"correlation"`
	Weights             PortfolioWeights   `json:"weights"`
	Performance         Performance        `json:"performance"`
	Risk                RiskMetrics        `json:"risk"`
	Density             DensityCurve       `json:"density"`
	Frontier            Frontier           `json:"frontier"`
	MaxSharpePoint      *FrontierPoint     `json:"max_sharpe_point,omitempty"`
}

// Service runs the estimation, blending, optimization and risk pipeline.
type Service struct {
	bl     *BlackLittermanModel
	solver Solver
	pool   *workers.WorkerPool
	log    zerolog.Logger
}

// NewService creates a new optimization service. A nil solver selects the
// active-set solver; a nil pool uses the default worker count.
func NewService(solver Solver, pool *workers.WorkerPool, log zerolog.Logger) *Service {
	if solver == nil {
		solver = NewActiveSetSolver()
	}
	if pool == nil {
		pool = workers.NewWorkerPool(0)
	}
	return &Service{
		bl:     NewBlackLittermanModel(log),
		solver: solver,
		pool:   pool,
		log:    log.With().Str("component", "optimization_service").Logger(),
	}
}

// Run executes every stage in order. Any error aborts the run; no partial
// allocation is ever returned.
func (s *Service) Run(ctx context.Context, params RunParameters, series ReturnSeries) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params = params.WithDefaults()
	if err := params.Validate(); err != nil {
		return nil, err
	}

	universe, err := NewAssetUniverse(params.Assets)
	if err != nil {
		return nil, err
	}
	if err := sameUniverse(universe, series.Universe()); err != nil {
		return nil, err
	}

	log := s.log.With().Int("assets", universe.Len()).Int("observations", series.Observations()).Logger()
	log.Info().Msg("Starting optimization run")
	start := time.Now()

	cov, err := EstimateCovariance(series, params.Frequency, params.Estimator)
	if err != nil {
		return nil, fmt.Errorf("covariance estimation failed: %w", err)
	}

	mw, source, err := s.marketWeights(params, universe)
	if err != nil {
		return nil, err
	}

	pi, err := s.bl.ImpliedReturns(cov, mw, universe, params.RiskAversion)
	if err != nil {
		return nil, fmt.Errorf("implied returns failed: %w", err)
	}

	views, err := ViewsFromMaps(params.Views, params.Confidences, universe)
	if err != nil {
		return nil, err
	}
	vm, err := BuildViewMatrices(universe, views)
	if err != nil {
		return nil, err
	}

	posterior, err := s.bl.Blend(cov, pi, vm, params.Tau)
	if err != nil {
		return nil, fmt.Errorf("black-litterman blend failed: %w", err)
	}

	optimizer := NewMVOptimizer(s.solver, MVOptions{
		RiskFreeRate: params.RiskFreeRate,
		WeightCutoff: params.WeightCutoff,
	}, s.log)

	weights, err := optimizer.MaxSharpe(posterior, universe)
	if err != nil {
		return nil, fmt.Errorf("max-sharpe optimization failed: %w", err)
	}

	risk, err := CalculateRiskMetrics(series, weights, params.VaRConfidence)
	if err != nil {
		return nil, fmt.Errorf("risk metrics failed: %w", err)
	}

	corr, err := CorrelationMatrix(series)
	if err != nil {
		return nil, err
	}

	var frontier Frontier
	if params.Frontier.Points > 0 {
		sweeper := NewFrontierSweeper(optimizer, s.pool, s.log)
		targets := TargetVolatilities(params.Frontier.MinVolatility, params.Frontier.MaxVolatility, params.Frontier.Points)
		frontier, err = sweeper.Sweep(ctx, posterior, universe, targets)
		if err != nil {
			return nil, fmt.Errorf("frontier sweep failed: %w", err)
		}
	}

	result := &Result{
		RunID:               uuid.New().String(),
		CreatedAt:           time.Now().UTC(),
		Assets:              universe.Assets(),
		Observations:        series.Observations(),
		DroppedRows:         series.DroppedRows(),
		MarketWeights:       mw,
		MarketWeightsSource: source,
		ImpliedReturns:      vectorToMap(pi, universe),
		PosteriorReturns:    vectorToMap(posterior.Returns, universe),
		PosteriorCovariance: symToRows(posterior.Covariance),
		Correlation:         symToRows(corr),
		Weights:             weights,
		Performance:         optimizer.Performance(weights, posterior, universe),
		Risk:                risk,
		Density:             risk.Density(DefaultDensityPoints),
		Frontier:            frontier,
	}
	if p, ok := frontier.MaxSharpePoint(); ok {
		result.MaxSharpePoint = &p
	}

	log.Info().
		Str("run_id", result.RunID).
		Float64("sharpe", result.Performance.Sharpe).
		Float64("var", risk.VaR).
		Float64("cvar", risk.CVaR).
		Dur("duration", time.Since(start)).
		Msg("Optimization run completed")
	return result, nil
}

func (s *Service) marketWeights(params RunParameters, universe AssetUniverse) (MarketWeights, string, error) {
	if len(params.MarketCaps) > 0 {
		mw, err := MarketWeightsFromCaps(params.MarketCaps, universe)
		if err != nil {
			return nil, "", err
		}
		return mw, WeightSourceMarketCaps, nil
	}
	s.log.Warn().Msg("No market capitalizations configured, using equal placeholder weights")
	return EqualMarketWeights(universe), WeightSourceEqualPlaceholder, nil
}

func sameUniverse(want, got AssetUniverse) error {
	if want.Len() != got.Len() {
		return configErr("returns", "", "return series columns do not match the configured assets")
	}
	for i := 0; i < want.Len(); i++ {
		if want.Asset(i) != got.Asset(i) {
			return configErr("returns", got.Asset(i), "return series columns do not match the configured assets")
		}
	}
	return nil
}

func vectorToMap(v mat.Vector, universe AssetUniverse) map[string]float64 {
	out := make(map[string]float64, universe.Len())
	for i := 0; i < universe.Len(); i++ {
		out[universe.Asset(i)] = v.AtVec(i)
	}
	return out
}

// symToRows expands a symmetric matrix into rows. NaN entries (a correlation
// with a constant column) become zero so the result stays JSON-encodable.
func symToRows(m mat.Symmetric) [][]float64 {
	n := m.SymmetricDim()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, n)
		for j := range rows[i] {
			v := m.At(i, j)
			if math.IsNaN(v) {
				v = 0
			}
			rows[i][j] = v
		}
	}
	return rows
}
