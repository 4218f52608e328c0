package optimization

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/quantumfolio/internal/workers"
	"github.com/aristath/quantumfolio/pkg/formulas"
)

// FrontierPoint is one solved efficient-risk portfolio.
type FrontierPoint struct {
	TargetVolatility float64          `json:"target_volatility"`
	Volatility       float64          `json:"volatility"`
	Return           float64          `json:"return"`
	Sharpe           float64          `json:"sharpe"`
	Weights          PortfolioWeights `json:"weights"`
}

// SkippedPoint is a sweep target with no admissible portfolio.
type SkippedPoint struct {
	TargetVolatility float64 `json:"target_volatility"`
	Reason           string  `json:"reason"`
}

// Frontier is the result of a volatility sweep. Points are in target order.
type Frontier struct {
	Points  []FrontierPoint `json:"points"`
	Skipped []SkippedPoint  `json:"skipped"`
}

// MaxSharpePoint returns the point with the highest Sharpe ratio.
func (f Frontier) MaxSharpePoint() (FrontierPoint, bool) {
	if len(f.Points) == 0 {
		return FrontierPoint{}, false
	}
	best := 0
	for i, p := range f.Points {
		if p.Sharpe > f.Points[best].Sharpe {
			best = i
		}
	}
	return f.Points[best], true
}

// TargetVolatilities returns n evenly spaced targets over [min, max].
func TargetVolatilities(min, max float64, n int) []float64 {
	return formulas.Linspace(min, max, n)
}

// FrontierSweeper solves an efficient-risk portfolio for each target volatility.
type FrontierSweeper struct {
	optimizer *MVOptimizer
	pool      *workers.WorkerPool
	log       zerolog.Logger
}

// NewFrontierSweeper creates a sweeper that fans targets out over pool.
func NewFrontierSweeper(optimizer *MVOptimizer, pool *workers.WorkerPool, log zerolog.Logger) *FrontierSweeper {
	if pool == nil {
		pool = workers.NewWorkerPool(0)
	}
	return &FrontierSweeper{
		optimizer: optimizer,
		pool:      pool,
		log:       log.With().Str("component", "frontier").Logger(),
	}
}

type sweepOutcome struct {
	point   FrontierPoint
	skipped *SkippedPoint
	err     error
}

// Sweep solves every target independently. Targets with no admissible
// portfolio are recorded as skipped; any other failure aborts the sweep.
// The estimate is only read, so workers share it without locking.
func (s *FrontierSweeper) Sweep(ctx context.Context, est PosteriorEstimate, universe AssetUniverse, targets []float64) (Frontier, error) {
	if err := checkEstimate(est, universe); err != nil {
		return Frontier{}, err
	}
	anchors, err := s.optimizer.frontierAnchors(est)
	if err != nil {
		return Frontier{}, fmt.Errorf("failed to compute frontier anchors: %w", err)
	}

	outcomes := workers.Run(ctx, s.pool, len(targets), func(ctx context.Context, i int) sweepOutcome {
		return s.solvePoint(est, universe, anchors, targets[i])
	})
	if err := ctx.Err(); err != nil {
		return Frontier{}, err
	}

	frontier := Frontier{
		Points:  make([]FrontierPoint, 0, len(targets)),
		Skipped: []SkippedPoint{},
	}
	for _, o := range outcomes {
		switch {
		case o.err != nil:
			return Frontier{}, o.err
		case o.skipped != nil:
			frontier.Skipped = append(frontier.Skipped, *o.skipped)
		default:
			frontier.Points = append(frontier.Points, o.point)
		}
	}

	s.log.Info().
		Int("targets", len(targets)).
		Int("solved", len(frontier.Points)).
		Int("skipped", len(frontier.Skipped)).
		Float64("min_volatility", anchors.minVolVol).
		Msg("Efficient frontier sweep completed")
	return frontier, nil
}

func (s *FrontierSweeper) solvePoint(est PosteriorEstimate, universe AssetUniverse, anchors frontierAnchors, target float64) sweepOutcome {
	raw, err := s.optimizer.efficientRisk(est, anchors, target)
	if err != nil {
		var inf *InfeasibleError
		if errors.As(err, &inf) {
			return sweepOutcome{skipped: &SkippedPoint{TargetVolatility: target, Reason: inf.Error()}}
		}
		return sweepOutcome{err: fmt.Errorf("frontier target %.6g: %w", target, err)}
	}

	weights, err := CleanWeights(raw, universe, 0)
	if err != nil {
		var inf *InfeasibleError
		if errors.As(err, &inf) {
			return sweepOutcome{skipped: &SkippedPoint{TargetVolatility: target, Reason: inf.Error()}}
		}
		return sweepOutcome{err: err}
	}

	perf := s.optimizer.Performance(weights, est, universe)
	return sweepOutcome{point: FrontierPoint{
		TargetVolatility: target,
		Volatility:       perf.Volatility,
		Return:           perf.ExpectedReturn,
		Sharpe:           perf.Sharpe,
		Weights:          weights,
	}}
}
