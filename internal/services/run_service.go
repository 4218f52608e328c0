// Package services coordinates the engine with the stores around it.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/quantumfolio/internal/config"
	"github.com/aristath/quantumfolio/internal/modules/optimization"
	"github.com/aristath/quantumfolio/internal/modules/universe"
)

// RunStore persists completed runs
type RunStore interface {
	Save(result *optimization.Result) error
}

// PriceHistory builds aligned return series from stored prices
type PriceHistory interface {
	BuildReturnSeries(assets []string, start, end time.Time) (optimization.ReturnSeries, error)
}

// HistoryEnsurer downloads prices that are not stored yet
type HistoryEnsurer interface {
	EnsureHistory(ctx context.Context, symbols []string, start, end time.Time) (*universe.SyncReport, error)
}

// RunArchiver copies a run report to object storage
type RunArchiver interface {
	ArchiveRunReport(ctx context.Context, result *optimization.Result) (string, error)
}

// RunService resolves the return series for a run configuration, executes
// the engine and records the result. Every collaborator except the engine
// is optional.
type RunService struct {
	engine   *optimization.Service
	runs     RunStore
	history  PriceHistory
	ensurer  HistoryEnsurer
	archiver RunArchiver
	log      zerolog.Logger
}

// NewRunService creates a new run service
func NewRunService(
	engine *optimization.Service,
	runs RunStore,
	history PriceHistory,
	ensurer HistoryEnsurer,
	archiver RunArchiver,
	log zerolog.Logger,
) *RunService {
	return &RunService{
		engine:   engine,
		runs:     runs,
		history:  history,
		ensurer:  ensurer,
		archiver: archiver,
		log:      log.With().Str("service", "run").Logger(),
	}
}

// Execute runs the engine. A nil series is built from the price history over
// the configured date range.
func (s *RunService) Execute(ctx context.Context, cfg *config.RunConfig, series *optimization.ReturnSeries) (*optimization.Result, error) {
	if series == nil {
		rs, err := s.LoadSeries(ctx, cfg)
		if err != nil {
			return nil, err
		}
		series = &rs
	}

	result, err := s.engine.Run(ctx, cfg.Parameters(), *series)
	if err != nil {
		return nil, err
	}

	if s.runs != nil {
		if err := s.runs.Save(result); err != nil {
			return nil, fmt.Errorf("failed to store run: %w", err)
		}
	}

	// The run is already stored; an archive failure is only logged.
	if s.archiver != nil {
		if _, err := s.archiver.ArchiveRunReport(ctx, result); err != nil {
			s.log.Warn().Err(err).Str("run_id", result.RunID).Msg("Failed to archive run report")
		}
	}
	return result, nil
}

// LoadSeries builds the return series for cfg from the price history,
// downloading missing symbols first when an ensurer is configured.
func (s *RunService) LoadSeries(ctx context.Context, cfg *config.RunConfig) (optimization.ReturnSeries, error) {
	if s.history == nil {
		return optimization.ReturnSeries{}, fmt.Errorf("no price history available, supply returns explicitly")
	}

	start, end, err := cfg.DateRange()
	if err != nil {
		return optimization.ReturnSeries{}, err
	}
	if start.IsZero() || end.IsZero() {
		return optimization.ReturnSeries{}, &optimization.ConfigurationError{
			Field:  "start_date",
			Reason: "start_date and end_date are required when returns are not supplied",
		}
	}

	if s.ensurer != nil {
		if _, err := s.ensurer.EnsureHistory(ctx, cfg.Assets, start, end); err != nil {
			return optimization.ReturnSeries{}, fmt.Errorf("failed to fetch price history: %w", err)
		}
	}

	series, err := s.history.BuildReturnSeries(cfg.Assets, start, end)
	if err != nil {
		return optimization.ReturnSeries{}, fmt.Errorf("failed to build return series: %w", err)
	}

	s.log.Debug().
		Strs("assets", cfg.Assets).
		Int("observations", series.Observations()).
		Int("dropped", series.DroppedRows()).
		Msg("Loaded return series from price history")
	return series, nil
}
