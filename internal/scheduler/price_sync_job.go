package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/quantumfolio/internal/modules/universe"
)

// PriceSyncer fetches and stores prices for a date range
type PriceSyncer interface {
	SyncPrices(ctx context.Context, symbols []string, start, end time.Time) (*universe.SyncReport, error)
}

// PriceSyncJob refreshes the recent price history of a fixed symbol list
type PriceSyncJob struct {
	syncer       PriceSyncer
	symbols      []string
	lookbackDays int
	timeout      time.Duration
	now          func() time.Time
	log          zerolog.Logger
}

// NewPriceSyncJob creates a new price sync job
func NewPriceSyncJob(syncer PriceSyncer, symbols []string, lookbackDays int, log zerolog.Logger) *PriceSyncJob {
	return &PriceSyncJob{
		syncer:       syncer,
		symbols:      symbols,
		lookbackDays: lookbackDays,
		timeout:      5 * time.Minute,
		now:          time.Now,
		log:          log.With().Str("job", "price_sync").Logger(),
	}
}

// Name returns the job name
func (j *PriceSyncJob) Name() string {
	return "price_sync"
}

// Run executes the price sync job
func (j *PriceSyncJob) Run() error {
	if len(j.symbols) == 0 {
		j.log.Debug().Msg("No symbols configured, skipping price sync")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	end := j.now().UTC()
	start := end.AddDate(0, 0, -j.lookbackDays)

	report, err := j.syncer.SyncPrices(ctx, j.symbols, start, end)
	if err != nil {
		return fmt.Errorf("price sync failed: %w", err)
	}

	stored := 0
	for _, n := range report.Stored {
		stored += n
	}
	j.log.Info().
		Int("symbols", len(j.symbols)).
		Int("stored", stored).
		Msg("Price sync completed")
	return nil
}
