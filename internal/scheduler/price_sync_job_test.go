package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/quantumfolio/internal/modules/universe"
)

type fakeSyncer struct {
	symbols    []string
	start, end time.Time
	calls      int
	err        error
}

func (f *fakeSyncer) SyncPrices(_ context.Context, symbols []string, start, end time.Time) (*universe.SyncReport, error) {
	f.calls++
	f.symbols, f.start, f.end = symbols, start, end
	if f.err != nil {
		return nil, f.err
	}
	return &universe.SyncReport{Symbols: symbols, Stored: map[string]int{"AAPL": 5}}, nil
}

func TestPriceSyncJob_Run(t *testing.T) {
	syncer := &fakeSyncer{}
	job := NewPriceSyncJob(syncer, []string{"AAPL", "MSFT"}, 10, zerolog.Nop())
	job.now = func() time.Time { return time.Date(2024, 6, 28, 22, 30, 0, 0, time.UTC) }

	assert.Equal(t, "price_sync", job.Name())
	require.NoError(t, job.Run())

	assert.Equal(t, 1, syncer.calls)
	assert.Equal(t, []string{"AAPL", "MSFT"}, syncer.symbols)
	assert.Equal(t, time.Date(2024, 6, 18, 22, 30, 0, 0, time.UTC), syncer.start)
	assert.Equal(t, time.Date(2024, 6, 28, 22, 30, 0, 0, time.UTC), syncer.end)
}

func TestPriceSyncJob_NoSymbols(t *testing.T) {
	syncer := &fakeSyncer{}
	job := NewPriceSyncJob(syncer, nil, 10, zerolog.Nop())

	require.NoError(t, job.Run())
	assert.Equal(t, 0, syncer.calls)
}

func TestPriceSyncJob_Error(t *testing.T) {
	syncer := &fakeSyncer{err: errors.New("provider down")}
	job := NewPriceSyncJob(syncer, []string{"AAPL"}, 10, zerolog.Nop())

	assert.ErrorContains(t, job.Run(), "provider down")
}
