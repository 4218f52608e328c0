package optimization

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/quantumfolio/internal/database"
	testingpkg "github.com/aristath/quantumfolio/internal/testing"
)

func newTestRunRepository(t *testing.T) *RunRepository {
	t.Helper()
	db := testingpkg.NewTestDB(t, database.NameRuns)
	return NewRunRepository(db.Conn(), zerolog.Nop())
}

func TestRunRepository_SaveAndGet(t *testing.T) {
	repo := newTestRunRepository(t)

	result, err := newTestService().Run(context.Background(), baseParams(), syntheticSeries(t, 60))
	require.NoError(t, err)
	require.NoError(t, repo.Save(result))

	loaded, err := repo.Get(result.RunID)
	require.NoError(t, err)

	assert.Equal(t, result.RunID, loaded.RunID)
	assert.True(t, result.CreatedAt.Equal(loaded.CreatedAt))
	assert.Equal(t, result.Assets, loaded.Assets)
	assert.Equal(t, result.Weights, loaded.Weights)
	assert.Equal(t, result.PosteriorReturns, loaded.PosteriorReturns)
	assert.Equal(t, result.PosteriorCovariance, loaded.PosteriorCovariance)
	assert.Equal(t, result.Performance, loaded.Performance)
	assert.Equal(t, result.Risk, loaded.Risk)
	assert.Equal(t, len(result.Frontier.Points), len(loaded.Frontier.Points))
	require.NotNil(t, loaded.MaxSharpePoint)
	assert.Equal(t, result.MaxSharpePoint.Weights, loaded.MaxSharpePoint.Weights)
}

func TestRunRepository_GetMissing(t *testing.T) {
	repo := newTestRunRepository(t)

	_, err := repo.Get("does-not-exist")
	assert.True(t, errors.Is(err, ErrRunNotFound))
	assert.True(t, errors.Is(repo.Delete("does-not-exist"), ErrRunNotFound))
}

func TestRunRepository_ListNewestFirst(t *testing.T) {
	repo := newTestRunRepository(t)
	base := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		require.NoError(t, repo.Save(&Result{
			RunID:               id,
			CreatedAt:           base.Add(time.Duration(i) * time.Hour),
			Assets:              []string{"AAA", "BBB"},
			Observations:        100 + i,
			MarketWeightsSource: WeightSourceEqualPlaceholder,
			Performance:         Performance{ExpectedReturn: 0.08, Volatility: 0.15, Sharpe: 0.53},
			Risk:                RiskMetrics{VaR: -0.02, CVaR: -0.025},
		}))
	}

	summaries, err := repo.List(2)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "run-c", summaries[0].RunID)
	assert.Equal(t, "run-b", summaries[1].RunID)
	assert.Equal(t, []string{"AAA", "BBB"}, summaries[0].Assets)
	assert.Equal(t, 102, summaries[0].Observations)
	assert.Equal(t, base.Add(2*time.Hour), summaries[0].CreatedAt)
	assert.Equal(t, -0.025, summaries[0].CVaR)

	require.NoError(t, repo.Delete("run-c"))
	summaries, err = repo.List(0)
	require.NoError(t, err)
	assert.Len(t, summaries, 2)
}

func TestRunRepository_ListKeepsAssetIdentifiers(t *testing.T) {
	repo := newTestRunRepository(t)
	assets := []string{"BRK,B", "A \"quoted\" fund", "MSFT"}

	require.NoError(t, repo.Save(&Result{
		RunID:     "run-commas",
		CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Assets:    assets,
	}))

	summaries, err := repo.List(10)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, assets, summaries[0].Assets)
}

func TestRunRepository_SaveRequiresID(t *testing.T) {
	repo := newTestRunRepository(t)
	assert.Error(t, repo.Save(&Result{}))
	assert.Error(t, repo.Save(nil))
}
