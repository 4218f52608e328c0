package universe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	bars      map[string][]HistoricalPriceData
	err       error
	requested [][]string
}

func (f *fakeFetcher) DownloadPrices(_ context.Context, symbols []string, _, _ time.Time) (map[string][]HistoricalPriceData, error) {
	f.requested = append(f.requested, symbols)
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string][]HistoricalPriceData)
	for _, s := range symbols {
		out[s] = f.bars[s]
	}
	return out, nil
}

func bars(closes ...float64) []HistoricalPriceData {
	start := day("2024-01-01")
	out := make([]HistoricalPriceData, len(closes))
	for i, c := range closes {
		out[i] = HistoricalPriceData{Date: start.AddDate(0, 0, i), Close: c, AdjClose: c}
	}
	return out
}

func TestHistoricalSyncService_SyncPrices(t *testing.T) {
	h := newTestHistoryDB(t)
	fetcher := &fakeFetcher{bars: map[string][]HistoricalPriceData{
		"AAA": bars(100, 101, 0, 103),
		"BBB": bars(50, 51, 52, 53),
	}}
	svc := NewHistoricalSyncService(fetcher, h, nil, "yahoo", zerolog.Nop())

	report, err := svc.SyncPrices(context.Background(), []string{"AAA", "BBB", "CCC"}, day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)

	assert.Equal(t, 3, report.Stored["AAA"])
	assert.Equal(t, 1, report.Rejected["AAA"])
	assert.Equal(t, 4, report.Stored["BBB"])
	assert.NotContains(t, report.Stored, "CCC")
	assert.Empty(t, report.Skipped)

	prices, err := h.GetDailyPrices("BBB", day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	require.Len(t, prices, 4)
	assert.Equal(t, "2024-01-04", prices[3].Date)
}

func TestHistoricalSyncService_EnsureHistoryFetchesOnlyMissing(t *testing.T) {
	h := newTestHistoryDB(t)
	require.NoError(t, h.UpsertDailyPrices("AAA", "yahoo", []DailyPrice{{Date: "2024-01-02", Close: 100}}))

	fetcher := &fakeFetcher{bars: map[string][]HistoricalPriceData{"BBB": bars(50, 51)}}
	svc := NewHistoricalSyncService(fetcher, h, nil, "yahoo", zerolog.Nop())

	report, err := svc.EnsureHistory(context.Background(), []string{"AAA", "BBB"}, day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)

	require.Len(t, fetcher.requested, 1)
	assert.Equal(t, []string{"BBB"}, fetcher.requested[0])
	assert.Equal(t, []string{"AAA"}, report.Skipped)
	assert.Equal(t, 2, report.Stored["BBB"])

	// Everything covered: the provider is not called again.
	_, err = svc.EnsureHistory(context.Background(), []string{"AAA", "BBB"}, day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	assert.Len(t, fetcher.requested, 1)
}

func TestHistoricalSyncService_Errors(t *testing.T) {
	h := newTestHistoryDB(t)
	fetcher := &fakeFetcher{err: errors.New("provider down")}
	svc := NewHistoricalSyncService(fetcher, h, nil, "yahoo", zerolog.Nop())

	_, err := svc.SyncPrices(context.Background(), []string{"AAA"}, day("2024-01-01"), day("2024-01-31"))
	assert.ErrorContains(t, err, "provider down")

	_, err = svc.SyncPrices(context.Background(), []string{"AAA"}, day("2024-01-31"), day("2024-01-01"))
	assert.ErrorContains(t, err, "must be after")
}
