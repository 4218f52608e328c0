package universe

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// HistoricalPriceData is one bar as returned by a price provider.
type HistoricalPriceData struct {
	Date     time.Time
	Close    float64
	AdjClose float64
}

// HistoricalDataFetcher downloads daily bars for many symbols at once.
// Implemented by yahoo.Client.
type HistoricalDataFetcher interface {
	DownloadPrices(ctx context.Context, symbols []string, start, end time.Time) (map[string][]HistoricalPriceData, error)
}

// HistoryStore is the subset of HistoryDB used for syncing.
type HistoryStore interface {
	UpsertDailyPrices(symbol, source string, prices []DailyPrice) error
	CountPrices(symbol string, start, end time.Time) (int, error)
}

// SyncReport summarizes one sync.
type SyncReport struct {
	Symbols  []string       `json:"symbols"`
	Stored   map[string]int `json:"stored"`
	Rejected map[string]int `json:"rejected"`
	Skipped  []string       `json:"skipped"` // already covered, not fetched
}

// HistoricalSyncService fetches daily prices from a provider, screens them
// and writes them to the history store.
type HistoricalSyncService struct {
	fetcher   HistoricalDataFetcher
	historyDB HistoryStore
	validator *PriceValidator
	source    string
	log       zerolog.Logger
}

// NewHistoricalSyncService creates a new historical sync service.
func NewHistoricalSyncService(
	fetcher HistoricalDataFetcher,
	historyDB HistoryStore,
	validator *PriceValidator,
	source string,
	log zerolog.Logger,
) *HistoricalSyncService {
	if validator == nil {
		validator = NewPriceValidator(log)
	}
	return &HistoricalSyncService{
		fetcher:   fetcher,
		historyDB: historyDB,
		validator: validator,
		source:    source,
		log:       log.With().Str("service", "historical_sync").Logger(),
	}
}

// SyncPrices fetches and stores prices for every symbol over [start, end].
func (s *HistoricalSyncService) SyncPrices(ctx context.Context, symbols []string, start, end time.Time) (*SyncReport, error) {
	return s.sync(ctx, symbols, symbols, start, end)
}

// EnsureHistory fetches only the symbols that have no stored price in [start, end].
func (s *HistoricalSyncService) EnsureHistory(ctx context.Context, symbols []string, start, end time.Time) (*SyncReport, error) {
	var missing []string
	for _, symbol := range symbols {
		count, err := s.historyDB.CountPrices(symbol, start, end)
		if err != nil {
			return nil, err
		}
		if count == 0 {
			missing = append(missing, symbol)
		}
	}
	return s.sync(ctx, symbols, missing, start, end)
}

func (s *HistoricalSyncService) sync(ctx context.Context, all, fetch []string, start, end time.Time) (*SyncReport, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("end date %s must be after start date %s", end.Format(DateLayout), start.Format(DateLayout))
	}

	report := &SyncReport{
		Symbols:  all,
		Stored:   make(map[string]int),
		Rejected: make(map[string]int),
	}
	fetchSet := make(map[string]bool, len(fetch))
	for _, symbol := range fetch {
		fetchSet[symbol] = true
	}
	for _, symbol := range all {
		if !fetchSet[symbol] {
			report.Skipped = append(report.Skipped, symbol)
		}
	}
	if len(fetch) == 0 {
		return report, nil
	}

	s.log.Info().
		Strs("symbols", fetch).
		Str("start", start.Format(DateLayout)).
		Str("end", end.Format(DateLayout)).
		Msg("Starting historical price sync")

	bars, err := s.fetcher.DownloadPrices(ctx, fetch, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch historical prices: %w", err)
	}

	for _, symbol := range fetch {
		data := bars[symbol]
		if len(data) == 0 {
			s.log.Warn().Str("symbol", symbol).Msg("No price data returned")
			continue
		}

		prices := make([]DailyPrice, len(data))
		for i, bar := range data {
			prices[i] = DailyPrice{
				Date:     bar.Date.UTC().Format(DateLayout),
				Close:    bar.Close,
				AdjClose: bar.AdjClose,
			}
		}

		accepted, rejected := s.validator.Filter(symbol, prices)
		if err := s.historyDB.UpsertDailyPrices(symbol, s.source, accepted); err != nil {
			return nil, fmt.Errorf("failed to store prices for %s: %w", symbol, err)
		}
		report.Stored[symbol] = len(accepted)
		report.Rejected[symbol] = len(rejected)
	}

	s.log.Info().
		Int("symbols", len(fetch)).
		Interface("stored", report.Stored).
		Msg("Historical price sync complete")
	return report, nil
}
