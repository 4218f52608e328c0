// Package yahoo downloads daily price history from Yahoo Finance.
package yahoo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/ticker"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/quantumfolio/internal/modules/universe"
)

const defaultConcurrency = 4

// HistoryFunc returns unadjusted daily bars for a symbol over a Yahoo period string
type HistoryFunc func(symbol, period string) ([]models.Bar, error)

// Client fetches historical prices through go-yfinance
type Client struct {
	history     HistoryFunc
	concurrency int
	now         func() time.Time
	log         zerolog.Logger
}

// NewClient creates a new Yahoo Finance client
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		history:     tickerHistory,
		concurrency: defaultConcurrency,
		now:         time.Now,
		log:         log.With().Str("client", "yahoo").Logger(),
	}
}

func tickerHistory(symbol, period string) ([]models.Bar, error) {
	t, err := ticker.New(symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticker: %w", err)
	}
	defer t.Close()

	// Unadjusted bars keep both Close and AdjClose.
	bars, err := t.History(models.HistoryParams{
		Period:     period,
		Interval:   "1d",
		AutoAdjust: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get historical prices: %w", err)
	}
	return bars, nil
}

// GetHistoricalPrices returns the daily bars of one symbol with start <= date <= end, oldest first
func (c *Client) GetHistoricalPrices(ctx context.Context, symbol string, start, end time.Time) ([]universe.HistoricalPriceData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end date %s is before start date %s", end.Format(universe.DateLayout), start.Format(universe.DateLayout))
	}

	period := periodFor(start, c.now())
	bars, err := c.history(symbol, period)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", symbol, err)
	}

	prices := filterBars(bars, start, end)
	c.log.Debug().
		Str("symbol", symbol).
		Str("period", period).
		Int("bars", len(bars)).
		Int("kept", len(prices)).
		Msg("Fetched historical prices")
	return prices, nil
}

// DownloadPrices fetches every symbol concurrently. Any failure cancels the rest.
func (c *Client) DownloadPrices(ctx context.Context, symbols []string, start, end time.Time) (map[string][]universe.HistoricalPriceData, error) {
	out := make(map[string][]universe.HistoricalPriceData, len(symbols))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			prices, err := c.GetHistoricalPrices(gctx, symbol, start, end)
			if err != nil {
				return err
			}
			mu.Lock()
			out[symbol] = prices
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to download prices: %w", err)
	}
	return out, nil
}

// periodFor picks the shortest Yahoo period reaching back to start
func periodFor(start, now time.Time) string {
	days := now.Sub(start).Hours() / 24
	switch {
	case days <= 5:
		return "5d"
	case days <= 28:
		return "1mo"
	case days <= 89:
		return "3mo"
	case days <= 180:
		return "6mo"
	case days <= 365:
		return "1y"
	case days <= 730:
		return "2y"
	case days <= 1826:
		return "5y"
	case days <= 3652:
		return "10y"
	default:
		return "max"
	}
}

func filterBars(bars []models.Bar, start, end time.Time) []universe.HistoricalPriceData {
	from := truncateDay(start)
	to := truncateDay(end)

	prices := make([]universe.HistoricalPriceData, 0, len(bars))
	for _, bar := range bars {
		day := truncateDay(bar.Date)
		if day.Before(from) || day.After(to) {
			continue
		}
		prices = append(prices, universe.HistoricalPriceData{
			Date:     day,
			Close:    bar.Close,
			AdjClose: bar.AdjClose,
		})
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].Date.Before(prices[j].Date) })
	return prices
}

// truncateDay keeps the calendar date of t in its own location, at UTC midnight
func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
