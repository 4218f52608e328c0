package universe

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/quantumfolio/internal/database"
	"github.com/aristath/quantumfolio/internal/modules/optimization"
)

// DateLayout is the storage and wire format of trading dates.
const DateLayout = "2006-01-02"

// HistoryDB provides access to historical price data
type HistoryDB struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryDB creates a new history database accessor
func NewHistoryDB(db *sql.DB, log zerolog.Logger) *HistoryDB {
	return &HistoryDB{
		db:  db,
		log: log.With().Str("component", "history_db").Logger(),
	}
}

// DailyPrice is one trading day's close for a symbol
type DailyPrice struct {
	Date     string  `json:"date"`
	Close    float64 `json:"close"`
	AdjClose float64 `json:"adj_close,omitempty"` // zero when the source has no adjustment
}

// Price returns the adjusted close when present, otherwise the raw close.
func (p DailyPrice) Price() float64 {
	if p.AdjClose > 0 {
		return p.AdjClose
	}
	return p.Close
}

// UpsertDailyPrices inserts or replaces prices for a symbol in one transaction
func (h *HistoryDB) UpsertDailyPrices(symbol, source string, prices []DailyPrice) error {
	if len(prices) == 0 {
		return nil
	}
	fetchedAt := time.Now().Unix()

	err := database.WithTransaction(h.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO daily_prices
			(symbol, date, close, adjusted_close, source, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for _, p := range prices {
			if _, err := time.Parse(DateLayout, p.Date); err != nil {
				return fmt.Errorf("failed to parse date %s: %w", p.Date, err)
			}
			adj := sql.NullFloat64{Float64: p.AdjClose, Valid: p.AdjClose > 0}
			if _, err := stmt.Exec(symbol, p.Date, p.Close, adj, source, fetchedAt); err != nil {
				return fmt.Errorf("failed to insert daily price for %s: %w", p.Date, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert prices for %s: %w", symbol, err)
	}

	h.log.Debug().
		Str("symbol", symbol).
		Str("source", source).
		Int("count", len(prices)).
		Msg("Upserted daily prices")
	return nil
}

// GetDailyPrices returns prices for a symbol with start <= date <= end, oldest first
func (h *HistoryDB) GetDailyPrices(symbol string, start, end time.Time) ([]DailyPrice, error) {
	rows, err := h.db.Query(`
		SELECT date, close, adjusted_close
		FROM daily_prices
		WHERE symbol = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, symbol, start.Format(DateLayout), end.Format(DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	var prices []DailyPrice
	for rows.Next() {
		var p DailyPrice
		var adj sql.NullFloat64
		if err := rows.Scan(&p.Date, &p.Close, &adj); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		if adj.Valid {
			p.AdjClose = adj.Float64
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}
	return prices, nil
}

// CountPrices returns how many stored prices a symbol has in [start, end]
func (h *HistoryDB) CountPrices(symbol string, start, end time.Time) (int, error) {
	var count int
	err := h.db.QueryRow(
		"SELECT COUNT(*) FROM daily_prices WHERE symbol = ? AND date >= ? AND date <= ?",
		symbol, start.Format(DateLayout), end.Format(DateLayout),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count prices for %s: %w", symbol, err)
	}
	return count, nil
}

// LatestDate returns the most recent stored date for a symbol.
// ok is false when the symbol has no prices.
func (h *HistoryDB) LatestDate(symbol string) (latest time.Time, ok bool, err error) {
	var date sql.NullString
	if err := h.db.QueryRow("SELECT MAX(date) FROM daily_prices WHERE symbol = ?", symbol).Scan(&date); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get latest date for %s: %w", symbol, err)
	}
	if !date.Valid {
		return time.Time{}, false, nil
	}
	latest, err = time.Parse(DateLayout, date.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse stored date %s: %w", date.String, err)
	}
	return latest, true, nil
}

// BuildReturnSeries aligns the stored prices of every asset on the union of
// their trading dates and converts them to simple returns. A date on which
// any asset has no price leaves a gap, and the affected periods are dropped.
func (h *HistoryDB) BuildReturnSeries(assets []string, start, end time.Time) (optimization.ReturnSeries, error) {
	universe, err := optimization.NewAssetUniverse(assets)
	if err != nil {
		return optimization.ReturnSeries{}, err
	}

	byAsset := make([]map[string]float64, len(assets))
	dateSet := make(map[string]struct{})
	for j, asset := range assets {
		prices, err := h.GetDailyPrices(asset, start, end)
		if err != nil {
			return optimization.ReturnSeries{}, err
		}
		byAsset[j] = make(map[string]float64, len(prices))
		for _, p := range prices {
			byAsset[j][p.Date] = p.Price()
			dateSet[p.Date] = struct{}{}
		}
	}

	dates := make([]string, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	table := make([][]float64, len(dates))
	parsed := make([]time.Time, len(dates))
	for i, d := range dates {
		parsed[i], _ = time.Parse(DateLayout, d)
		row := make([]float64, len(assets))
		for j := range assets {
			price, ok := byAsset[j][d]
			if !ok {
				price = math.NaN()
			}
			row[j] = price
		}
		table[i] = row
	}

	series, err := optimization.ReturnsFromPrices(universe, parsed, table)
	if err != nil {
		return optimization.ReturnSeries{}, err
	}

	h.log.Debug().
		Strs("assets", assets).
		Int("dates", len(dates)).
		Int("observations", series.Observations()).
		Int("dropped", series.DroppedRows()).
		Msg("Built return series from stored prices")
	return series, nil
}
