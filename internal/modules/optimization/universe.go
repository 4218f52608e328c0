package optimization

import (
	"math"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// weightSumTolerance bounds |Σw - 1| for market weights and accepted solutions.
const weightSumTolerance = 1e-6

// AssetUniverse is the ordered list of assets every vector and matrix is aligned to.
type AssetUniverse struct {
	assets []string
	index  map[string]int
}

// NewAssetUniverse validates and freezes the asset order.
func NewAssetUniverse(assets []string) (AssetUniverse, error) {
	if len(assets) == 0 {
		return AssetUniverse{}, configErr("assets", "", "universe must contain at least one asset")
	}

	u := AssetUniverse{
		assets: make([]string, len(assets)),
		index:  make(map[string]int, len(assets)),
	}
	for i, a := range assets {
		if strings.TrimSpace(a) == "" {
			return AssetUniverse{}, configErr("assets", "", "asset identifiers must not be blank")
		}
		if _, dup := u.index[a]; dup {
			return AssetUniverse{}, configErr("assets", a, "duplicate asset")
		}
		u.assets[i] = a
		u.index[a] = i
	}
	return u, nil
}

// Assets returns a copy of the ordered identifiers.
func (u AssetUniverse) Assets() []string {
	out := make([]string, len(u.assets))
	copy(out, u.assets)
	return out
}

// Len returns the number of assets.
func (u AssetUniverse) Len() int {
	return len(u.assets)
}

// Index returns the position of an asset in the universe.
func (u AssetUniverse) Index(asset string) (int, bool) {
	i, ok := u.index[asset]
	return i, ok
}

// Asset returns the identifier at position i.
func (u AssetUniverse) Asset(i int) string {
	return u.assets[i]
}

// ReturnSeries is a T×N matrix of periodic returns aligned to an AssetUniverse.
// Rows containing a missing (NaN or infinite) value are dropped at construction.
type ReturnSeries struct {
	universe AssetUniverse
	dates    []time.Time
	rows     [][]float64
	dropped  int
}

// NewReturnSeries builds a series from raw rows. dates may be nil; otherwise it
// must have one entry per row.
func NewReturnSeries(universe AssetUniverse, dates []time.Time, rows [][]float64) (ReturnSeries, error) {
	if dates != nil && len(dates) != len(rows) {
		return ReturnSeries{}, configErr("returns", "", "dates and rows have different lengths")
	}

	rs := ReturnSeries{universe: universe}
	for t, row := range rows {
		if len(row) != universe.Len() {
			return ReturnSeries{}, configErr("returns", "", "row width does not match the asset universe")
		}
		if hasGap(row) {
			rs.dropped++
			continue
		}
		cp := make([]float64, len(row))
		copy(cp, row)
		rs.rows = append(rs.rows, cp)
		if dates != nil {
			rs.dates = append(rs.dates, dates[t])
		}
	}
	return rs, nil
}

// ReturnsFromPrices converts a price table (one row per date) into simple
// period-over-period returns. A missing or non-positive price on either side
// of a period produces a gap row, which is dropped.
func ReturnsFromPrices(universe AssetUniverse, dates []time.Time, prices [][]float64) (ReturnSeries, error) {
	if dates != nil && len(dates) != len(prices) {
		return ReturnSeries{}, configErr("prices", "", "dates and rows have different lengths")
	}
	if len(prices) < 2 {
		return NewReturnSeries(universe, nil, nil)
	}

	rows := make([][]float64, 0, len(prices)-1)
	var rowDates []time.Time
	for t := 1; t < len(prices); t++ {
		if len(prices[t]) != universe.Len() || len(prices[t-1]) != universe.Len() {
			return ReturnSeries{}, configErr("prices", "", "row width does not match the asset universe")
		}
		row := make([]float64, universe.Len())
		for j := range row {
			prev, cur := prices[t-1][j], prices[t][j]
			if !(prev > 0) || !(cur > 0) || math.IsInf(prev, 0) || math.IsInf(cur, 0) {
				row[j] = math.NaN()
				continue
			}
			row[j] = cur/prev - 1
		}
		rows = append(rows, row)
		if dates != nil {
			rowDates = append(rowDates, dates[t])
		}
	}
	return NewReturnSeries(universe, rowDates, rows)
}

func hasGap(row []float64) bool {
	for _, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}

// Universe returns the asset universe the series is aligned to.
func (rs ReturnSeries) Universe() AssetUniverse {
	return rs.universe
}

// Observations returns T, the number of complete rows.
func (rs ReturnSeries) Observations() int {
	return len(rs.rows)
}

// DroppedRows returns how many gap rows were discarded.
func (rs ReturnSeries) DroppedRows() int {
	return rs.dropped
}

// Dates returns a copy of the row dates (nil when the series was built without dates).
func (rs ReturnSeries) Dates() []time.Time {
	if rs.dates == nil {
		return nil
	}
	out := make([]time.Time, len(rs.dates))
	copy(out, rs.dates)
	return out
}

// Rows returns a deep copy of the return rows.
func (rs ReturnSeries) Rows() [][]float64 {
	out := make([][]float64, len(rs.rows))
	for i, r := range rs.rows {
		out[i] = make([]float64, len(r))
		copy(out[i], r)
	}
	return out
}

// Matrix returns the series as a new T×N dense matrix, or nil when T is zero.
func (rs ReturnSeries) Matrix() *mat.Dense {
	if len(rs.rows) == 0 {
		return nil
	}
	n := rs.universe.Len()
	m := mat.NewDense(len(rs.rows), n, nil)
	for i, r := range rs.rows {
		m.SetRow(i, r)
	}
	return m
}

// Column returns the return history of the asset at position j.
func (rs ReturnSeries) Column(j int) []float64 {
	col := make([]float64, len(rs.rows))
	for i, r := range rs.rows {
		col[i] = r[j]
	}
	return col
}

// MarketWeights holds market-capitalization weights keyed by asset.
type MarketWeights map[string]float64

// Validate checks the weights are non-negative, cover only universe assets and
// sum to 1 within tolerance.
func (mw MarketWeights) Validate(universe AssetUniverse) error {
	if len(mw) == 0 {
		return configErr("market_weights", "", "no market weights supplied")
	}
	sum := 0.0
	for _, asset := range sortedKeys(mw) {
		w := mw[asset]
		if _, ok := universe.Index(asset); !ok {
			return configErr("market_weights", asset, "asset is not in the universe")
		}
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return configErr("market_weights", asset, "weight is not a finite number")
		}
		if w < 0 {
			return configErr("market_weights", asset, "weight must be non-negative")
		}
		sum += w
	}
	if math.Abs(sum-1) > weightSumTolerance {
		return configErr("market_weights", "", "weights must sum to 1")
	}
	return nil
}

// Vector aligns the weights to the universe order; absent assets get zero.
func (mw MarketWeights) Vector(universe AssetUniverse) *mat.VecDense {
	v := mat.NewVecDense(universe.Len(), nil)
	for i, a := range universe.assets {
		v.SetVec(i, mw[a])
	}
	return v
}

// MarketWeightsFromCaps normalizes market capitalizations into weights.
// Every universe asset needs a positive cap.
func MarketWeightsFromCaps(caps map[string]float64, universe AssetUniverse) (MarketWeights, error) {
	for _, asset := range sortedKeys(caps) {
		if _, ok := universe.Index(asset); !ok {
			return nil, configErr("market_caps", asset, "asset is not in the universe")
		}
	}

	values := make([]float64, universe.Len())
	for i, asset := range universe.assets {
		c, ok := caps[asset]
		if !ok {
			return nil, configErr("market_caps", asset, "missing market capitalization")
		}
		if math.IsNaN(c) || math.IsInf(c, 0) || c <= 0 {
			return nil, configErr("market_caps", asset, "market capitalization must be positive")
		}
		values[i] = c
	}

	total := floats.Sum(values)
	mw := make(MarketWeights, universe.Len())
	for i, asset := range universe.assets {
		mw[asset] = values[i] / total
	}
	return mw, nil
}

// EqualMarketWeights assigns 1/N to every asset. It stands in for real
// capitalization data and callers should flag results built on it.
func EqualMarketWeights(universe AssetUniverse) MarketWeights {
	mw := make(MarketWeights, universe.Len())
	for _, a := range universe.assets {
		mw[a] = 1 / float64(universe.Len())
	}
	return mw
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
