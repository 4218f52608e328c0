package universe

import (
	"math"
	"time"

	"github.com/rs/zerolog"
)

const (
	// Validation thresholds
	maxPriceChangePercent = 1000.0 // >1000% day-over-day change is a spike
	minPriceChangePercent = -90.0  // <-90% day-over-day change is a crash
)

// Rejection records a price dropped by the validator
type Rejection struct {
	Date   string  `json:"date"`
	Close  float64 `json:"close"`
	Reason string  `json:"reason"`
}

// PriceValidator screens fetched prices before they are stored. Rejected
// prices are not interpolated: the missing day becomes a gap and the
// surrounding periods are dropped when returns are built.
type PriceValidator struct {
	log zerolog.Logger
}

// NewPriceValidator creates a new price validator
func NewPriceValidator(log zerolog.Logger) *PriceValidator {
	return &PriceValidator{
		log: log.With().Str("component", "price_validator").Logger(),
	}
}

// ValidatePrice checks a price against the previous accepted one (nil for the first).
// Returns (isValid, reason)
func (v *PriceValidator) ValidatePrice(price DailyPrice, prev *DailyPrice) (bool, string) {
	if _, err := time.Parse(DateLayout, price.Date); err != nil {
		return false, "invalid_date"
	}
	p := price.Price()
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return false, "not_finite"
	}
	if p <= 0 {
		return false, "non_positive"
	}

	if prev != nil {
		changePercent := (p/prev.Price() - 1) * 100.0
		if changePercent > maxPriceChangePercent {
			return false, "spike_detected"
		}
		if changePercent < minPriceChangePercent {
			return false, "crash_detected"
		}
	}
	return true, ""
}

// Filter returns the accepted prices (in input order) and the rejections.
// Prices must be sorted oldest first.
func (v *PriceValidator) Filter(symbol string, prices []DailyPrice) ([]DailyPrice, []Rejection) {
	accepted := make([]DailyPrice, 0, len(prices))
	var rejected []Rejection
	var prev *DailyPrice

	for _, price := range prices {
		ok, reason := v.ValidatePrice(price, prev)
		if !ok {
			rejected = append(rejected, Rejection{Date: price.Date, Close: price.Close, Reason: reason})
			continue
		}
		accepted = append(accepted, price)
		prev = &accepted[len(accepted)-1]
	}

	if len(rejected) > 0 {
		v.log.Warn().
			Str("symbol", symbol).
			Int("rejected", len(rejected)).
			Str("first_reason", rejected[0].Reason).
			Msg("Dropped abnormal prices")
	}
	return accepted, rejected
}
