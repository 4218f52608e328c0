package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aristath/quantumfolio/internal/modules/optimization"
)

// DateLayout is the format of start_date and end_date.
const DateLayout = "2006-01-02"

// FrontierConfig is the optional volatility sweep section.
type FrontierConfig struct {
	MinVolatility *float64 `json:"min_volatility,omitempty"`
	MaxVolatility *float64 `json:"max_volatility,omitempty"`
	Points        *int     `json:"points,omitempty"`
}

// RunConfig is the JSON document describing one optimization run. Optional
// numeric fields are pointers so an explicit zero is validated rather than
// silently replaced by the default.
type RunConfig struct {
	Assets           []string           `json:"assets"`
	StartDate        string             `json:"start_date,omitempty"`
	EndDate          string             `json:"end_date,omitempty"`
	RiskAversion     float64            `json:"risk_aversion"`
	InvestorViews    map[string]float64 `json:"investor_views,omitempty"`
	ConfidenceLevels map[string]float64 `json:"confidence_levels,omitempty"`
	MarketCaps       map[string]float64 `json:"market_caps,omitempty"`
	Tau              *float64           `json:"tau,omitempty"`
	RiskFreeRate     float64            `json:"risk_free_rate,omitempty"`
	Frequency        *int               `json:"frequency,omitempty"`
	Estimator        string             `json:"estimator,omitempty"`
	VaRConfidence    *float64           `json:"var_confidence,omitempty"`
	WeightCutoff     *float64           `json:"weight_cutoff,omitempty"`
	Frontier         *FrontierConfig    `json:"frontier,omitempty"`
}

// LoadRunConfig reads and validates a run configuration file.
func LoadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run config: %w", err)
	}
	return ParseRunConfig(data)
}

// ParseRunConfig decodes and validates a run configuration. Unknown fields
// are rejected.
func ParseRunConfig(data []byte) (*RunConfig, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var cfg RunConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, &optimization.ConfigurationError{Field: "config", Reason: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the document. Explicit zeros for tau, frequency,
// var_confidence and weight_cutoff are rejected; everything else is checked
// by the engine parameters.
func (c *RunConfig) Validate() error {
	explicit := []struct {
		field string
		set   bool
		value float64
	}{
		{"tau", c.Tau != nil, deref(c.Tau)},
		{"var_confidence", c.VaRConfidence != nil, deref(c.VaRConfidence)},
		{"weight_cutoff", c.WeightCutoff != nil, deref(c.WeightCutoff)},
	}
	for _, e := range explicit {
		if e.set && !(e.value > 0) {
			return &optimization.ConfigurationError{Field: e.field, Reason: "must be positive when set"}
		}
	}
	if c.Frequency != nil && *c.Frequency <= 0 {
		return &optimization.ConfigurationError{Field: "frequency", Reason: "must be positive when set"}
	}

	start, end, err := c.DateRange()
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return &optimization.ConfigurationError{Field: "end_date", Reason: "must be after start_date"}
	}

	return c.Parameters().Validate()
}

// DateRange parses start_date and end_date. Missing dates come back as zero times.
func (c *RunConfig) DateRange() (start, end time.Time, err error) {
	if c.StartDate != "" {
		if start, err = time.Parse(DateLayout, c.StartDate); err != nil {
			return time.Time{}, time.Time{}, &optimization.ConfigurationError{Field: "start_date", Reason: "expected YYYY-MM-DD"}
		}
	}
	if c.EndDate != "" {
		if end, err = time.Parse(DateLayout, c.EndDate); err != nil {
			return time.Time{}, time.Time{}, &optimization.ConfigurationError{Field: "end_date", Reason: "expected YYYY-MM-DD"}
		}
	}
	return start, end, nil
}

// Parameters converts the document into engine parameters with defaults applied.
func (c *RunConfig) Parameters() optimization.RunParameters {
	p := optimization.RunParameters{
		Assets:       c.Assets,
		RiskAversion: c.RiskAversion,
		Views:        c.InvestorViews,
		Confidences:  c.ConfidenceLevels,
		MarketCaps:   c.MarketCaps,
		Tau:          deref(c.Tau),
		RiskFreeRate: c.RiskFreeRate,
		Estimator:    optimization.CovarianceEstimator(c.Estimator),
	}
	if c.Frequency != nil {
		p.Frequency = *c.Frequency
	}
	p.VaRConfidence = deref(c.VaRConfidence)
	p.WeightCutoff = deref(c.WeightCutoff)

	if f := c.Frontier; f != nil {
		spec := optimization.FrontierSpec{
			MaxVolatility: optimization.DefaultFrontierMaxVol,
			Points:        optimization.DefaultFrontierPoints,
		}
		if f.MinVolatility != nil {
			spec.MinVolatility = *f.MinVolatility
		}
		if f.MaxVolatility != nil {
			spec.MaxVolatility = *f.MaxVolatility
		}
		if f.Points != nil {
			spec.Points = *f.Points
		}
		p.Frontier = &spec
	}
	return p.WithDefaults()
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
