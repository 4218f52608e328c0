package universe

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestPriceValidator_ValidatePrice(t *testing.T) {
	v := NewPriceValidator(zerolog.Nop())
	prev := &DailyPrice{Date: "2024-01-02", Close: 100}

	tests := []struct {
		name       string
		price      DailyPrice
		prev       *DailyPrice
		wantValid  bool
		wantReason string
	}{
		{"normal", DailyPrice{Date: "2024-01-03", Close: 101}, prev, true, ""},
		{"first price", DailyPrice{Date: "2024-01-03", Close: 5000}, nil, true, ""},
		{"bad date", DailyPrice{Date: "yesterday", Close: 101}, prev, false, "invalid_date"},
		{"nan", DailyPrice{Date: "2024-01-03", Close: math.NaN()}, prev, false, "not_finite"},
		{"zero", DailyPrice{Date: "2024-01-03", Close: 0}, prev, false, "non_positive"},
		{"spike", DailyPrice{Date: "2024-01-03", Close: 1200}, prev, false, "spike_detected"},
		{"crash", DailyPrice{Date: "2024-01-03", Close: 5}, prev, false, "crash_detected"},
		{"adjusted close used", DailyPrice{Date: "2024-01-03", Close: 1200, AdjClose: 102}, prev, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, reason := v.ValidatePrice(tt.price, tt.prev)
			assert.Equal(t, tt.wantValid, valid)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestPriceValidator_Filter(t *testing.T) {
	v := NewPriceValidator(zerolog.Nop())

	accepted, rejected := v.Filter("AAA", []DailyPrice{
		{Date: "2024-01-02", Close: 100},
		{Date: "2024-01-03", Close: -1},
		{Date: "2024-01-04", Close: 102},
		{Date: "2024-01-05", Close: 2000},
		{Date: "2024-01-08", Close: 104},
	})

	assert.Equal(t, []DailyPrice{
		{Date: "2024-01-02", Close: 100},
		{Date: "2024-01-04", Close: 102},
		{Date: "2024-01-08", Close: 104},
	}, accepted)
	assert.Equal(t, []Rejection{
		{Date: "2024-01-03", Close: -1, Reason: "non_positive"},
		{Date: "2024-01-05", Close: 2000, Reason: "spike_detected"},
	}, rejected)
}
