package optimization

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadReturnsCSV_WithDates(t *testing.T) {
	input := `date,AAPL,MSFT
2024-01-02,0.01,-0.005
2024-01-03,,0.002
2024-01-04,-0.02,0.01
`
	rs, err := ReadReturnsCSV(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL", "MSFT"}, rs.Universe().Assets())
	assert.Equal(t, 2, rs.Observations())
	assert.Equal(t, 1, rs.DroppedRows())
	assert.Equal(t, []time.Time{
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC),
	}, rs.Dates())
	assert.Equal(t, [][]float64{{0.01, -0.005}, {-0.02, 0.01}}, rs.Rows())
}

func TestReadReturnsCSV_WithoutDates(t *testing.T) {
	rs, err := ReadReturnsCSV(strings.NewReader("A, B\n0.1, 0.2\n0.3, 0.4\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, rs.Universe().Assets())
	assert.Nil(t, rs.Dates())
	assert.Equal(t, [][]float64{{0.1, 0.2}, {0.3, 0.4}}, rs.Rows())
}

func TestReadReturnsCSV_Errors(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantField string
		wantAsset string
	}{
		{"empty", "", "returns", ""},
		{"no assets", "date\n2024-01-02\n", "assets", ""},
		{"duplicate asset", "A,A\n0.1,0.2\n", "assets", "A"},
		{"bad date", "date,A\n02/01/2024,0.1\n", "returns", ""},
		{"bad number", "date,A,B\n2024-01-02,0.1,abc\n", "returns", "B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadReturnsCSV(strings.NewReader(tt.input))
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.wantField, cfgErr.Field)
			assert.Equal(t, tt.wantAsset, cfgErr.Asset)
		})
	}

	_, err := ReadReturnsCSV(strings.NewReader("A,B\n0.1\n"))
	assert.Error(t, err)
}

func TestWriteReturnsCSV(t *testing.T) {
	input := "date,AAPL,MSFT\n2024-01-02,0.01,-0.005\n2024-01-04,-0.02,0.01\n"
	rs, err := ReadReturnsCSV(strings.NewReader(input))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteReturnsCSV(&buf, rs))
	assert.Equal(t, input, buf.String())
}
