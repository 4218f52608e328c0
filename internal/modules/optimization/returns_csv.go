package optimization

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

const csvDateLayout = "2006-01-02"

// ReadReturnsCSV parses a table of periodic returns. The header names the
// assets; a leading "date" column is optional. Empty cells are gaps and the
// rows holding them are dropped.
func ReadReturnsCSV(r io.Reader) (ReturnSeries, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return ReturnSeries{}, configErr("returns", "", "csv is empty")
	}
	if err != nil {
		return ReturnSeries{}, fmt.Errorf("failed to read csv header: %w", err)
	}

	hasDates := strings.EqualFold(strings.TrimSpace(header[0]), "date")
	assets := header
	if hasDates {
		assets = header[1:]
	}
	for i := range assets {
		assets[i] = strings.TrimSpace(assets[i])
	}
	universe, err := NewAssetUniverse(assets)
	if err != nil {
		return ReturnSeries{}, err
	}

	var dates []time.Time
	var rows [][]float64
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ReturnSeries{}, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}

		cells := record
		if hasDates {
			d, err := time.Parse(csvDateLayout, strings.TrimSpace(record[0]))
			if err != nil {
				return ReturnSeries{}, configErr("returns", "", fmt.Sprintf("line %d: invalid date %q", line, record[0]))
			}
			dates = append(dates, d)
			cells = record[1:]
		}

		row := make([]float64, len(cells))
		for j, cell := range cells {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				row[j] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return ReturnSeries{}, configErr("returns", universe.Asset(j), fmt.Sprintf("line %d: invalid number %q", line, cell))
			}
			row[j] = v
		}
		rows = append(rows, row)
	}

	return NewReturnSeries(universe, dates, rows)
}

// WriteReturnsCSV writes a series in the format ReadReturnsCSV accepts.
func WriteReturnsCSV(w io.Writer, series ReturnSeries) error {
	writer := csv.NewWriter(w)
	dates := series.Dates()

	header := series.Universe().Assets()
	if dates != nil {
		header = append([]string{"date"}, header...)
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for i, row := range series.Rows() {
		record := make([]string, 0, len(header))
		if dates != nil {
			record = append(record, dates[i].Format(csvDateLayout))
		}
		for _, v := range row {
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
