// Package dataset loads price and signal series and exports results tables.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/quantbench/internal/core"
)

// Accepted layouts for the date column, tried in order
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05-07:00",
	time.RFC3339,
	"2006/01/02",
}

var priceAliases = map[string][]string{
	"date":      {"date", "datetime", "timestamp"},
	"open":      {"open"},
	"close":     {"close"},
	"adj_close": {"adj close", "adj_close", "adjclose", "adjusted close", "adjusted_close"},
}

// LoadPrices reads a price series from a .csv or .parquet file
func LoadPrices(path string) ([]core.PriceBar, error) {
	var (
		bars []core.PriceBar
		err  error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		bars, err = readPricesParquetFile(path)
	default:
		bars, err = readCSVFile(path, ReadPricesCSV)
	}
	if err != nil {
		return nil, core.WrapError(core.ErrPriceData, fmt.Errorf("%s: %w", path, err))
	}
	return bars, nil
}

// ReadPricesCSV parses a header-driven price CSV. Date, Open and Close
// columns are required; the adjusted close falls back to Close when absent.
// Malformed price cells become NaN.
func ReadPricesCSV(r io.Reader) ([]core.PriceBar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty price file")
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	cols := indexColumns(header, priceAliases)
	for _, required := range []string{"date", "open", "close"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing %q column", required)
		}
	}

	var bars []core.PriceBar
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		date, err := parseDate(cell(record, cols["date"]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		bar := core.PriceBar{
			Date:  date,
			Open:  core.ParseNumber(cell(record, cols["open"])),
			Close: core.ParseNumber(cell(record, cols["close"])),
		}
		if idx, ok := cols["adj_close"]; ok {
			bar.AdjClose = core.ParseNumber(cell(record, idx))
		} else {
			bar.AdjClose = bar.Close
		}
		bars = append(bars, bar)
	}

	return bars, nil
}

// WritePricesCSV writes bars in the layout ReadPricesCSV accepts
func WritePricesCSV(w io.Writer, bars []core.PriceBar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Date", "Open", "Close", "Adj Close"}); err != nil {
		return err
	}
	for _, b := range bars {
		if err := cw.Write([]string{
			b.Date.Format("2006-01-02"),
			formatFloat(b.Open),
			formatFloat(b.Close),
			formatFloat(b.AdjClose),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func readCSVFile[T any](path string, parse func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parse(f)
}

// indexColumns maps canonical column names to their header positions
func indexColumns(header []string, aliases map[string][]string) map[string]int {
	cols := make(map[string]int)
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for canonical, names := range aliases {
			for _, alias := range names {
				if name == alias {
					if _, seen := cols[canonical]; !seen {
						cols[canonical] = i
					}
				}
			}
		}
	}
	return cols
}

func cell(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
