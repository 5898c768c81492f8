package dataset

import (
	"bytes"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/newthinker/quantbench/internal/backtest"
	"github.com/newthinker/quantbench/internal/core"
)

// PriceRecord is the Parquet schema for daily price bars.
type PriceRecord struct {
	Date     int64   `parquet:"date,timestamp(millisecond)"` // Unix ms
	Open     float64 `parquet:"open"`
	Close    float64 `parquet:"close"`
	AdjClose float64 `parquet:"adj_close"`
}

// ResultRecord is the Parquet schema for one results table row.
type ResultRecord struct {
	Date              int64   `parquet:"date,timestamp(millisecond)"`
	Open              float64 `parquet:"open"`
	Close             float64 `parquet:"close"`
	AdjClose          float64 `parquet:"adj_close"`
	BuySignal         int32   `parquet:"buy_signal"`
	SellSignal        int32   `parquet:"sell_signal"`
	Description       string  `parquet:"description"`
	ValidSell         bool    `parquet:"valid_sell"`
	ValidHold         bool    `parquet:"valid_hold"`
	Position          string  `parquet:"position"`
	Returns           float64 `parquet:"returns"`
	AdjustedPosition  string  `parquet:"adjusted_position"`
	PrevClose         float64 `parquet:"prev_close"`
	AdjustedReturns   float64 `parquet:"adjusted_returns"`
	CumulativeReturns float64 `parquet:"cumulative_returns"`
	Drawdown          float64 `parquet:"drawdown"`
	MDD               float64 `parquet:"mdd"`
}

func readPricesParquetFile(path string) ([]core.PriceBar, error) {
	records, err := parquet.ReadFile[PriceRecord](path)
	if err != nil {
		return nil, err
	}
	return priceBars(records), nil
}

// ReadPricesParquet decodes Parquet price records from an in-memory file
func ReadPricesParquet(data []byte) ([]core.PriceBar, error) {
	records, err := parquet.Read[PriceRecord](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	return priceBars(records), nil
}

// WritePricesParquet encodes bars as Parquet price records
func WritePricesParquet(w io.Writer, bars []core.PriceBar) error {
	records := make([]PriceRecord, len(bars))
	for i, b := range bars {
		records[i] = PriceRecord{
			Date:     b.Date.UnixMilli(),
			Open:     b.Open,
			Close:    b.Close,
			AdjClose: b.AdjClose,
		}
	}
	return parquet.Write(w, records)
}

func priceBars(records []PriceRecord) []core.PriceBar {
	bars := make([]core.PriceBar, len(records))
	for i, r := range records {
		bars[i] = core.PriceBar{
			Date:     time.UnixMilli(r.Date).UTC(),
			Open:     r.Open,
			Close:    r.Close,
			AdjClose: r.AdjClose,
		}
	}
	return bars
}

// WriteResultsParquet writes the results table as Parquet
func WriteResultsParquet(w io.Writer, rows []backtest.Row) error {
	records := make([]ResultRecord, len(rows))
	for i, r := range rows {
		records[i] = ResultRecord{
			Date:              r.Date.UnixMilli(),
			Open:              r.Open,
			Close:             r.Close,
			AdjClose:          r.AdjClose,
			BuySignal:         int32(r.BuySignal),
			SellSignal:        int32(r.SellSignal),
			Description:       r.Description,
			ValidSell:         r.ValidSell,
			ValidHold:         r.ValidHold,
			Position:          r.Position.String(),
			Returns:           r.Returns,
			AdjustedPosition:  r.AdjustedPosition.String(),
			PrevClose:         r.PrevClose,
			AdjustedReturns:   r.AdjustedReturns,
			CumulativeReturns: r.CumulativeReturns,
			Drawdown:          r.Drawdown,
			MDD:               r.MDD,
		}
	}
	return parquet.Write(w, records)
}

// ReadResultsParquet decodes a results table written by WriteResultsParquet
func ReadResultsParquet(data []byte) ([]ResultRecord, error) {
	return parquet.Read[ResultRecord](bytes.NewReader(data), int64(len(data)))
}
