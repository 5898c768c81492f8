package dataset

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/newthinker/quantbench/internal/backtest"
)

// ResultColumns is the header of an exported results table
var ResultColumns = []string{
	"Date", "Open", "Close", "Adj Close",
	"BuySignal", "SellSignal", "Description",
	"ValidSell", "ValidHold", "Position",
	"Returns", "Adjusted Position", "Close(PrevDay)",
	"Adjusted Returns", "Cumulative Returns", "Drawdown", "MDD",
}

// WriteResultsCSV writes the results table as CSV. Missing values are empty
// cells.
func WriteResultsCSV(w io.Writer, rows []backtest.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ResultColumns); err != nil {
		return err
	}

	for _, r := range rows {
		record := []string{
			r.Date.Format("2006-01-02"),
			formatFloat(r.Open),
			formatFloat(r.Close),
			formatFloat(r.AdjClose),
			strconv.Itoa(r.BuySignal),
			strconv.Itoa(r.SellSignal),
			r.Description,
			strconv.FormatBool(r.ValidSell),
			strconv.FormatBool(r.ValidHold),
			r.Position.String(),
			formatFloat(r.Returns),
			r.AdjustedPosition.String(),
			formatFloat(r.PrevClose),
			formatFloat(r.AdjustedReturns),
			formatFloat(r.CumulativeReturns),
			formatFloat(r.Drawdown),
			formatFloat(r.MDD),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
