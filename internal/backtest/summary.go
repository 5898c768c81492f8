package backtest

import (
	"fmt"
	"io"
)

// SummaryTimeFormat is the timestamp layout of the metrics summary header
const SummaryTimeFormat = "20060102_150405"

// WriteSummary writes the plain-text metrics summary of a run
func WriteSummary(w io.Writer, r *Result) error {
	m := r.Metrics
	_, err := fmt.Fprintf(w,
		"Backtest Results %s\nStart Value: %.2f\nEnd Value: %.2f\n%s\n%s\n%s\n%s\n",
		r.GeneratedAt.Format(SummaryTimeFormat),
		m.StartValue,
		m.EndValue,
		m.CumulativeReturn.Formatted,
		m.CAGR.Formatted,
		m.MDD.Formatted,
		m.SharpeRatio.Formatted,
	)
	return err
}
