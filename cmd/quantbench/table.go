package main

import (
	"fmt"
	"io"
	"math"

	"github.com/newthinker/quantbench/internal/backtest"
	"github.com/newthinker/quantbench/internal/storage/runs"
	"github.com/olekukonko/tablewriter"
)

func printMetrics(w io.Writer, r *backtest.Result) error {
	m := r.Metrics
	table := tablewriter.NewWriter(w)
	table.Header("Metric", "Value")

	rows := [][]string{
		{"Start Value", fmt.Sprintf("%.2f", m.StartValue)},
		{"End Value", fmt.Sprintf("%.2f", m.EndValue)},
		{"Cumulative Return", percent(m.CumulativeReturn.Value)},
		{"CAGR", percent(m.CAGR.Value)},
		{"MDD", percent(m.MDD.Value)},
		{"Sharpe Ratio", ratio(m.SharpeRatio.Value)},
		{"Trades", fmt.Sprintf("%d (%d closed)", r.Stats.TotalTrades, r.Stats.ClosedTrades)},
		{"Win Rate", fmt.Sprintf("%.1f%%", r.Stats.WinRate)},
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func printHistory(w io.Writer, records []runs.Record) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Generated", "Strategy", "Bars", "Return", "CAGR", "MDD", "Sharpe", "Trades")

	for _, rec := range records {
		err := table.Append(
			rec.ID,
			rec.GeneratedAt.Format("2006-01-02 15:04"),
			rec.Description,
			fmt.Sprintf("%d", rec.Bars),
			percent(rec.CumulativeReturn),
			percent(rec.CAGR),
			percent(rec.MDD),
			ratio(rec.SharpeRatio),
			fmt.Sprintf("%d", rec.Trades),
		)
		if err != nil {
			return err
		}
	}
	return table.Render()
}

func percent(v float64) string {
	if math.IsNaN(v) {
		return "N/A"
	}
	return fmt.Sprintf("%.2f%%", v*100)
}

func ratio(v float64) string {
	if math.IsNaN(v) {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", v)
}
