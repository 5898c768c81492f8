package notifier

import (
	"context"
	"math"
	"time"

	"github.com/newthinker/quantbench/internal/backtest"
)

// Event describes a finished backtest run
type Event struct {
	RunID            string
	Description      string
	PriceField       string
	Bars             int
	StartDate        time.Time
	EndDate          time.Time
	GeneratedAt      time.Time
	CumulativeReturn float64
	CAGR             float64
	MDD              float64 // NaN when no position was ever held
	SharpeRatio      float64
	Trades           int
	WinRate          float64
}

// FromResult builds the completion event of a run
func FromResult(r *backtest.Result) Event {
	return Event{
		RunID:            r.ID,
		Description:      r.Description,
		PriceField:       string(r.PriceField),
		Bars:             len(r.Rows),
		StartDate:        r.StartDate,
		EndDate:          r.EndDate,
		GeneratedAt:      r.GeneratedAt,
		CumulativeReturn: r.Metrics.CumulativeReturn.Value,
		CAGR:             r.Metrics.CAGR.Value,
		MDD:              r.Metrics.MDD.Value,
		SharpeRatio:      r.Metrics.SharpeRatio.Value,
		Trades:           r.Stats.TotalTrades,
		WinRate:          r.Stats.WinRate,
	}
}

// Notifier delivers run completion events
type Notifier interface {
	// Name returns the unique identifier for this notifier
	Name() string

	// Notify sends one event
	Notify(ctx context.Context, ev Event) error
}

// Nullable maps NaN to nil so events encode as valid JSON
func Nullable(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
