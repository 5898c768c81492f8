package backtest

import (
	"fmt"
	"math"

	"github.com/newthinker/quantbench/internal/core"
)

// TradingDays is the number of bars per year used for annualization.
const TradingDays = 252

// Period selects how the Sharpe ratio is scaled
type Period string

const (
	PeriodDaily  Period = "daily"
	PeriodYearly Period = "yearly"
)

// Valid reports whether the period is supported
func (p Period) Valid() bool {
	return p == PeriodDaily || p == PeriodYearly
}

// CAGR computes the compound annual growth rate between two values
func CAGR(start, end, years float64) (float64, error) {
	if start <= 0 {
		return 0, core.WrapError(core.ErrInvalidInput,
			fmt.Errorf("start value must be positive, got %v", start))
	}
	if years <= 0 {
		return 0, core.WrapError(core.ErrInvalidInput,
			fmt.Errorf("period must be positive, got %v years", years))
	}
	return math.Pow(end/start, 1/years) - 1, nil
}

// MaxDrawdown returns the most negative drawdown of the cumulative return
// curve, restricted to bars whose previous position was active.
// Returns NaN when no bar qualifies.
func MaxDrawdown(cumulative []float64, positions []core.Position) float64 {
	n := min(len(cumulative), len(positions))

	mdd := math.NaN()
	peak := math.Inf(-1)
	for t := 1; t < n; t++ {
		if !positions[t-1].Active() {
			continue
		}
		v := cumulative[t]
		if v > peak {
			peak = v
		}
		dd := v/peak - 1
		if math.IsNaN(mdd) || dd < mdd {
			mdd = dd
		}
	}

	return mdd
}

// SharpeRatio computes the Sharpe ratio of returns on bars with an active
// position. Degenerate inputs (no active bars, zero or undefined deviation)
// yield exactly 0.
func SharpeRatio(returns []float64, positions []core.Position, riskFree float64, period Period) (float64, error) {
	if !period.Valid() {
		return 0, core.WrapError(core.ErrInvalidPeriod,
			fmt.Errorf("unsupported period %q, use %q or %q", period, PeriodDaily, PeriodYearly))
	}
	if len(returns) != len(positions) {
		return 0, core.WrapError(core.ErrMisalignedInput,
			fmt.Errorf("%d returns vs %d positions", len(returns), len(positions)))
	}

	active := make([]float64, 0, len(returns))
	for i, r := range returns {
		if positions[i].Active() {
			active = append(active, r)
		}
	}
	if len(active) < 2 {
		return 0, nil
	}

	mean, stdDev := meanStd(active)
	if stdDev == 0 || math.IsNaN(stdDev) {
		return 0, nil
	}

	switch period {
	case PeriodYearly:
		return (mean - riskFree) / stdDev * math.Sqrt(TradingDays), nil
	default:
		return (mean - riskFree/TradingDays) / stdDev, nil
	}
}

// meanStd returns the mean and sample standard deviation
func meanStd(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(variance / float64(len(values)-1))
}

// CalculateStats computes trade statistics over closed trades
func CalculateStats(trades []Trade) Stats {
	if len(trades) == 0 {
		return Stats{}
	}

	var winning, losing int
	for _, t := range trades {
		if !t.IsClosed() {
			continue
		}
		if t.IsWin() {
			winning++
		} else {
			losing++
		}
	}

	closedTrades := winning + losing
	var winRate float64
	if closedTrades > 0 {
		winRate = float64(winning) / float64(closedTrades) * 100
	}

	return Stats{
		TotalTrades:   len(trades),
		ClosedTrades:  closedTrades,
		WinningTrades: winning,
		LosingTrades:  losing,
		WinRate:       winRate,
	}
}
