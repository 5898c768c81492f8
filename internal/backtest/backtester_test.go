package backtest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/newthinker/quantbench/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 19, 15, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// makeBars builds bars whose open, close and adjusted close all equal the
// given closes
func makeBars(closes ...float64) []core.PriceBar {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]core.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = core.PriceBar{Date: base.AddDate(0, 0, i), Open: c, Close: c, AdjClose: c}
	}
	return bars
}

// makeSignals builds a flat signal series with buys and sells at the given bars
func makeSignals(n int, buys, sells []int) []core.SignalBar {
	signals := make([]core.SignalBar, n)
	for i := range signals {
		signals[i].Description = "test crossover"
	}
	for _, i := range buys {
		signals[i].Buy = true
	}
	for _, i := range sells {
		signals[i].Sell = true
	}
	return signals
}

func positionsOf(rows []Row) []core.Position {
	out := make([]core.Position, len(rows))
	for i, r := range rows {
		out[i] = r.Position
	}
	return out
}

func TestBacktester_Run_BuyAndHold(t *testing.T) {
	closes := []float64{100, 101, 102, 103, 104, 105, 106, 107, 108, 109}
	bars := makeBars(closes...)
	signals := makeSignals(len(bars), []int{1}, nil)

	result, err := New(WithClock(fixedClock)).Run(context.Background(), bars, signals)
	require.NoError(t, err)

	// Fully exposed from bar 2 onward, never closed
	last := result.Rows[len(result.Rows)-1]
	assert.InDelta(t, 109.0/101.0, last.CumulativeReturns, 1e-12)
	assert.InDelta(t, 109.0/101.0-1, result.Metrics.CumulativeReturn.Value, 1e-12)

	require.Len(t, result.Trades, 1)
	assert.False(t, result.Trades[0].IsClosed())
	assert.Equal(t, 8, result.Trades[0].Bars)
	assert.Equal(t, 0, result.Stats.ClosedTrades)

	// Prices only rise while exposed
	assert.Equal(t, 0.0, result.Metrics.MDD.Value)
	assert.Equal(t, "test crossover", result.Description)
}

func TestBacktester_Run_SellExitsAtOpen(t *testing.T) {
	bars := []core.PriceBar{
		{Open: 100, Close: 100, AdjClose: 100},
		{Open: 101, Close: 102, AdjClose: 102},
		{Open: 105, Close: 103, AdjClose: 103},
		{Open: 99, Close: 101, AdjClose: 101},
		{Open: 103, Close: 104, AdjClose: 104},
	}
	signals := makeSignals(len(bars), []int{1}, []int{2})

	result, err := New().Run(context.Background(), bars, signals)
	require.NoError(t, err)

	rows := result.Rows
	assert.Equal(t, []core.Position{
		core.PositionNoHold, core.PositionBuy, core.PositionSell, core.PositionNoHold, core.PositionNoHold,
	}, positionsOf(rows))
	assert.True(t, rows[2].ValidSell)

	// Bar 2 is still exposed to the close-to-close move
	assert.InDelta(t, 103.0/102.0-1, rows[2].AdjustedReturns, 1e-12)

	// The sell applies to the next bar: exit at its open against the prior close
	assert.Equal(t, core.PositionSell, rows[3].AdjustedPosition)
	assert.InDelta(t, 99.0/103.0-1, rows[3].AdjustedReturns, 1e-12)
	assert.NotEqual(t, rows[3].Returns, rows[3].AdjustedReturns)

	// Flat afterwards
	assert.Equal(t, 0.0, rows[4].AdjustedReturns)
	assert.InDelta(t, 99.0/102.0, rows[4].CumulativeReturns, 1e-12)

	require.Len(t, result.Trades, 1)
	trade := result.Trades[0]
	assert.Equal(t, 1, trade.EntryBar)
	assert.Equal(t, 2, trade.ExitBar)
	assert.Equal(t, 2, trade.Bars)
	assert.InDelta(t, 99.0/102.0-1, trade.Return, 1e-12)
	assert.Equal(t, 1, result.Stats.LosingTrades)
}

func TestBacktester_Run_SellWithoutBuy(t *testing.T) {
	bars := makeBars(100, 99, 98)
	signals := makeSignals(len(bars), nil, []int{0, 1})

	result, err := New().Run(context.Background(), bars, signals)
	require.NoError(t, err)

	assert.Equal(t, core.PositionNoHold, result.Rows[0].Position)
	assert.Equal(t, core.PositionNoHold, result.Rows[1].Position)
	assert.False(t, result.Rows[0].ValidSell)
	assert.Empty(t, result.Trades)
}

func TestBacktester_Run_NoSignals(t *testing.T) {
	bars := makeBars(100, 103, 97, 110, 90, 95)
	signals := makeSignals(len(bars), nil, nil)

	result, err := New().Run(context.Background(), bars, signals)
	require.NoError(t, err)

	for i, row := range result.Rows {
		assert.Equal(t, 1.0, row.CumulativeReturns, "bar %d", i)
		assert.Equal(t, core.PositionNoHold, row.Position, "bar %d", i)
	}

	m := result.Metrics
	assert.Equal(t, 0.0, m.CumulativeReturn.Value)
	assert.Equal(t, 0.0, m.CAGR.Value)
	assert.Equal(t, 0.0, m.SharpeRatio.Value)
	assert.True(t, math.IsNaN(m.MDD.Value))
	assert.Equal(t, "MDD: N/A", m.MDD.Formatted)
	assert.Equal(t, "Sharpe Ratio: 0.00", m.SharpeRatio.Formatted)
}

func TestBacktester_Run_LagInvariant(t *testing.T) {
	bars := makeBars(50, 51, 49, 52, 55, 54, 53, 56, 58, 57, 59, 60)
	signals := makeSignals(len(bars), []int{1, 2, 7}, []int{0, 4, 5, 9, 11})

	result, err := New().Run(context.Background(), bars, signals)
	require.NoError(t, err)

	rows := result.Rows
	assert.Equal(t, 1.0, rows[0].CumulativeReturns)
	assert.Equal(t, 0.0, rows[0].AdjustedReturns)
	assert.Equal(t, core.PositionNone, rows[0].AdjustedPosition)

	for i := 1; i < len(rows); i++ {
		assert.Equal(t, rows[i-1].Position, rows[i].AdjustedPosition, "bar %d", i)
	}
}

func TestBacktester_Run_SellRequiresOpenBuy(t *testing.T) {
	bars := makeBars(10, 11, 12, 13, 12, 11, 12, 13, 14, 15)
	signals := makeSignals(len(bars), []int{2, 3, 7}, []int{0, 1, 5, 6, 8, 9})

	result, err := New().Run(context.Background(), bars, signals)
	require.NoError(t, err)

	open := false
	for i, row := range result.Rows {
		switch row.Position {
		case core.PositionBuy:
			open = true
		case core.PositionSell:
			assert.True(t, open, "sell at bar %d without an open buy", i)
			open = false
		case core.PositionHold:
			assert.True(t, open, "hold at bar %d without an open buy", i)
		}
	}

	// Buys at 2 and 3 share one position closed at 5; second cycle 7 -> 8
	require.Len(t, result.Trades, 2)
	assert.Equal(t, 2, result.Trades[0].EntryBar)
	assert.Equal(t, 5, result.Trades[0].ExitBar)
	assert.Equal(t, 7, result.Trades[1].EntryBar)
	assert.Equal(t, 8, result.Trades[1].ExitBar)
}

func TestBacktester_Run_DrawdownBounds(t *testing.T) {
	bars := makeBars(100, 120, 80, 90, 60, 130, 70, 75)
	signals := makeSignals(len(bars), []int{0}, []int{6})

	result, err := New().Run(context.Background(), bars, signals)
	require.NoError(t, err)

	prevMDD := 0.0
	for i, row := range result.Rows {
		assert.GreaterOrEqual(t, row.Drawdown, 0.0, "bar %d", i)
		assert.LessOrEqual(t, row.Drawdown, 1.0, "bar %d", i)
		assert.GreaterOrEqual(t, row.MDD, prevMDD, "running MDD must not decrease at bar %d", i)
		prevMDD = row.MDD
	}
	assert.Less(t, result.Metrics.MDD.Value, 0.0)
	assert.GreaterOrEqual(t, result.Metrics.MDD.Value, -1.0)
}

func TestBacktester_Run_Deterministic(t *testing.T) {
	bars := makeBars(20, 21, 19, 22, 23, 21, 24, 25, 23, 26)
	bars[4].AdjClose = math.NaN()
	signals := makeSignals(len(bars), []int{1, 6}, []int{3, 8})

	bt := New(WithClock(fixedClock))
	first, err := bt.Run(context.Background(), bars, signals)
	require.NoError(t, err)
	second, err := bt.Run(context.Background(), bars, signals)
	require.NoError(t, err)

	encode := func(r *Result) []byte {
		data, err := json.Marshal(struct {
			Rows    []Row
			Metrics PerformanceMetrics
			Trades  []Trade
		}{r.Rows, r.Metrics, r.Trades})
		require.NoError(t, err)
		return data
	}
	assert.True(t, bytes.Equal(encode(first), encode(second)))
	assert.NotEqual(t, first.ID, second.ID)
}

func TestBacktester_Run_MalformedPrice(t *testing.T) {
	bars := makeBars(100, 101, 102, 103, 104)
	bars[2].AdjClose = math.NaN()
	signals := makeSignals(len(bars), []int{0}, nil)

	result, err := New().Run(context.Background(), bars, signals)
	require.NoError(t, err)

	rows := result.Rows
	assert.True(t, math.IsNaN(rows[2].Returns))
	assert.True(t, math.IsNaN(rows[3].Returns))
	assert.Equal(t, 0.0, rows[2].AdjustedReturns)
	assert.Equal(t, 0.0, rows[3].AdjustedReturns)
	assert.InDelta(t, (101.0/100.0)*(104.0/103.0), rows[4].CumulativeReturns, 1e-12)
	assert.False(t, math.IsNaN(result.Metrics.SharpeRatio.Value))
}

func TestBacktester_Run_PriceField(t *testing.T) {
	bars := makeBars(100, 110, 121)
	// Adjusted close reflects a dividend; close does not
	bars[1].AdjClose = 105
	bars[2].AdjClose = 115.5
	signals := makeSignals(len(bars), []int{0}, nil)

	adj, err := New().Run(context.Background(), bars, signals)
	require.NoError(t, err)
	assert.InDelta(t, 1.155, adj.Metrics.EndValue, 1e-12)

	closeOnly, err := New(WithPriceField(PriceFieldClose)).Run(context.Background(), bars, signals)
	require.NoError(t, err)
	assert.InDelta(t, 1.21, closeOnly.Metrics.EndValue, 1e-12)
	assert.Equal(t, PriceFieldClose, closeOnly.PriceField)
}

func TestBacktester_Run_DoesNotMutateInput(t *testing.T) {
	bars := makeBars(10, 11, 12)
	signals := makeSignals(len(bars), []int{0}, []int{1})
	barsBefore := append([]core.PriceBar(nil), bars...)
	signalsBefore := append([]core.SignalBar(nil), signals...)

	_, err := New().Run(context.Background(), bars, signals)
	require.NoError(t, err)

	assert.Equal(t, barsBefore, bars)
	assert.Equal(t, signalsBefore, signals)
}

func TestBacktester_Run_Errors(t *testing.T) {
	tests := []struct {
		name    string
		bt      *Backtester
		bars    []core.PriceBar
		signals []core.SignalBar
		want    *core.Error
	}{
		{"empty", New(), nil, nil, core.ErrNoData},
		{"misaligned", New(), makeBars(1, 2, 3), makeSignals(2, nil, nil), core.ErrMisalignedInput},
		{"invalid period", New(WithSharpePeriod("weekly")), makeBars(1, 2), makeSignals(2, nil, nil), core.ErrInvalidPeriod},
		{"invalid price field", New(WithPriceField("vwap")), makeBars(1, 2), makeSignals(2, nil, nil), core.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.bt.Run(context.Background(), tt.bars, tt.signals)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestBacktester_Run_ContextCancellation(t *testing.T) {
	bars := makeBars(1, 2, 3)
	signals := makeSignals(len(bars), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	_, err := New().Run(ctx, bars, signals)
	if err == nil {
		t.Error("Expected context cancellation error")
	}
}

func TestWriteSummary(t *testing.T) {
	bars := makeBars(100, 100, 110, 121)
	signals := makeSignals(len(bars), []int{1}, nil)

	result, err := New(WithClock(fixedClock)).Run(context.Background(), bars, signals)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, result))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 7)
	assert.Equal(t, "Backtest Results 20261019_153000", string(lines[0]))
	assert.Equal(t, "Start Value: 1.00", string(lines[1]))
	assert.Equal(t, "End Value: 1.21", string(lines[2]))
	assert.Equal(t, "Cumulative Return: 21.00%", string(lines[3]))
	assert.Contains(t, string(lines[4]), "CAGR: ")
	assert.Equal(t, "MDD: 0.00%", string(lines[5]))
	assert.Contains(t, string(lines[6]), "Sharpe Ratio: ")
}
