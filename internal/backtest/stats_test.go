package backtest

import (
	"errors"
	"math"
	"testing"

	"github.com/newthinker/quantbench/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCAGR(t *testing.T) {
	tests := []struct {
		name       string
		start, end float64
		years      float64
		want       float64
		wantErr    bool
	}{
		{"doubled in one year", 1, 2, 1, 1, false},
		{"doubled in two years", 1, 2, 2, math.Sqrt2 - 1, false},
		{"flat", 1, 1, 0.5, 0, false},
		{"loss", 1, 0.81, 2, -0.1, false},
		{"zero start", 0, 1, 1, 0, true},
		{"negative start", -1, 1, 1, 0, true},
		{"zero years", 1, 1.2, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CAGR(tt.start, tt.end, tt.years)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, core.ErrInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestMaxDrawdown(t *testing.T) {
	// Active bars 1..4: 1.1, 0.99, 1.2, 0.6 -> worst is 0.6 against a 1.2 peak
	cumulative := []float64{1, 1.1, 0.99, 1.2, 0.6}
	positions := []core.Position{core.PositionBuy, core.PositionHold, core.PositionHold, core.PositionSell, core.PositionNoHold}

	assert.InDelta(t, -0.5, MaxDrawdown(cumulative, positions), 1e-12)
}

func TestMaxDrawdown_OnlyActiveBars(t *testing.T) {
	// The drop at bar 1 happens while flat and must not count
	cumulative := []float64{1, 0.5, 1, 0.8}
	positions := []core.Position{core.PositionNoHold, core.PositionNoHold, core.PositionBuy, core.PositionNoHold}

	assert.Equal(t, 0.0, MaxDrawdown(cumulative, positions))
}

func TestMaxDrawdown_NoActiveBars(t *testing.T) {
	cumulative := []float64{1, 1, 1}
	positions := []core.Position{core.PositionNoHold, core.PositionNoHold, core.PositionNoHold}

	assert.True(t, math.IsNaN(MaxDrawdown(cumulative, positions)))
	assert.True(t, math.IsNaN(MaxDrawdown(nil, nil)))
}

func TestSharpeRatio(t *testing.T) {
	returns := []float64{0, 0.01, 0.03, 0.02, 0.5}
	positions := []core.Position{core.PositionNone, core.PositionBuy, core.PositionHold, core.PositionSell, core.PositionNoHold}

	// Active returns 0.01, 0.03, 0.02: mean 0.02, sample std 0.01
	daily, err := SharpeRatio(returns, positions, 0.02, PeriodDaily)
	require.NoError(t, err)
	assert.InDelta(t, (0.02-0.02/252)/0.01, daily, 1e-9)

	yearly, err := SharpeRatio(returns, positions, 0, PeriodYearly)
	require.NoError(t, err)
	assert.InDelta(t, 2*math.Sqrt(252), yearly, 1e-9)
}

func TestSharpeRatio_ZeroGuards(t *testing.T) {
	tests := []struct {
		name      string
		returns   []float64
		positions []core.Position
	}{
		{
			name:      "no active bars",
			returns:   []float64{0.01, 0.02},
			positions: []core.Position{core.PositionNoHold, core.PositionNone},
		},
		{
			name:      "zero variance",
			returns:   []float64{0.01, 0.01, 0.01},
			positions: []core.Position{core.PositionBuy, core.PositionHold, core.PositionHold},
		},
		{
			name:      "single active bar",
			returns:   []float64{0, 0.04},
			positions: []core.Position{core.PositionNoHold, core.PositionHold},
		},
		{
			name: "empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, period := range []Period{PeriodDaily, PeriodYearly} {
				got, err := SharpeRatio(tt.returns, tt.positions, 0.02, period)
				require.NoError(t, err)
				assert.Equal(t, 0.0, got)
			}
		})
	}
}

func TestSharpeRatio_InvalidPeriod(t *testing.T) {
	_, err := SharpeRatio([]float64{0.01}, []core.Position{core.PositionBuy}, 0.02, Period("monthly"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidPeriod))
}

func TestSharpeRatio_Misaligned(t *testing.T) {
	_, err := SharpeRatio([]float64{0.01, 0.02}, []core.Position{core.PositionBuy}, 0.02, PeriodDaily)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrMisalignedInput))
}

func TestCalculateStats_Empty(t *testing.T) {
	stats := CalculateStats([]Trade{})
	if stats.TotalTrades != 0 {
		t.Error("expected 0 trades for empty input")
	}
}

func TestCalculateStats_WinRate(t *testing.T) {
	trades := []Trade{
		{Return: 0.10, ExitBar: 3},  // win
		{Return: 0.05, ExitBar: 6},  // win
		{Return: -0.03, ExitBar: 9}, // loss
		{Return: 0.02, ExitBar: 12}, // win
	}

	stats := CalculateStats(trades)

	if stats.TotalTrades != 4 {
		t.Errorf("TotalTrades = %d, want 4", stats.TotalTrades)
	}
	if stats.WinningTrades != 3 {
		t.Errorf("WinningTrades = %d, want 3", stats.WinningTrades)
	}
	if stats.WinRate != 75 {
		t.Errorf("WinRate = %f, want 75", stats.WinRate)
	}
}

func TestCalculateStats_IgnoresOpenTrades(t *testing.T) {
	trades := []Trade{
		{Return: 0.10, ExitBar: 4},  // closed
		{Return: 0.05, ExitBar: -1}, // open - should be ignored
	}

	stats := CalculateStats(trades)

	if stats.WinningTrades != 1 {
		t.Errorf("should only count closed trades, got %d", stats.WinningTrades)
	}
	if stats.ClosedTrades != 1 {
		t.Errorf("ClosedTrades = %d, want 1", stats.ClosedTrades)
	}
}
