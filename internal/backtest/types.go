package backtest

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/newthinker/quantbench/internal/core"
)

// PriceField selects which price column drives raw returns
type PriceField string

const (
	PriceFieldAdjClose PriceField = "adj_close"
	PriceFieldClose    PriceField = "close"
)

// Valid reports whether the price field is supported
func (f PriceField) Valid() bool {
	return f == PriceFieldAdjClose || f == PriceFieldClose
}

// Result holds the complete backtest output
type Result struct {
	ID          string             `json:"id"`
	Description string             `json:"description"`
	PriceField  PriceField         `json:"price_field"`
	GeneratedAt time.Time          `json:"generated_at"`
	StartDate   time.Time          `json:"start_date"`
	EndDate     time.Time          `json:"end_date"`
	Rows        []Row              `json:"rows"`
	Metrics     PerformanceMetrics `json:"metrics"`
	Trades      []Trade            `json:"trades"`
	Stats       Stats              `json:"stats"`
}

// Row is one line of the results table
type Row struct {
	Date              time.Time
	Open              float64
	Close             float64
	AdjClose          float64
	BuySignal         int
	SellSignal        int
	Description       string
	ValidSell         bool
	ValidHold         bool
	Position          core.Position
	Returns           float64
	AdjustedPosition  core.Position
	PrevClose         float64
	AdjustedReturns   float64
	CumulativeReturns float64
	Drawdown          float64
	MDD               float64
}

// MarshalJSON encodes missing values as null.
func (r Row) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"date":               r.Date.Format("2006-01-02"),
		"open":               nullable(r.Open),
		"close":              nullable(r.Close),
		"adj_close":          nullable(r.AdjClose),
		"buy_signal":         r.BuySignal,
		"sell_signal":        r.SellSignal,
		"description":        r.Description,
		"valid_sell":         r.ValidSell,
		"valid_hold":         r.ValidHold,
		"position":           r.Position,
		"returns":            nullable(r.Returns),
		"adjusted_position":  r.AdjustedPosition,
		"prev_close":         nullable(r.PrevClose),
		"adjusted_returns":   nullable(r.AdjustedReturns),
		"cumulative_returns": nullable(r.CumulativeReturns),
		"drawdown":           nullable(r.Drawdown),
		"mdd":                nullable(r.MDD),
	})
}

// Metric pairs a raw value with its human-readable form
type Metric struct {
	Value     float64
	Formatted string
}

// MarshalJSON encodes NaN values as null.
func (m Metric) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Value     any    `json:"value"`
		Formatted string `json:"formatted"`
	}{nullable(m.Value), m.Formatted})
}

// PerformanceMetrics holds the summary metrics of a run
type PerformanceMetrics struct {
	StartValue       float64 `json:"start_value"`
	EndValue         float64 `json:"end_value"`
	CumulativeReturn Metric  `json:"cumulative_return"`
	CAGR             Metric  `json:"cagr"`
	MDD              Metric  `json:"mdd"`
	SharpeRatio      Metric  `json:"sharpe_ratio"`
}

func percentMetric(label string, v float64) Metric {
	return Metric{Value: v, Formatted: fmt.Sprintf("%s: %s", label, formatPercent(v))}
}

func ratioMetric(label string, v float64) Metric {
	return Metric{Value: v, Formatted: fmt.Sprintf("%s: %s", label, formatRatio(v))}
}

func formatPercent(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "N/A"
	}
	return fmt.Sprintf("%.2f%%", v*100)
}

func formatRatio(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", v)
}

func nullable(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

// Trade represents one BUY to SELL cycle of the position schedule
type Trade struct {
	EntryBar  int       `json:"entry_bar"`
	EntryDate time.Time `json:"entry_date"`
	ExitBar   int       `json:"exit_bar"` // -1 while the position is open
	ExitDate  time.Time `json:"exit_date,omitzero"`
	Bars      int       `json:"bars"`
	Return    float64   `json:"return"` // Compounded adjusted return
}

// Stats holds trade statistics
type Stats struct {
	TotalTrades   int     `json:"total_trades"`
	ClosedTrades  int     `json:"closed_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"` // Percentage of profitable closed trades
}

// IsWin returns true if the trade was profitable
func (t Trade) IsWin() bool {
	return t.Return > 0
}

// IsClosed returns true if the trade has an exit
func (t Trade) IsClosed() bool {
	return t.ExitBar >= 0
}
