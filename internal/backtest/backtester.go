package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/newthinker/quantbench/internal/core"
	"go.uber.org/zap"
)

// Backtester runs a signal series against a price series
type Backtester struct {
	priceField   PriceField
	riskFreeRate float64
	sharpePeriod Period
	now          func() time.Time
	logger       *zap.Logger
}

// Option configures a Backtester
type Option func(*Backtester)

// WithPriceField selects the price column used for raw returns
func WithPriceField(f PriceField) Option {
	return func(b *Backtester) { b.priceField = f }
}

// WithRiskFreeRate sets the annual risk-free rate used by the Sharpe ratio
func WithRiskFreeRate(rate float64) Option {
	return func(b *Backtester) { b.riskFreeRate = rate }
}

// WithSharpePeriod sets the Sharpe ratio period
func WithSharpePeriod(p Period) Option {
	return func(b *Backtester) { b.sharpePeriod = p }
}

// WithClock overrides the clock used to stamp results
func WithClock(now func() time.Time) Option {
	return func(b *Backtester) { b.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(b *Backtester) { b.logger = logger }
}

// New creates a new Backtester
func New(opts ...Option) *Backtester {
	b := &Backtester{
		priceField:   PriceFieldAdjClose,
		riskFreeRate: 0.02,
		sharpePeriod: PeriodDaily,
		now:          time.Now,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run executes a backtest. Prices and signals must be aligned by row; the
// caller's slices are left untouched.
func (b *Backtester) Run(ctx context.Context, prices []core.PriceBar, signals []core.SignalBar) (*Result, error) {
	if err := b.validate(prices, signals); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	log := b.logger.With(zap.String("run_id", runID), zap.Int("bars", len(prices)))

	bars := make([]core.PriceBar, len(prices))
	copy(bars, prices)
	flags := make([]core.SignalBar, len(signals))
	copy(flags, signals)

	steps := positionSchedule(flags)
	log.Debug("position schedule built")

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	rows := b.buildRows(bars, flags, steps)
	log.Debug("returns derived")

	metrics, err := b.computeMetrics(rows)
	if err != nil {
		return nil, err
	}

	trades := extractTrades(rows)

	result := &Result{
		ID:          runID,
		Description: describe(flags),
		PriceField:  b.priceField,
		GeneratedAt: b.now(),
		StartDate:   bars[0].Date,
		EndDate:     bars[len(bars)-1].Date,
		Rows:        rows,
		Metrics:     metrics,
		Trades:      trades,
		Stats:       CalculateStats(trades),
	}

	log.Info("backtest complete",
		zap.Float64("cumulative_return", metrics.CumulativeReturn.Value),
		zap.Float64("cagr", metrics.CAGR.Value),
		zap.Float64("mdd", metrics.MDD.Value),
		zap.Float64("sharpe_ratio", metrics.SharpeRatio.Value),
		zap.Int("trades", len(trades)),
	)

	return result, nil
}

func (b *Backtester) validate(prices []core.PriceBar, signals []core.SignalBar) error {
	if !b.sharpePeriod.Valid() {
		return core.WrapError(core.ErrInvalidPeriod,
			fmt.Errorf("unsupported period %q", b.sharpePeriod))
	}
	if !b.priceField.Valid() {
		return core.WrapError(core.ErrInvalidInput,
			fmt.Errorf("unsupported price field %q", b.priceField))
	}
	if len(prices) == 0 {
		return core.WrapError(core.ErrNoData, fmt.Errorf("empty price series"))
	}
	if len(prices) != len(signals) {
		return core.WrapError(core.ErrMisalignedInput,
			fmt.Errorf("%d price bars vs %d signal bars", len(prices), len(signals)))
	}
	return nil
}

// buildRows derives returns, cumulative returns and drawdowns bar by bar.
// The position applied to bar t is the one derived for bar t-1.
func (b *Backtester) buildRows(bars []core.PriceBar, flags []core.SignalBar, steps []step) []Row {
	rows := make([]Row, len(bars))

	cumulative := 1.0
	peak := 1.0
	mdd := 0.0

	for t, bar := range bars {
		row := Row{
			Date:        bar.Date,
			Open:        bar.Open,
			Close:       bar.Close,
			AdjClose:    bar.AdjClose,
			BuySignal:   boolToInt(flags[t].Buy),
			SellSignal:  boolToInt(flags[t].Sell),
			Description: flags[t].Description,
			ValidSell:   steps[t].ValidSell,
			ValidHold:   steps[t].ValidHold,
			Position:    steps[t].Position,
			PrevClose:   math.NaN(),
		}

		if t > 0 {
			prev := bars[t-1]
			row.Returns = b.price(bar)/b.price(prev) - 1
			row.AdjustedPosition = steps[t-1].Position
			row.PrevClose = prev.Close
			row.AdjustedReturns = adjustedReturn(row.AdjustedPosition, barInput{
				ret:       row.Returns,
				open:      bar.Open,
				prevClose: prev.Close,
			})
		}

		cumulative *= 1 + row.AdjustedReturns
		peak = math.Max(peak, cumulative)
		row.CumulativeReturns = cumulative
		row.Drawdown = (peak - cumulative) / peak
		mdd = math.Max(mdd, row.Drawdown)
		row.MDD = mdd

		rows[t] = row
	}

	return rows
}

func (b *Backtester) computeMetrics(rows []Row) (PerformanceMetrics, error) {
	cumulative := make([]float64, len(rows))
	adjusted := make([]float64, len(rows))
	positions := make([]core.Position, len(rows))
	lagged := make([]core.Position, len(rows))
	for i, r := range rows {
		cumulative[i] = r.CumulativeReturns
		adjusted[i] = r.AdjustedReturns
		positions[i] = r.Position
		lagged[i] = r.AdjustedPosition
	}

	start := cumulative[0]
	end := cumulative[len(cumulative)-1]
	years := float64(len(rows)) / TradingDays

	cagr, err := CAGR(start, end, years)
	if err != nil {
		return PerformanceMetrics{}, err
	}
	sharpe, err := SharpeRatio(adjusted, lagged, b.riskFreeRate, b.sharpePeriod)
	if err != nil {
		return PerformanceMetrics{}, err
	}
	mdd := MaxDrawdown(cumulative, positions)

	return PerformanceMetrics{
		StartValue:       start,
		EndValue:         end,
		CumulativeReturn: percentMetric("Cumulative Return", end/start-1),
		CAGR:             percentMetric("CAGR", cagr),
		MDD:              percentMetric("MDD", mdd),
		SharpeRatio:      ratioMetric("Sharpe Ratio", sharpe),
	}, nil
}

func (b *Backtester) price(bar core.PriceBar) float64 {
	if b.priceField == PriceFieldClose {
		return bar.Close
	}
	return bar.AdjClose
}

// extractTrades turns the position schedule into BUY to SELL cycles. A trade
// is exposed from the bar after its entry through the bar after its exit.
func extractTrades(rows []Row) []Trade {
	var trades []Trade
	var current *Trade

	for t, row := range rows {
		if current != nil && t > current.EntryBar {
			current.Return = (1+current.Return)*(1+row.AdjustedReturns) - 1
			current.Bars++
			if current.IsClosed() {
				trades = append(trades, *current)
				current = nil
			}
		}

		switch row.Position {
		case core.PositionBuy:
			if current == nil {
				current = &Trade{EntryBar: t, EntryDate: row.Date, ExitBar: -1}
			}
		case core.PositionSell:
			if current != nil {
				current.ExitBar = t
				current.ExitDate = row.Date
				if t == len(rows)-1 {
					trades = append(trades, *current)
					current = nil
				}
			}
		}
	}

	if current != nil {
		trades = append(trades, *current)
	}
	return trades
}

// describe returns the first non-empty signal description
func describe(flags []core.SignalBar) string {
	for _, f := range flags {
		if f.Description != "" {
			return f.Description
		}
	}
	return ""
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
