package ma_crossover

import (
	"fmt"
	"math"

	"github.com/newthinker/quantbench/internal/core"
	"github.com/newthinker/quantbench/internal/indicator"
	"github.com/newthinker/quantbench/internal/strategy"
)

const (
	Name = "ma_crossover"

	defaultFast = 5
	defaultSlow = 20
)

// MACrossover buys on a golden cross and sells on a death cross
type MACrossover struct {
	fastPeriod int
	slowPeriod int
	ma         string
	field      string
}

// New creates a new MA Crossover strategy
func New(fastPeriod, slowPeriod int, ma, field string) (*MACrossover, error) {
	if fastPeriod <= 0 || slowPeriod <= 0 {
		return nil, fmt.Errorf("periods must be positive (fast %d, slow %d)", fastPeriod, slowPeriod)
	}
	if fastPeriod >= slowPeriod {
		return nil, fmt.Errorf("fast period %d must be shorter than slow period %d", fastPeriod, slowPeriod)
	}
	if ma == "" {
		ma = "sma"
	}
	if ma != "sma" && ma != "ema" {
		return nil, fmt.Errorf("unknown moving average %q", ma)
	}
	if field == "" {
		field = "adj_close"
	}
	if field != "adj_close" && field != "close" {
		return nil, fmt.Errorf("unknown price field %q", field)
	}
	return &MACrossover{
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
		ma:         ma,
		field:      field,
	}, nil
}

// Factory adapts New to strategy.Factory, filling in default periods
func Factory(p strategy.Params) (strategy.Generator, error) {
	fast, slow := p.Fast, p.Slow
	if fast == 0 {
		fast = defaultFast
	}
	if slow == 0 {
		slow = defaultSlow
	}
	return New(fast, slow, p.MA, p.PriceField)
}

func (m *MACrossover) Name() string {
	return Name
}

func (m *MACrossover) Description() string {
	return fmt.Sprintf("MA Crossover (%s %d/%d)", m.ma, m.fastPeriod, m.slowPeriod)
}

// Generate marks a buy where the fast average crosses above the slow one
// and a sell where it crosses below. Bars before both averages exist carry
// no signal.
func (m *MACrossover) Generate(prices []core.PriceBar) ([]core.SignalBar, error) {
	series := strategy.Series(prices, m.field)
	fastMA, slowMA := m.average(series, m.fastPeriod), m.average(series, m.slowPeriod)

	signals := make([]core.SignalBar, len(prices))
	if len(signals) > 0 {
		signals[0].Description = m.Description()
	}

	for i := 1; i < len(series); i++ {
		prevFast, prevSlow := fastMA[i-1], slowMA[i-1]
		currFast, currSlow := fastMA[i], slowMA[i]
		if anyNaN(prevFast, prevSlow, currFast, currSlow) {
			continue
		}

		// Golden Cross: fast crosses above slow
		if prevFast <= prevSlow && currFast > currSlow {
			signals[i].Buy = true
		}
		// Death Cross: fast crosses below slow
		if prevFast >= prevSlow && currFast < currSlow {
			signals[i].Sell = true
		}
	}

	return signals, nil
}

func (m *MACrossover) average(series []float64, period int) []float64 {
	if m.ma == "ema" {
		return indicator.EMA(series, period)
	}
	return indicator.SMA(series, period)
}

func anyNaN(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
