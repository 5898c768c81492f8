package backtest

import "github.com/newthinker/quantbench/internal/core"

// holding is the state carried between bars by the position fold
type holding bool

const (
	flat holding = false
	open holding = true
)

// step is the label emitted for one bar
type step struct {
	Position  core.Position
	ValidSell bool
	ValidHold bool
}

// transition applies one bar of raw flags to the current state. A buy wins
// over a sell on the same bar; a sell only counts while a position is open.
func transition(state holding, sig core.SignalBar) (holding, step) {
	switch {
	case sig.Buy:
		return open, step{Position: core.PositionBuy}
	case sig.Sell && state == open:
		return flat, step{Position: core.PositionSell, ValidSell: true}
	case state == open:
		return open, step{Position: core.PositionHold, ValidHold: true}
	default:
		return flat, step{Position: core.PositionNoHold}
	}
}

// positionSchedule folds the signal series in chronological order into one
// position label per bar. At most one long position is open at a time.
func positionSchedule(signals []core.SignalBar) []step {
	steps := make([]step, len(signals))
	state := flat
	for i, sig := range signals {
		state, steps[i] = transition(state, sig)
	}
	return steps
}

// exposure maps the position applied to a bar to its adjusted return
type exposure struct {
	match func(core.Position) bool
	value func(b barInput) float64
}

// barInput carries the values one adjusted-return rule can see
type barInput struct {
	ret       float64
	open      float64
	prevClose float64
}

// exposureRules are evaluated in order against the lagged position; the
// first match decides the bar's adjusted return.
var exposureRules = []exposure{
	{
		match: func(p core.Position) bool { return p == core.PositionSell },
		// Closed at this bar's open against the prior close
		value: func(b barInput) float64 { return b.open/b.prevClose - 1 },
	},
	{
		match: func(p core.Position) bool { return p == core.PositionBuy || p == core.PositionHold },
		value: func(b barInput) float64 { return b.ret },
	},
}

// adjustedReturn applies the exposure rules. Flat bars and missing values
// contribute 0.
func adjustedReturn(lagged core.Position, b barInput) float64 {
	for _, rule := range exposureRules {
		if rule.match(lagged) {
			return finiteOrZero(rule.value(b))
		}
	}
	return 0
}
