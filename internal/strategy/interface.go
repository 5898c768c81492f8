// Package strategy turns a price series into the buy/sell signal series
// the backtester consumes.
package strategy

import (
	"math"

	"github.com/newthinker/quantbench/internal/core"
)

// Params configures a generator. Zero values select the generator's
// defaults.
type Params struct {
	Fast       int    `json:"fast,omitempty"`
	Slow       int    `json:"slow,omitempty"`
	MA         string `json:"ma,omitempty"`          // "sma" or "ema"
	PriceField string `json:"price_field,omitempty"` // "adj_close" or "close"
}

// Generator derives one signal bar per price bar
type Generator interface {
	Name() string
	Description() string
	Generate(prices []core.PriceBar) ([]core.SignalBar, error)
}

// Factory builds a generator from params
type Factory func(Params) (Generator, error)

// Series extracts the field column from prices. Adjusted close falls back
// to close where it is missing.
func Series(prices []core.PriceBar, field string) []float64 {
	out := make([]float64, len(prices))
	for i, p := range prices {
		switch field {
		case "close":
			out[i] = p.Close
		default:
			out[i] = p.AdjClose
			if math.IsNaN(out[i]) {
				out[i] = p.Close
			}
		}
	}
	return out
}
