package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// PriceBar represents one end-of-day bar. Missing or malformed prices are NaN.
type PriceBar struct {
	Date     time.Time
	Open     float64
	Close    float64
	AdjClose float64
}

// SignalBar holds the raw buy/sell flags emitted for one bar
type SignalBar struct {
	Buy         bool
	Sell        bool
	Description string
}

// Position is the derived per-bar position label
type Position int

// Numeric values match the column encoding of exported results tables.
const (
	PositionNone Position = iota
	PositionBuy
	PositionSell
	PositionHold
	PositionNoHold
)

// Active reports whether the position carries market exposure
func (p Position) Active() bool {
	switch p {
	case PositionBuy, PositionSell, PositionHold:
		return true
	default:
		return false
	}
}

func (p Position) String() string {
	switch p {
	case PositionBuy:
		return "BUY"
	case PositionSell:
		return "SELL"
	case PositionHold:
		return "HOLD"
	case PositionNoHold:
		return "NO_HOLD"
	default:
		return "NONE"
	}
}

// MarshalText encodes the position by name.
func (p Position) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a position name.
func (p *Position) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "BUY":
		*p = PositionBuy
	case "SELL":
		*p = PositionSell
	case "HOLD":
		*p = PositionHold
	case "NO_HOLD":
		*p = PositionNoHold
	case "NONE", "":
		*p = PositionNone
	default:
		return fmt.Errorf("unknown position: %s", text)
	}
	return nil
}

// ParseNumber converts a raw cell to a float64. Anything that is not a finite
// number yields NaN.
func ParseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}

// ParseFlag converts a raw signal cell to a boolean. Empty cells are false.
func ParseFlag(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "0.0", "false", "f", "no", "n":
		return false, nil
	case "1", "1.0", "true", "t", "yes", "y":
		return true, nil
	default:
		return false, fmt.Errorf("invalid signal flag: %q", s)
	}
}
