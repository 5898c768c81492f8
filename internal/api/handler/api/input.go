package api

import (
	"bytes"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"time"

	"github.com/newthinker/quantbench/internal/core"
)

// Flag accepts true/false, 0/1 or any string core.ParseFlag understands.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = false
		return nil
	}

	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		s, err := strconv.Unquote(raw)
		if err != nil {
			return err
		}
		raw = s
	}

	v, err := core.ParseFlag(raw)
	if err != nil {
		return err
	}
	*f = Flag(v)
	return nil
}

// PriceInput is one inline price bar. Missing prices become NaN and a
// missing adj_close falls back to close.
type PriceInput struct {
	Date     string   `json:"date"`
	Open     *float64 `json:"open"`
	Close    *float64 `json:"close"`
	AdjClose *float64 `json:"adj_close"`
}

// SignalInput is one inline signal bar.
type SignalInput struct {
	BuySignal   Flag   `json:"buy_signal"`
	SellSignal  Flag   `json:"sell_signal"`
	Description string `json:"description,omitempty"`
}

var inputDateLayouts = []string{"2006-01-02", time.RFC3339}

func toPriceBars(in []PriceInput) ([]core.PriceBar, error) {
	bars := make([]core.PriceBar, len(in))
	for i, p := range in {
		date, err := parseInputDate(p.Date)
		if err != nil {
			return nil, core.WrapError(core.ErrPriceData, fmt.Errorf("prices[%d]: %w", i, err))
		}
		bars[i] = core.PriceBar{
			Date:  date,
			Open:  orNaN(p.Open),
			Close: orNaN(p.Close),
		}
		bars[i].AdjClose = bars[i].Close
		if p.AdjClose != nil {
			bars[i].AdjClose = *p.AdjClose
		}
	}
	return bars, nil
}

func toSignalBars(in []SignalInput) []core.SignalBar {
	bars := make([]core.SignalBar, len(in))
	for i, s := range in {
		bars[i] = core.SignalBar{Buy: bool(s.BuySignal), Sell: bool(s.SellSignal), Description: s.Description}
	}
	return bars
}

func parseInputDate(s string) (time.Time, error) {
	for _, layout := range inputDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// resolvePath joins a request-supplied file name onto root, refusing
// absolute paths and anything that escapes root.
func resolvePath(root, name string) (string, error) {
	if name == "" {
		return "", nil
	}
	if !filepath.IsLocal(name) {
		return "", core.WrapError(core.ErrInvalidInput, fmt.Errorf("file %q must be relative to the data directory", name))
	}
	return filepath.Join(root, name), nil
}
