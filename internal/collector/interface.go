package collector

import (
	"context"
	"time"

	"github.com/newthinker/quantbench/internal/core"
)

// Fetcher downloads daily price history for a symbol.
type Fetcher interface {
	Name() string

	// FetchHistory returns bars in ascending date order for the
	// half-open range [start, end).
	FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]core.PriceBar, error)
}
