package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/newthinker/quantbench/internal/core"
	"github.com/newthinker/quantbench/internal/dataset"
	"go.uber.org/zap"
)

// CSVCache serves history from CSV files in a directory and falls back to
// the wrapped Fetcher on a miss, writing what it downloads.
type CSVCache struct {
	next   Fetcher
	dir    string
	logger *zap.Logger
}

// NewCSVCache wraps next with a file cache rooted at dir.
func NewCSVCache(next Fetcher, dir string, logger *zap.Logger) *CSVCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVCache{next: next, dir: dir, logger: logger}
}

func (c *CSVCache) Name() string { return c.next.Name() }

// Path returns the cache file for a request.
func (c *CSVCache) Path(symbol string, start, end time.Time) string {
	name := fmt.Sprintf("%s_%s_%s_%s.csv",
		c.next.Name(), sanitize(symbol), start.Format("20060102"), end.Format("20060102"))
	return filepath.Join(c.dir, name)
}

func (c *CSVCache) FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]core.PriceBar, error) {
	path := c.Path(symbol, start, end)

	bars, err := dataset.LoadPrices(path)
	switch {
	case err == nil && len(bars) > 0:
		c.logger.Debug("price cache hit", zap.String("path", path), zap.Int("bars", len(bars)))
		return bars, nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		c.logger.Warn("unreadable price cache entry, refetching", zap.String("path", path), zap.Error(err))
	}

	bars, err = c.next.FetchHistory(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}

	if len(bars) == 0 {
		return bars, nil
	}
	if err := c.write(path, bars); err != nil {
		return nil, err
	}

	c.logger.Info("price history cached", zap.String("symbol", symbol), zap.String("path", path))
	return bars, nil
}

// write stores bars through a temp file so readers never see a partial CSV.
func (c *CSVCache) write(path string, bars []core.PriceBar) error {
	var buf bytes.Buffer
	if err := dataset.WritePricesCSV(&buf, bars); err != nil {
		return err
	}
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return core.WrapError(core.ErrStorageFailed, err)
	}

	tmp, err := os.CreateTemp(c.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return core.WrapError(core.ErrStorageFailed, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return core.WrapError(core.ErrStorageFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return core.WrapError(core.ErrStorageFailed, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return core.WrapError(core.ErrStorageFailed, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return core.WrapError(core.ErrStorageFailed, err)
	}
	return nil
}

func sanitize(symbol string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '_'
		}
	}, symbol)
}
