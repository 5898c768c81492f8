package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/newthinker/quantbench/internal/backtest"
	"github.com/newthinker/quantbench/internal/core"
	"github.com/newthinker/quantbench/internal/dataset"
	"go.uber.org/zap"
)

const (
	defaultResultsName = "backtest_results"
	defaultMetricsName = "backtest_metrics.txt"
	resultJSONName     = "result.json"
)

// Manifest lists where the artifacts of one run were written
type Manifest struct {
	RunID          string `json:"run_id"`
	ResultsCSV     string `json:"results_csv"`
	ResultsParquet string `json:"results_parquet"`
	Metrics        string `json:"metrics"`
	Result         string `json:"result"`
}

// Archiver writes the artifacts of a backtest run to a Store
type Archiver struct {
	store       Store
	resultsName string
	metricsName string
	logger      *zap.Logger
}

// NewArchiver creates an Archiver. Empty names fall back to the defaults.
func NewArchiver(store Store, resultsName, metricsName string, logger *zap.Logger) *Archiver {
	if resultsName == "" {
		resultsName = defaultResultsName
	}
	if metricsName == "" {
		metricsName = defaultMetricsName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		store:       store,
		resultsName: resultsName,
		metricsName: metricsName,
		logger:      logger,
	}
}

// Save persists the results table (CSV and Parquet), the metrics summary and
// the full JSON result under the run ID.
func (a *Archiver) Save(ctx context.Context, r *backtest.Result) (*Manifest, error) {
	type artifact struct {
		key         string
		contentType string
		encode      func(*bytes.Buffer) error
	}

	artifacts := []artifact{
		{
			key:         path.Join(r.ID, a.resultsName+".csv"),
			contentType: "text/csv",
			encode:      func(b *bytes.Buffer) error { return dataset.WriteResultsCSV(b, r.Rows) },
		},
		{
			key:         path.Join(r.ID, a.resultsName+".parquet"),
			contentType: "application/vnd.apache.parquet",
			encode:      func(b *bytes.Buffer) error { return dataset.WriteResultsParquet(b, r.Rows) },
		},
		{
			key:         path.Join(r.ID, a.metricsName),
			contentType: "text/plain",
			encode:      func(b *bytes.Buffer) error { return backtest.WriteSummary(b, r) },
		},
		{
			key:         path.Join(r.ID, resultJSONName),
			contentType: "application/json",
			encode:      func(b *bytes.Buffer) error { return json.NewEncoder(b).Encode(r) },
		},
	}

	for _, art := range artifacts {
		var buf bytes.Buffer
		if err := art.encode(&buf); err != nil {
			return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("encoding %s: %w", art.key, err))
		}
		if err := a.store.Put(ctx, art.key, buf.Bytes(), art.contentType); err != nil {
			return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("writing %s: %w", art.key, err))
		}
		a.logger.Debug("artifact written",
			zap.String("run_id", r.ID),
			zap.String("location", a.store.Location(art.key)),
			zap.Int("bytes", buf.Len()),
		)
	}

	return &Manifest{
		RunID:          r.ID,
		ResultsCSV:     a.store.Location(artifacts[0].key),
		ResultsParquet: a.store.Location(artifacts[1].key),
		Metrics:        a.store.Location(artifacts[2].key),
		Result:         a.store.Location(artifacts[3].key),
	}, nil
}

// LoadResult returns the JSON-encoded result of a stored run
func (a *Archiver) LoadResult(ctx context.Context, runID string) (json.RawMessage, error) {
	key := path.Join(runID, resultJSONName)
	exists, err := a.store.Exists(ctx, key)
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}
	if !exists {
		return nil, core.WrapError(core.ErrRunNotFound, fmt.Errorf("run %s", runID))
	}

	data, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}
	return json.RawMessage(data), nil
}
