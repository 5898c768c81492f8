// Package runs keeps the history of backtest runs in SQLite.
package runs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/newthinker/quantbench/internal/backtest"
	"github.com/newthinker/quantbench/internal/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id                TEXT PRIMARY KEY,
	description       TEXT    NOT NULL,
	price_field       TEXT    NOT NULL,
	bars              INTEGER NOT NULL,
	start_date        INTEGER NOT NULL,
	end_date          INTEGER NOT NULL,
	generated_at      INTEGER NOT NULL,
	start_value       REAL    NOT NULL,
	end_value         REAL    NOT NULL,
	cumulative_return REAL,
	cagr              REAL,
	mdd               REAL,
	sharpe_ratio      REAL,
	trades            INTEGER NOT NULL,
	win_rate          REAL    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_generated_at ON runs (generated_at);
`

const selectColumns = `id, description, price_field, bars, start_date, end_date, generated_at,
	start_value, end_value, cumulative_return, cagr, mdd, sharpe_ratio, trades, win_rate`

// Record is the stored summary of one run. Metrics that could not be
// computed are NaN.
type Record struct {
	ID               string    `json:"id"`
	Description      string    `json:"description"`
	PriceField       string    `json:"price_field"`
	Bars             int       `json:"bars"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	GeneratedAt      time.Time `json:"generated_at"`
	StartValue       float64   `json:"start_value"`
	EndValue         float64   `json:"end_value"`
	CumulativeReturn float64   `json:"-"`
	CAGR             float64   `json:"-"`
	MDD              float64   `json:"-"`
	SharpeRatio      float64   `json:"-"`
	Trades           int       `json:"trades"`
	WinRate          float64   `json:"win_rate"`
}

// MarshalJSON encodes metrics that could not be computed as null.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	return json.Marshal(struct {
		plain
		CumulativeReturn any `json:"cumulative_return"`
		CAGR             any `json:"cagr"`
		MDD              any `json:"mdd"`
		SharpeRatio      any `json:"sharpe_ratio"`
	}{
		plain:            plain(r),
		CumulativeReturn: jsonFloat(r.CumulativeReturn),
		CAGR:             jsonFloat(r.CAGR),
		MDD:              jsonFloat(r.MDD),
		SharpeRatio:      jsonFloat(r.SharpeRatio),
	})
}

// FromResult summarizes a backtest result
func FromResult(r *backtest.Result) Record {
	return Record{
		ID:               r.ID,
		Description:      r.Description,
		PriceField:       string(r.PriceField),
		Bars:             len(r.Rows),
		StartDate:        r.StartDate,
		EndDate:          r.EndDate,
		GeneratedAt:      r.GeneratedAt,
		StartValue:       r.Metrics.StartValue,
		EndValue:         r.Metrics.EndValue,
		CumulativeReturn: r.Metrics.CumulativeReturn.Value,
		CAGR:             r.Metrics.CAGR.Value,
		MDD:              r.Metrics.MDD.Value,
		SharpeRatio:      r.Metrics.SharpeRatio.Value,
		Trades:           r.Stats.TotalTrades,
		WinRate:          r.Stats.WinRate,
	}
}

// Store persists run records in SQLite (pure Go, no CGo)
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at dsn and applies the schema
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("runs.Open: open %q: %w", dsn, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("runs.Open: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or replaces a run record
func (s *Store) Save(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Description, rec.PriceField, rec.Bars,
		rec.StartDate.UnixMilli(), rec.EndDate.UnixMilli(), rec.GeneratedAt.UnixMilli(),
		rec.StartValue, rec.EndValue,
		nullFloat(rec.CumulativeReturn), nullFloat(rec.CAGR), nullFloat(rec.MDD), nullFloat(rec.SharpeRatio),
		rec.Trades, rec.WinRate,
	)
	if err != nil {
		return core.WrapError(core.ErrStorageFailed, fmt.Errorf("runs.Save: %w", err))
	}
	return nil
}

// Get returns the record with the given ID
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM runs WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.WrapError(core.ErrRunNotFound, fmt.Errorf("run %s", id))
	}
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("runs.Get: %w", err))
	}
	return rec, nil
}

// List returns the most recent records first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	query := `SELECT ` + selectColumns + ` FROM runs ORDER BY generated_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("runs.List: %w", err))
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("runs.List: scan: %w", err))
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("runs.List: %w", err))
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var (
		rec                       Record
		start, end, generated     int64
		cumulative, cagr, mdd, sr sql.NullFloat64
	)
	err := sc.Scan(
		&rec.ID, &rec.Description, &rec.PriceField, &rec.Bars,
		&start, &end, &generated,
		&rec.StartValue, &rec.EndValue,
		&cumulative, &cagr, &mdd, &sr,
		&rec.Trades, &rec.WinRate,
	)
	if err != nil {
		return nil, err
	}

	rec.StartDate = time.UnixMilli(start).UTC()
	rec.EndDate = time.UnixMilli(end).UTC()
	rec.GeneratedAt = time.UnixMilli(generated).UTC()
	rec.CumulativeReturn = floatOrNaN(cumulative)
	rec.CAGR = floatOrNaN(cagr)
	rec.MDD = floatOrNaN(mdd)
	rec.SharpeRatio = floatOrNaN(sr)
	return &rec, nil
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func jsonFloat(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
