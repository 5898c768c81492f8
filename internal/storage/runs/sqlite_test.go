package runs

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/newthinker/quantbench/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func record(id string, generated time.Time) Record {
	return Record{
		ID:               id,
		Description:      "RSI oversold bounce",
		PriceField:       "adj_close",
		Bars:             252,
		StartDate:        time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC),
		EndDate:          time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC),
		GeneratedAt:      generated,
		StartValue:       1,
		EndValue:         1.12,
		CumulativeReturn: 0.12,
		CAGR:             0.12,
		MDD:              -0.08,
		SharpeRatio:      0.07,
		Trades:           4,
		WinRate:          75,
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, record("run-1", now)))

	got, err := store.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "RSI oversold bounce", got.Description)
	assert.Equal(t, 252, got.Bars)
	assert.True(t, got.GeneratedAt.Equal(now))
	assert.Equal(t, -0.08, got.MDD)
	assert.Equal(t, 75.0, got.WinRate)
}

func TestStore_Get_NotFound(t *testing.T) {
	store := openStore(t)

	_, err := store.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrRunNotFound))
}

func TestStore_NaNMetrics(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	rec := record("flat", time.Now().UTC())
	rec.MDD = math.NaN()
	require.NoError(t, store.Save(ctx, rec))

	got, err := store.Get(ctx, "flat")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(got.MDD))

	data, err := json.Marshal(got)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Nil(t, decoded["mdd"])
	assert.Equal(t, 0.12, decoded["cagr"])
	assert.Equal(t, "flat", decoded["id"])
}

func TestStore_List(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.Save(ctx, record(id, base.Add(time.Duration(i)*time.Hour))))
	}

	all, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID, "most recent first")

	limited, err := store.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestStore_SaveReplaces(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	rec := record("run-1", time.Now().UTC())
	require.NoError(t, store.Save(ctx, rec))
	rec.Trades = 9
	require.NoError(t, store.Save(ctx, rec))

	all, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 9, all[0].Trades)
}
