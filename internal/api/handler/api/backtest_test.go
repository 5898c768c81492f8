package api

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/newthinker/quantbench/internal/api/job"
	"github.com/newthinker/quantbench/internal/api/response"
	"github.com/newthinker/quantbench/internal/app"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHandler(t *testing.T) (*BacktestHandler, *job.Store, string) {
	t.Helper()
	dir := t.TempDir()
	jobs := job.NewStore(100, time.Hour)
	return NewBacktestHandler(jobs, app.New(nil, nil), dir, nil, nil), jobs, dir
}

func post(h *BacktestHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/v1/backtests", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.Create(w, req)
	return w
}

func waitDone(t *testing.T, jobs *job.Store, id string) *job.Job {
	t.Helper()
	var j *job.Job
	require.Eventually(t, func() bool {
		var err error
		j, err = jobs.Get(id)
		return err == nil && j.Status.Done()
	}, 5*time.Second, 5*time.Millisecond)
	return j
}

func jobID(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp response.SuccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp.Data.(map[string]any)
	assert.Equal(t, "pending", data["status"])
	return data["job_id"].(string)
}

func TestBacktestHandler_Create_Inline(t *testing.T) {
	h, jobs, _ := newHandler(t)

	w := post(h, `{
		"prices": [
			{"date": "2024-01-02", "open": 10, "close": 10},
			{"date": "2024-01-03", "open": 10, "close": 11}
		],
		"signals": [{"buy_signal": true}, {"sell_signal": 1}],
		"options": {"price_field": "close", "sharpe_period": "yearly"}
	}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	j := waitDone(t, jobs, jobID(t, w))
	require.Equal(t, job.StatusComplete, j.Status, j.Error)

	out := j.Result.(*BacktestOutput)
	assert.Equal(t, "close", string(out.Result.PriceField))
	assert.Len(t, out.Result.Rows, 2)
	assert.Empty(t, out.Summary)
}

func TestBacktestHandler_Create_FromFiles(t *testing.T) {
	h, jobs, dir := newHandler(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prices.csv"),
		[]byte("Date,Open,Close,Adj Close\n2024-01-02,10,10,10\n2024-01-03,10,11,11\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "signals.csv"),
		[]byte("BuySignal,SellSignal,Description\n1,0,file strategy\n0,0,\n"), 0644))

	w := post(h, `{"price_file": "prices.csv", "signal_file": "signals.csv"}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	j := waitDone(t, jobs, jobID(t, w))
	require.Equal(t, job.StatusComplete, j.Status, j.Error)
	assert.Equal(t, "file strategy", j.Result.(*BacktestOutput).Result.Description)
}

func TestBacktestHandler_Create_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed json", `{`, "INVALID_INPUT"},
		{"no signals", `{"prices": [{"date": "2024-01-02", "close": 1}]}`, "SIGNAL_DATA_FAILED"},
		{"no prices", `{"signals": [{"buy_signal": 1}]}`, "PRICE_DATA_FAILED"},
		{"bad date", `{"prices": [{"date": "02/01/2024", "close": 1}], "signals": [{}]}`, "PRICE_DATA_FAILED"},
		{"bad flag", `{"prices": [{"date": "2024-01-02", "close": 1}], "signals": [{"buy_signal": 2}]}`, "INVALID_INPUT"},
		{"path escape", `{"price_file": "../etc/passwd", "signals": [{}]}`, "INVALID_INPUT"},
		{"absolute path", `{"price_file": "/etc/passwd", "signals": [{}]}`, "INVALID_INPUT"},
		{"unknown strategy", `{"prices": [{"date": "2024-01-02", "close": 1}], "strategy": "turtle"}`, "INVALID_INPUT"},
		{"symbol without dates", `{"symbol": "MSFT", "signals": [{}]}`, "INVALID_INPUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, jobs, _ := newHandler(t)
			w := post(h, tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			var resp response.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Empty(t, jobs.List(), "no job created")
		})
	}
}

func TestBacktestHandler_Create_Strategy(t *testing.T) {
	h, jobs, _ := newHandler(t)

	w := post(h, `{
		"prices": [
			{"date": "2024-01-02", "close": 10},
			{"date": "2024-01-03", "close": 9},
			{"date": "2024-01-04", "close": 8},
			{"date": "2024-01-05", "close": 9},
			{"date": "2024-01-08", "close": 10},
			{"date": "2024-01-09", "close": 9}
		],
		"strategy": "ma_crossover",
		"strategy_params": {"fast": 1, "slow": 2}
	}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	j := waitDone(t, jobs, jobID(t, w))
	require.Equal(t, job.StatusComplete, j.Status, j.Error)

	res := j.Result.(*BacktestOutput).Result
	assert.Equal(t, "MA Crossover (sma 1/2)", res.Description)
	assert.Equal(t, 1, res.Stats.TotalTrades)
}

func TestBacktestHandler_GetStatus_NotFound(t *testing.T) {
	h, _, _ := newHandler(t)

	req := httptest.NewRequest("GET", "/api/v1/backtests/jobs/nonexistent", nil)
	req.SetPathValue("id", "nonexistent")
	w := httptest.NewRecorder()
	h.GetStatus(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFlag_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{`true`, true, false},
		{`false`, false, false},
		{`1`, true, false},
		{`0`, false, false},
		{`1.0`, true, false},
		{`"yes"`, true, false},
		{`"0"`, false, false},
		{`null`, false, false},
		{`2`, false, true},
		{`"maybe"`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var f Flag
			err := json.Unmarshal([]byte(tt.in), &f)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, bool(f))
		})
	}
}

func TestToPriceBars(t *testing.T) {
	c := 10.0
	bars, err := toPriceBars([]PriceInput{
		{Date: "2024-01-02", Close: &c},
		{Date: "2024-01-03T00:00:00Z"},
	})
	require.NoError(t, err)

	assert.True(t, math.IsNaN(bars[0].Open))
	assert.Equal(t, 10.0, bars[0].AdjClose, "adj_close falls back to close")
	assert.True(t, math.IsNaN(bars[1].Close))
	assert.Equal(t, time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), bars[1].Date)
}
