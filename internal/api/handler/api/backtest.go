package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/newthinker/quantbench/internal/api/job"
	"github.com/newthinker/quantbench/internal/api/response"
	"github.com/newthinker/quantbench/internal/app"
	"github.com/newthinker/quantbench/internal/core"
	"github.com/newthinker/quantbench/internal/dataset"
	"github.com/newthinker/quantbench/internal/metrics"
	"github.com/newthinker/quantbench/internal/report"
	"github.com/newthinker/quantbench/internal/strategy"
	"go.uber.org/zap"
)

const (
	backtestTimeout = 5 * time.Minute
	maxRequestBytes = 32 << 20
	jobType         = "backtest"
)

// BacktestRequest is the request body for starting a backtest. Prices come
// inline, from price_file, or are downloaded for symbol; signals come
// inline, from signal_file, or are generated from the prices by strategy.
// File names are relative to the data directory.
type BacktestRequest struct {
	Prices         []PriceInput    `json:"prices,omitempty"`
	Signals        []SignalInput   `json:"signals,omitempty"`
	PriceFile      string          `json:"price_file,omitempty"`
	SignalFile     string          `json:"signal_file,omitempty"`
	Strategy       string          `json:"strategy,omitempty"`
	StrategyParams strategy.Params `json:"strategy_params"`
	Symbol         string          `json:"symbol,omitempty"`
	Source         string          `json:"source,omitempty"`
	Start          string          `json:"start,omitempty"`
	End            string          `json:"end,omitempty"`
	Options        app.Options     `json:"options"`
	Summarize      bool            `json:"summarize,omitempty"`
	Notes          string          `json:"notes,omitempty"`
}

// BacktestOutput is stored as the result of a finished job.
type BacktestOutput struct {
	*app.Outcome
	Summary string `json:"summary,omitempty"`
}

// BacktestHandler handles backtest API requests.
type BacktestHandler struct {
	jobs    *job.Store
	app     *app.App
	dataDir string
	metrics *metrics.Registry
	logger  *zap.Logger
}

// NewBacktestHandler creates a new backtest handler. reg may be nil.
func NewBacktestHandler(jobs *job.Store, a *app.App, dataDir string, reg *metrics.Registry, logger *zap.Logger) *BacktestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BacktestHandler{
		jobs:    jobs,
		app:     a,
		dataDir: dataDir,
		metrics: reg,
		logger:  logger,
	}
}

// Create validates the request and starts a backtest job.
func (h *BacktestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, core.WrapError(core.ErrInvalidInput, err))
		return
	}

	load, err := h.loader(req)
	if err != nil {
		response.Fail(w, err)
		return
	}

	j := h.jobs.Create(jobType)
	h.trackActive()

	go h.run(j.ID, req, load)

	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": j.ID,
		"status": j.Status,
	})
}

type loadFunc func(ctx context.Context) ([]core.PriceBar, []core.SignalBar, error)

// loader checks the request shape up front so malformed requests fail
// with 400 instead of a failed job.
func (h *BacktestHandler) loader(req BacktestRequest) (loadFunc, error) {
	loadSignals, err := h.signalSource(req)
	if err != nil {
		return nil, err
	}
	loadPrices, err := h.priceSource(req)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) ([]core.PriceBar, []core.SignalBar, error) {
		prices, err := loadPrices(ctx)
		if err != nil {
			return nil, nil, err
		}
		signals, err := loadSignals(ctx, prices)
		if err != nil {
			return nil, nil, err
		}
		return prices, signals, nil
	}, nil
}

type signalFunc func(ctx context.Context, prices []core.PriceBar) ([]core.SignalBar, error)

func (h *BacktestHandler) signalSource(req BacktestRequest) (signalFunc, error) {
	if len(req.Signals) > 0 {
		signals := toSignalBars(req.Signals)
		return func(context.Context, []core.PriceBar) ([]core.SignalBar, error) { return signals, nil }, nil
	}

	path, err := resolvePath(h.dataDir, req.SignalFile)
	if err != nil {
		return nil, err
	}
	if path != "" {
		return func(context.Context, []core.PriceBar) ([]core.SignalBar, error) { return dataset.LoadSignals(path) }, nil
	}

	if req.Strategy == "" {
		return nil, core.WrapError(core.ErrSignalData, errors.New("signals, signal_file or strategy required"))
	}
	if !slices.Contains(h.app.Strategies(), req.Strategy) {
		return nil, core.WrapError(core.ErrInvalidInput, fmt.Errorf("unknown strategy %q", req.Strategy))
	}
	return func(ctx context.Context, prices []core.PriceBar) ([]core.SignalBar, error) {
		return h.app.GenerateSignals(ctx, req.Strategy, req.StrategyParams, prices)
	}, nil
}

func (h *BacktestHandler) priceSource(req BacktestRequest) (func(context.Context) ([]core.PriceBar, error), error) {
	if len(req.Prices) > 0 {
		prices, err := toPriceBars(req.Prices)
		if err != nil {
			return nil, err
		}
		return func(context.Context) ([]core.PriceBar, error) { return prices, nil }, nil
	}

	in := app.Inputs{Symbol: req.Symbol, Source: req.Source}
	var err error
	if in.PriceFile, err = resolvePath(h.dataDir, req.PriceFile); err != nil {
		return nil, err
	}
	if in.PriceFile == "" {
		if req.Symbol == "" {
			return nil, core.WrapError(core.ErrPriceData, errors.New("prices, price_file or symbol required"))
		}
		if in.Start, err = parseInputDate(req.Start); err != nil {
			return nil, core.WrapError(core.ErrInvalidInput, err)
		}
		if in.End, err = parseInputDate(req.End); err != nil {
			return nil, core.WrapError(core.ErrInvalidInput, err)
		}
	}
	return func(ctx context.Context) ([]core.PriceBar, error) { return h.app.LoadPrices(ctx, in) }, nil
}

// run executes the backtest and updates job status.
func (h *BacktestHandler) run(jobID string, req BacktestRequest, load loadFunc) {
	defer h.trackActive()

	h.jobs.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusRunning
	})

	ctx, cancel := context.WithTimeout(context.Background(), backtestTimeout)
	defer cancel()

	out, err := h.execute(ctx, req, load)
	if err != nil {
		h.logger.Warn("backtest job failed", zap.String("job_id", jobID), zap.Error(err))
		h.jobs.Update(jobID, func(j *job.Job) {
			j.Status = job.StatusFailed
			j.Error = asCoreError(err)
		})
		return
	}

	h.jobs.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusComplete
		j.Result = out
	})
}

func (h *BacktestHandler) execute(ctx context.Context, req BacktestRequest, load loadFunc) (*BacktestOutput, error) {
	prices, signals, err := load(ctx)
	if err != nil {
		return nil, err
	}

	outcome, err := h.app.RunBacktest(ctx, prices, signals, req.Options)
	if err != nil {
		return nil, err
	}

	out := &BacktestOutput{Outcome: outcome}
	if req.Summarize {
		summary, err := h.app.Summarize(ctx, outcome.Result, req.Notes)
		if err != nil {
			h.logger.Warn("summary failed, using table", zap.Error(err))
			summary = report.Markdown(outcome.Result)
		}
		out.Summary = summary
	}
	return out, nil
}

// GetStatus returns the status of a backtest job.
func (h *BacktestHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobs.Get(r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}

	resp := map[string]any{
		"job_id":     j.ID,
		"status":     j.Status,
		"created_at": j.CreatedAt,
		"updated_at": j.UpdatedAt,
	}
	if j.Status == job.StatusComplete {
		resp["result"] = j.Result
	}
	if j.Status == job.StatusFailed && j.Error != nil {
		resp["error"] = response.Detail(j.Error)
	}

	response.JSON(w, http.StatusOK, resp)
}

// ListJobs returns the live jobs, newest first, without their results.
func (h *BacktestHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.jobs.List()
	for i := range jobs {
		jobs[i].Result = nil
	}
	response.JSON(w, http.StatusOK, jobs)
}

func (h *BacktestHandler) trackActive() {
	if h.metrics != nil {
		h.metrics.SetJobsActive(jobType, h.jobs.Active())
	}
}

func asCoreError(err error) *core.Error {
	var coreErr *core.Error
	if errors.As(err, &coreErr) {
		return coreErr
	}
	return core.WrapError(&core.Error{Code: "INTERNAL_ERROR", Message: "backtest failed"}, err)
}
