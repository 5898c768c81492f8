// Package app wires the backtest engine to its inputs, storage and
// reporting so the CLI and the HTTP API share one code path.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/newthinker/quantbench/internal/backtest"
	"github.com/newthinker/quantbench/internal/collector"
	"github.com/newthinker/quantbench/internal/collector/yahoo"
	"github.com/newthinker/quantbench/internal/config"
	"github.com/newthinker/quantbench/internal/core"
	"github.com/newthinker/quantbench/internal/dataset"
	"github.com/newthinker/quantbench/internal/llm"
	"github.com/newthinker/quantbench/internal/llm/factory"
	"github.com/newthinker/quantbench/internal/metrics"
	"github.com/newthinker/quantbench/internal/notifier"
	"github.com/newthinker/quantbench/internal/notifier/telegram"
	"github.com/newthinker/quantbench/internal/notifier/webhook"
	"github.com/newthinker/quantbench/internal/report"
	"github.com/newthinker/quantbench/internal/storage/artifact"
	"github.com/newthinker/quantbench/internal/storage/runs"
	"github.com/newthinker/quantbench/internal/strategy"
	"github.com/newthinker/quantbench/internal/strategy/ma_crossover"
	"go.uber.org/zap"
)

// App is the main application orchestrator
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	archiver *artifact.Archiver
	runs     *runs.Store
	fetchers *collector.Registry
	reporter *report.Reporter
	metrics  *metrics.Registry
	notify   *notifier.Registry
	signals  *strategy.Engine
}

// Option configures an App
type Option func(*App)

// WithArchiver stores run artifacts through a
func WithArchiver(a *artifact.Archiver) Option {
	return func(app *App) { app.archiver = a }
}

// WithRuns records run history in s
func WithRuns(s *runs.Store) Option {
	return func(app *App) { app.runs = s }
}

// WithFetcher registers a price source
func WithFetcher(f collector.Fetcher) Option {
	return func(app *App) { app.fetchers.Register(f) }
}

// WithProvider summarizes runs through an LLM
func WithProvider(p llm.Provider) Option {
	return func(app *App) { app.reporter = report.New(p, app.logger) }
}

// WithMetrics records Prometheus metrics in reg
func WithMetrics(reg *metrics.Registry) Option {
	return func(app *App) { app.metrics = reg }
}

// WithNotifier sends run completion events to n
func WithNotifier(n notifier.Notifier) Option {
	return func(app *App) {
		if err := app.notify.Register(n); err != nil {
			app.logger.Warn("notifier not registered", zap.Error(err))
		}
	}
}

// New creates an App with only the options given. Open builds one from
// configuration.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) *App {
	if cfg == nil {
		cfg = config.Defaults()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		fetchers: collector.NewRegistry(),
		notify:   notifier.NewRegistry(),
		signals:  strategy.NewEngine(logger),
	}
	a.signals.Register(ma_crossover.Name, ma_crossover.Factory)
	a.reporter = report.New(nil, logger)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Open builds an App from configuration: artifact storage, run history,
// the Yahoo fetcher behind a CSV cache, and an LLM provider when one is
// configured.
func Open(cfg *config.Config, logger *zap.Logger, reg *metrics.Registry) (*App, error) {
	store, err := artifact.New(cfg.Storage.Artifacts)
	if err != nil {
		return nil, fmt.Errorf("opening artifact store: %w", err)
	}
	archiver := artifact.NewArchiver(store, cfg.Output.ResultsFile, cfg.Output.MetricsFile, logger)

	fetcher := yahoo.New(cfg.Fetch, yahoo.WithLogger(logger))
	cacheDir := filepath.Join(cfg.Output.WorkDir, "cache")

	opts := []Option{
		WithArchiver(archiver),
		WithFetcher(collector.NewCSVCache(fetcher, cacheDir, logger)),
		WithMetrics(reg),
	}

	notifiers, err := notifiersFrom(cfg.Notify)
	if err != nil {
		return nil, err
	}
	for _, n := range notifiers {
		opts = append(opts, WithNotifier(n))
	}

	if cfg.LLM.Provider != "" {
		provider, err := factory.New(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("creating LLM provider: %w", err)
		}
		opts = append(opts, WithProvider(provider))
	}

	if cfg.Storage.Runs.DSN != "" {
		history, err := runs.Open(cfg.Storage.Runs.DSN)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithRuns(history))
	}

	return New(cfg, logger, opts...), nil
}

func notifiersFrom(cfg config.NotifyConfig) ([]notifier.Notifier, error) {
	var out []notifier.Notifier
	if cfg.Webhook.URL != "" {
		w, err := webhook.New(cfg.Webhook.URL, cfg.Webhook.Headers, cfg.Webhook.Retries)
		if err != nil {
			return nil, core.WrapError(core.ErrConfigInvalid, err)
		}
		out = append(out, w)
	}
	if cfg.Telegram.BotToken != "" {
		t, err := telegram.New(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.BaseURL)
		if err != nil {
			return nil, core.WrapError(core.ErrConfigMissing, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// Close releases the run history database
func (a *App) Close() error {
	if a.runs != nil {
		return a.runs.Close()
	}
	return nil
}

// Config returns the application configuration
func (a *App) Config() *config.Config {
	return a.cfg
}

// Options override the configured engine defaults for one run.
type Options struct {
	PriceField   string   `json:"price_field,omitempty"`
	RiskFreeRate *float64 `json:"risk_free_rate,omitempty"`
	SharpePeriod string   `json:"sharpe_period,omitempty"`
}

// Backtester returns an engine configured from the defaults and opts
func (a *App) Backtester(opts Options) *backtest.Backtester {
	field := a.cfg.Backtest.PriceField
	if opts.PriceField != "" {
		field = opts.PriceField
	}
	period := a.cfg.Backtest.SharpePeriod
	if opts.SharpePeriod != "" {
		period = opts.SharpePeriod
	}
	rf := a.cfg.Backtest.RiskFreeRate
	if opts.RiskFreeRate != nil {
		rf = *opts.RiskFreeRate
	}

	bopts := []backtest.Option{
		backtest.WithRiskFreeRate(rf),
		backtest.WithLogger(a.logger),
	}
	if field != "" {
		bopts = append(bopts, backtest.WithPriceField(backtest.PriceField(field)))
	}
	if period != "" {
		bopts = append(bopts, backtest.WithSharpePeriod(backtest.Period(period)))
	}
	return backtest.New(bopts...)
}

// Outcome is a finished run and where it was stored
type Outcome struct {
	Result   *backtest.Result   `json:"result"`
	Manifest *artifact.Manifest `json:"artifacts,omitempty"`
}

// RunBacktest evaluates the signals against the prices, archives the
// artifacts and records the run. Storage failures fail the run.
func (a *App) RunBacktest(ctx context.Context, prices []core.PriceBar, signals []core.SignalBar, opts Options) (*Outcome, error) {
	start := time.Now()
	result, err := a.Backtester(opts).Run(ctx, prices, signals)
	if a.metrics != nil {
		status, bars := "success", len(prices)
		if err != nil {
			status, bars = "error", 0
		}
		a.metrics.RecordBacktest(status, bars, time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}

	out := &Outcome{Result: result}
	if a.archiver != nil {
		manifest, err := a.archiver.Save(ctx, result)
		if err != nil {
			return nil, err
		}
		out.Manifest = manifest
	}
	if a.runs != nil {
		if err := a.runs.Save(ctx, runs.FromResult(result)); err != nil {
			return nil, err
		}
	}
	a.notifyDone(ctx, result)
	return out, nil
}

// notifyDone delivers the completion event. Delivery failures are logged
// and never fail the run.
func (a *App) notifyDone(ctx context.Context, result *backtest.Result) {
	if a.notify.Len() == 0 {
		return
	}
	errs := a.notify.NotifyAll(ctx, notifier.FromResult(result))
	for _, name := range a.notify.Names() {
		err, failed := errs[name]
		if a.metrics != nil {
			status := "success"
			if failed {
				status = "error"
			}
			a.metrics.RecordNotification(name, status)
		}
		if failed {
			a.logger.Warn("run notification failed",
				zap.String("notifier", name),
				zap.String("run_id", result.ID),
				zap.Error(err))
		}
	}
}

// Inputs names where the price and signal series come from. Prices are
// read from PriceFile when set, otherwise downloaded for Symbol. Signals
// are read from SignalFile, or generated from the prices by Strategy.
type Inputs struct {
	PriceFile  string
	SignalFile string
	Strategy   string
	Params     strategy.Params
	Source     string
	Symbol     string
	Start, End time.Time
}

// LoadInputs reads the price and signal series for a run
func (a *App) LoadInputs(ctx context.Context, in Inputs) ([]core.PriceBar, []core.SignalBar, error) {
	if in.SignalFile == "" && in.Strategy == "" {
		return nil, nil, core.WrapError(core.ErrSignalData, errors.New("signal file or strategy required"))
	}

	prices, err := a.LoadPrices(ctx, in)
	if err != nil {
		return nil, nil, err
	}

	var signals []core.SignalBar
	if in.SignalFile != "" {
		signals, err = dataset.LoadSignals(in.SignalFile)
	} else {
		signals, err = a.GenerateSignals(ctx, in.Strategy, in.Params, prices)
	}
	if err != nil {
		return nil, nil, err
	}
	return prices, signals, nil
}

// GenerateSignals derives a signal series from prices with the named strategy
func (a *App) GenerateSignals(ctx context.Context, name string, params strategy.Params, prices []core.PriceBar) ([]core.SignalBar, error) {
	return a.signals.Generate(ctx, name, params, prices)
}

// Strategies lists the signal generators GenerateSignals accepts
func (a *App) Strategies() []string {
	return a.signals.Names()
}

// LoadPrices reads in.PriceFile, or downloads in.Symbol when no file is set
func (a *App) LoadPrices(ctx context.Context, in Inputs) ([]core.PriceBar, error) {
	switch {
	case in.PriceFile != "":
		return dataset.LoadPrices(in.PriceFile)
	case in.Symbol != "":
		return a.FetchPrices(ctx, in.Source, in.Symbol, in.Start, in.End)
	default:
		return nil, core.WrapError(core.ErrPriceData, errors.New("price file or symbol required"))
	}
}

// FetchPrices downloads history from the named source ("" means yahoo)
func (a *App) FetchPrices(ctx context.Context, source, symbol string, start, end time.Time) ([]core.PriceBar, error) {
	if source == "" {
		source = "yahoo"
	}
	f, err := a.fetchers.Get(source)
	if err != nil {
		return nil, err
	}

	bars, err := f.FetchHistory(ctx, symbol, start, end)
	if a.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		a.metrics.RecordFetch(status)
	}
	return bars, err
}

// Summarize writes the markdown performance summary of a run
func (a *App) Summarize(ctx context.Context, result *backtest.Result, notes string) (string, error) {
	return a.reporter.Summarize(ctx, result, notes)
}

// History lists recorded runs, most recent first
func (a *App) History(ctx context.Context, limit int) ([]runs.Record, error) {
	if a.runs == nil {
		return nil, core.WrapError(core.ErrConfigMissing, errors.New("run history not configured"))
	}
	return a.runs.List(ctx, limit)
}

// RunDetail is a recorded run with its archived result when available
type RunDetail struct {
	Record *runs.Record `json:"record"`
	Result any          `json:"result,omitempty"`
}

// Run looks up a recorded run by ID
func (a *App) Run(ctx context.Context, id string) (*RunDetail, error) {
	if a.runs == nil {
		return nil, core.WrapError(core.ErrConfigMissing, errors.New("run history not configured"))
	}
	rec, err := a.runs.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &RunDetail{Record: rec}
	if a.archiver != nil {
		raw, err := a.archiver.LoadResult(ctx, id)
		switch {
		case err == nil:
			detail.Result = raw
		case errors.Is(err, core.ErrRunNotFound):
			a.logger.Warn("archived result missing", zap.String("run_id", id))
		default:
			return nil, err
		}
	}
	return detail, nil
}
