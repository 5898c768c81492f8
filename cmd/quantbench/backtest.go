package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/newthinker/quantbench/internal/app"
	"github.com/newthinker/quantbench/internal/backtest"
	"github.com/newthinker/quantbench/internal/dataset"
	"github.com/newthinker/quantbench/internal/logger"
	"github.com/newthinker/quantbench/internal/metrics"
	"github.com/newthinker/quantbench/internal/strategy"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

var (
	backtestPrices       string
	backtestSignals      string
	backtestStrategy     string
	backtestParams       strategy.Params
	backtestSymbol       string
	backtestSource       string
	backtestFrom         string
	backtestTo           string
	backtestPriceField   string
	backtestRiskFreeRate float64
	backtestSharpePeriod string
	backtestFormat       string
	backtestSummarize    bool
	backtestNotes        string
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Backtest a signal series against price history",
	Long: `Replay a BuySignal/SellSignal series against daily prices and report
cumulative return, CAGR, maximum drawdown and Sharpe ratio. Signals come
from --signals or are generated from the prices by --strategy.

Prices come from --prices (CSV or Parquet) or are downloaded for --symbol
between --from and --to. The results table and metrics summary are written
to the configured work directory.`,
	RunE: runBacktest,
}

func init() {
	f := backtestCmd.Flags()
	f.StringVar(&backtestPrices, "prices", "", "price file (.csv or .parquet)")
	f.StringVar(&backtestSignals, "signals", "", "signal CSV file")
	f.StringVar(&backtestStrategy, "strategy", "", "generate signals with this strategy instead of --signals")
	addStrategyFlags(backtestCmd, &backtestParams)
	f.StringVar(&backtestSymbol, "symbol", "", "download prices for this symbol instead of --prices")
	f.StringVar(&backtestSource, "source", "yahoo", "price source for --symbol")
	f.StringVar(&backtestFrom, "from", "", "start date YYYY-MM-DD (with --symbol)")
	f.StringVar(&backtestTo, "to", "", "end date YYYY-MM-DD (with --symbol)")
	f.StringVar(&backtestPriceField, "price-field", "", "adj_close or close (default from config)")
	f.Float64Var(&backtestRiskFreeRate, "risk-free-rate", 0, "annual risk-free rate (default from config)")
	f.StringVar(&backtestSharpePeriod, "sharpe-period", "", "daily or yearly (default from config)")
	f.StringVar(&backtestFormat, "format", "csv", "results table format: csv or parquet")
	f.BoolVar(&backtestSummarize, "summarize", false, "print a markdown summary, written by the LLM when one is configured")
	f.StringVar(&backtestNotes, "notes", "", "strategy notes passed to the summary")

	backtestCmd.MarkFlagsMutuallyExclusive("signals", "strategy")
	backtestCmd.MarkFlagsOneRequired("signals", "strategy")
	backtestCmd.MarkFlagsMutuallyExclusive("prices", "symbol")
	backtestCmd.MarkFlagsOneRequired("prices", "symbol")

	rootCmd.AddCommand(backtestCmd)
}

func runBacktest(cmd *cobra.Command, args []string) error {
	if backtestFormat != "csv" && backtestFormat != "parquet" {
		return fmt.Errorf("invalid --format %q (expected csv or parquet)", backtestFormat)
	}

	in := app.Inputs{
		PriceFile:  backtestPrices,
		SignalFile: backtestSignals,
		Strategy:   backtestStrategy,
		Params:     backtestParams,
		Source:     backtestSource,
		Symbol:     backtestSymbol,
	}
	if backtestSymbol != "" {
		var err error
		if in.Start, in.End, err = parseRange(backtestFrom, backtestTo); err != nil {
			return err
		}
	}

	boot := logger.Must(debug)
	cfg, err := loadConfig(boot)
	if err != nil {
		return err
	}
	log, err := logger.FromConfig(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	// generated signals follow the price column the run is scored on
	in.Params.PriceField = backtestPriceField
	if in.Params.PriceField == "" {
		in.Params.PriceField = cfg.Backtest.PriceField
	}

	a, err := app.Open(cfg, log, metrics.NewRegistry())
	if err != nil {
		return fmt.Errorf("opening app: %w", err)
	}
	defer a.Close()

	ctx := cmd.Context()
	prices, signals, err := a.LoadInputs(ctx, in)
	if err != nil {
		return err
	}

	opts := app.Options{
		PriceField:   backtestPriceField,
		SharpePeriod: backtestSharpePeriod,
	}
	if cmd.Flags().Changed("risk-free-rate") {
		opts.RiskFreeRate = &backtestRiskFreeRate
	}

	outcome, err := a.RunBacktest(ctx, prices, signals, opts)
	if err != nil {
		return err
	}
	result := outcome.Result

	resultsPath, err := writeResults(cfg.Output.WorkDir, cfg.Output.ResultsFile, backtestFormat, result)
	if err != nil {
		return err
	}
	metricsPath := filepath.Join(cfg.Output.WorkDir, cfg.Output.MetricsFile)
	if err := writeFile(metricsPath, func(f *os.File) error { return backtest.WriteSummary(f, result) }); err != nil {
		return err
	}
	log.Debug("wrote outputs", zap.String("results", resultsPath), zap.String("metrics", metricsPath))

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:      %s\n", result.ID)
	if result.Description != "" {
		fmt.Fprintf(out, "Strategy: %s\n", result.Description)
	}
	fmt.Fprintf(out, "Period:   %s to %s (%d bars)\n\n",
		result.StartDate.Format(dateLayout), result.EndDate.Format(dateLayout), len(result.Rows))

	if err := printMetrics(out, result); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nResults: %s\nMetrics: %s\n", resultsPath, metricsPath)
	if outcome.Manifest != nil {
		fmt.Fprintf(out, "Archived: %s\n", outcome.Manifest.Result)
	}

	if backtestSummarize {
		summary, err := a.Summarize(ctx, result, backtestNotes)
		if err != nil {
			return fmt.Errorf("summarizing run: %w", err)
		}
		fmt.Fprintf(out, "\n%s\n", summary)
	}
	return nil
}

func parseRange(from, to string) (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid from date format (expected YYYY-MM-DD): %w", err)
	}
	end, err := time.Parse(dateLayout, to)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid to date format (expected YYYY-MM-DD): %w", err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date must be after start date")
	}
	return start, end, nil
}

// writeResults writes the results table as <dir>/<name>.<format>
func writeResults(dir, name, format string, r *backtest.Result) (string, error) {
	path := filepath.Join(dir, strings.TrimSuffix(name, filepath.Ext(name))+"."+format)
	err := writeFile(path, func(f *os.File) error {
		if format == "parquet" {
			return dataset.WriteResultsParquet(f, r.Rows)
		}
		return dataset.WriteResultsCSV(f, r.Rows)
	})
	return path, err
}

func writeFile(path string, write func(*os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
