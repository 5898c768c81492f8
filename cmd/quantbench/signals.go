package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/newthinker/quantbench/internal/app"
	"github.com/newthinker/quantbench/internal/dataset"
	"github.com/newthinker/quantbench/internal/logger"
	"github.com/newthinker/quantbench/internal/strategy"
	"github.com/newthinker/quantbench/internal/strategy/ma_crossover"
	"github.com/spf13/cobra"
)

var (
	signalsPrices   string
	signalsStrategy string
	signalsParams   strategy.Params
	signalsOut      string
)

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Generate a signal CSV from a price file",
	Long: `Run a signal generator over a price file and write the BuySignal,
SellSignal, Description CSV the backtest command reads.`,
	RunE: runSignals,
}

func init() {
	signalsCmd.Flags().StringVar(&signalsPrices, "prices", "", "price file (.csv or .parquet, required)")
	signalsCmd.Flags().StringVar(&signalsStrategy, "strategy", ma_crossover.Name, "signal generator")
	signalsCmd.Flags().StringVarP(&signalsOut, "out", "o", "", "output file (default signals.csv in the work directory)")
	addStrategyFlags(signalsCmd, &signalsParams)

	signalsCmd.MarkFlagRequired("prices")

	rootCmd.AddCommand(signalsCmd)
}

func addStrategyFlags(cmd *cobra.Command, p *strategy.Params) {
	cmd.Flags().IntVar(&p.Fast, "fast", 0, "fast moving average period (default 5)")
	cmd.Flags().IntVar(&p.Slow, "slow", 0, "slow moving average period (default 20)")
	cmd.Flags().StringVar(&p.MA, "ma", "", "moving average type: sma or ema (default sma)")
}

func runSignals(cmd *cobra.Command, args []string) error {
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	prices, err := dataset.LoadPrices(signalsPrices)
	if err != nil {
		return err
	}

	if signalsParams.PriceField == "" {
		signalsParams.PriceField = cfg.Backtest.PriceField
	}

	a := app.New(cfg, log)
	signals, err := a.GenerateSignals(cmd.Context(), signalsStrategy, signalsParams, prices)
	if err != nil {
		return err
	}

	path := signalsOut
	if path == "" {
		path = filepath.Join(cfg.Output.WorkDir, "signals.csv")
	}
	if err := writeFile(path, func(f *os.File) error { return dataset.WriteSignalsCSV(f, signals) }); err != nil {
		return err
	}

	var buys, sells int
	for _, s := range signals {
		if s.Buy {
			buys++
		}
		if s.Sell {
			sells++
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d signals (%d buy, %d sell) to %s\n", len(signals), buys, sells, path)
	return nil
}
