package main

import (
	"fmt"

	"github.com/newthinker/quantbench/internal/app"
	"github.com/newthinker/quantbench/internal/logger"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded backtest runs",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}

	a, err := app.Open(cfg, log, nil)
	if err != nil {
		return fmt.Errorf("opening app: %w", err)
	}
	defer a.Close()

	records, err := a.History(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
		return nil
	}
	return printHistory(cmd.OutOrStdout(), records)
}
