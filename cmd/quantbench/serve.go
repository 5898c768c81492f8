package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newthinker/quantbench/internal/api"
	"github.com/newthinker/quantbench/internal/app"
	"github.com/newthinker/quantbench/internal/logger"
	"github.com/newthinker/quantbench/internal/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the backtest API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
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

	var reg *metrics.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.NewRegistry()
	}

	a, err := app.Open(cfg, log, reg)
	if err != nil {
		return fmt.Errorf("opening app: %w", err)
	}
	defer a.Close()

	log.Info("starting quantbench server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("llm_provider", cfg.LLM.Provider),
	)

	server := api.NewServer(cfg, a, reg, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Info("shutting down quantbench server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return server.Shutdown(ctx)
}
