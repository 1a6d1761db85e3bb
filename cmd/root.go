package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/warehouse/app"
	"github.com/kilianp07/warehouse/config"
	coremon "github.com/kilianp07/warehouse/core/monitoring"
	"github.com/kilianp07/warehouse/infra/logger"
	"github.com/kilianp07/warehouse/infra/monitoring"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "warehouse",
	Short: "AGV charging scheduler and stock ledger",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file (yaml or json, see config.example.yaml)")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	closeLog, err := logger.Configure(cfg.Logging)
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer func() { _ = closeLog() }()

	mon, err := monitoring.NewSentryMonitor(cfg.Monitoring)
	if err != nil {
		return fmt.Errorf("monitoring: %w", err)
	}
	coremon.Init(mon)
	defer coremon.Flush(2 * time.Second)
	defer func() {
		if r := recover(); r != nil {
			coremon.CapturePanic(r)
			panic(r)
		}
	}()

	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}
