package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rustyeddy/trailguard/monitor"
	"github.com/rustyeddy/trailguard/processor"
	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run monitor passes without the HTTP API",
	Long: `Manage open trades on a schedule: TP hits, breakeven, trailing,
connection health and instruction cleanup.

Examples:
  trailguard monitor --once
  trailguard monitor --config trailguard.yaml`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

var monitorOnce bool

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorOnce, "once", false, "run a single pass and print a summary")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	prices, err := newFeed(cfg)
	if err != nil {
		return err
	}

	mon := monitor.New(st, prices, processor.New(st, logger.Named("processor")),
		monitor.WithConcurrency(cfg.Monitor.Concurrency),
		monitor.WithRetention(cfg.Monitor.RetentionDuration()),
		monitor.WithOfflineAfter(cfg.Monitor.OfflineAfterDuration()),
		monitor.WithDispatcher(newDispatcher(cfg, st, logger)),
		monitor.WithLogger(logger.Named("monitor")))

	if !monitorOnce {
		if err := mon.Run(ctx, cfg.Monitor.IntervalDuration()); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	report, err := mon.RunPass(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("monitor pass: %w", err)
	}
	fmt.Printf("✓ Pass complete in %s\n", report.Duration.Round(time.Millisecond))
	fmt.Printf("  Connections: %d  Trades: %d  Events: %d  Reaped: %d\n",
		report.Connections, report.Trades, len(report.Events), report.Reaped)
	for _, item := range report.Errors() {
		fmt.Printf("  ✗ %s %s %s: %v\n", item.Sweep, item.ConnectionID, item.TradeID, item.Err)
	}
	return nil
}
