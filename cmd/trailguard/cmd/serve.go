package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rustyeddy/trailguard/monitor"
	"github.com/rustyeddy/trailguard/processor"
	"github.com/rustyeddy/trailguard/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the trade monitor",
	Long: `Serve the actuator and signal API and run a monitor pass every
monitor.interval until interrupted.

Example:
  trailguard serve --config trailguard.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveNoMonitor bool

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveNoMonitor, "no-monitor", false, "serve the API only")
}

func runServe(cmd *cobra.Command, args []string) error {
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

	dispatcher := newDispatcher(cfg, st, logger)
	proc := processor.New(st, logger.Named("processor"))
	srv := server.New(proc, st,
		server.WithDispatcher(dispatcher),
		server.WithLogger(logger.Named("http")))

	logger.Info("trailguard starting", zap.Stringer("config", cfg))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(ctx, cfg.Server.Addr) })
	if !serveNoMonitor {
		mon := monitor.New(st, prices, proc,
			monitor.WithConcurrency(cfg.Monitor.Concurrency),
			monitor.WithRetention(cfg.Monitor.RetentionDuration()),
			monitor.WithOfflineAfter(cfg.Monitor.OfflineAfterDuration()),
			monitor.WithDispatcher(dispatcher),
			monitor.WithLogger(logger.Named("monitor")))
		g.Go(func() error { return mon.Run(ctx, cfg.Monitor.IntervalDuration()) })
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("trailguard stopped")
	return err
}
