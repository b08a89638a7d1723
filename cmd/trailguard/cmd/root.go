package cmd

import (
	"context"
	"fmt"

	"github.com/rustyeddy/trailguard/config"
	"github.com/rustyeddy/trailguard/feed"
	"github.com/rustyeddy/trailguard/logging"
	"github.com/rustyeddy/trailguard/notify"
	"github.com/rustyeddy/trailguard/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "trailguard",
	Short: "Risk-managed trade routing and trailing-stop management",
	Long: `Trailguard turns trading signals into sized orders for every bound
trading connection and manages the resulting trades: take-profit tracking,
breakeven, and trailing stops in ATR, structure, R-multiple or hybrid mode.

Connected actuators poll for pending instructions and report back over HTTP.

Examples:
  trailguard config init -o trailguard.yaml
  trailguard serve --config trailguard.yaml
  trailguard size --symbol EURUSD --direction buy --entry 1.1 --sl 1.095 --equity 10000`,
	SilenceUsage: true,
}

var cfgFile string

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON); defaults plus TRAILGUARD_* env when empty")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (*store.SQL, error) {
	s, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	l, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

func newFeed(cfg *config.Config) (feed.Feed, error) {
	switch cfg.Feed.Provider {
	case "oanda":
		g, err := feed.ParseGranularity(cfg.Feed.Granularity)
		if err != nil {
			return nil, err
		}
		return feed.NewOANDA(cfg.Feed.Token, cfg.Feed.Practice, g), nil
	case "static":
		return feed.NewStatic(), nil
	}
	return nil, fmt.Errorf("unknown feed provider %q", cfg.Feed.Provider)
}

// newDispatcher always logs events and also posts them when a webhook is
// configured.
func newDispatcher(cfg *config.Config, s store.Store, logger *zap.Logger) *notify.Dispatcher {
	sinks := notify.Multi{notify.NewLogSink(logger)}
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.Notify.WebhookURL, cfg.Notify.TimeoutDuration()))
	}
	return notify.NewDispatcher(sinks, s, logger,
		notify.WithRetry(cfg.Notify.Attempts(), cfg.Notify.BackoffDuration()),
		notify.WithTimeout(cfg.Notify.TimeoutDuration()))
}
