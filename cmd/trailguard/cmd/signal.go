package cmd

import (
	"fmt"
	"time"

	"github.com/rustyeddy/trailguard/market"
	"github.com/rustyeddy/trailguard/model"
	"github.com/rustyeddy/trailguard/processor"
	"github.com/spf13/cobra"
)

var signalCmd = &cobra.Command{
	Use:   "signal",
	Short: "Route a signal to every eligible connection",
	Long: `Size and queue an open instruction for each active, online connection
that passes its risk rules. Missing TP levels are computed at 1R, 2R, 3R
and 5R.

Example:
  trailguard signal --symbol EURUSD --direction buy --entry 1.1000 --sl 1.0950`,
	Args: cobra.NoArgs,
	RunE: runSignal,
}

var (
	sigSymbol    string
	sigDirection string
	sigEntry     float64
	sigStop      float64
	sigTP        [4]float64
	sigSource    string
)

func init() {
	rootCmd.AddCommand(signalCmd)

	f := signalCmd.Flags()
	f.StringVarP(&sigSymbol, "symbol", "s", "", "instrument, e.g. EURUSD (required)")
	f.StringVarP(&sigDirection, "direction", "d", "", "buy/long or sell/short (required)")
	f.Float64Var(&sigEntry, "entry", 0, "entry price (required)")
	f.Float64Var(&sigStop, "sl", 0, "stop loss price (required)")
	for i := range sigTP {
		f.Float64Var(&sigTP[i], fmt.Sprintf("tp%d", i+1), 0, fmt.Sprintf("take profit %d (computed when 0)", i+1))
	}
	f.StringVar(&sigSource, "source", "cli", "signal source label")
	signalCmd.MarkFlagRequired("symbol")
	signalCmd.MarkFlagRequired("direction")
	signalCmd.MarkFlagRequired("entry")
	signalCmd.MarkFlagRequired("sl")
}

func runSignal(cmd *cobra.Command, args []string) error {
	dir, err := market.ParseDirection(sigDirection)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	sig := model.Signal{
		Symbol:    market.NormalizeSymbol(sigSymbol),
		Direction: dir,
		Entry:     sigEntry,
		StopLoss:  sigStop,
		TP:        sigTP,
		Source:    sigSource,
	}
	report, err := processor.New(st, logger.Named("processor")).ProcessSignal(ctx, sig, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("process signal: %w", err)
	}
	newDispatcher(cfg, st, logger).Dispatch(ctx, report.Events)

	fmt.Printf("Signal %s: %s %s @ %.5f SL %.5f\n", report.Signal.ID, sig.Symbol, dir, sig.Entry, sig.StopLoss)
	for _, res := range report.Results {
		switch {
		case res.Err != nil:
			fmt.Printf("  ✗ %s: %v\n", res.ConnectionID, res.Err)
		case !res.Allowed:
			fmt.Printf("  - %s: denied (%s) %s\n", res.ConnectionID, res.Code, res.Reason)
		default:
			fmt.Printf("  ✓ %s: %.2f lots, instruction %s\n", res.ConnectionID, res.Lot, res.Instruction.ID)
		}
	}
	fmt.Printf("Queued %d of %d connections\n", report.Queued(), len(report.Results))
	return nil
}
