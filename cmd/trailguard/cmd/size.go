package cmd

import (
	"fmt"
	"io"

	"github.com/rustyeddy/trailguard/market"
	"github.com/rustyeddy/trailguard/risk"
	"github.com/spf13/cobra"
)

var sizeCmd = &cobra.Command{
	Use:   "size",
	Short: "Compute lot size and take-profit levels for a trade idea",
	Long: `Apply the position sizing rules without touching the store.

Example:
  trailguard size --symbol EURUSD --direction buy --entry 1.1 --sl 1.095 --equity 10000 --risk 1`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := market.ParseDirection(sizeDirection)
		if err != nil {
			return err
		}
		return writeSize(cmd.OutOrStdout(), sizeInput{
			Symbol:    sizeSymbol,
			Direction: dir,
			Entry:     sizeEntry,
			Stop:      sizeStop,
			Equity:    sizeEquity,
			RiskPct:   sizeRisk,
			MaxLot:    sizeMaxLot,
		})
	},
}

var (
	sizeSymbol    string
	sizeDirection string
	sizeEntry     float64
	sizeStop      float64
	sizeEquity    float64
	sizeRisk      float64
	sizeMaxLot    float64
)

func init() {
	rootCmd.AddCommand(sizeCmd)

	def := risk.DefaultPolicy()
	f := sizeCmd.Flags()
	f.StringVarP(&sizeSymbol, "symbol", "s", "", "instrument, e.g. EURUSD (required)")
	f.StringVarP(&sizeDirection, "direction", "d", "buy", "buy/long or sell/short")
	f.Float64Var(&sizeEntry, "entry", 0, "entry price (required)")
	f.Float64Var(&sizeStop, "sl", 0, "stop loss price (required)")
	f.Float64Var(&sizeEquity, "equity", 10000, "account equity")
	f.Float64Var(&sizeRisk, "risk", def.RiskPercent, "risk per trade, percent of equity")
	f.Float64Var(&sizeMaxLot, "max-lot", def.MaxLot, "lot size cap")
	sizeCmd.MarkFlagRequired("symbol")
	sizeCmd.MarkFlagRequired("entry")
	sizeCmd.MarkFlagRequired("sl")
}

type sizeInput struct {
	Symbol    string
	Direction market.Direction
	Entry     float64
	Stop      float64
	Equity    float64
	RiskPct   float64
	MaxLot    float64
}

func writeSize(w io.Writer, in sizeInput) error {
	symbol := market.NormalizeSymbol(in.Symbol)
	if !in.Direction.Tighter(in.Stop, in.Entry) {
		return fmt.Errorf("stop %.5f is on the wrong side of entry %.5f for %s", in.Stop, in.Entry, in.Direction)
	}
	tps, err := risk.TakeProfitLevels(in.Entry, in.Stop, in.Direction)
	if err != nil {
		return err
	}

	stopPips := market.Pips(symbol, in.Entry, in.Stop)
	lot := risk.LotSize(in.Equity, in.RiskPct, stopPips, symbol, in.MaxLot)
	digits := int(market.Digits(symbol))

	fmt.Fprintf(w, "%s %s @ %.*f\n", symbol, in.Direction, digits, in.Entry)
	fmt.Fprintf(w, "  Stop: %.*f (%.1f pips)\n", digits, in.Stop, stopPips)
	fmt.Fprintf(w, "  Lot: %.2f\n", lot)
	fmt.Fprintf(w, "  Risk: $%.2f (%.2f%% of $%.2f)\n", risk.RiskAmount(lot, in.Entry, in.Stop, symbol), in.RiskPct, in.Equity)
	if !market.HasPipValue(symbol) {
		fmt.Fprintf(w, "  ! pip value for %s not tabulated, using $%.2f\n", symbol, market.DefaultPipValue)
	}
	for i, tp := range tps {
		fmt.Fprintf(w, "  TP%d: %.*f (%.0fR)\n", i+1, digits, tp, risk.RR(in.Entry, in.Stop, tp))
	}
	return nil
}
