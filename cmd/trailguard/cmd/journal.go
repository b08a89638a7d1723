package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rustyeddy/trailguard/journal"
	"github.com/rustyeddy/trailguard/model"
	"github.com/rustyeddy/trailguard/store"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Review managed trades",
	Long: `Render trades and their stop history from the store.

Subcommands:
  trade  - Org-mode entry for one trade
  today  - Trades closed today
  day    - Trades closed on a specific day
  logs   - Stop history of one trade

Examples:
  trailguard journal trade <trade-id>
  trailguard journal today --csv
  trailguard journal day 2026-03-02
  trailguard journal logs <trade-id> --csv`,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <trade-id>",
	Short: "Show one trade with its stop history",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List trades closed today",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJournalDay(cmd, []string{time.Now().In(journalLocation()).Format("2006-01-02")})
	},
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades closed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalLogsCmd = &cobra.Command{
	Use:   "logs <trade-id>",
	Short: "Print the stop history of a trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalLogs,
}

var (
	journalCSV bool
	journalUTC bool
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradeCmd)
	journalCmd.AddCommand(journalTodayCmd)
	journalCmd.AddCommand(journalDayCmd)
	journalCmd.AddCommand(journalLogsCmd)

	journalCmd.PersistentFlags().BoolVar(&journalCSV, "csv", false, "write CSV instead of Org")
	journalCmd.PersistentFlags().BoolVar(&journalUTC, "utc", false, "use UTC day boundaries instead of local time")
}

func journalLocation() *time.Location {
	if journalUTC {
		return time.UTC
	}
	return time.Local
}

func withStore(cmd *cobra.Command, fn func(ctx context.Context, st store.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, st)
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(ctx context.Context, st store.Store) error {
		t, err := st.GetTrade(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get trade: %w", err)
		}
		logs, err := st.ListTrailingLogs(ctx, t.ID)
		if err != nil {
			return fmt.Errorf("list stop history: %w", err)
		}
		if journalCSV {
			return journal.WriteTradesCSV(os.Stdout, []*model.Trade{t})
		}
		fmt.Println(journal.FormatTradeOrg(t, logs))
		return nil
	})
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	start, end, err := dayBounds(journalLocation(), args[0])
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	return withStore(cmd, func(ctx context.Context, st store.Store) error {
		trades, err := st.ListTradesClosedBetween(ctx, start, end)
		if err != nil {
			return fmt.Errorf("query trades: %w", err)
		}
		if journalCSV {
			return journal.WriteTradesCSV(os.Stdout, trades)
		}
		logs := make(map[string][]*model.TrailingLog, len(trades))
		for _, t := range trades {
			if logs[t.ID], err = st.ListTrailingLogs(ctx, t.ID); err != nil {
				return fmt.Errorf("list stop history: %w", err)
			}
		}
		fmt.Println(journal.FormatTradesOrg(trades, logs))
		return nil
	})
}

func runJournalLogs(cmd *cobra.Command, args []string) error {
	return withStore(cmd, func(ctx context.Context, st store.Store) error {
		logs, err := st.ListTrailingLogs(ctx, args[0])
		if err != nil {
			return fmt.Errorf("list stop history: %w", err)
		}
		if journalCSV {
			return journal.WriteLogsCSV(os.Stdout, logs)
		}
		for _, l := range logs {
			fmt.Printf("%s  %-10s %.5f -> %.5f  %s\n",
				l.CreatedAt.UTC().Format(time.RFC3339), l.Mode, l.OldSL, l.NewSL, l.Reason)
		}
		return nil
	})
}

// dayBounds returns [start, end) of the calendar day in loc.
func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return start, end, nil
}
