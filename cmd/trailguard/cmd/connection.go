package cmd

import (
	"fmt"
	"time"

	"github.com/rustyeddy/trailguard/model"
	"github.com/rustyeddy/trailguard/pkg/id"
	"github.com/rustyeddy/trailguard/trailing"
	"github.com/spf13/cobra"
)

var connectionCmd = &cobra.Command{
	Use:     "connection",
	Aliases: []string{"conn"},
	Short:   "Manage trading connections",
	Long: `Register and inspect the trading-platform accounts signals are routed to.

Examples:
  trailguard connection add --user u1 --name main --equity 10000 --trailing atr
  trailguard connection list`,
}

var connectionAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a connection with default policies",
	Args:  cobra.NoArgs,
	RunE:  runConnectionAdd,
}

var connectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connections and their health",
	Args:  cobra.NoArgs,
	RunE:  runConnectionList,
}

var (
	connID       string
	connUser     string
	connName     string
	connEquity   float64
	connRisk     float64
	connMaxLot   float64
	connTrailing string
)

func init() {
	rootCmd.AddCommand(connectionCmd)
	connectionCmd.AddCommand(connectionAddCmd)
	connectionCmd.AddCommand(connectionListCmd)

	f := connectionAddCmd.Flags()
	f.StringVar(&connID, "id", "", "connection id (generated when empty)")
	f.StringVar(&connUser, "user", "", "owning user id (required)")
	f.StringVar(&connName, "name", "", "display name")
	f.Float64Var(&connEquity, "equity", 0, "account equity")
	f.Float64Var(&connRisk, "risk", 0, "risk per trade, percent (default policy when 0)")
	f.Float64Var(&connMaxLot, "max-lot", 0, "lot size cap (default policy when 0)")
	f.StringVar(&connTrailing, "trailing", "", "enable trailing in mode atr, structure, r_multiple or hybrid")
	connectionAddCmd.MarkFlagRequired("user")
}

func runConnectionAdd(cmd *cobra.Command, args []string) error {
	if connID == "" {
		connID = id.New()
	}
	c := model.NewConnection(connID, connUser, connName, connEquity)
	if connRisk > 0 {
		c.Risk.RiskPercent = connRisk
	}
	if connMaxLot > 0 {
		c.Risk.MaxLot = connMaxLot
	}
	if connTrailing != "" {
		mode, err := trailing.ParseMode(connTrailing)
		if err != nil {
			return err
		}
		c.Trailing.Enabled = true
		c.Trailing.Mode = mode
	}
	c.UpdatedAt = time.Now().UTC()
	if err := c.Validate(); err != nil {
		return err
	}

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

	if err := st.SaveConnection(ctx, &c); err != nil {
		return fmt.Errorf("save connection: %w", err)
	}
	fmt.Printf("✓ Connection %s saved (risk %.2f%%, max lot %.2f, trailing %s)\n",
		c.ID, c.Risk.RiskPercent, c.Risk.MaxLot, trailingLabel(c.Trailing))
	fmt.Println("  It receives signals once its actuator sends a heartbeat.")
	return nil
}

func runConnectionList(cmd *cobra.Command, args []string) error {
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

	conns, err := st.ListConnections(ctx)
	if err != nil {
		return fmt.Errorf("list connections: %w", err)
	}
	if len(conns) == 0 {
		fmt.Println("No connections")
		return nil
	}
	for _, c := range conns {
		open, err := st.CountOpenTrades(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("count trades for %s: %w", c.ID, err)
		}
		seen := "never"
		if !c.LastHeartbeat.IsZero() {
			seen = time.Since(c.LastHeartbeat).Round(time.Second).String() + " ago"
		}
		fmt.Printf("%-28s %-12s %-7s %-9s equity=%.2f open=%d trailing=%s heartbeat=%s\n",
			c.ID, c.Name, c.Status, c.Quality, c.Equity, open, trailingLabel(c.Trailing), seen)
	}
	return nil
}

func trailingLabel(cfg trailing.Config) string {
	if !cfg.Enabled {
		return "off"
	}
	return string(cfg.Mode)
}
