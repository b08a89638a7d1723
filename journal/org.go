// Package journal renders managed trades and their stop history for review.
package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/trailguard/market"
	"github.com/rustyeddy/trailguard/model"
)

// FormatTradeOrg renders a trade as an Org-mode block suitable for pasting
// into a journal. Structured facts go in a PROPERTIES drawer, every stop
// move is listed under Stop History, and Thesis/Execution/Review are left
// as placeholders.
func FormatTradeOrg(t *model.Trade, logs []*model.TrailingLog) string {
	digits := int(market.Digits(t.Symbol))
	price := func(p float64) string { return fmt.Sprintf("%.*f", digits, p) }

	var b strings.Builder
	fmt.Fprintf(&b, "** Trade: %s %s (%s)\n", t.Symbol, t.Direction, shortID(t.ID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":TRADE_ID: %s\n", t.ID)
	fmt.Fprintf(&b, ":CONNECTION: %s\n", t.ConnectionID)
	fmt.Fprintf(&b, ":TICKET: %s\n", t.Ticket)
	fmt.Fprintf(&b, ":SYMBOL: %s\n", t.Symbol)
	fmt.Fprintf(&b, ":DIRECTION: %s\n", t.Direction)
	fmt.Fprintf(&b, ":LOT: %.2f\n", t.LotSize)
	fmt.Fprintf(&b, ":ENTRY: %s\n", price(t.EntryPrice))
	fmt.Fprintf(&b, ":ORIGINAL_SL: %s\n", price(t.OriginalSL))
	fmt.Fprintf(&b, ":FINAL_SL: %s\n", price(t.StopLoss))
	fmt.Fprintf(&b, ":OPEN_TIME: %s\n", stamp(t.OpenedAt))
	fmt.Fprintf(&b, ":CLOSE_TIME: %s\n", stamp(t.ClosedAt))
	fmt.Fprintf(&b, ":STATUS: %s\n", t.Status)
	fmt.Fprintf(&b, ":PROFIT: %.2f\n", t.Profit)
	fmt.Fprintf(&b, ":TP_HIT: %s\n", tpHits(t))
	fmt.Fprintf(&b, ":BREAKEVEN: %t\n", t.BreakevenHit)
	fmt.Fprintf(&b, ":TRAIL_COUNT: %d\n", t.TrailCount)
	b.WriteString(":END:\n\n")

	b.WriteString("*** Stop History\n")
	if len(logs) == 0 {
		b.WriteString("- none\n")
	}
	for _, l := range logs {
		fmt.Fprintf(&b, "- [%s] %s -> %s (%s) %s\n",
			stamp(l.CreatedAt), price(l.OldSL), price(l.NewSL), l.Mode, l.Reason)
	}
	b.WriteString("\n")
	b.WriteString("*** Thesis\n- \n\n")
	b.WriteString("*** Execution\n- \n\n")
	b.WriteString("*** Review\n- \n")

	return b.String()
}

// FormatTradesOrg renders multiple trades separated by blank lines. logs is
// keyed by trade ID.
func FormatTradesOrg(trades []*model.Trade, logs map[string][]*model.TrailingLog) string {
	var b strings.Builder
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatTradeOrg(t, logs[t.ID]))
	}
	return b.String()
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func tpHits(t *model.Trade) string {
	var hit []string
	for i, tp := range t.TP {
		if tp.Hit {
			hit = append(hit, fmt.Sprintf("TP%d", i+1))
		}
	}
	if len(hit) == 0 {
		return "none"
	}
	return strings.Join(hit, ",")
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
