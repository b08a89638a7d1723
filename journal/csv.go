package journal

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rustyeddy/trailguard/model"
)

var (
	tradeHeader = []string{"trade_id", "connection_id", "ticket", "symbol", "direction", "lot",
		"entry", "original_sl", "final_sl", "opened_at", "closed_at", "profit", "trail_count", "breakeven"}
	logHeader = []string{"trade_id", "time", "old_sl", "new_sl", "mode", "reason"}
)

// WriteTradesCSV writes one row per trade, header first.
func WriteTradesCSV(w io.Writer, trades []*model.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeHeader); err != nil {
		return err
	}
	for _, t := range trades {
		err := cw.Write([]string{
			t.ID,
			t.ConnectionID,
			t.Ticket,
			t.Symbol,
			string(t.Direction),
			f(t.LotSize),
			f(t.EntryPrice),
			f(t.OriginalSL),
			f(t.StopLoss),
			ts(t.OpenedAt),
			ts(t.ClosedAt),
			f(t.Profit),
			strconv.Itoa(t.TrailCount),
			strconv.FormatBool(t.BreakevenHit),
		})
		if err != nil {
			return fmt.Errorf("write trade %s: %w", t.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteLogsCSV writes the stop history of one or more trades, header first.
func WriteLogsCSV(w io.Writer, logs []*model.TrailingLog) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(logHeader); err != nil {
		return err
	}
	for _, l := range logs {
		err := cw.Write([]string{
			l.TradeID,
			ts(l.CreatedAt),
			f(l.OldSL),
			f(l.NewSL),
			l.Mode,
			l.Reason,
		})
		if err != nil {
			return fmt.Errorf("write log %s: %w", l.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func f(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func ts(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
