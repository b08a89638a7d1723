package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/trailguard/market"
)

var ErrMalformedSignal = errors.New("malformed signal")

// Signal is one trade idea from an upstream source. TP levels are optional;
// a zero level is computed from the stop distance.
type Signal struct {
	ID         string           `json:"id"`
	Symbol     string           `json:"symbol"`
	Direction  market.Direction `json:"direction"`
	Entry      float64          `json:"entry"`
	StopLoss   float64          `json:"stop_loss"`
	TP         [4]float64       `json:"tp"`
	Source     string           `json:"source,omitempty"`
	ReceivedAt time.Time        `json:"received_at"`
}

func (s Signal) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrMalformedSignal)
	}
	if !s.Direction.Valid() {
		return fmt.Errorf("%w: unknown direction %q", ErrMalformedSignal, s.Direction)
	}
	if s.Entry <= 0 || s.StopLoss <= 0 {
		return fmt.Errorf("%w: entry and stop_loss are required", ErrMalformedSignal)
	}
	if !s.Direction.Tighter(s.StopLoss, s.Entry) {
		return fmt.Errorf("%w: stop %.5f is on the wrong side of entry %.5f for %s",
			ErrMalformedSignal, s.StopLoss, s.Entry, s.Direction)
	}
	for i, tp := range s.TP {
		if tp != 0 && !s.Direction.Tighter(s.Entry, tp) {
			return fmt.Errorf("%w: tp%d %.5f is on the wrong side of entry", ErrMalformedSignal, i+1, tp)
		}
	}
	return nil
}

// TrailingLog is the audit record of one accepted stop move. Rows are never
// updated except for NotifySent.
type TrailingLog struct {
	ID         string    `json:"id"`
	TradeID    string    `json:"trade_id"`
	OldSL      float64   `json:"old_sl"`
	NewSL      float64   `json:"new_sl"`
	Reason     string    `json:"reason"`
	Mode       string    `json:"mode"`
	CreatedAt  time.Time `json:"created_at"`
	NotifySent bool      `json:"notify_sent"`
}

// ModeBreakeven labels breakeven moves in the trailing log.
const ModeBreakeven = "breakeven"
