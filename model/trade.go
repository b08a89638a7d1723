package model

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/trailguard/market"
	"github.com/rustyeddy/trailguard/trailing"
)

var (
	ErrTradeClosed  = errors.New("trade is closed")
	ErrStopLoosened = errors.New("stop loss would loosen")
	ErrInvalidTrade = errors.New("invalid trade")
)

type TradeStatus string

const (
	TradeOpen   TradeStatus = "open"
	TradeClosed TradeStatus = "closed"
)

// TakeProfit is one of a trade's four target levels. Price 0 means the level
// is disabled.
type TakeProfit struct {
	Price float64   `json:"price"`
	Hit   bool      `json:"hit"`
	HitAt time.Time `json:"hit_at,omitempty"`
}

// Trade is an open or closed position tracked by the monitor.
//
// OriginalSL is the initial risk basis and never changes once set. StopLoss
// only tightens, TrailCount only grows and a closed trade rejects mutation.
// Version is bumped by the store on every successful update.
type Trade struct {
	ID           string           `json:"id"`
	ConnectionID string           `json:"connection_id"`
	Ticket       string           `json:"ticket"`
	Symbol       string           `json:"symbol"`
	Direction    market.Direction `json:"direction"`

	EntryPrice float64       `json:"entry_price"`
	StopLoss   float64       `json:"stop_loss"`
	OriginalSL float64       `json:"original_sl"`
	TP         [4]TakeProfit `json:"tp"`

	BreakevenHit   bool      `json:"breakeven_hit"`
	TrailingActive bool      `json:"trailing_active"`
	TrailCount     int       `json:"trail_count"`
	LastTrailAt    time.Time `json:"last_trail_at,omitempty"`
	PeakPrice      float64   `json:"peak_price"`

	LotSize float64     `json:"lot_size"`
	Profit  float64     `json:"profit"`
	Status  TradeStatus `json:"status"`

	OpenedAt time.Time `json:"opened_at"`
	ClosedAt time.Time `json:"closed_at,omitempty"`

	Version int64 `json:"version"`
}

func (t *Trade) IsOpen() bool {
	return t.Status == TradeOpen
}

func (t *Trade) Validate() error {
	if t.ID == "" || t.ConnectionID == "" {
		return fmt.Errorf("%w: id and connection_id are required", ErrInvalidTrade)
	}
	if !t.Direction.Valid() {
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidTrade, t.Direction)
	}
	if t.EntryPrice <= 0 {
		return fmt.Errorf("%w: entry_price must be positive", ErrInvalidTrade)
	}
	if t.StopLoss < 0 || t.OriginalSL < 0 || t.LotSize < 0 {
		return fmt.Errorf("%w: negative price or size", ErrInvalidTrade)
	}
	if t.Status != TradeOpen && t.Status != TradeClosed {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTrade, t.Status)
	}
	return nil
}

// RiskDistance is |entry - original stop| in price units.
func (t *Trade) RiskDistance() float64 {
	basis := t.OriginalSL
	if basis == 0 {
		basis = t.StopLoss
	}
	return math.Abs(t.EntryPrice - basis)
}

// MoveStop sets a new protective stop. The first stop recorded becomes the
// original stop.
func (t *Trade) MoveStop(sl float64) error {
	if !t.IsOpen() {
		return ErrTradeClosed
	}
	if t.StopLoss != 0 && !t.Direction.Tighter(t.StopLoss, sl) {
		return fmt.Errorf("%w: %.5f -> %.5f (%s)", ErrStopLoosened, t.StopLoss, sl, t.Direction)
	}
	if t.OriginalSL == 0 {
		t.OriginalSL = t.StopLoss
		if t.OriginalSL == 0 {
			t.OriginalSL = sl
		}
	}
	t.StopLoss = sl
	return nil
}

// ApplyTrail records an accepted trailing move.
func (t *Trade) ApplyTrail(sl float64, now time.Time) error {
	if err := t.MoveStop(sl); err != nil {
		return err
	}
	t.TrailingActive = true
	t.TrailCount++
	t.LastTrailAt = now
	return nil
}

// ApplyBreakeven moves the stop to the breakeven price and marks it armed.
// The move counts as a stop modification for the trailing delay.
func (t *Trade) ApplyBreakeven(sl float64, now time.Time) error {
	if err := t.MoveStop(sl); err != nil {
		return err
	}
	t.BreakevenHit = true
	t.LastTrailAt = now
	return nil
}

// UpdatePeak records price when it is the most favorable seen so far.
func (t *Trade) UpdatePeak(price float64) bool {
	if !t.IsOpen() || price <= 0 {
		return false
	}
	if t.PeakPrice == 0 || t.Direction.Favorable(t.PeakPrice, price) > 0 {
		t.PeakPrice = price
		return true
	}
	return false
}

// MarkTPHit flips take-profit level i (0-based). It reports false when the
// level is disabled or already hit.
func (t *Trade) MarkTPHit(i int, now time.Time) (bool, error) {
	if !t.IsOpen() {
		return false, ErrTradeClosed
	}
	if i < 0 || i >= len(t.TP) || t.TP[i].Price == 0 || t.TP[i].Hit {
		return false, nil
	}
	t.TP[i].Hit = true
	t.TP[i].HitAt = now
	return true, nil
}

func (t *Trade) Close(profit float64, now time.Time) error {
	if !t.IsOpen() {
		return ErrTradeClosed
	}
	t.Status = TradeClosed
	t.Profit = profit
	t.ClosedAt = now
	return nil
}

// Position is the view the trailing engine evaluates.
func (t *Trade) Position() trailing.Position {
	return trailing.Position{
		Symbol:      t.Symbol,
		Direction:   t.Direction,
		Entry:       t.EntryPrice,
		StopLoss:    t.StopLoss,
		OriginalSL:  t.OriginalSL,
		PeakPrice:   t.PeakPrice,
		TP1Hit:      t.TP[0].Hit,
		LastTrailAt: t.LastTrailAt,
	}
}
