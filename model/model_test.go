package model

import (
	"errors"
	"testing"
	"time"

	"github.com/rustyeddy/trailguard/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func openLong() *Trade {
	return &Trade{
		ID:           "t1",
		ConnectionID: "c1",
		Ticket:       "1001",
		Symbol:       "EURUSD",
		Direction:    market.Buy,
		EntryPrice:   1.1000,
		StopLoss:     1.0950,
		OriginalSL:   1.0950,
		TP: [4]TakeProfit{
			{Price: 1.1050}, {Price: 1.1100}, {Price: 1.1150}, {Price: 1.1250},
		},
		LotSize: 0.2,
		Status:  TradeOpen,
	}
}

func TestTradeMoveStop(t *testing.T) {
	t.Parallel()

	tr := openLong()
	require.NoError(t, tr.MoveStop(1.0980))
	assert.Equal(t, 1.0980, tr.StopLoss)
	assert.Equal(t, 1.0950, tr.OriginalSL)

	err := tr.MoveStop(1.0970)
	assert.ErrorIs(t, err, ErrStopLoosened)
	assert.Equal(t, 1.0980, tr.StopLoss)

	assert.ErrorIs(t, tr.MoveStop(1.0980), ErrStopLoosened)

	short := &Trade{Direction: market.Sell, EntryPrice: 1.25, StopLoss: 1.255, Status: TradeOpen}
	require.NoError(t, short.MoveStop(1.252))
	assert.Equal(t, 1.255, short.OriginalSL)
	assert.ErrorIs(t, short.MoveStop(1.253), ErrStopLoosened)
}

func TestTradeApplyTrail(t *testing.T) {
	t.Parallel()

	tr := openLong()
	require.NoError(t, tr.ApplyTrail(1.1000, now))
	require.NoError(t, tr.ApplyTrail(1.1020, now.Add(time.Minute)))

	assert.Equal(t, 2, tr.TrailCount)
	assert.True(t, tr.TrailingActive)
	assert.Equal(t, now.Add(time.Minute), tr.LastTrailAt)

	assert.Error(t, tr.ApplyTrail(1.1010, now.Add(2*time.Minute)))
	assert.Equal(t, 2, tr.TrailCount)
}

func TestTradeClosedRejectsMutation(t *testing.T) {
	t.Parallel()

	tr := openLong()
	require.NoError(t, tr.Close(-100, now))
	assert.Equal(t, TradeClosed, tr.Status)

	assert.ErrorIs(t, tr.MoveStop(1.1), ErrTradeClosed)
	assert.ErrorIs(t, tr.ApplyBreakeven(1.1002, now), ErrTradeClosed)
	assert.ErrorIs(t, tr.Close(0, now), ErrTradeClosed)
	_, err := tr.MarkTPHit(0, now)
	assert.ErrorIs(t, err, ErrTradeClosed)
	assert.False(t, tr.UpdatePeak(1.2))
}

func TestTradeMarkTPHit(t *testing.T) {
	t.Parallel()

	tr := openLong()
	tr.TP[2].Price = 0

	ok, err := tr.MarkTPHit(0, now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, now, tr.TP[0].HitAt)

	ok, err = tr.MarkTPHit(0, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, now, tr.TP[0].HitAt)

	ok, _ = tr.MarkTPHit(2, now)
	assert.False(t, ok)
	ok, _ = tr.MarkTPHit(7, now)
	assert.False(t, ok)
}

func TestTradeUpdatePeak(t *testing.T) {
	t.Parallel()

	tr := openLong()
	assert.True(t, tr.UpdatePeak(1.1010))
	assert.True(t, tr.UpdatePeak(1.1030))
	assert.False(t, tr.UpdatePeak(1.1020))
	assert.Equal(t, 1.1030, tr.PeakPrice)

	short := &Trade{Direction: market.Sell, Status: TradeOpen}
	assert.True(t, short.UpdatePeak(1.25))
	assert.True(t, short.UpdatePeak(1.24))
	assert.False(t, short.UpdatePeak(1.245))
	assert.Equal(t, 1.24, short.PeakPrice)
}

func TestTradePosition(t *testing.T) {
	t.Parallel()

	tr := openLong()
	tr.TP[0].Hit = true
	tr.PeakPrice = 1.108
	p := tr.Position()

	assert.Equal(t, "EURUSD", p.Symbol)
	assert.Equal(t, 1.0950, p.OriginalSL)
	assert.True(t, p.TP1Hit)
	assert.Equal(t, 1.108, p.PeakPrice)
	assert.InDelta(t, 0.005, tr.RiskDistance(), 1e-12)
}

func TestTradeValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, openLong().Validate())

	bad := openLong()
	bad.Direction = "sideways"
	assert.ErrorIs(t, bad.Validate(), ErrInvalidTrade)

	bad = openLong()
	bad.EntryPrice = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidTrade)
}

func TestSignalValidate(t *testing.T) {
	t.Parallel()

	valid := Signal{Symbol: "EURUSD", Direction: market.Buy, Entry: 1.1, StopLoss: 1.095}

	tests := []struct {
		name   string
		mutate func(s *Signal)
		ok     bool
	}{
		{"valid", func(*Signal) {}, true},
		{"valid with tp", func(s *Signal) { s.TP[0] = 1.106 }, true},
		{"missing entry", func(s *Signal) { s.Entry = 0 }, false},
		{"missing stop", func(s *Signal) { s.StopLoss = 0 }, false},
		{"unknown direction", func(s *Signal) { s.Direction = "up" }, false},
		{"stop above entry on buy", func(s *Signal) { s.StopLoss = 1.105 }, false},
		{"tp below entry on buy", func(s *Signal) { s.TP[1] = 1.09 }, false},
		{"missing symbol", func(s *Signal) { s.Symbol = "" }, false},
		{"valid sell", func(s *Signal) { s.Direction = market.Sell; s.StopLoss = 1.105 }, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := valid
			tt.mutate(&s)
			err := s.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrMalformedSignal), "got %v", err)
		})
	}
}

func TestInstructionResolve(t *testing.T) {
	t.Parallel()

	in := NewOpenInstruction("c1", OpenSpec{Symbol: "EURUSD", Direction: market.Buy, Lot: 0.2, Entry: 1.1, StopLoss: 1.095, TP: [4]float64{1.105}}, now)
	assert.Equal(t, PriorityOpen, in.Priority)
	assert.Equal(t, InstructionPending, in.Status)
	assert.Equal(t, 1.105, in.TakeProfit)
	assert.NotEmpty(t, in.ID)

	assert.Error(t, in.Resolve(InstructionPending, "", now))
	require.NoError(t, in.Resolve(InstructionFailed, "rejected", now.Add(time.Second)))
	assert.Equal(t, "rejected", in.Error)
	assert.ErrorIs(t, in.Resolve(InstructionExecuted, "", now), ErrInstructionResolved)
}

func TestModifyInstructionPriority(t *testing.T) {
	t.Parallel()

	tr := openLong()
	be := NewModifyInstruction(ActionBreakeven, tr, 1.1002, now)
	tl := NewModifyInstruction(ActionTrail, tr, 1.1050, now)

	assert.Equal(t, PriorityBreakeven, be.Priority)
	assert.Equal(t, PriorityTrail, tl.Priority)
	assert.Greater(t, be.Priority, tl.Priority)
	assert.Greater(t, tl.Priority, PriorityOpen)
	assert.Equal(t, "1001", tl.Ticket)
}

func TestConnectionValidate(t *testing.T) {
	t.Parallel()

	c := NewConnection("c1", "u1", "demo", 10000)
	assert.NoError(t, c.Validate())
	assert.False(t, c.Eligible())
	c.Online = true
	assert.True(t, c.Eligible())

	c.Status = "archived"
	assert.ErrorIs(t, c.Validate(), ErrInvalidConnection)

	c = NewConnection("c1", "u1", "demo", 10000)
	c.Trailing.Mode = "zigzag"
	assert.ErrorIs(t, c.Validate(), ErrInvalidConnection)

	c = NewConnection("c1", "u1", "demo", 10000)
	c.Risk.MaxLot = -1
	assert.Error(t, c.Validate())
}

func TestConnectionBreakevenFallbacks(t *testing.T) {
	t.Parallel()

	c := NewConnection("c1", "u1", "demo", 10000)
	c.Breakeven = BreakevenPolicy{Enabled: true}
	c.Trailing.BreakevenTriggerR = 1.5
	c.Trailing.BreakevenPaddingPips = 3
	assert.Equal(t, 1.5, c.BreakevenTriggerR())
	assert.Equal(t, 3.0, c.BreakevenPaddingPips())

	c.Breakeven.TriggerR = 2
	assert.Equal(t, 2.0, c.BreakevenTriggerR())
}
