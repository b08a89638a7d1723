package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/trailguard/market"
	"github.com/rustyeddy/trailguard/metrics"
	"github.com/rustyeddy/trailguard/model"
	"github.com/rustyeddy/trailguard/notify"
	"github.com/rustyeddy/trailguard/pkg/id"
	"github.com/rustyeddy/trailguard/risk"
	"github.com/rustyeddy/trailguard/trailing"
	"go.uber.org/zap"
)

// Outcome describes what one stop-management call did to a trade. Applied
// is false when nothing changed; Reason then says why.
type Outcome struct {
	TradeID     string
	Action      model.Action
	Applied     bool
	Stage       trailing.Stage
	OldSL       float64
	NewSL       float64
	Reason      string
	Instruction *model.Instruction
	Log         *model.TrailingLog
	Events      []notify.Event
}

// ProcessBreakeven moves the stop to entry plus padding once profit reaches
// the connection's trigger. It runs at most once per trade.
func (p *Processor) ProcessBreakeven(ctx context.Context, conn *model.Connection, t *model.Trade, price float64, now time.Time) (Outcome, error) {
	out := Outcome{TradeID: t.ID, Action: model.ActionBreakeven}
	if !t.IsOpen() {
		return out, model.ErrTradeClosed
	}
	if !conn.Breakeven.Enabled {
		out.Reason = "Breakeven disabled"
		return out, nil
	}
	if t.BreakevenHit {
		out.Reason = "Breakeven already applied"
		return out, nil
	}

	basis := t.OriginalSL
	if basis == 0 {
		basis = t.StopLoss
	}
	triggerR := conn.BreakevenTriggerR()
	if !risk.ShouldArmBreakeven(price, t.EntryPrice, basis, t.Direction, triggerR) {
		out.Reason = fmt.Sprintf("Profit below %.2fR trigger", triggerR)
		return out, nil
	}

	be := market.RoundPrice(t.Symbol, risk.Breakeven(t.EntryPrice, t.Direction, conn.BreakevenPaddingPips(), t.Symbol))
	out.OldSL, out.NewSL = t.StopLoss, be

	if t.StopLoss != 0 && !t.Direction.Tighter(t.StopLoss, be) {
		// The stop is already past breakeven; record the milestone only.
		t.BreakevenHit = true
		if err := p.store.UpdateTrade(ctx, t); err != nil {
			return out, err
		}
		out.Reason = "Stop already at or beyond breakeven"
		return out, nil
	}

	in := model.NewModifyInstruction(model.ActionBreakeven, t, be, now)
	if err := p.store.CreateInstruction(ctx, &in); err != nil {
		return out, err
	}
	if err := t.ApplyBreakeven(be, now); err != nil {
		p.cancelQuietly(ctx, &in, err.Error(), now)
		return out, err
	}
	if err := p.store.UpdateTrade(ctx, t); err != nil {
		p.cancelQuietly(ctx, &in, err.Error(), now)
		return out, err
	}
	metrics.RecordInstruction(string(in.Action))

	reason := fmt.Sprintf("Breakeven armed at %.2fR", triggerR)
	log := p.appendLog(ctx, t, out.OldSL, be, reason, model.ModeBreakeven, now)

	out.Applied = true
	out.Reason = reason
	out.Instruction = &in
	out.Log = log
	out.Events = append(out.Events, notify.Event{
		Type:         notify.EventBreakevenHit,
		Severity:     notify.SeverityInfo,
		ConnectionID: t.ConnectionID,
		Message: fmt.Sprintf("%s %s moved to breakeven: SL %s -> %s",
			t.Symbol, t.Direction, formatPrice(t.Symbol, out.OldSL), formatPrice(t.Symbol, be)),
		Trade: snapshot(t),
		LogID: logID(log),
		At:    now,
	})
	return out, nil
}

// ProcessTrailingStop evaluates the connection's trailing config against
// fresh market data and applies an accepted move.
func (p *Processor) ProcessTrailingStop(ctx context.Context, conn *model.Connection, t *model.Trade, m trailing.Market, now time.Time) (Outcome, error) {
	out := Outcome{TradeID: t.ID, Action: model.ActionTrail, Stage: trailing.StageNoTrail}
	if !t.IsOpen() {
		return out, model.ErrTradeClosed
	}

	prop := trailing.New(conn.Trailing).Evaluate(t.Position(), m, now)
	metrics.RecordTrailing(string(conn.Trailing.Mode), string(prop.Stage))
	out.Stage = prop.Stage
	out.Reason = prop.Reason
	if !prop.Accepted {
		p.logger.Debug("no trail",
			zap.String("trade", t.ID),
			zap.String("stage", string(prop.Stage)),
			zap.String("reason", prop.Reason))
		return out, nil
	}

	out.OldSL, out.NewSL = t.StopLoss, prop.StopLoss
	in := model.NewModifyInstruction(model.ActionTrail, t, prop.StopLoss, now)
	if err := p.store.CreateInstruction(ctx, &in); err != nil {
		return out, err
	}
	if err := t.ApplyTrail(prop.StopLoss, now); err != nil {
		p.cancelQuietly(ctx, &in, err.Error(), now)
		return out, err
	}
	if err := p.store.UpdateTrade(ctx, t); err != nil {
		p.cancelQuietly(ctx, &in, err.Error(), now)
		return out, err
	}
	metrics.RecordInstruction(string(in.Action))
	metrics.RecordTrailing(string(conn.Trailing.Mode), string(trailing.StageApplied))

	log := p.appendLog(ctx, t, out.OldSL, prop.StopLoss, prop.Reason, string(prop.Mode), now)

	out.Applied = true
	out.Stage = trailing.StageApplied
	out.Instruction = &in
	out.Log = log
	out.Events = append(out.Events, notify.Event{
		Type:         notify.EventTrailingUpdate,
		Severity:     notify.SeverityInfo,
		ConnectionID: t.ConnectionID,
		Message: fmt.Sprintf("%s %s trailing stop %s -> %s (%s)",
			t.Symbol, t.Direction, formatPrice(t.Symbol, out.OldSL),
			formatPrice(t.Symbol, prop.StopLoss), prop.Reason),
		Trade: snapshot(t),
		Meta:  map[string]any{"mode": string(prop.Mode), "trail_count": t.TrailCount},
		LogID: logID(log),
		At:    now,
	})
	return out, nil
}

// appendLog writes the audit row. A failure is logged and does not undo
// the move, which is already committed.
func (p *Processor) appendLog(ctx context.Context, t *model.Trade, oldSL, newSL float64, reason, mode string, now time.Time) *model.TrailingLog {
	l := &model.TrailingLog{
		ID:        id.NewAt(now),
		TradeID:   t.ID,
		OldSL:     oldSL,
		NewSL:     newSL,
		Reason:    reason,
		Mode:      mode,
		CreatedAt: now,
	}
	if err := p.store.AppendTrailingLog(ctx, l); err != nil {
		p.logger.Error("append trailing log", zap.String("trade", t.ID), zap.Error(err))
		return nil
	}
	return l
}

func logID(l *model.TrailingLog) string {
	if l == nil {
		return ""
	}
	return l.ID
}

func snapshot(t *model.Trade) *model.Trade {
	c := *t
	return &c
}

// CheckTPHits flips every enabled take-profit level that price has reached
// and returns the newly hit levels, 1-based. Levels already hit are
// skipped, so repeated calls with the same price return nothing new.
func CheckTPHits(t *model.Trade, price float64, now time.Time) []int {
	var hits []int
	if !t.IsOpen() || price <= 0 {
		return hits
	}
	for i, tp := range t.TP {
		if tp.Price == 0 || tp.Hit {
			continue
		}
		if t.Direction.Favorable(tp.Price, price) < -1e-9 {
			continue
		}
		if ok, _ := t.MarkTPHit(i, now); ok {
			hits = append(hits, i+1)
		}
	}
	return hits
}

// ProcessTPHits persists newly hit take-profit levels and returns one event
// per level.
func (p *Processor) ProcessTPHits(ctx context.Context, t *model.Trade, price float64, now time.Time) ([]int, []notify.Event, error) {
	hits := CheckTPHits(t, price, now)
	if len(hits) == 0 {
		return nil, nil, nil
	}
	if err := p.store.UpdateTrade(ctx, t); err != nil {
		return nil, nil, err
	}

	events := make([]notify.Event, 0, len(hits))
	for _, level := range hits {
		metrics.RecordTPHit(level)
		msg := fmt.Sprintf("%s %s TP%d hit at %s", t.Symbol, t.Direction, level, formatPrice(t.Symbol, t.TP[level-1].Price))
		events = append(events, notify.Event{
			Type:         notify.EventTPHit,
			Severity:     notify.SeverityInfo,
			ConnectionID: t.ConnectionID,
			Message:      msg,
			Trade:        snapshot(t),
			Meta:         map[string]any{"level": level},
			At:           now,
		})
	}
	return hits, events, nil
}

// CheckStopHit reports whether price has reached the protective stop. The
// actuator closes the trade; this only drives the notification.
func CheckStopHit(t *model.Trade, price float64) bool {
	if !t.IsOpen() || t.StopLoss == 0 || price <= 0 {
		return false
	}
	return t.Direction.Favorable(t.StopLoss, price) <= 0
}
