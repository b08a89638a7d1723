package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/trailguard/metrics"
	"github.com/rustyeddy/trailguard/model"
	"github.com/rustyeddy/trailguard/notify"
	"github.com/rustyeddy/trailguard/pkg/id"
	"github.com/rustyeddy/trailguard/store"
	"go.uber.org/zap"
)

// Fill is the actuator's report for an executed open instruction.
type Fill struct {
	Ticket string    `json:"ticket"`
	Price  float64   `json:"price"`
	Lot    float64   `json:"lot"`
	At     time.Time `json:"at"`
}

var ErrMissingTicket = errors.New("executed open instruction requires a ticket")

// ReportExecuted resolves an instruction as executed. For an open it also
// creates the trade the monitor will track and returns it. The trade is
// written before the instruction is resolved, so a failed write leaves the
// instruction pending and the actuator's retry creates it.
func (p *Processor) ReportExecuted(ctx context.Context, instructionID string, fill Fill, now time.Time) (*model.Trade, error) {
	in, err := p.store.GetInstruction(ctx, instructionID)
	if err != nil {
		return nil, err
	}
	if in.Action == model.ActionOpen && fill.Ticket == "" {
		return nil, ErrMissingTicket
	}
	if err := in.Resolve(model.InstructionExecuted, "", now); err != nil {
		return nil, err
	}

	var t *model.Trade
	if in.Action == model.ActionOpen && in.Spec != nil {
		if t, err = p.openTrade(ctx, in, fill, now); err != nil {
			return nil, err
		}
	}

	if err := p.store.UpdateInstruction(ctx, in); err != nil {
		return nil, err
	}
	metrics.RecordResolved(string(in.Action), string(in.Status))
	return t, nil
}

// openTrade creates the trade for an executed open. A trade already stored
// under the ticket, from an earlier attempt whose instruction write failed,
// is returned as is.
func (p *Processor) openTrade(ctx context.Context, in *model.Instruction, fill Fill, now time.Time) (*model.Trade, error) {
	existing, err := p.store.GetTradeByTicket(ctx, in.ConnectionID, fill.Ticket)
	switch {
	case err == nil:
		return existing, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	spec := in.Spec
	entry := spec.Entry
	if fill.Price > 0 {
		entry = fill.Price
	}
	lot := spec.Lot
	if fill.Lot > 0 {
		lot = fill.Lot
	}
	opened := fill.At
	if opened.IsZero() {
		opened = now
	}

	t := &model.Trade{
		ID:           id.NewAt(opened),
		ConnectionID: in.ConnectionID,
		Ticket:       fill.Ticket,
		Symbol:       spec.Symbol,
		Direction:    spec.Direction,
		EntryPrice:   entry,
		StopLoss:     spec.StopLoss,
		OriginalSL:   spec.StopLoss,
		LotSize:      lot,
		Status:       model.TradeOpen,
		OpenedAt:     opened,
	}
	for i, tp := range spec.TP {
		t.TP[i].Price = tp
	}
	if err := p.store.CreateTrade(ctx, t); err != nil {
		return nil, fmt.Errorf("create trade for ticket %s: %w", fill.Ticket, err)
	}

	p.logger.Info("trade opened",
		zap.String("trade", t.ID),
		zap.String("connection", t.ConnectionID),
		zap.String("ticket", t.Ticket),
		zap.String("symbol", t.Symbol),
		zap.Float64("entry", t.EntryPrice),
		zap.Float64("lot", t.LotSize))
	return t, nil
}

// ReportFailed resolves an instruction as failed. The trade's stored stop is
// left as is; the next accepted move supersedes it.
func (p *Processor) ReportFailed(ctx context.Context, instructionID, reason string, now time.Time) error {
	in, err := p.store.GetInstruction(ctx, instructionID)
	if err != nil {
		return err
	}
	if err := in.Resolve(model.InstructionFailed, reason, now); err != nil {
		return err
	}
	if err := p.store.UpdateInstruction(ctx, in); err != nil {
		return err
	}
	metrics.RecordResolved(string(in.Action), string(in.Status))

	p.logger.Warn("instruction failed",
		zap.String("instruction", in.ID),
		zap.String("action", string(in.Action)),
		zap.String("ticket", in.Ticket),
		zap.String("reason", reason))
	return nil
}

// ReportClosed closes the trade behind ticket and cancels its pending
// modifications.
func (p *Processor) ReportClosed(ctx context.Context, connectionID, ticket string, profit float64, closedAt, now time.Time) (*model.Trade, error) {
	t, err := p.store.GetTradeByTicket(ctx, connectionID, ticket)
	if err != nil {
		return nil, err
	}
	if closedAt.IsZero() {
		closedAt = now
	}
	stop := t.StopLoss
	if err := t.Close(profit, closedAt); err != nil {
		return nil, err
	}
	if err := p.store.UpdateTrade(ctx, t); err != nil {
		return nil, err
	}

	pending, err := p.store.ListPendingInstructions(ctx, connectionID)
	if err != nil {
		p.logger.Warn("list pending instructions", zap.String("connection", connectionID), zap.Error(err))
	}
	for _, in := range pending {
		if in.TradeID == t.ID {
			p.cancelQuietly(ctx, in, "trade closed", now)
		}
	}

	p.logger.Info("trade closed",
		zap.String("trade", t.ID),
		zap.String("ticket", ticket),
		zap.Float64("profit", profit),
		zap.Float64("stop_loss", stop))
	return t, nil
}

// Heartbeat marks a connection online and refreshes its equity when the
// actuator reports one. A connection coming back online emits a status event.
func (p *Processor) Heartbeat(ctx context.Context, connectionID string, equity float64, now time.Time) ([]notify.Event, error) {
	c, err := p.store.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	wasOnline := c.Online
	c.Online = true
	c.Quality = model.QualityExcellent
	c.LastHeartbeat = now
	c.UpdatedAt = now
	if equity > 0 {
		c.Equity = equity
	}
	if err := p.store.SaveConnection(ctx, c); err != nil {
		return nil, err
	}

	if wasOnline {
		return nil, nil
	}
	return []notify.Event{{
		Type:         notify.EventConnectionStatus,
		Severity:     notify.SeverityInfo,
		ConnectionID: c.ID,
		Message:      fmt.Sprintf("Connection %s is online", c.Name),
		Connection:   c,
		Meta:         map[string]any{"online": true},
		At:           now,
	}}, nil
}
