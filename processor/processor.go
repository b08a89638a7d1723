// Package processor turns signals into open instructions and turns price
// observations into breakeven, trailing and take-profit updates for a trade.
//
// Each call is one unit of work: it reads what it needs, writes at most one
// instruction plus its audit row, updates the trade conditionally on the
// version it read, and returns the events to notify. Delivery of those
// events is left to the caller.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/trailguard/market"
	"github.com/rustyeddy/trailguard/metrics"
	"github.com/rustyeddy/trailguard/model"
	"github.com/rustyeddy/trailguard/notify"
	"github.com/rustyeddy/trailguard/pkg/id"
	"github.com/rustyeddy/trailguard/risk"
	"github.com/rustyeddy/trailguard/store"
	"go.uber.org/zap"
)

type Processor struct {
	store  store.Store
	logger *zap.Logger
}

func New(s store.Store, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{store: s, logger: logger}
}

// ConnectionResult is the outcome of routing a signal to one connection.
type ConnectionResult struct {
	ConnectionID string
	Allowed      bool
	// Code is the risk violation code when the connection was skipped.
	Code        string
	Reason      string
	Lot         float64
	Instruction *model.Instruction
	Err         error
}

// SignalReport collects the per-connection results of one signal.
type SignalReport struct {
	Signal  model.Signal
	Results []ConnectionResult
	Events  []notify.Event
}

// Queued is the number of open instructions written.
func (r *SignalReport) Queued() int {
	n := 0
	for _, res := range r.Results {
		if res.Instruction != nil {
			n++
		}
	}
	return n
}

// Failed lists results that ended in an error rather than a risk decision.
func (r *SignalReport) Failed() []ConnectionResult {
	var out []ConnectionResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// startOfDay is the UTC day boundary used for the daily loss limit.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ProcessSignal routes sig to every eligible connection. Only a malformed
// signal or a failure to list connections is returned as an error;
// everything else is recorded per connection in the report.
func (p *Processor) ProcessSignal(ctx context.Context, sig model.Signal, now time.Time) (*SignalReport, error) {
	if err := sig.Validate(); err != nil {
		metrics.RecordSignal("malformed")
		return nil, err
	}
	metrics.RecordSignal("accepted")

	if sig.ID == "" {
		sig.ID = id.NewAt(now)
	}
	if sig.ReceivedAt.IsZero() {
		sig.ReceivedAt = now
	}
	if !market.HasPipValue(sig.Symbol) {
		p.logger.Warn("no pip value for symbol, using default",
			zap.String("symbol", sig.Symbol),
			zap.Float64("pip_value", market.DefaultPipValue))
	}

	conns, err := p.store.ListConnections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}

	report := &SignalReport{Signal: sig}
	for _, conn := range conns {
		if !conn.Eligible() {
			continue
		}
		res := p.routeSignal(ctx, conn, sig, now)
		if res.Err != nil {
			p.logger.Error("signal routing failed",
				zap.String("signal", sig.ID),
				zap.String("connection", conn.ID),
				zap.Error(res.Err))
		}
		report.Results = append(report.Results, res)
		if res.Instruction != nil {
			report.Events = append(report.Events, notify.Event{
				Type:         notify.EventNewSignal,
				Severity:     notify.SeverityInfo,
				ConnectionID: conn.ID,
				Message: fmt.Sprintf("New %s %s signal: %.2f lots at %s, SL %s",
					sig.Symbol, sig.Direction, res.Lot,
					formatPrice(sig.Symbol, sig.Entry), formatPrice(sig.Symbol, sig.StopLoss)),
				Connection: conn,
				Meta:       map[string]any{"signal_id": sig.ID, "instruction_id": res.Instruction.ID},
				At:         now,
			})
		}
	}

	p.logger.Info("signal processed",
		zap.String("signal", sig.ID),
		zap.String("symbol", sig.Symbol),
		zap.Int("connections", len(report.Results)),
		zap.Int("queued", report.Queued()))
	return report, nil
}

func (p *Processor) routeSignal(ctx context.Context, conn *model.Connection, sig model.Signal, now time.Time) ConnectionResult {
	res := ConnectionResult{ConnectionID: conn.ID}

	loss, err := p.store.RealizedLossSince(ctx, conn.ID, startOfDay(now))
	if err != nil {
		res.Err = err
		return res
	}
	lossPct := 0.0
	if conn.Equity > 0 {
		lossPct = loss / conn.Equity * 100
	}
	open, err := p.store.CountOpenTrades(ctx, conn.ID)
	if err != nil {
		res.Err = err
		return res
	}

	dec := risk.Validate(sig.Direction, conn.Risk, open, lossPct)
	if !dec.Allowed {
		metrics.RecordRiskDecision(dec.Violation.Code)
		res.Code = dec.Violation.Code
		res.Reason = dec.Reason()
		p.logger.Info("signal skipped for connection",
			zap.String("connection", conn.ID),
			zap.String("code", res.Code),
			zap.String("reason", res.Reason))
		return res
	}
	metrics.RecordRiskDecision("")
	res.Allowed = true

	levels, err := risk.TakeProfitLevels(sig.Entry, sig.StopLoss, sig.Direction)
	if err != nil {
		res.Err = err
		return res
	}
	stopPips := market.Pips(sig.Symbol, sig.Entry, sig.StopLoss)
	res.Lot = risk.LotSize(conn.Equity, conn.Risk.RiskPercent, stopPips, sig.Symbol, conn.Risk.MaxLot)

	spec := model.OpenSpec{
		Symbol:    market.NormalizeSymbol(sig.Symbol),
		Direction: sig.Direction,
		Lot:       res.Lot,
		Entry:     sig.Entry,
		StopLoss:  sig.StopLoss,
		SignalID:  sig.ID,
	}
	for i := range spec.TP {
		if !conn.TPEnabled[i] {
			continue
		}
		tp := sig.TP[i]
		if tp == 0 {
			tp = market.RoundPrice(sig.Symbol, levels[i])
		}
		spec.TP[i] = tp
	}

	in := model.NewOpenInstruction(conn.ID, spec, now)
	if err := p.store.CreateInstruction(ctx, &in); err != nil {
		res.Err = err
		return res
	}
	metrics.RecordInstruction(string(in.Action))
	res.Instruction = &in
	return res
}

func formatPrice(symbol string, v float64) string {
	return fmt.Sprintf("%.*f", int(market.Digits(symbol)), v)
}

// cancelQuietly marks an instruction cancelled after a failed trade write.
func (p *Processor) cancelQuietly(ctx context.Context, in *model.Instruction, reason string, now time.Time) {
	if err := in.Resolve(model.InstructionCancelled, reason, now); err != nil {
		return
	}
	if err := p.store.UpdateInstruction(ctx, in); err != nil {
		p.logger.Warn("cancel instruction", zap.String("instruction", in.ID), zap.Error(err))
	}
}

// IsConflict reports whether err came from a concurrent trade write.
func IsConflict(err error) bool {
	return errors.Is(err, store.ErrVersionConflict)
}
