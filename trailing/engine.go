// Package trailing proposes and validates stop-loss moves for open trades.
//
// Each evaluation is a fresh pipeline:
//
//	no_trail -> trailing_candidate_computed -> validated_move -> applied
//
// The engine stops at validated_move; the caller persists the move and marks
// it applied. Nothing is carried between evaluations except the Position
// fields the caller supplies.
package trailing

import (
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/trailguard/market"
)

// Stage is how far an evaluation got through the pipeline.
type Stage string

const (
	StageNoTrail   Stage = "no_trail"
	StageCandidate Stage = "trailing_candidate_computed"
	StageValidated Stage = "validated_move"
	StageApplied   Stage = "applied"
)

// Position is the view of an open trade the engine needs.
type Position struct {
	Symbol     string
	Direction  market.Direction
	Entry      float64
	StopLoss   float64
	OriginalSL float64
	// PeakPrice is the most favorable price seen since entry.
	PeakPrice   float64
	TP1Hit      bool
	LastTrailAt time.Time
}

func (p Position) riskDistance() float64 {
	basis := p.OriginalSL
	if basis == 0 {
		basis = p.StopLoss
	}
	return math.Abs(p.Entry - basis)
}

// Market is the fresh data for one evaluation.
type Market struct {
	Price float64
	// ATR is the current ATR; AvgATR is the baseline used by the spike filter.
	ATR     float64
	AvgATR  float64
	Candles []market.Candle
}

// Proposal is the outcome of one evaluation. When Accepted is false, Reason
// names the first blocking condition; otherwise it names the winning strategy.
type Proposal struct {
	Stage    Stage
	Accepted bool
	StopLoss float64
	Mode     Mode
	Reason   string
}

func blocked(stage Stage, format string, args ...any) Proposal {
	return Proposal{Stage: stage, Reason: fmt.Sprintf(format, args...)}
}

type Engine struct {
	cfg Config
}

func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Evaluate runs the strategies selected by the config and the guard rails,
// returning an accepted stop or the reason there is none.
func (e *Engine) Evaluate(pos Position, m Market, now time.Time) Proposal {
	if !e.cfg.Enabled {
		return blocked(StageNoTrail, "Trailing disabled")
	}
	if !pos.Direction.Valid() {
		return blocked(StageNoTrail, "Unknown direction %q", pos.Direction)
	}

	price := m.Price
	if e.cfg.OnlyOnCandleClose {
		c, ok := market.LastClosed(m.Candles)
		if !ok {
			return blocked(StageNoTrail, "Waiting for a closed candle")
		}
		price = c.Close
	}
	if price <= 0 {
		return blocked(StageNoTrail, "No price")
	}

	riskDist := pos.riskDistance()
	if riskDist == 0 {
		return blocked(StageNoTrail, "Zero initial risk")
	}
	currentR := pos.Direction.Favorable(pos.Entry, price) / riskDist
	if e.cfg.BreakevenTriggerR > 0 && currentR < e.cfg.BreakevenTriggerR {
		return blocked(StageNoTrail, "Profit %.2fR below activation %.2fR", currentR, e.cfg.BreakevenTriggerR)
	}

	if reason, ok := e.pullbackBlocked(pos, price); ok {
		return blocked(StageNoTrail, "%s", reason)
	}
	if reason, ok := e.volatilityBlocked(m); ok {
		return blocked(StageNoTrail, "%s", reason)
	}

	cs, reason := e.candidates(pos, m, price)
	if len(cs) == 0 {
		return blocked(StageNoTrail, "%s", reason)
	}
	// Candidates come from price, but the stop must also sit behind the live
	// quote, which can be worse than the closed-candle close.
	limit := price
	if m.Price > 0 && pos.Direction.Tighter(m.Price, limit) {
		limit = m.Price
	}
	var protective []candidate
	for _, c := range cs {
		c.stop = market.RoundPrice(pos.Symbol, c.stop)
		if pos.Direction.Tighter(c.stop, limit) {
			protective = append(protective, c)
		}
	}
	if len(protective) == 0 {
		nearest := tightest(pos.Direction, cs)
		stop := market.RoundPrice(pos.Symbol, nearest.stop)
		p := blocked(StageCandidate, "Candidate %.5f is beyond price %.5f", stop, limit)
		p.StopLoss, p.Mode = stop, nearest.mode
		return p
	}

	best := tightest(pos.Direction, protective)
	stop := best.stop

	label := string(best.mode)
	if e.cfg.Mode == ModeHybrid {
		label = "hybrid/" + label
	}

	if ok, why := ValidateSLMove(pos, stop, e.cfg, now); !ok {
		p := blocked(StageCandidate, "%s", why)
		p.StopLoss, p.Mode = stop, best.mode
		return p
	}

	return Proposal{
		Stage:    StageValidated,
		Accepted: true,
		StopLoss: stop,
		Mode:     best.mode,
		Reason:   fmt.Sprintf("%s: %s", label, best.reason),
	}
}

// pullbackBlocked suppresses trailing while price has given back more than
// MaxPullbackPercent of the best unrealized profit.
func (e *Engine) pullbackBlocked(pos Position, price float64) (string, bool) {
	if e.cfg.MaxPullbackPercent <= 0 || pos.PeakPrice <= 0 {
		return "", false
	}
	best := pos.Direction.Favorable(pos.Entry, pos.PeakPrice)
	cur := pos.Direction.Favorable(pos.Entry, price)
	if best <= 0 || cur >= best {
		return "", false
	}
	pullback := (best - cur) / best * 100
	if pullback > e.cfg.MaxPullbackPercent {
		return fmt.Sprintf("Pullback %.1f%% exceeds max %.1f%%", pullback, e.cfg.MaxPullbackPercent), true
	}
	return "", false
}

// volatilityBlocked suppresses trailing while ATR is spiking above its average.
func (e *Engine) volatilityBlocked(m Market) (string, bool) {
	if e.cfg.VolatilitySpikeRatio <= 0 || m.AvgATR <= 0 || m.ATR <= 0 {
		return "", false
	}
	ratio := m.ATR / m.AvgATR
	if ratio > e.cfg.VolatilitySpikeRatio {
		return fmt.Sprintf("Volatility spike: ATR %.2fx average exceeds %.2fx", ratio, e.cfg.VolatilitySpikeRatio), true
	}
	return "", false
}

// ValidateSLMove decides whether moving the stop to candidate is legal. A
// stop may only tighten; the move must clear MinTrailPips; ModifyDelaySeconds
// must have passed since the last accepted move; and the new stop must sit
// outside the noise floor around entry.
func ValidateSLMove(pos Position, candidate float64, cfg Config, now time.Time) (bool, string) {
	const tol = 1e-9

	if pos.StopLoss != 0 && !pos.Direction.Tighter(pos.StopLoss, candidate) {
		return false, fmt.Sprintf("SL would not tighten (%s)", pos.Direction)
	}

	if pos.StopLoss != 0 && cfg.MinTrailPips > 0 {
		move := market.Pips(pos.Symbol, candidate, pos.StopLoss)
		if move+tol < cfg.MinTrailPips {
			return false, fmt.Sprintf("Move of %.1f pips below minimum %.1f", move, cfg.MinTrailPips)
		}
	}

	if cfg.ModifyDelaySeconds > 0 && !pos.LastTrailAt.IsZero() {
		delay := time.Duration(cfg.ModifyDelaySeconds) * time.Second
		if elapsed := now.Sub(pos.LastTrailAt); elapsed < delay {
			return false, fmt.Sprintf("Modification delay not elapsed (%s remaining)", (delay - elapsed).Round(time.Second))
		}
	}

	if cfg.NoiseFloorPips > 0 {
		if d := market.Pips(pos.Symbol, candidate, pos.Entry); d+tol < cfg.NoiseFloorPips {
			return false, fmt.Sprintf("Within %.1f pip noise floor of entry", cfg.NoiseFloorPips)
		}
	}

	return true, ""
}
