package trailing

import (
	"fmt"
	"math"
	"strings"

	"github.com/rustyeddy/trailguard/market"
)

// candidate is one strategy's proposed stop.
type candidate struct {
	stop   float64
	mode   Mode
	reason string
}

// EffectiveATRMultiplier is the ATR multiplier after the TP1 tightening rule.
func EffectiveATRMultiplier(cfg Config, tp1Hit bool) float64 {
	mult := cfg.ATRMultiplier
	if mult <= 0 {
		mult = defaultConfig.ATRMultiplier
	}
	if tp1Hit && cfg.TPHitTighterTrailing && cfg.TPHitMultiplier > 0 {
		mult *= cfg.TPHitMultiplier
	}
	return mult
}

// ATRCandidate places the stop ATR × multiplier behind price.
func ATRCandidate(pos Position, price, atr float64, cfg Config) (float64, bool, string) {
	if atr <= 0 {
		return 0, false, "ATR unavailable"
	}
	mult := EffectiveATRMultiplier(cfg, pos.TP1Hit)
	stop := price - pos.Direction.Sign()*atr*mult
	return stop, true, fmt.Sprintf("ATR %.5f x %.2f", atr, mult)
}

// StructureCandidate trails behind the most recent swing pivot (a swing low
// for buys, a swing high for sells) that improves on the pivot before it and
// whose swing clears MinSwingPips. The oldest pivot in the window is compared
// against the current stop.
func StructureCandidate(pos Position, candles []market.Candle, cfg Config) (float64, bool, string) {
	if cfg.SwingLookback > 0 && len(candles) > cfg.SwingLookback {
		candles = candles[len(candles)-cfg.SwingLookback:]
	}
	if len(candles) < 3 {
		return 0, false, "Not enough candles for structure"
	}

	var swings []market.Swing
	if pos.Direction == market.Sell {
		swings = market.SwingHighs(pos.Symbol, candles, cfg.IgnoreWicks)
	} else {
		swings = market.SwingLows(pos.Symbol, candles, cfg.IgnoreWicks)
	}

	for i := len(swings) - 1; i >= 0; i-- {
		s := swings[i]
		prev := pos.StopLoss
		if i > 0 {
			prev = swings[i-1].Price
		}
		if prev != 0 && !pos.Direction.Tighter(prev, s.Price) {
			continue
		}
		if s.SizePips < cfg.MinSwingPips {
			continue
		}
		return s.Price, true, fmt.Sprintf("swing %.5f (%.1f pips)", s.Price, s.SizePips)
	}
	return 0, false, "No qualifying swing"
}

// RMultipleCandidate locks profit in whole steps of RStep × initial risk.
func RMultipleCandidate(pos Position, price float64, cfg Config) (float64, bool, string) {
	riskDist := pos.riskDistance()
	if riskDist == 0 {
		return 0, false, "Zero initial risk"
	}
	step := cfg.RStep
	if step <= 0 {
		step = defaultConfig.RStep
	}

	profitR := pos.Direction.Favorable(pos.Entry, price) / riskDist
	steps := math.Floor(profitR/step + 1e-9)
	if steps <= 0 {
		return 0, false, fmt.Sprintf("Profit %.2fR below one %.2fR step", profitR, step)
	}
	stop := pos.Entry + pos.Direction.Sign()*steps*step*riskDist
	return stop, true, fmt.Sprintf("%.0f x %.2fR locked", steps, step)
}

// candidates runs the strategies selected by mode.
func (e *Engine) candidates(pos Position, m Market, price float64) ([]candidate, string) {
	var (
		out     []candidate
		reasons []string
	)
	run := func(mode Mode) {
		var (
			stop   float64
			ok     bool
			reason string
		)
		switch mode {
		case ModeATR:
			stop, ok, reason = ATRCandidate(pos, price, m.ATR, e.cfg)
		case ModeStructure:
			stop, ok, reason = StructureCandidate(pos, m.Candles, e.cfg)
		case ModeRMultiple:
			stop, ok, reason = RMultipleCandidate(pos, price, e.cfg)
		}
		if ok {
			out = append(out, candidate{stop: stop, mode: mode, reason: reason})
			return
		}
		reasons = append(reasons, fmt.Sprintf("%s: %s", mode, reason))
	}

	if e.cfg.Mode == ModeHybrid {
		run(ModeATR)
		run(ModeStructure)
		run(ModeRMultiple)
	} else {
		run(e.cfg.Mode)
	}

	if len(out) == 0 {
		if len(reasons) == 1 {
			return nil, reasons[0]
		}
		return nil, "no candidate (" + strings.Join(reasons, "; ") + ")"
	}
	return out, ""
}

// tightest picks the most protective candidate: highest stop for buys,
// lowest for sells.
func tightest(dir market.Direction, cs []candidate) candidate {
	best := cs[0]
	for _, c := range cs[1:] {
		if dir.Tighter(best.stop, c.stop) {
			best = c
		}
	}
	return best
}
