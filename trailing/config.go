package trailing

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects the strategy that proposes new stops.
type Mode string

const (
	ModeATR       Mode = "atr"
	ModeStructure Mode = "structure"
	ModeRMultiple Mode = "r_multiple"
	ModeHybrid    Mode = "hybrid"
)

// ParseMode accepts the canonical names case-insensitively.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case ModeATR, ModeStructure, ModeRMultiple, ModeHybrid:
		return m, nil
	}
	return "", fmt.Errorf("unknown trailing mode %q", s)
}

// Config captures all tunable parameters that govern how a connection's
// trailing stop behaves.
type Config struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Mode    Mode `json:"mode" yaml:"mode"`

	// ATR mode
	ATRPeriod     int     `json:"atr_period" yaml:"atr_period"`
	ATRMultiplier float64 `json:"atr_multiplier" yaml:"atr_multiplier"`

	// Structure mode. SwingLookback is the number of recent candles scanned.
	MinSwingPips  float64 `json:"min_swing_pips" yaml:"min_swing_pips"`
	IgnoreWicks   bool    `json:"ignore_wicks" yaml:"ignore_wicks"`
	SwingLookback int     `json:"swing_lookback" yaml:"swing_lookback"`

	// Trailing does not start until profit reaches BreakevenTriggerR. Both
	// breakeven fields also stand in for a connection breakeven policy that
	// leaves them at zero.
	BreakevenTriggerR    float64 `json:"breakeven_trigger_r" yaml:"breakeven_trigger_r"`
	BreakevenPaddingPips float64 `json:"breakeven_padding_pips" yaml:"breakeven_padding_pips"`

	// R-multiple mode step size, in R.
	RStep float64 `json:"r_step" yaml:"r_step"`

	// Guard rails
	MinTrailPips         float64 `json:"min_trail_pips" yaml:"min_trail_pips"`
	MaxPullbackPercent   float64 `json:"max_pullback_percent" yaml:"max_pullback_percent"`
	VolatilitySpikeRatio float64 `json:"volatility_spike_ratio" yaml:"volatility_spike_ratio"`
	OnlyOnCandleClose    bool    `json:"only_on_candle_close" yaml:"only_on_candle_close"`
	ModifyDelaySeconds   int     `json:"modify_delay_seconds" yaml:"modify_delay_seconds"`
	NoiseFloorPips       float64 `json:"noise_floor_pips" yaml:"noise_floor_pips"`

	// After TP1 the ATR multiplier is scaled by TPHitMultiplier.
	TPHitTighterTrailing bool    `json:"tp_hit_tighter_trailing" yaml:"tp_hit_tighter_trailing"`
	TPHitMultiplier      float64 `json:"tp_hit_multiplier" yaml:"tp_hit_multiplier"`
}

var defaultConfig = Config{
	Enabled:              false,
	Mode:                 ModeATR,
	ATRPeriod:            14,
	ATRMultiplier:        1.5,
	MinSwingPips:         10,
	SwingLookback:        20,
	BreakevenTriggerR:    1,
	BreakevenPaddingPips: 2,
	RStep:                1,
	MinTrailPips:         5,
	MaxPullbackPercent:   50,
	VolatilitySpikeRatio: 2,
	ModifyDelaySeconds:   60,
	NoiseFloorPips:       3,
	TPHitTighterTrailing: true,
	TPHitMultiplier:      0.5,
}

// DefaultConfig returns a copy of the built-in configuration.
func DefaultConfig() Config {
	return defaultConfig
}

var errNegative = errors.New("must not be negative")

// Validate checks the mode enumeration and that numeric fields are non-negative.
func (c Config) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	ints := map[string]int{
		"atr_period":           c.ATRPeriod,
		"swing_lookback":       c.SwingLookback,
		"modify_delay_seconds": c.ModifyDelaySeconds,
	}
	for name, v := range ints {
		if v < 0 {
			return fmt.Errorf("trailing.%s %w", name, errNegative)
		}
	}
	floats := map[string]float64{
		"atr_multiplier":         c.ATRMultiplier,
		"min_swing_pips":         c.MinSwingPips,
		"breakeven_trigger_r":    c.BreakevenTriggerR,
		"breakeven_padding_pips": c.BreakevenPaddingPips,
		"r_step":                 c.RStep,
		"min_trail_pips":         c.MinTrailPips,
		"max_pullback_percent":   c.MaxPullbackPercent,
		"volatility_spike_ratio": c.VolatilitySpikeRatio,
		"noise_floor_pips":       c.NoiseFloorPips,
		"tp_hit_multiplier":      c.TPHitMultiplier,
	}
	for name, v := range floats {
		if v < 0 {
			return fmt.Errorf("trailing.%s %w", name, errNegative)
		}
	}
	return nil
}

// atrPeriod falls back to the default when unset.
func (c Config) atrPeriod() int {
	if c.ATRPeriod > 0 {
		return c.ATRPeriod
	}
	return defaultConfig.ATRPeriod
}

// CandlesNeeded is how many candles the monitor must fetch to evaluate c.
func (c Config) CandlesNeeded() int {
	n := c.atrPeriod() * 3
	if c.SwingLookback > n {
		n = c.SwingLookback
	}
	return n + 1
}

// ATRPeriodOrDefault exposes the effective ATR period to callers computing ATR.
func (c Config) ATRPeriodOrDefault() int {
	return c.atrPeriod()
}
