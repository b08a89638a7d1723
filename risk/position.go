package risk

import (
	"errors"
	"math"

	"github.com/rustyeddy/trailguard/market"
	"github.com/shopspring/decimal"
)

// MinLot is the smallest tradable size (one micro lot).
const MinLot = 0.01

// ErrZeroRisk is returned when entry and stop coincide, leaving no R to measure.
var ErrZeroRisk = errors.New("entry and stop are equal")

// RMultiples are the take-profit targets, in units of initial risk.
var RMultiples = [4]float64{1, 2, 3, 5}

// LotSize converts an equity risk budget into a lot size.
//
//	riskAmount = equity * riskPercent / 100
//	lot        = riskAmount / (stopPips * pipValue)
//
// The result is rounded to two decimals and clamped to [MinLot, maxLot].
// A zero stop distance degrades to MinLot instead of dividing by zero.
func LotSize(equity, riskPercent, stopPips float64, symbol string, maxLot float64) float64 {
	if maxLot < MinLot {
		maxLot = MinLot
	}
	if stopPips <= 0 || equity <= 0 || riskPercent <= 0 {
		return MinLot
	}

	riskAmount := equity * riskPercent / 100
	lot := riskAmount / (stopPips * market.PipValue(symbol))
	if math.IsNaN(lot) || math.IsInf(lot, 0) {
		return MinLot
	}

	rounded, _ := decimal.NewFromFloat(lot).Round(2).Float64()
	return math.Min(math.Max(rounded, MinLot), maxLot)
}

// TakeProfitLevels projects the RMultiples from entry in the trade's direction.
func TakeProfitLevels(entry, stop float64, dir market.Direction) ([4]float64, error) {
	var levels [4]float64
	dist := math.Abs(entry - stop)
	if dist == 0 {
		return levels, ErrZeroRisk
	}
	for i, r := range RMultiples {
		levels[i] = entry + dir.Sign()*r*dist
	}
	return levels, nil
}
