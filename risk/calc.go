package risk

import (
	"math"

	"github.com/rustyeddy/trailguard/market"
)

// priceEpsilon absorbs float noise when comparing price distances. It is far
// below a hundredth of a pip on any quoted instrument.
const priceEpsilon = 1e-9

// Breakeven returns entry shifted by paddingPips in the risk-reducing direction.
func Breakeven(entry float64, dir market.Direction, paddingPips float64, symbol string) float64 {
	return entry + dir.Sign()*market.PriceFromPips(symbol, paddingPips)
}

// ShouldArmBreakeven reports whether unrealized profit has reached triggerR
// times the entry-to-stop distance.
func ShouldArmBreakeven(price, entry, stop float64, dir market.Direction, triggerR float64) bool {
	riskDist := math.Abs(entry - stop)
	if riskDist == 0 {
		return false
	}
	return dir.Favorable(entry, price) >= riskDist*triggerR-priceEpsilon
}

// CurrentR is the open profit expressed in multiples of the initial risk.
func CurrentR(price, entry, originalStop float64, dir market.Direction) float64 {
	riskDist := math.Abs(entry - originalStop)
	if riskDist == 0 {
		return 0
	}
	return dir.Favorable(entry, price) / riskDist
}

// RiskAmount is the cash risked by a position of lot size between entry and stop.
func RiskAmount(lot, entry, stop float64, symbol string) float64 {
	return lot * market.Pips(symbol, entry, stop) * market.PipValue(symbol)
}

// RR returns the reward-to-risk ratio of a target.
func RR(entry, stop, takeProfit float64) float64 {
	r := math.Abs(entry - stop)
	if r == 0 {
		return 0
	}
	return math.Abs(takeProfit-entry) / r
}
