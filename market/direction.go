package market

import (
	"fmt"
	"strings"
)

// Direction is the side of a trade.
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// ParseDirection accepts buy/sell and the long/short aliases used by some signal sources.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "long":
		return Buy, nil
	case "sell", "short":
		return Sell, nil
	}
	return "", fmt.Errorf("unknown direction %q", s)
}

func (d Direction) Valid() bool {
	return d == Buy || d == Sell
}

// Sign is +1 for buys and -1 for sells; multiplying a price delta by it gives
// the favorable move.
func (d Direction) Sign() float64 {
	if d == Sell {
		return -1
	}
	return 1
}

// Favorable returns how far price has moved from ref in the trade's favor.
// Negative values are adverse moves.
func (d Direction) Favorable(ref, price float64) float64 {
	return (price - ref) * d.Sign()
}

// Tighter reports whether stop b reduces risk relative to stop a.
func (d Direction) Tighter(a, b float64) bool {
	if d == Sell {
		return b < a
	}
	return b > a
}
