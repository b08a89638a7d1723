package market

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// IsJPYQuoted reports whether symbol is quoted in yen, which moves the pip
// from the fourth to the second decimal.
func IsJPYQuoted(symbol string) bool {
	s := NormalizeSymbol(symbol)
	if meta, ok := Instruments[s]; ok {
		return meta.QuoteCurrency == "JPY"
	}
	return strings.HasSuffix(s, "JPY")
}

// PipSize returns the price increment of one pip.
func PipSize(symbol string) float64 {
	if IsJPYQuoted(symbol) {
		return 0.01
	}
	return 0.0001
}

// pipScale is the number of pips in one unit of price.
func pipScale(symbol string) float64 {
	if IsJPYQuoted(symbol) {
		return 100
	}
	return 10_000
}

// Digits is the quoting precision (pipettes) used when rounding prices.
func Digits(symbol string) int32 {
	if IsJPYQuoted(symbol) {
		return 3
	}
	return 5
}

// PipValue returns the USD value of one pip on one standard lot. Symbols that
// are not tabulated fall back to DefaultPipValue.
func PipValue(symbol string) float64 {
	if meta, ok := Lookup(symbol); ok && meta.PipValue > 0 {
		return meta.PipValue
	}
	return DefaultPipValue
}

// HasPipValue reports whether PipValue for symbol comes from the table rather
// than the default.
func HasPipValue(symbol string) bool {
	meta, ok := Lookup(symbol)
	return ok && meta.PipValue > 0
}

// Pips returns the absolute distance between two prices in pips.
func Pips(symbol string, a, b float64) float64 {
	return math.Abs(a-b) * pipScale(symbol)
}

// PriceFromPips converts a pip distance into a price distance.
func PriceFromPips(symbol string, pips float64) float64 {
	return pips * PipSize(symbol)
}

// RoundPrice rounds p to the symbol's quoting precision.
func RoundPrice(symbol string, p float64) float64 {
	f, _ := decimal.NewFromFloat(p).Round(Digits(symbol)).Float64()
	return f
}
