package market

// Swing is a pivot in a candle series.
type Swing struct {
	Index int
	Price float64
	// SizePips is the extent of the move away from the pivot that confirmed it.
	SizePips float64
}

func lowOf(c Candle, ignoreWicks bool) float64 {
	if ignoreWicks {
		return c.Close
	}
	return c.Low
}

func highOf(c Candle, ignoreWicks bool) float64 {
	if ignoreWicks {
		return c.Close
	}
	return c.High
}

// SwingLows returns the pivot lows in candles, oldest first. A pivot low is
// lower than the candle before it and not higher than the candle after it.
// With ignoreWicks the closes are used instead of the lows and highs.
func SwingLows(symbol string, candles []Candle, ignoreWicks bool) []Swing {
	var out []Swing
	for i := 1; i < len(candles)-1; i++ {
		v := lowOf(candles[i], ignoreWicks)
		if v >= lowOf(candles[i-1], ignoreWicks) || v > lowOf(candles[i+1], ignoreWicks) {
			continue
		}
		peak := v
		for _, c := range candles[i+1:] {
			if h := highOf(c, ignoreWicks); h > peak {
				peak = h
			}
		}
		out = append(out, Swing{Index: i, Price: v, SizePips: Pips(symbol, peak, v)})
	}
	return out
}

// SwingHighs is the mirror of SwingLows.
func SwingHighs(symbol string, candles []Candle, ignoreWicks bool) []Swing {
	var out []Swing
	for i := 1; i < len(candles)-1; i++ {
		v := highOf(candles[i], ignoreWicks)
		if v <= highOf(candles[i-1], ignoreWicks) || v < highOf(candles[i+1], ignoreWicks) {
			continue
		}
		trough := v
		for _, c := range candles[i+1:] {
			if l := lowOf(c, ignoreWicks); l < trough {
				trough = l
			}
		}
		out = append(out, Swing{Index: i, Price: v, SizePips: Pips(symbol, v, trough)})
	}
	return out
}
