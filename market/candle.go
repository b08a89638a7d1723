package market

import "time"

// Candle represents OHLC (Open, High, Low, Close) candlestick data
type Candle struct {
	Time     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Complete bool
}

// LastClosed returns the most recent completed candle.
func LastClosed(candles []Candle) (Candle, bool) {
	for i := len(candles) - 1; i >= 0; i-- {
		if candles[i].Complete {
			return candles[i], true
		}
	}
	return Candle{}, false
}
