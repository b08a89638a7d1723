package market

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flatCandles builds n gap-free candles with a constant high-low range.
func flatCandles(n int, mid, rng float64) []Candle {
	out := make([]Candle, n)
	for i := range out {
		out[i] = Candle{Open: mid, High: mid + rng/2, Low: mid - rng/2, Close: mid, Complete: true}
	}
	return out
}

func TestATRFunc_ConstantRange(t *testing.T) {
	t.Parallel()

	atr, err := ATRFunc(flatCandles(20, 1.1, 0.0010), 14)
	require.NoError(t, err)
	assert.InDelta(t, 0.0010, atr, 1e-12)
}

func TestATRFunc_UsesPreviousCloseGap(t *testing.T) {
	t.Parallel()

	candles := []Candle{
		{High: 1.1005, Low: 1.0995, Close: 1.1000},
		{High: 1.1025, Low: 1.1015, Close: 1.1020}, // gap up: TR = 1.1025-1.1000
		{High: 1.1025, Low: 1.1015, Close: 1.1020}, // TR = 0.0010
	}
	atr, err := ATRFunc(candles, 2)
	require.NoError(t, err)
	assert.InDelta(t, (0.0025+0.0010)/2, atr, 1e-12)
}

func TestATRFunc_Errors(t *testing.T) {
	t.Parallel()

	_, err := ATRFunc(flatCandles(5, 1.1, 0.001), 0)
	assert.Error(t, err)

	_, err = ATRFunc(flatCandles(5, 1.1, 0.001), 5)
	assert.True(t, errors.Is(err, ErrNotEnoughCandles))
}

func TestATR_Streaming(t *testing.T) {
	t.Parallel()

	ind := NewATR(3)
	assert.Equal(t, "ATR(3)", ind.Name())
	assert.Equal(t, 4, ind.Warmup())

	for i, c := range flatCandles(4, 1.2, 0.002) {
		ind.Update(c)
		if i < 3 {
			assert.False(t, ind.Ready())
			assert.Zero(t, ind.Value())
		}
	}
	assert.True(t, ind.Ready())
	assert.InDelta(t, 0.002, ind.Value(), 1e-12)

	ind.Reset()
	assert.False(t, ind.Ready())
}

func TestAverageATR_SpikeAboveBaseline(t *testing.T) {
	t.Parallel()

	candles := flatCandles(30, 1.1, 0.0010)
	candles = append(candles, Candle{High: 1.1050, Low: 1.0950, Close: 1.1000})

	last, err := ATRFunc(candles, 5)
	require.NoError(t, err)
	avg, err := AverageATR(candles, 5)
	require.NoError(t, err)

	assert.Greater(t, last, avg)
}

func TestLastClosed(t *testing.T) {
	t.Parallel()

	candles := []Candle{{Close: 1, Complete: true}, {Close: 2, Complete: true}, {Close: 3}}
	c, ok := LastClosed(candles)
	require.True(t, ok)
	assert.Equal(t, 2.0, c.Close)

	_, ok = LastClosed([]Candle{{Close: 3}})
	assert.False(t, ok)
}
