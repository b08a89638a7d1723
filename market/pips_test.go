package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSymbol(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"EURUSD", "EURUSD"},
		{"eur/usd", "EURUSD"},
		{"EUR_USD", "EURUSD"},
		{" usd-jpy ", "USDJPY"},
		{"XAU.USD", "XAUUSD"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NormalizeSymbol(tt.in))
		})
	}
}

func TestPipSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0001, PipSize("EURUSD"))
	assert.Equal(t, 0.01, PipSize("USD_JPY"))
	assert.Equal(t, 0.01, PipSize("CADJPY"), "untabulated yen cross still uses yen pips")
	assert.Equal(t, 0.0001, PipSize("XYZABC"))
}

func TestPipValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 10.0, PipValue("EURUSD"))
	assert.Equal(t, 10.0, PipValue("eur/usd"))
	assert.Equal(t, 6.7, PipValue("USDJPY"))
	assert.Equal(t, DefaultPipValue, PipValue("XAUUSD"))
	assert.True(t, HasPipValue("GBPUSD"))
	assert.False(t, HasPipValue("XAUUSD"))
}

func TestPips(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		symbol string
		a, b   float64
		want   float64
	}{
		{"eurusd 50 pips", "EURUSD", 1.1000, 1.0950, 50},
		{"reversed args", "EURUSD", 1.0950, 1.1000, 50},
		{"jpy 25 pips", "USDJPY", 150.25, 150.00, 25},
		{"zero", "GBPUSD", 1.25, 1.25, 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, Pips(tt.symbol, tt.a, tt.b), 1e-9)
		})
	}
}

func TestPipsSymmetric(t *testing.T) {
	t.Parallel()

	prices := []float64{0.5, 1.0950, 1.1000, 149.99, 150.5}
	for _, sym := range []string{"EURUSD", "USDJPY", "UNKNOWN"} {
		for _, a := range prices {
			for _, b := range prices {
				assert.Equal(t, Pips(sym, a, b), Pips(sym, b, a))
				assert.GreaterOrEqual(t, Pips(sym, a, b), 0.0)
			}
		}
	}
}

func TestPriceFromPipsRoundTrip(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.0050, PriceFromPips("EURUSD", 50), 1e-12)
	assert.InDelta(t, 0.25, PriceFromPips("USDJPY", 25), 1e-12)
	assert.InDelta(t, 30.0, Pips("EURUSD", 1.1, 1.1+PriceFromPips("EURUSD", 30)), 1e-9)
}

func TestRoundPrice(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.10575, RoundPrice("EURUSD", 1.1057500000001))
	assert.Equal(t, 150.123, RoundPrice("USDJPY", 150.12349))
}

func TestOandaName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "EUR_USD", OandaName("eurusd"))
	assert.Equal(t, "USD_JPY", OandaName("USD/JPY"))
	assert.Equal(t, "US30", OandaName("US30"))
}
