// market/instruments.go
package market

import "strings"

// DefaultPipValue is the USD value of one pip on one standard lot used for
// symbols missing from Instruments. It is only exact for USD-quoted pairs.
const DefaultPipValue = 10.0

type InstrumentMeta struct {
	Name          string
	BaseCurrency  string
	QuoteCurrency string
	PipLocation   int
	// PipValue is the account-currency (USD) value of one pip on 1.00 lot.
	PipValue float64
}

var Instruments = map[string]InstrumentMeta{
	"EURUSD": {Name: "EURUSD", BaseCurrency: "EUR", QuoteCurrency: "USD", PipLocation: -4, PipValue: 10},
	"GBPUSD": {Name: "GBPUSD", BaseCurrency: "GBP", QuoteCurrency: "USD", PipLocation: -4, PipValue: 10},
	"AUDUSD": {Name: "AUDUSD", BaseCurrency: "AUD", QuoteCurrency: "USD", PipLocation: -4, PipValue: 10},
	"NZDUSD": {Name: "NZDUSD", BaseCurrency: "NZD", QuoteCurrency: "USD", PipLocation: -4, PipValue: 10},
	"USDJPY": {Name: "USDJPY", BaseCurrency: "USD", QuoteCurrency: "JPY", PipLocation: -2, PipValue: 6.7},
	"EURJPY": {Name: "EURJPY", BaseCurrency: "EUR", QuoteCurrency: "JPY", PipLocation: -2, PipValue: 6.7},
	"GBPJPY": {Name: "GBPJPY", BaseCurrency: "GBP", QuoteCurrency: "JPY", PipLocation: -2, PipValue: 6.7},
	"USDCHF": {Name: "USDCHF", BaseCurrency: "USD", QuoteCurrency: "CHF", PipLocation: -4, PipValue: 11.2},
	"USDCAD": {Name: "USDCAD", BaseCurrency: "USD", QuoteCurrency: "CAD", PipLocation: -4, PipValue: 7.3},
	"EURGBP": {Name: "EURGBP", BaseCurrency: "EUR", QuoteCurrency: "GBP", PipLocation: -4, PipValue: 12.7},
}

// NormalizeSymbol upper-cases a symbol and strips the separators brokers put
// between base and quote ("EUR/USD", "eur_usd", "EUR-USD" all become "EURUSD").
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	return strings.NewReplacer("/", "", "_", "", "-", "", ".", "").Replace(s)
}

// Lookup returns the metadata for symbol, if tabulated.
func Lookup(symbol string) (InstrumentMeta, bool) {
	meta, ok := Instruments[NormalizeSymbol(symbol)]
	return meta, ok
}

// OandaName converts a normalized six-letter FX symbol to OANDA's EUR_USD form.
func OandaName(symbol string) string {
	s := NormalizeSymbol(symbol)
	if len(s) != 6 {
		return s
	}
	return s[:3] + "_" + s[3:]
}
