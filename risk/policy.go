package risk

// Policy is the per-connection risk configuration.
type Policy struct {
	RiskPercent float64 `json:"risk_percent" yaml:"risk_percent"` // 1 = 1% of equity per trade
	MaxLot      float64 `json:"max_lot" yaml:"max_lot"`

	// Exposure limits; 0 disables the check
	MaxOpenTrades int `json:"max_open_trades" yaml:"max_open_trades"`

	// Circuit breaker, percent of equity lost today
	DailyLossLimit   float64 `json:"daily_loss_limit" yaml:"daily_loss_limit"`
	StopAfterMaxLoss bool    `json:"stop_after_max_loss" yaml:"stop_after_max_loss"`

	AllowBuy  bool `json:"allow_buy" yaml:"allow_buy"`
	AllowSell bool `json:"allow_sell" yaml:"allow_sell"`
}

// DefaultPolicy is what new connections start with.
func DefaultPolicy() Policy {
	return Policy{
		RiskPercent:      1,
		MaxLot:           1,
		MaxOpenTrades:    5,
		DailyLossLimit:   5,
		StopAfterMaxLoss: true,
		AllowBuy:         true,
		AllowSell:        true,
	}
}
