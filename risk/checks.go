package risk

import (
	"fmt"
	"strconv"

	"github.com/rustyeddy/trailguard/market"
)

const (
	CodeDirectionDisabled = "DIRECTION_DISABLED"
	CodeMaxOpenTrades     = "MAX_OPEN_TRADES"
	CodeDailyLossLimit    = "DAILY_LOSS_LIMIT"
)

type Violation struct {
	Code string
	Msg  string
}

type Decision struct {
	Allowed   bool
	Violation *Violation
}

// Reason is the violation message, or "" when allowed.
func (d Decision) Reason() string {
	if d.Violation == nil {
		return ""
	}
	return d.Violation.Msg
}

func deny(code, msg string) Decision {
	return Decision{Allowed: false, Violation: &Violation{Code: code, Msg: msg}}
}

// Validate checks a candidate trade against the policy. Rules run in order
// direction, max open trades, daily loss; the first failure is returned and
// later rules are not evaluated.
func Validate(dir market.Direction, p Policy, openTrades int, dailyLossPercent float64) Decision {
	switch {
	case !dir.Valid():
		return deny(CodeDirectionDisabled, fmt.Sprintf("Unknown direction %q", dir))
	case dir == market.Buy && !p.AllowBuy:
		return deny(CodeDirectionDisabled, "Buy trades are disabled")
	case dir == market.Sell && !p.AllowSell:
		return deny(CodeDirectionDisabled, "Sell trades are disabled")
	}

	if p.MaxOpenTrades > 0 && openTrades >= p.MaxOpenTrades {
		return deny(CodeMaxOpenTrades,
			fmt.Sprintf("Max open trades (%d) reached", p.MaxOpenTrades))
	}

	if p.StopAfterMaxLoss && p.DailyLossLimit > 0 && dailyLossPercent >= p.DailyLossLimit {
		return deny(CodeDailyLossLimit,
			fmt.Sprintf("Daily loss limit of %s%% reached", strconv.FormatFloat(p.DailyLossLimit, 'f', -1, 64)))
	}

	return Decision{Allowed: true}
}
