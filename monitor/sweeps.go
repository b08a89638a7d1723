package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/trailguard/feed"
	"github.com/rustyeddy/trailguard/market"
	"github.com/rustyeddy/trailguard/metrics"
	"github.com/rustyeddy/trailguard/model"
	"github.com/rustyeddy/trailguard/notify"
	"github.com/rustyeddy/trailguard/trailing"
	"go.uber.org/zap"
)

// Quality bands by heartbeat age. Anything at or past the offline
// threshold is offline.
const (
	excellentWithin = time.Minute
	goodWithin      = 2 * time.Minute
)

// QualityFor maps the age of the last heartbeat to a quality band.
func QualityFor(lastHeartbeat, now time.Time, offlineAfter time.Duration) model.Quality {
	if lastHeartbeat.IsZero() {
		return model.QualityOffline
	}
	age := now.Sub(lastHeartbeat)
	switch {
	case age >= offlineAfter:
		return model.QualityOffline
	case age < excellentWithin:
		return model.QualityExcellent
	case age < goodWithin:
		return model.QualityGood
	default:
		return model.QualityPoor
	}
}

// sweepHealth re-grades every connection and takes stale ones offline.
func (m *Monitor) sweepHealth(ctx context.Context, conns []*model.Connection, now time.Time, report *PassReport) {
	counts := map[string]int{
		string(model.QualityExcellent): 0,
		string(model.QualityGood):      0,
		string(model.QualityPoor):      0,
		string(model.QualityOffline):   0,
	}

	for _, c := range conns {
		q := QualityFor(c.LastHeartbeat, now, m.offlineAfter)
		online := q != model.QualityOffline
		counts[string(q)]++
		if q == c.Quality && online == c.Online {
			continue
		}

		wentOffline := c.Online && !online
		c.Quality = q
		c.Online = online
		c.UpdatedAt = now
		if err := m.store.SaveConnection(ctx, c); err != nil {
			report.Items = append(report.Items, ItemResult{ConnectionID: c.ID, Sweep: SweepHealth, Err: err})
			continue
		}
		report.Items = append(report.Items, ItemResult{ConnectionID: c.ID, Sweep: SweepHealth})

		if wentOffline {
			m.logger.Warn("connection offline",
				zap.String("connection", c.ID),
				zap.Time("last_heartbeat", c.LastHeartbeat))
			report.Events = append(report.Events, notify.Event{
				Type:         notify.EventConnectionStatus,
				Severity:     notify.SeverityWarn,
				ConnectionID: c.ID,
				Message:      fmt.Sprintf("Connection %s is offline, last heartbeat %s", c.Name, c.LastHeartbeat.Format(time.RFC3339)),
				Connection:   c,
				Meta:         map[string]any{"online": false},
				At:           now,
			})
		}
	}
	metrics.UpdateQuality(counts)
}

// sweepInstructions deletes terminal instructions past retention.
func (m *Monitor) sweepInstructions(ctx context.Context, now time.Time, report *PassReport) {
	n, err := m.store.DeleteTerminalInstructions(ctx, now.Add(-m.retention))
	if err != nil {
		m.logger.Error("instruction cleanup", zap.Error(err))
		report.Items = append(report.Items, ItemResult{Sweep: SweepGC, Err: err})
		return
	}
	report.Reaped = n
	metrics.RecordReaped(n)
	if n > 0 {
		m.logger.Debug("instructions reaped", zap.Int64("count", n))
	}
}

func needsCandles(cfg trailing.Config) bool {
	return cfg.Mode != trailing.ModeRMultiple || cfg.OnlyOnCandleClose
}

// marketFor assembles what the trailing engine needs for t. ATR comes from
// completed candles only; too few candles leave it at zero and the engine
// reports ATR as unavailable.
func (m *Monitor) marketFor(ctx context.Context, conn *model.Connection, t *model.Trade, price float64, prices feed.Feed) (trailing.Market, error) {
	mkt := trailing.Market{Price: price}
	if !needsCandles(conn.Trailing) {
		return mkt, nil
	}

	candles, err := prices.RecentCandles(ctx, t.Symbol, conn.Trailing.CandlesNeeded())
	if err != nil {
		return mkt, fmt.Errorf("candles %s: %w", t.Symbol, err)
	}
	mkt.Candles = candles

	closed := make([]market.Candle, 0, len(candles))
	for _, c := range candles {
		if c.Complete {
			closed = append(closed, c)
		}
	}
	period := conn.Trailing.ATRPeriodOrDefault()
	atr, err := market.ATRFunc(closed, period)
	if err != nil {
		if !errors.Is(err, market.ErrNotEnoughCandles) {
			return mkt, err
		}
		m.logger.Debug("atr unavailable",
			zap.String("trade", t.ID),
			zap.Int("candles", len(closed)),
			zap.Int("period", period))
		return mkt, nil
	}
	avg, err := market.AverageATR(closed, period)
	if err != nil {
		return mkt, err
	}
	mkt.ATR, mkt.AvgATR = atr, avg
	return mkt, nil
}
