// Package monitor runs the periodic pass over every open trade and every
// connection: stop management, connection health and instruction cleanup.
// A pass is safe to run concurrently with another pass or with actuator
// reports because trade writes are conditional on the version read.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rustyeddy/trailguard/feed"
	"github.com/rustyeddy/trailguard/metrics"
	"github.com/rustyeddy/trailguard/model"
	"github.com/rustyeddy/trailguard/notify"
	"github.com/rustyeddy/trailguard/processor"
	"github.com/rustyeddy/trailguard/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	SweepTrades = "trades"
	SweepHealth = "health"
	SweepGC     = "gc"
)

const (
	DefaultConcurrency  = 4
	DefaultRetention    = 24 * time.Hour
	DefaultOfflineAfter = 5 * time.Minute
)

type Monitor struct {
	store      store.Store
	feed       feed.Feed
	proc       *processor.Processor
	dispatcher *notify.Dispatcher
	logger     *zap.Logger

	concurrency  int
	retention    time.Duration
	offlineAfter time.Duration

	// stop hits already notified, keyed by trade ID
	mu      sync.Mutex
	slFired map[string]float64
}

type Option func(*Monitor)

func WithConcurrency(n int) Option {
	return func(m *Monitor) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

func WithRetention(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.retention = d
		}
	}
}

func WithOfflineAfter(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.offlineAfter = d
		}
	}
}

func WithDispatcher(d *notify.Dispatcher) Option {
	return func(m *Monitor) { m.dispatcher = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

func New(s store.Store, f feed.Feed, proc *processor.Processor, opts ...Option) *Monitor {
	m := &Monitor{
		store:        s,
		feed:         f,
		proc:         proc,
		logger:       zap.NewNop(),
		concurrency:  DefaultConcurrency,
		retention:    DefaultRetention,
		offlineAfter: DefaultOfflineAfter,
		slFired:      map[string]float64{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ItemResult is the outcome for one trade or connection in a sweep.
type ItemResult struct {
	ConnectionID string
	TradeID      string
	Sweep        string
	Price        float64
	TPHits       []int
	StopHit      bool
	Outcomes     []processor.Outcome
	Err          error
}

type PassReport struct {
	StartedAt     time.Time
	Duration      time.Duration
	Connections   int
	Trades        int
	Reaped        int64
	Items         []ItemResult
	Events        []notify.Event
	Notifications []notify.Result
}

// Errors returns the items that failed.
func (r *PassReport) Errors() []ItemResult {
	var out []ItemResult
	for _, it := range r.Items {
		if it.Err != nil {
			out = append(out, it)
		}
	}
	return out
}

// RunPass executes one monitor pass at now. Item failures are recorded in
// the report; only failing to list connections aborts the pass.
func (m *Monitor) RunPass(ctx context.Context, now time.Time) (*PassReport, error) {
	start := time.Now()
	report := &PassReport{StartedAt: now}

	conns, err := m.store.ListConnections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	report.Connections = len(conns)

	m.sweepTrades(ctx, conns, now, report)
	m.sweepHealth(ctx, conns, now, report)
	m.sweepInstructions(ctx, now, report)

	for _, it := range report.Items {
		if it.Err != nil {
			metrics.RecordItemError(it.Sweep)
		}
	}

	if m.dispatcher != nil && len(report.Events) > 0 {
		report.Notifications = m.dispatcher.Dispatch(ctx, report.Events)
	}

	report.Duration = time.Since(start)
	metrics.RecordPass(report.Duration)
	m.logger.Info("monitor pass",
		zap.Int("connections", report.Connections),
		zap.Int("trades", report.Trades),
		zap.Int("events", len(report.Events)),
		zap.Int("errors", len(report.Errors())),
		zap.Int64("reaped", report.Reaped),
		zap.Duration("took", report.Duration))
	return report, nil
}

// Run calls RunPass every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("monitor interval must be positive")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("monitor started", zap.Duration("interval", interval))
	for {
		if _, err := m.RunPass(ctx, time.Now().UTC()); err != nil {
			m.logger.Error("monitor pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Monitor) sweepTrades(ctx context.Context, conns []*model.Connection, now time.Time, report *PassReport) {
	prices := feed.NewMemo(m.feed)

	var (
		mu    sync.Mutex
		items []ItemResult
		open  = map[string]bool{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for _, conn := range conns {
		conn := conn
		if !conn.Online {
			continue
		}
		g.Go(func() error {
			res := m.sweepConnection(gctx, conn, prices, now)
			mu.Lock()
			defer mu.Unlock()
			for _, it := range res {
				items = append(items, it)
				if it.TradeID != "" {
					open[it.TradeID] = true
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	m.forgetClosed(open)
	for _, it := range items {
		report.Items = append(report.Items, it)
		if it.TradeID != "" {
			report.Trades++
		}
		for _, o := range it.Outcomes {
			report.Events = append(report.Events, o.Events...)
		}
	}
}

// sweepConnection walks one connection's open trades in order.
func (m *Monitor) sweepConnection(ctx context.Context, conn *model.Connection, prices feed.Feed, now time.Time) []ItemResult {
	trades, err := m.store.ListOpenTrades(ctx, conn.ID)
	if err != nil {
		m.logger.Error("list open trades", zap.String("connection", conn.ID), zap.Error(err))
		return []ItemResult{{ConnectionID: conn.ID, Sweep: SweepTrades, Err: err}}
	}

	out := make([]ItemResult, 0, len(trades))
	for _, t := range trades {
		if ctx.Err() != nil {
			break
		}
		res := m.processTrade(ctx, conn, t, prices, now)
		if res.Err != nil {
			m.logger.Warn("trade sweep",
				zap.String("connection", conn.ID),
				zap.String("trade", t.ID),
				zap.Error(res.Err))
		}
		out = append(out, res)
	}
	return out
}

// processTrade runs price → peak → take-profit → stop hit → breakeven →
// trailing for one trade, stopping at the first error.
func (m *Monitor) processTrade(ctx context.Context, conn *model.Connection, t *model.Trade, prices feed.Feed, now time.Time) ItemResult {
	res := ItemResult{ConnectionID: conn.ID, TradeID: t.ID, Sweep: SweepTrades}

	price, err := prices.LatestClose(ctx, t.Symbol)
	if err != nil {
		res.Err = fmt.Errorf("price %s: %w", t.Symbol, err)
		return res
	}
	res.Price = price

	if t.UpdatePeak(price) {
		if err := m.store.UpdateTrade(ctx, t); err != nil {
			res.Err = err
			return res
		}
	}

	hits, events, err := m.proc.ProcessTPHits(ctx, t, price, now)
	if err != nil {
		res.Err = err
		return res
	}
	res.TPHits = hits
	if len(events) > 0 {
		res.Outcomes = append(res.Outcomes, processor.Outcome{TradeID: t.ID, Events: events})
	}

	if processor.CheckStopHit(t, price) {
		res.StopHit = true
		if m.firstStopHit(t) {
			res.Outcomes = append(res.Outcomes, processor.Outcome{TradeID: t.ID, Events: []notify.Event{stopHitEvent(t, price, now)}})
		}
		// The actuator closes the trade; nothing left to manage.
		return res
	}

	be, err := m.proc.ProcessBreakeven(ctx, conn, t, price, now)
	if err != nil {
		res.Err = err
		return res
	}
	if be.Applied {
		res.Outcomes = append(res.Outcomes, be)
	}

	if !conn.Trailing.Enabled {
		return res
	}
	mkt, err := m.marketFor(ctx, conn, t, price, prices)
	if err != nil {
		res.Err = err
		return res
	}
	tr, err := m.proc.ProcessTrailingStop(ctx, conn, t, mkt, now)
	if err != nil {
		res.Err = err
		return res
	}
	res.Outcomes = append(res.Outcomes, tr)
	return res
}

// firstStopHit reports whether the stop hit on t has not been notified at
// its current stop price yet.
func (m *Monitor) firstStopHit(t *model.Trade) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sl, ok := m.slFired[t.ID]; ok && sl == t.StopLoss {
		return false
	}
	m.slFired[t.ID] = t.StopLoss
	return true
}

// forgetClosed drops stop-hit markers for trades no longer open.
func (m *Monitor) forgetClosed(open map[string]bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.slFired {
		if !open[id] {
			delete(m.slFired, id)
		}
	}
}

func stopHitEvent(t *model.Trade, price float64, now time.Time) notify.Event {
	c := *t
	return notify.Event{
		Type:         notify.EventSLHit,
		Severity:     notify.SeverityWarn,
		ConnectionID: t.ConnectionID,
		Message:      fmt.Sprintf("%s %s stop loss hit at %.5f (SL %.5f)", t.Symbol, t.Direction, price, t.StopLoss),
		Trade:        &c,
		Meta:         map[string]any{"price": price},
		At:           now,
	}
}
