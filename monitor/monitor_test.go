package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rustyeddy/trailguard/feed"
	"github.com/rustyeddy/trailguard/market"
	"github.com/rustyeddy/trailguard/model"
	"github.com/rustyeddy/trailguard/notify"
	"github.com/rustyeddy/trailguard/processor"
	"github.com/rustyeddy/trailguard/store"
	"github.com/rustyeddy/trailguard/trailing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type recordingSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (s *recordingSink) Send(_ context.Context, e notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) types() []notify.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notify.EventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	mem  *store.Memory
	feed *feed.Static
	sink *recordingSink
	mon  *Monitor
}

func newFixture(t *testing.T, s store.Store, mem *store.Memory) *fixture {
	t.Helper()
	f := &fixture{mem: mem, feed: feed.NewStatic(), sink: &recordingSink{}}
	if s == nil {
		s = mem
	}
	proc := processor.New(s, zap.NewNop())
	f.mon = New(s, f.feed, proc,
		WithDispatcher(notify.NewDispatcher(f.sink, mem, zap.NewNop())),
		WithConcurrency(2))
	return f
}

func addConn(t *testing.T, mem *store.Memory, id string, heartbeatAge time.Duration) *model.Connection {
	t.Helper()
	c := model.NewConnection(id, "u1", "acct "+id, 10000)
	c.Online = true
	c.Quality = model.QualityExcellent
	c.LastHeartbeat = testNow.Add(-heartbeatAge)
	require.NoError(t, mem.SaveConnection(context.Background(), &c))
	return &c
}

func addTrade(t *testing.T, mem *store.Memory, connID, ticket, symbol string) *model.Trade {
	t.Helper()
	tr := &model.Trade{
		ID:           "trade-" + ticket,
		ConnectionID: connID,
		Ticket:       ticket,
		Symbol:       symbol,
		Direction:    market.Buy,
		EntryPrice:   1.1000,
		StopLoss:     1.0950,
		OriginalSL:   1.0950,
		LotSize:      0.2,
		Status:       model.TradeOpen,
		OpenedAt:     testNow.Add(-time.Hour),
	}
	tr.TP[0].Price = 1.1050
	require.NoError(t, mem.CreateTrade(context.Background(), tr))
	return tr
}

// flatCandles have a constant true range of 15 pips.
func flatCandles(n int) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		out[i] = market.Candle{
			Time:     testNow.Add(time.Duration(i-n) * 5 * time.Minute),
			Open:     1.10725,
			High:     1.1080,
			Low:      1.1065,
			Close:    1.10725,
			Complete: true,
		}
	}
	return out
}

func TestQualityFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		age  time.Duration
		want model.Quality
	}{
		{age: 0, want: model.QualityExcellent},
		{age: 59 * time.Second, want: model.QualityExcellent},
		{age: time.Minute, want: model.QualityGood},
		{age: 119 * time.Second, want: model.QualityGood},
		{age: 2 * time.Minute, want: model.QualityPoor},
		{age: 4*time.Minute + 59*time.Second, want: model.QualityPoor},
		{age: 5 * time.Minute, want: model.QualityOffline},
		{age: time.Hour, want: model.QualityOffline},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, QualityFor(testNow.Add(-tt.age), testNow, DefaultOfflineAfter), tt.age.String())
	}
	assert.Equal(t, model.QualityOffline, QualityFor(time.Time{}, testNow, DefaultOfflineAfter))
}

func TestRunPass_ManagesTrade(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := store.NewMemory()
	conn := model.NewConnection("c1", "u1", "main", 10000)
	conn.Online = true
	conn.Quality = model.QualityExcellent
	conn.LastHeartbeat = testNow.Add(-10 * time.Second)
	conn.Trailing.Enabled = true
	conn.Trailing.Mode = trailing.ModeATR
	conn.Trailing.TPHitTighterTrailing = false
	require.NoError(t, mem.SaveConnection(ctx, &conn))
	tr := addTrade(t, mem, "c1", "100", "EURUSD")

	f := newFixture(t, nil, mem)
	f.feed.SetPrice("EURUSD", 1.1080)
	f.feed.SetCandles("EURUSD", flatCandles(20))

	report, err := f.mon.RunPass(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Connections)
	assert.Equal(t, 1, report.Trades)
	assert.Empty(t, report.Errors())

	// Breakeven counts as a stop move, so the trail waits out the delay.
	assert.Equal(t, []notify.EventType{
		notify.EventTPHit,
		notify.EventBreakevenHit,
	}, f.sink.types())
	require.Len(t, report.Notifications, 2)

	stored, err := mem.GetTrade(ctx, tr.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1.1080, stored.PeakPrice, 1e-9)
	assert.True(t, stored.TP[0].Hit)
	assert.True(t, stored.BreakevenHit)
	assert.False(t, stored.TrailingActive)
	assert.InDelta(t, 1.1002, stored.StopLoss, 1e-9)
	assert.InDelta(t, 1.0950, stored.OriginalSL, 1e-9)
	assert.Equal(t, testNow, stored.LastTrailAt)

	pending, err := mem.ListPendingInstructions(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, model.ActionBreakeven, pending[0].Action)

	// Same price a second later: nothing new to do.
	report, err = f.mon.RunPass(ctx, testNow.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, report.Events)

	live, err := mem.GetConnection(ctx, "c1")
	require.NoError(t, err)
	live.LastHeartbeat = testNow.Add(55 * time.Second)
	require.NoError(t, mem.SaveConnection(ctx, live))

	report, err = f.mon.RunPass(ctx, testNow.Add(61*time.Second))
	require.NoError(t, err)
	assert.Empty(t, report.Errors())
	assert.Equal(t, []notify.EventType{
		notify.EventTPHit,
		notify.EventBreakevenHit,
		notify.EventTrailingUpdate,
	}, f.sink.types())

	stored, err = mem.GetTrade(ctx, tr.ID)
	require.NoError(t, err)
	assert.True(t, stored.TrailingActive)
	assert.InDelta(t, 1.10575, stored.StopLoss, 1e-9)

	pending, err = mem.ListPendingInstructions(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, model.ActionBreakeven, pending[0].Action)
	assert.Equal(t, model.ActionTrail, pending[1].Action)

	logs, err := mem.ListTrailingLogs(ctx, tr.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	for _, l := range logs {
		assert.True(t, l.NotifySent, l.Mode)
	}
}

func TestRunPass_StopHitNotifiedOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := store.NewMemory()
	addConn(t, mem, "c1", 10*time.Second)
	tr := addTrade(t, mem, "c1", "200", "EURUSD")

	f := newFixture(t, nil, mem)
	f.feed.SetPrice("EURUSD", 1.0940)

	report, err := f.mon.RunPass(ctx, testNow)
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.True(t, report.Items[0].StopHit)
	assert.Equal(t, []notify.EventType{notify.EventSLHit}, f.sink.types())

	_, err = f.mon.RunPass(ctx, testNow.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, f.sink.types(), 1)

	stored, err := mem.GetTrade(ctx, tr.ID)
	require.NoError(t, err)
	assert.False(t, stored.BreakevenHit)
	assert.True(t, stored.IsOpen())
}

func TestRunPass_ItemErrorsDoNotAbort(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := store.NewMemory()
	addConn(t, mem, "c1", 10*time.Second)
	addConn(t, mem, "c2", 10*time.Second)
	addTrade(t, mem, "c1", "300", "GBPUSD")
	ok := addTrade(t, mem, "c2", "301", "EURUSD")

	f := newFixture(t, nil, mem)
	f.feed.SetPrice("EURUSD", 1.1060)

	report, err := f.mon.RunPass(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Trades)

	errs := report.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "c1", errs[0].ConnectionID)
	assert.Equal(t, SweepTrades, errs[0].Sweep)
	assert.ErrorIs(t, errs[0].Err, feed.ErrNoData)

	stored, err := mem.GetTrade(ctx, ok.ID)
	require.NoError(t, err)
	assert.True(t, stored.BreakevenHit)
}

func TestRunPass_Health(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := store.NewMemory()
	addConn(t, mem, "fresh", 10*time.Second)
	addConn(t, mem, "slow", 90*time.Second)
	addConn(t, mem, "lagging", 3*time.Minute)
	addConn(t, mem, "gone", 10*time.Minute)

	f := newFixture(t, nil, mem)
	report, err := f.mon.RunPass(ctx, testNow)
	require.NoError(t, err)

	want := map[string]model.Quality{
		"fresh":   model.QualityExcellent,
		"slow":    model.QualityGood,
		"lagging": model.QualityPoor,
		"gone":    model.QualityOffline,
	}
	for id, q := range want {
		c, err := mem.GetConnection(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, q, c.Quality, id)
		assert.Equal(t, q != model.QualityOffline, c.Online, id)
	}

	require.Len(t, report.Events, 1)
	assert.Equal(t, notify.EventConnectionStatus, report.Events[0].Type)
	assert.Equal(t, "gone", report.Events[0].ConnectionID)
	assert.Equal(t, notify.SeverityWarn, report.Events[0].Severity)

	// Already offline: no second disconnect event.
	report, err = f.mon.RunPass(ctx, testNow.Add(time.Second))
	require.NoError(t, err)
	for _, e := range report.Events {
		assert.NotEqual(t, "gone", e.ConnectionID)
	}
}

func TestRunPass_InstructionGC(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := store.NewMemory()
	spec := model.OpenSpec{Symbol: "EURUSD", Direction: market.Buy, Lot: 0.1, Entry: 1.1, StopLoss: 1.095}

	old := model.NewOpenInstruction("c1", spec, testNow.Add(-26*time.Hour))
	require.NoError(t, mem.CreateInstruction(ctx, &old))
	require.NoError(t, old.Resolve(model.InstructionExecuted, "", testNow.Add(-25*time.Hour)))
	require.NoError(t, mem.UpdateInstruction(ctx, &old))

	recent := model.NewOpenInstruction("c1", spec, testNow.Add(-2*time.Hour))
	require.NoError(t, mem.CreateInstruction(ctx, &recent))
	require.NoError(t, recent.Resolve(model.InstructionFailed, "rejected", testNow.Add(-time.Hour)))
	require.NoError(t, mem.UpdateInstruction(ctx, &recent))

	stale := model.NewOpenInstruction("c1", spec, testNow.Add(-48*time.Hour))
	require.NoError(t, mem.CreateInstruction(ctx, &stale))

	f := newFixture(t, nil, mem)
	report, err := f.mon.RunPass(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Reaped)

	_, err = mem.GetInstruction(ctx, old.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = mem.GetInstruction(ctx, recent.ID)
	assert.NoError(t, err)
	_, err = mem.GetInstruction(ctx, stale.ID)
	assert.NoError(t, err, "pending instructions are never reaped")
}

type brokenStore struct {
	*store.Memory
}

func (brokenStore) ListConnections(context.Context) ([]*model.Connection, error) {
	return nil, errors.New("connection refused")
}

func TestRunPass_ListConnectionsFatal(t *testing.T) {
	t.Parallel()

	mem := store.NewMemory()
	f := newFixture(t, brokenStore{mem}, mem)
	_, err := f.mon.RunPass(context.Background(), testNow)
	assert.ErrorContains(t, err, "connection refused")
}

func TestRunPass_RMultipleSkipsCandles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := store.NewMemory()
	conn := model.NewConnection("c1", "u1", "main", 10000)
	conn.Online = true
	conn.LastHeartbeat = testNow
	conn.Breakeven.Enabled = false
	conn.Trailing.Enabled = true
	conn.Trailing.Mode = trailing.ModeRMultiple
	require.NoError(t, mem.SaveConnection(ctx, &conn))
	tr := addTrade(t, mem, "c1", "400", "EURUSD")

	f := newFixture(t, nil, mem)
	f.feed.SetPrice("EURUSD", 1.1110)

	report, err := f.mon.RunPass(ctx, testNow)
	require.NoError(t, err)
	assert.Empty(t, report.Errors())

	// 2.2R of profit locks two whole steps.
	stored, err := mem.GetTrade(ctx, tr.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1.1100, stored.StopLoss, 1e-9)
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	mem := store.NewMemory()
	f := newFixture(t, nil, mem)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := f.mon.Run(ctx, 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Error(t, f.mon.Run(context.Background(), 0))
}
