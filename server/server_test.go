package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rustyeddy/trailguard/model"
	"github.com/rustyeddy/trailguard/notify"
	"github.com/rustyeddy/trailguard/processor"
	"github.com/rustyeddy/trailguard/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type captureSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (s *captureSink) Send(_ context.Context, e notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

type fixture struct {
	mem     *store.Memory
	sink    *captureSink
	handler http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	c := model.NewConnection("c1", "u1", "main", 10000)
	c.Online = true
	c.LastHeartbeat = testNow
	require.NoError(t, mem.SaveConnection(context.Background(), &c))

	sink := &captureSink{}
	srv := New(processor.New(mem, zap.NewNop()), mem,
		WithDispatcher(notify.NewDispatcher(sink, mem, zap.NewNop())),
		WithClock(func() time.Time { return testNow }))
	return &fixture{mem: mem, sink: sink, handler: srv.Handler()}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

const signalBody = `{"symbol":"EUR/USD","direction":"LONG","entry":1.1,"stop_loss":1.095}`

func TestSignalToTradeLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rec := f.do(http.MethodPost, "/v1/signals", signalBody)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var sr signalResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sr))
	assert.Equal(t, 1, sr.Queued)
	require.Len(t, sr.Results, 1)
	assert.InDelta(t, 0.2, sr.Results[0].Lot, 1e-9)
	instrID := sr.Results[0].InstructionID
	require.NotEmpty(t, instrID)
	assert.Len(t, f.sink.events, 1)

	rec = f.do(http.MethodGet, "/v1/instructions/pending?connection_id=c1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var pending []model.Instruction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, instrID, pending[0].ID)
	require.NotNil(t, pending[0].Spec)
	assert.Equal(t, "EURUSD", pending[0].Spec.Symbol)

	rec = f.do(http.MethodPost, "/v1/instructions/"+instrID+"/executed", `{"ticket":"777","price":1.1001}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var trade model.Trade
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trade))
	assert.Equal(t, "777", trade.Ticket)

	rec = f.do(http.MethodPost, "/v1/instructions/"+instrID+"/executed", `{"ticket":"777"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodGet, "/v1/instructions/pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = f.do(http.MethodPost, "/v1/trades/777/closed", `{"connection_id":"c1","profit":-100}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stored, err := f.mem.GetTradeByTicket(context.Background(), "c1", "777")
	require.NoError(t, err)
	assert.False(t, stored.IsOpen())

	rec = f.do(http.MethodPost, "/v1/trades/777/closed", `{"connection_id":"c1","profit":-100}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSignalErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	rec := f.do(http.MethodPost, "/v1/signals", `{"symbol":"EURUSD","direction":"buy","entry":1.1,"stop_loss":1.2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "MALFORMED_SIGNAL")

	rec = f.do(http.MethodPost, "/v1/signals", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "BAD_REQUEST")
}

func TestInstructionFailed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(http.MethodPost, "/v1/signals", signalBody)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var sr signalResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sr))
	id := sr.Results[0].InstructionID

	rec = f.do(http.MethodPost, "/v1/instructions/"+id+"/failed", `{"reason":"insufficient margin"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	got, err := f.mem.GetInstruction(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.InstructionFailed, got.Status)
	assert.Equal(t, "insufficient margin", got.Error)

	rec = f.do(http.MethodPost, "/v1/instructions/nope/failed", `{"reason":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHeartbeat(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c, err := f.mem.GetConnection(context.Background(), "c1")
	require.NoError(t, err)
	c.Online = false
	require.NoError(t, f.mem.SaveConnection(context.Background(), c))

	rec := f.do(http.MethodPost, "/v1/connections/c1/heartbeat", `{"equity":15000}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, f.sink.events, 1)
	assert.Equal(t, notify.EventConnectionStatus, f.sink.events[0].Type)

	got, err := f.mem.GetConnection(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, got.Online)
	assert.Equal(t, 15000.0, got.Equity)

	rec = f.do(http.MethodPost, "/v1/connections/c1/heartbeat", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodPost, "/v1/connections/zz/heartbeat", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTradeClosedRequiresConnection(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(http.MethodPost, "/v1/trades/1/closed", `{"profit":5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection_id is required")
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	rec := f.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "trailguard_")

	rec = f.do(http.MethodDelete, "/healthz", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
