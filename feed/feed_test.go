package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rustyeddy/trailguard/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOANDA(url string) *OANDA {
	return &OANDA{
		baseURL:     url,
		token:       "test-token",
		granularity: M5,
		httpClient:  &http.Client{Timeout: 5 * time.Second},
	}
}

func TestNewOANDA(t *testing.T) {
	t.Parallel()

	c := NewOANDA("tok", true, "")
	assert.Equal(t, PracticeURL, c.baseURL)
	assert.Equal(t, M5, c.granularity)

	c = NewOANDA("tok", false, H1)
	assert.Equal(t, LiveURL, c.baseURL)
	assert.Equal(t, H1, c.granularity)
}

func TestOANDARecentCandles(t *testing.T) {
	t.Parallel()

	resp := candlesResponse{
		Instrument:  "EUR_USD",
		Granularity: "M5",
		Candles: []apiCandle{
			{Complete: true, Volume: 100, Time: "2026-03-02T10:00:00.000000000Z", Mid: ohlc{"1.0850", "1.0860", "1.0840", "1.0855"}},
			{Complete: false, Volume: 12, Time: "2026-03-02T10:05:00.000000000Z", Mid: ohlc{"1.0855", "1.0870", "1.0850", "1.0865"}},
		},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/instruments/EUR_USD/candles", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "M", r.URL.Query().Get("price"))
		assert.Equal(t, "M5", r.URL.Query().Get("granularity"))
		assert.Equal(t, "43", r.URL.Query().Get("count"))
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	candles, err := testOANDA(server.URL).RecentCandles(context.Background(), "EURUSD", 43)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, 1.0850, candles[0].Open)
	assert.Equal(t, 1.0860, candles[0].High)
	assert.Equal(t, 1.0840, candles[0].Low)
	assert.Equal(t, 1.0855, candles[0].Close)
	assert.True(t, candles[0].Complete)
	assert.False(t, candles[1].Complete)

	last, ok := market.LastClosed(candles)
	require.True(t, ok)
	assert.Equal(t, 1.0855, last.Close)
}

func TestOANDALatestClose(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("count"))
		assert.Equal(t, "/v3/instruments/USD_JPY/candles", r.URL.Path)
		_, _ = w.Write([]byte(`{"instrument":"USD_JPY","candles":[{"complete":false,"volume":3,"time":"2026-03-02T10:05:00Z","mid":{"o":"150.10","h":"150.20","l":"150.00","c":"150.15"}}]}`))
	}))
	defer server.Close()

	p, err := testOANDA(server.URL).LatestClose(context.Background(), "usd/jpy")
	require.NoError(t, err)
	assert.Equal(t, 150.15, p)
}

func TestOANDAErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"api error", http.StatusUnauthorized, `{"errorMessage":"Insufficient authorization"}`, "status 401"},
		{"bad json", http.StatusOK, `{"candles":[`, "decode response"},
		{"bad price", http.StatusOK, `{"candles":[{"complete":true,"time":"2026-03-02T10:00:00Z","mid":{"o":"x","h":"1","l":"1","c":"1"}}]}`, "parse price"},
		{"bad time", http.StatusOK, `{"candles":[{"complete":true,"time":"yesterday","mid":{"o":"1","h":"1","l":"1","c":"1"}}]}`, "parse time"},
		{"empty", http.StatusOK, `{"candles":[]}`, "no market data"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := testOANDA(server.URL).RecentCandles(context.Background(), "EURUSD", 10)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	_, err := testOANDA("http://unused").RecentCandles(context.Background(), "EURUSD", 0)
	assert.Error(t, err)
}

func TestStatic(t *testing.T) {
	t.Parallel()

	s := NewStatic()
	s.SetPrice("EUR/USD", 1.1)
	s.SetCandles("EURUSD", []market.Candle{{Close: 1}, {Close: 2}, {Close: 3}})

	p, err := s.LatestClose(context.Background(), "eurusd")
	require.NoError(t, err)
	assert.Equal(t, 1.1, p)

	cs, err := s.RecentCandles(context.Background(), "EURUSD", 2)
	require.NoError(t, err)
	assert.Equal(t, []market.Candle{{Close: 2}, {Close: 3}}, cs)

	_, err = s.LatestClose(context.Background(), "GBPUSD")
	assert.ErrorIs(t, err, ErrNoData)
}

type countingFeed struct {
	Feed
	calls atomic.Int32
}

func (c *countingFeed) LatestClose(ctx context.Context, symbol string) (float64, error) {
	c.calls.Add(1)
	return c.Feed.LatestClose(ctx, symbol)
}

func TestMemo(t *testing.T) {
	t.Parallel()

	s := NewStatic()
	s.SetPrice("EURUSD", 1.1)
	cf := &countingFeed{Feed: s}
	m := NewMemo(cf)

	for i := 0; i < 3; i++ {
		p, err := m.LatestClose(context.Background(), "EURUSD")
		require.NoError(t, err)
		assert.Equal(t, 1.1, p)
	}
	assert.Equal(t, int32(1), cf.calls.Load())

	_, err := m.LatestClose(context.Background(), "GBPUSD")
	assert.ErrorIs(t, err, ErrNoData)
}
