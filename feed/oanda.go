package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/rustyeddy/trailguard/market"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// PracticeURL is the URL for OANDA's practice/demo environment
	PracticeURL = "https://api-fxpractice.oanda.com"
	// LiveURL is the URL for OANDA's live trading environment
	LiveURL = "https://api-fxtrade.oanda.com"

	maxCandles = 5000
)

// Granularity represents the time frame for candles
type Granularity string

const (
	S5  Granularity = "S5"
	M1  Granularity = "M1"
	M5  Granularity = "M5"
	M15 Granularity = "M15"
	M30 Granularity = "M30"
	H1  Granularity = "H1"
	H4  Granularity = "H4"
	D   Granularity = "D"
)

// ParseGranularity accepts the granularities the monitor can trail on.
func ParseGranularity(s string) (Granularity, error) {
	g := Granularity(s)
	switch g {
	case S5, M1, M5, M15, M30, H1, H4, D:
		return g, nil
	}
	return "", fmt.Errorf("unsupported granularity %q", s)
}

// OANDA reads mid candles from the OANDA v20 REST API.
type OANDA struct {
	baseURL     string
	token       string
	granularity Granularity
	httpClient  *http.Client
}

// NewOANDA creates a client for the practice or live environment.
func NewOANDA(token string, practice bool, g Granularity) *OANDA {
	baseURL := LiveURL
	if practice {
		baseURL = PracticeURL
	}
	if g == "" {
		g = M5
	}
	return &OANDA{
		baseURL:     baseURL,
		token:       token,
		granularity: g,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

type ohlc struct {
	O string `json:"o"`
	H string `json:"h"`
	L string `json:"l"`
	C string `json:"c"`
}

type apiCandle struct {
	Complete bool   `json:"complete"`
	Volume   int    `json:"volume"`
	Time     string `json:"time"`
	Mid      ohlc   `json:"mid"`
}

type candlesResponse struct {
	Instrument  string      `json:"instrument"`
	Granularity string      `json:"granularity"`
	Candles     []apiCandle `json:"candles"`
}

// RecentCandles returns the last n candles including the one still forming.
func (c *OANDA) RecentCandles(ctx context.Context, symbol string, n int) ([]market.Candle, error) {
	if n <= 0 {
		return nil, fmt.Errorf("candle count must be positive")
	}
	if n > maxCandles {
		n = maxCandles
	}

	params := url.Values{}
	params.Set("price", "M")
	params.Set("granularity", string(c.granularity))
	params.Set("count", strconv.Itoa(n))

	apiURL := fmt.Sprintf("%s/v3/instruments/%s/candles?%s", c.baseURL, market.OandaName(symbol), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("oanda API error (status %d): %s", resp.StatusCode, string(body))
	}

	var apiResp candlesResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	candles := make([]market.Candle, 0, len(apiResp.Candles))
	for _, ac := range apiResp.Candles {
		candle, err := ac.toCandle()
		if err != nil {
			return nil, fmt.Errorf("%s candle %s: %w", symbol, ac.Time, err)
		}
		candles = append(candles, candle)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%s candles: %w", symbol, ErrNoData)
	}
	return candles, nil
}

func (ac apiCandle) toCandle() (market.Candle, error) {
	t, err := time.Parse(time.RFC3339Nano, ac.Time)
	if err != nil {
		return market.Candle{}, fmt.Errorf("parse time: %w", err)
	}
	var v [4]float64
	for i, s := range []string{ac.Mid.O, ac.Mid.H, ac.Mid.L, ac.Mid.C} {
		if v[i], err = strconv.ParseFloat(s, 64); err != nil {
			return market.Candle{}, fmt.Errorf("parse price %q: %w", s, err)
		}
	}
	return market.Candle{
		Time:     t,
		Open:     v[0],
		High:     v[1],
		Low:      v[2],
		Close:    v[3],
		Volume:   float64(ac.Volume),
		Complete: ac.Complete,
	}, nil
}

// LatestClose is the close of the newest candle, complete or not.
func (c *OANDA) LatestClose(ctx context.Context, symbol string) (float64, error) {
	cs, err := c.RecentCandles(ctx, symbol, 1)
	if err != nil {
		return 0, err
	}
	return cs[len(cs)-1].Close, nil
}
