// Package feed supplies prices and candles to the monitor.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rustyeddy/trailguard/market"
)

var ErrNoData = errors.New("no market data")

type Feed interface {
	// LatestClose is the most recent price for symbol.
	LatestClose(ctx context.Context, symbol string) (float64, error)
	// RecentCandles returns up to n candles, oldest first. The newest candle
	// may still be forming; check Complete.
	RecentCandles(ctx context.Context, symbol string, n int) ([]market.Candle, error)
}

// Static serves fixed data. It is used by tests and the dry-run CLI.
type Static struct {
	mu      sync.RWMutex
	prices  map[string]float64
	candles map[string][]market.Candle
}

func NewStatic() *Static {
	return &Static{
		prices:  map[string]float64{},
		candles: map[string][]market.Candle{},
	}
}

func (s *Static) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[market.NormalizeSymbol(symbol)] = price
}

func (s *Static) SetCandles(symbol string, candles []market.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candles[market.NormalizeSymbol(symbol)] = candles
}

func (s *Static) LatestClose(_ context.Context, symbol string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[market.NormalizeSymbol(symbol)]
	if !ok {
		return 0, fmt.Errorf("%s price: %w", symbol, ErrNoData)
	}
	return p, nil
}

func (s *Static) RecentCandles(_ context.Context, symbol string, n int) ([]market.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.candles[market.NormalizeSymbol(symbol)]
	if !ok {
		return nil, fmt.Errorf("%s candles: %w", symbol, ErrNoData)
	}
	if n > 0 && len(cs) > n {
		cs = cs[len(cs)-n:]
	}
	return append([]market.Candle(nil), cs...), nil
}

// Memo caches results for the lifetime of one monitor pass, so trades on
// the same symbol share a fetch.
type Memo struct {
	f       Feed
	mu      sync.Mutex
	prices  map[string]float64
	candles map[string][]market.Candle
}

func NewMemo(f Feed) *Memo {
	return &Memo{
		f:       f,
		prices:  map[string]float64{},
		candles: map[string][]market.Candle{},
	}
}

func (m *Memo) LatestClose(ctx context.Context, symbol string) (float64, error) {
	key := market.NormalizeSymbol(symbol)
	m.mu.Lock()
	p, ok := m.prices[key]
	m.mu.Unlock()
	if ok {
		return p, nil
	}

	p, err := m.f.LatestClose(ctx, symbol)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	m.prices[key] = p
	m.mu.Unlock()
	return p, nil
}

func (m *Memo) RecentCandles(ctx context.Context, symbol string, n int) ([]market.Candle, error) {
	key := fmt.Sprintf("%s/%d", market.NormalizeSymbol(symbol), n)
	m.mu.Lock()
	cs, ok := m.candles[key]
	m.mu.Unlock()
	if ok {
		return cs, nil
	}

	cs, err := m.f.RecentCandles(ctx, symbol, n)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.candles[key] = cs
	m.mu.Unlock()
	return cs, nil
}
