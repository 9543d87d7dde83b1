package feed

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tickersim/trade-engine/internal/model"
)

const defaultHistoryBars = 256

// Synthetic produces deterministic pseudo-random prices for offline
// development and tests. The walk is seeded, so two instances built with
// the same seed and symbol set emit identical prices.
type Synthetic struct {
	mu        sync.Mutex
	rng       *rand.Rand
	prices    map[string]float64
	prevClose map[string]float64
	history   map[string][]model.Candle
	maxBars   int
}

// NewSynthetic seeds a random-walk source for the given symbols. Initial
// prices land between 50 and 2050 so portfolios exercise a realistic
// price range.
func NewSynthetic(symbols []string, seed int64) *Synthetic {
	s := &Synthetic{
		rng:       rand.New(rand.NewSource(seed)),
		prices:    make(map[string]float64, len(symbols)),
		prevClose: make(map[string]float64, len(symbols)),
		history:   make(map[string][]model.Candle, len(symbols)),
		maxBars:   defaultHistoryBars,
	}
	for _, sym := range symbols {
		s.seed(sym)
	}
	return s
}

// seed assigns an initial price. Caller holds s.mu or runs before the
// source is shared.
func (s *Synthetic) seed(symbol string) {
	if _, ok := s.prices[symbol]; ok {
		return
	}
	p := 50 + s.rng.Float64()*2000
	s.prices[symbol] = p
	s.prevClose[symbol] = p
}

// Track starts pricing symbol if it is not already tracked.
func (s *Synthetic) Track(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seed(symbol)
}

// Symbols returns the tracked symbol set in unspecified order.
func (s *Synthetic) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.prices))
	for sym := range s.prices {
		out = append(out, sym)
	}
	return out
}

// Advance moves every tracked symbol one step along its walk and records
// a candle stamped at now. Moves are bounded at ±2% per step and prices
// never fall below 1.
func (s *Synthetic) Advance(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for sym, open := range s.prices {
		move := (s.rng.Float64() - 0.5) * 0.04
		next := open * (1 + move)
		if next < 1 {
			next = 1
		}
		high, low := open, open
		if next > high {
			high = next
		}
		if next < low {
			low = next
		}

		s.prevClose[sym] = open
		s.prices[sym] = next

		candle := model.Candle{
			Time:   now.UTC(),
			Open:   dec(open),
			High:   dec(high),
			Low:    dec(low),
			Close:  dec(next),
			Volume: 1000 + s.rng.Int63n(9000),
		}
		bars := append(s.history[sym], candle)
		if len(bars) > s.maxBars {
			bars = bars[len(bars)-s.maxBars:]
		}
		s.history[sym] = bars
	}
}

// GetQuote implements Quoter.
func (s *Synthetic) GetQuote(_ context.Context, symbol string) (model.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	price, ok := s.prices[symbol]
	if !ok {
		return model.Quote{}, fmt.Errorf("%w: %s", ErrQuoteUnavailable, symbol)
	}
	return model.Quote{
		Symbol:    symbol,
		Price:     dec(price),
		PrevClose: dec(s.prevClose[symbol]),
		Timestamp: time.Now().UTC(),
	}, nil
}

// GetHistory implements Quoter.
func (s *Synthetic) GetHistory(_ context.Context, symbol string, bars int) ([]model.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all, ok := s.history[symbol]
	if !ok {
		if _, tracked := s.prices[symbol]; !tracked {
			return nil, fmt.Errorf("%w: %s", ErrQuoteUnavailable, symbol)
		}
		return nil, nil
	}
	if bars > 0 && len(all) > bars {
		all = all[len(all)-bars:]
	}
	out := make([]model.Candle, len(all))
	copy(out, all)
	return out, nil
}

func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(2)
}
