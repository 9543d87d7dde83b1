// Package indicator computes the moving-average values consumed by
// conditional orders. Snapshots carry both the previous and the current
// value per window so crossover detection needs no extra state.
package indicator

import (
	"github.com/shopspring/decimal"

	"github.com/tickersim/trade-engine/internal/model"
)

// PriceWindow is the pseudo-window meaning "the raw close price itself"
// rather than an averaged series.
const PriceWindow = 0

// Pair holds an indicator value at the latest bar and the bar before it.
type Pair struct {
	Prev decimal.Decimal `json:"prev"`
	Cur  decimal.Decimal `json:"cur"`
}

// Snapshot maps an SMA window to its latest value pair for one symbol.
type Snapshot map[int]Pair

// SMA returns the simple moving average over the last window closes at the
// latest bar and at the bar before it. It reports false when the series is
// too short: window+1 closes are needed so both values cover full windows.
func SMA(closes []decimal.Decimal, window int) (Pair, bool) {
	if window == PriceWindow {
		if len(closes) < 2 {
			return Pair{}, false
		}
		return Pair{Prev: closes[len(closes)-2], Cur: closes[len(closes)-1]}, true
	}
	if window < 0 || len(closes) < window+1 {
		return Pair{}, false
	}

	n := decimal.NewFromInt(int64(window))
	sum := decimal.Zero
	for _, c := range closes[len(closes)-window:] {
		sum = sum.Add(c)
	}
	cur := sum.Div(n)

	// Slide the window back one bar: drop the newest close, add the one
	// that fell off.
	sum = sum.Sub(closes[len(closes)-1]).Add(closes[len(closes)-window-1])
	prev := sum.Div(n)

	return Pair{Prev: prev, Cur: cur}, true
}

// SnapshotFor computes pairs for every requested window from a candle
// series (oldest-first). It reports false if any window lacks history.
func SnapshotFor(candles []model.Candle, windows []int) (Snapshot, bool) {
	closes := make([]decimal.Decimal, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	snap := make(Snapshot, len(windows))
	for _, w := range windows {
		pair, ok := SMA(closes, w)
		if !ok {
			return nil, false
		}
		snap[w] = pair
	}
	return snap, true
}

// Crossed reports whether the short series crossed the long series in the
// given direction between the previous and current bar. Touching without
// crossing (short == long on the current bar) does not count.
func (s Snapshot) Crossed(shortWindow, longWindow int, dir model.CrossDirection) bool {
	short, ok := s[shortWindow]
	if !ok {
		return false
	}
	long, ok := s[longWindow]
	if !ok {
		return false
	}

	switch dir {
	case model.CrossAbove:
		return short.Prev.LessThanOrEqual(long.Prev) && short.Cur.GreaterThan(long.Cur)
	case model.CrossBelow:
		return short.Prev.GreaterThanOrEqual(long.Prev) && short.Cur.LessThan(long.Cur)
	default:
		return false
	}
}
