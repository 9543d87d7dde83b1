package indicator_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tickersim/trade-engine/internal/indicator"
	"github.com/tickersim/trade-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func closes(vals ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		out[i] = d(v)
	}
	return out
}

func TestSMA_Values(t *testing.T) {
	// Closes: 10, 20, 30, 40. SMA(3) cur = (20+30+40)/3 = 30,
	// prev = (10+20+30)/3 = 20.
	pair, ok := indicator.SMA(closes(10, 20, 30, 40), 3)
	if !ok {
		t.Fatal("expected enough history")
	}
	if !pair.Cur.Equal(d(30)) {
		t.Errorf("expected cur 30, got %s", pair.Cur)
	}
	if !pair.Prev.Equal(d(20)) {
		t.Errorf("expected prev 20, got %s", pair.Prev)
	}
}

func TestSMA_InsufficientHistory(t *testing.T) {
	// SMA(3) needs 4 closes for both cur and prev.
	if _, ok := indicator.SMA(closes(10, 20, 30), 3); ok {
		t.Error("expected insufficient history")
	}
}

func TestSMA_PriceWindow(t *testing.T) {
	pair, ok := indicator.SMA(closes(100, 110), indicator.PriceWindow)
	if !ok {
		t.Fatal("expected two closes to suffice")
	}
	if !pair.Prev.Equal(d(100)) || !pair.Cur.Equal(d(110)) {
		t.Errorf("unexpected pair: %+v", pair)
	}

	if _, ok := indicator.SMA(closes(100), indicator.PriceWindow); ok {
		t.Error("single close should not be enough")
	}
}

func TestSnapshotFor(t *testing.T) {
	candles := make([]model.Candle, 0, 6)
	for i, c := range []float64{10, 20, 30, 40, 50, 60} {
		candles = append(candles, model.Candle{
			Time:  time.Date(2025, 1, 1+i, 0, 0, 0, 0, time.UTC),
			Close: d(c),
		})
	}

	snap, ok := indicator.SnapshotFor(candles, []int{2, 5})
	if !ok {
		t.Fatal("expected enough history")
	}
	if !snap[2].Cur.Equal(d(55)) {
		t.Errorf("expected SMA(2) cur 55, got %s", snap[2].Cur)
	}
	if !snap[5].Cur.Equal(d(40)) {
		t.Errorf("expected SMA(5) cur 40, got %s", snap[5].Cur)
	}

	if _, ok := indicator.SnapshotFor(candles, []int{2, 10}); ok {
		t.Error("expected failure when any window lacks history")
	}
}

func TestCrossed(t *testing.T) {
	tests := []struct {
		name  string
		short indicator.Pair
		long  indicator.Pair
		dir   model.CrossDirection
		want  bool
	}{
		{"golden cross", indicator.Pair{Prev: d(99), Cur: d(102)}, indicator.Pair{Prev: d(100), Cur: d(101)}, model.CrossAbove, true},
		{"already above", indicator.Pair{Prev: d(105), Cur: d(106)}, indicator.Pair{Prev: d(100), Cur: d(101)}, model.CrossAbove, false},
		{"death cross", indicator.Pair{Prev: d(101), Cur: d(99)}, indicator.Pair{Prev: d(100), Cur: d(100)}, model.CrossBelow, true},
		{"touch without cross", indicator.Pair{Prev: d(99), Cur: d(100)}, indicator.Pair{Prev: d(100), Cur: d(100)}, model.CrossAbove, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := indicator.Snapshot{20: tt.short, 50: tt.long}
			if got := snap.Crossed(20, 50, tt.dir); got != tt.want {
				t.Errorf("Crossed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCrossed_MissingWindow(t *testing.T) {
	snap := indicator.Snapshot{20: {Prev: d(1), Cur: d(2)}}
	if snap.Crossed(20, 50, model.CrossAbove) {
		t.Error("missing long window should never report a cross")
	}
}
