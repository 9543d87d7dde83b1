package trigger_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tickersim/trade-engine/internal/indicator"
	"github.com/tickersim/trade-engine/internal/model"
	"github.com/tickersim/trade-engine/internal/trigger"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func quote(price float64) model.Quote {
	return model.Quote{Symbol: "INFY", Price: d(price), Timestamp: time.Now().UTC()}
}

var noTTL = time.Duration(0)

// --- Limit orders ---

func TestDecide_LimitBuy(t *testing.T) {
	o := model.Order{Kind: model.KindLimit, Side: model.SideBuy, TriggerPrice: d(1400)}

	if dec := trigger.Decide(o, quote(1450), nil, time.Now(), noTTL); dec.Action != trigger.ActionNone {
		t.Errorf("above limit: expected NONE, got %s", dec.Action)
	}

	dec := trigger.Decide(o, quote(1390), nil, time.Now(), noTTL)
	if dec.Action != trigger.ActionFill {
		t.Fatalf("at/below limit: expected FILL, got %s", dec.Action)
	}
	// Fill at the trigger price, not the better market price.
	if !dec.Price.Equal(d(1400)) {
		t.Errorf("expected fill at limit 1400, got %s", dec.Price)
	}
}

func TestDecide_LimitSell(t *testing.T) {
	o := model.Order{Kind: model.KindLimit, Side: model.SideSell, TriggerPrice: d(1600)}

	if dec := trigger.Decide(o, quote(1550), nil, time.Now(), noTTL); dec.Action != trigger.ActionNone {
		t.Errorf("below limit: expected NONE, got %s", dec.Action)
	}

	dec := trigger.Decide(o, quote(1650), nil, time.Now(), noTTL)
	if dec.Action != trigger.ActionFill {
		t.Fatalf("expected FILL, got %s", dec.Action)
	}
	if !dec.Price.Equal(d(1600)) {
		t.Errorf("expected fill at limit 1600, got %s", dec.Price)
	}
}

// --- Fixed stop loss ---

func TestDecide_StopLossFixed(t *testing.T) {
	o := model.Order{Kind: model.KindStopLossFixed, Side: model.SideSell, TriggerPrice: d(1400)}

	if dec := trigger.Decide(o, quote(1450), nil, time.Now(), noTTL); dec.Action != trigger.ActionNone {
		t.Errorf("above stop: expected NONE, got %s", dec.Action)
	}

	dec := trigger.Decide(o, quote(1390), nil, time.Now(), noTTL)
	if dec.Action != trigger.ActionFill {
		t.Fatalf("expected FILL, got %s", dec.Action)
	}
	// Stop loss fills at the observed price, which may gap below the stop.
	if !dec.Price.Equal(d(1390)) {
		t.Errorf("expected fill at 1390, got %s", dec.Price)
	}
}

// --- Trailing stop ---

func TestDecide_TrailingStop_RatchetThenFill(t *testing.T) {
	o := model.Order{
		Kind:          model.KindTrailingStop,
		Side:          model.SideSell,
		TrailingPct:   d(5),
		HighWaterMark: d(1500),
	}

	// Price rises to 1600: mark ratchets, threshold becomes 1520, no fill.
	dec := trigger.Decide(o, quote(1600), nil, time.Now(), noTTL)
	if dec.Action != trigger.ActionNone {
		t.Fatalf("1600 > 1520 threshold: expected NONE, got %s", dec.Action)
	}
	if !dec.HighWaterMark.Equal(d(1600)) {
		t.Errorf("expected mark 1600, got %s", dec.HighWaterMark)
	}
	o.HighWaterMark = dec.HighWaterMark

	// Price falls to 1510 <= 1600·0.95 = 1520: fills at 1510.
	dec = trigger.Decide(o, quote(1510), nil, time.Now(), noTTL)
	if dec.Action != trigger.ActionFill {
		t.Fatalf("expected FILL, got %s", dec.Action)
	}
	if !dec.Price.Equal(d(1510)) {
		t.Errorf("expected fill at 1510, got %s", dec.Price)
	}
}

func TestDecide_TrailingStop_MarkNeverDecreases(t *testing.T) {
	o := model.Order{
		Kind:          model.KindTrailingStop,
		Side:          model.SideSell,
		TrailingPct:   d(50), // wide stop so nothing fills
		HighWaterMark: d(1000),
	}

	prices := []float64{1100, 1050, 1200, 900, 1150}
	mark := o.HighWaterMark
	for _, p := range prices {
		dec := trigger.Decide(o, quote(p), nil, time.Now(), noTTL)
		if dec.HighWaterMark.LessThan(mark) {
			t.Fatalf("mark decreased from %s to %s at price %.0f", mark, dec.HighWaterMark, p)
		}
		mark = dec.HighWaterMark
		o.HighWaterMark = mark
	}
	if !mark.Equal(d(1200)) {
		t.Errorf("expected final mark 1200, got %s", mark)
	}
}

// --- Conditional orders ---

func condOrder(short, long int, dir model.CrossDirection) model.Order {
	return model.Order{
		Kind:      model.KindConditional,
		Side:      model.SideSell,
		Condition: &model.Condition{ShortWindow: short, LongWindow: long, Direction: dir},
	}
}

func TestDecide_Conditional_CrossFires(t *testing.T) {
	snap := indicator.Snapshot{
		20: {Prev: d(101), Cur: d(99)},
		50: {Prev: d(100), Cur: d(100)},
	}
	dec := trigger.Decide(condOrder(20, 50, model.CrossBelow), quote(1450), snap, time.Now(), noTTL)
	if dec.Action != trigger.ActionFill {
		t.Fatalf("expected FILL on cross below, got %s", dec.Action)
	}
	if !dec.Price.Equal(d(1450)) {
		t.Errorf("conditional fills at quote price, got %s", dec.Price)
	}
}

func TestDecide_Conditional_NoSnapshotWaits(t *testing.T) {
	// Insufficient indicator history: wait, never cancel.
	dec := trigger.Decide(condOrder(20, 50, model.CrossAbove), quote(1450), nil, time.Now(), noTTL)
	if dec.Action != trigger.ActionNone {
		t.Errorf("expected NONE without indicator data, got %s", dec.Action)
	}
}

// --- TTL ---

func TestDecide_TTLExpiry(t *testing.T) {
	now := time.Now().UTC()
	o := model.Order{
		Kind:         model.KindLimit,
		Side:         model.SideBuy,
		TriggerPrice: d(1400),
		CreatedAt:    now.Add(-25 * time.Hour),
	}

	dec := trigger.Decide(o, quote(1390), nil, now, 24*time.Hour)
	if dec.Action != trigger.ActionExpire {
		t.Errorf("expected EXPIRE past TTL even when price would fill, got %s", dec.Action)
	}

	// Without a configured TTL, EXPIRE is never produced.
	dec = trigger.Decide(o, quote(1450), nil, now, noTTL)
	if dec.Action != trigger.ActionNone {
		t.Errorf("expected NONE with TTL disabled, got %s", dec.Action)
	}
}

// --- Order independence ---

func TestDecide_OrderIndependence(t *testing.T) {
	a := model.Order{Kind: model.KindStopLossFixed, Side: model.SideSell, TriggerPrice: d(1400)}
	b := model.Order{Kind: model.KindLimit, Side: model.SideSell, TriggerPrice: d(1380)}
	q := quote(1390)
	now := time.Now()

	firstA := trigger.Decide(a, q, nil, now, noTTL)
	firstB := trigger.Decide(b, q, nil, now, noTTL)

	// Evaluate in the other order: same pair of decisions.
	secondB := trigger.Decide(b, q, nil, now, noTTL)
	secondA := trigger.Decide(a, q, nil, now, noTTL)

	if firstA.Action != secondA.Action || firstB.Action != secondB.Action {
		t.Error("decisions must not depend on evaluation order")
	}
	if !firstA.Price.Equal(secondA.Price) || !firstB.Price.Equal(secondB.Price) {
		t.Error("fill prices must not depend on evaluation order")
	}
}
