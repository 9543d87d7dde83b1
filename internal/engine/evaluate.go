package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tickersim/trade-engine/internal/indicator"
	"github.com/tickersim/trade-engine/internal/ledger"
	"github.com/tickersim/trade-engine/internal/model"
	"github.com/tickersim/trade-engine/internal/store"
	"github.com/tickersim/trade-engine/internal/trigger"
)

// EvaluateAll runs one evaluation pass over every user's pending orders
// against the given tick-start quotes. Decisions are computed from the
// quotes alone, so the outcome does not depend on the order users or
// orders are visited in. Users whose state changed are persisted one at
// a time; a store failure rolls that user back and the pass continues.
func (e *Engine) EvaluateAll(ctx context.Context, quotes map[string]model.Quote) []model.FillEvent {
	now := time.Now().UTC()
	snapshots := e.indicatorSnapshots(ctx, quotes)

	var fills []model.FillEvent
	for _, userID := range e.Users(ctx) {
		fills = append(fills, e.evaluateUser(ctx, userID, quotes, snapshots, now)...)
	}
	return fills
}

// indicatorSnapshots computes one SMA snapshot per symbol that has at
// least one pending conditional order, so history is fetched once per
// symbol per pass.
func (e *Engine) indicatorSnapshots(ctx context.Context, quotes map[string]model.Quote) map[string]indicator.Snapshot {
	windows := make(map[string]map[int]struct{})

	e.mu.Lock()
	for _, snap := range e.users {
		for _, o := range snap.Orders {
			if o.Status != model.StatusPending || o.Kind != model.KindConditional || o.Condition == nil {
				continue
			}
			if _, ok := quotes[o.Symbol]; !ok {
				continue
			}
			w, ok := windows[o.Symbol]
			if !ok {
				w = make(map[int]struct{})
				windows[o.Symbol] = w
			}
			w[o.Condition.ShortWindow] = struct{}{}
			w[o.Condition.LongWindow] = struct{}{}
		}
	}
	e.mu.Unlock()

	out := make(map[string]indicator.Snapshot, len(windows))
	for sym, wset := range windows {
		ws := make([]int, 0, len(wset))
		maxW := 0
		for w := range wset {
			ws = append(ws, w)
			if w > maxW {
				maxW = w
			}
		}
		bars := e.cfg.HistoryBars
		if maxW+1 > bars {
			bars = maxW + 1
		}
		candles, err := e.feed.GetHistory(ctx, sym, bars)
		if err != nil {
			e.log.Warn("history unavailable", "symbol", sym, "error", err)
			continue
		}
		snap, ok := indicator.SnapshotFor(candles, ws)
		if !ok {
			// Not enough bars yet. Conditional orders on this symbol
			// simply wait.
			continue
		}
		out[sym] = snap
	}
	return out
}

// evaluateUser applies one pass to a single user under their lock.
func (e *Engine) evaluateUser(ctx context.Context, userID string, quotes map[string]model.Quote, snapshots map[string]indicator.Snapshot, now time.Time) []model.FillEvent {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	committed := e.snapshot(userID)
	if committed == nil {
		return nil
	}
	snap := committed.Clone()

	var fills []model.FillEvent
	dirty := false

	for i := range snap.Orders {
		o := &snap.Orders[i]
		if o.Status != model.StatusPending {
			continue
		}
		q, ok := quotes[o.Symbol]
		if !ok {
			// No price this tick: the order waits.
			continue
		}

		dec := trigger.Decide(*o, q, snapshots[o.Symbol], now, e.cfg.OrderTTL)

		if o.Kind == model.KindTrailingStop && !dec.HighWaterMark.Equal(o.HighWaterMark) {
			o.HighWaterMark = dec.HighWaterMark
			dirty = true
		}

		switch dec.Action {
		case trigger.ActionFill:
			if fill := e.applyFill(snap, o, dec.Price, now); fill != nil {
				fills = append(fills, *fill)
			}
			dirty = true
		case trigger.ActionCancel:
			e.resolve(o, model.StatusCancelled, now)
			dirty = true
		case trigger.ActionExpire:
			e.resolve(o, model.StatusExpired, now)
			dirty = true
			e.log.Info("order expired", "order_id", o.ID, "user", userID, "symbol", o.Symbol)
		}
	}

	if !dirty {
		return nil
	}
	if err := e.persist(ctx, snap); err != nil {
		// Committed state is untouched; the next pass retries.
		e.log.Error("evaluation persist failed", "user", userID, "error", err)
		return nil
	}
	return fills
}

func (e *Engine) resolve(o *model.Order, status model.Status, now time.Time) {
	o.Status = status
	t := now
	o.ResolvedAt = &t
}

// applyFill settles a triggered order against the staged account. A fill
// the account can no longer honor, because the shares were sold or the
// cash was spent since placement, cancels the order instead.
func (e *Engine) applyFill(snap *store.UserSnapshot, o *model.Order, price decimal.Decimal, now time.Time) *model.FillEvent {
	var err error
	if o.Side == model.SideBuy {
		err = ledger.ApplyBuy(&snap.Account, o.Symbol, o.Quantity, price)
	} else {
		err = ledger.ApplySell(&snap.Account, o.Symbol, o.Quantity, price)
	}
	if err != nil {
		e.resolve(o, model.StatusCancelled, now)
		e.log.Warn("triggered order no longer fundable, cancelled",
			"order_id", o.ID, "user", o.UserID, "symbol", o.Symbol, "error", err)
		return nil
	}

	e.resolve(o, model.StatusFilled, now)
	o.FillPrice = price

	e.log.Info("order filled",
		"order_id", o.ID,
		"user", o.UserID,
		"symbol", o.Symbol,
		"side", o.Side,
		"kind", o.Kind,
		"qty", o.Quantity,
		"price", price.String(),
	)
	return &model.FillEvent{
		ID:       newOrderID(),
		OrderID:  o.ID,
		UserID:   o.UserID,
		Symbol:   o.Symbol,
		Side:     o.Side,
		Kind:     o.Kind,
		Quantity: o.Quantity,
		Price:    price,
		Notional: price.Mul(decimal.NewFromInt(o.Quantity)),
		At:       now,
	}
}
