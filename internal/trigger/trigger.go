// Package trigger holds the pure decision logic for pending orders: given
// one order and one quote (plus an indicator snapshot for conditional
// orders), it decides fill, cancel, expire, or no-op. It never touches
// ledger state, so decisions for different orders on the same tick are
// independent of application order.
package trigger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tickersim/trade-engine/internal/indicator"
	"github.com/tickersim/trade-engine/internal/model"
)

// Action is the outcome of evaluating one order against one quote.
type Action int

const (
	ActionNone Action = iota
	ActionFill
	ActionCancel
	ActionExpire
)

func (a Action) String() string {
	switch a {
	case ActionFill:
		return "FILL"
	case ActionCancel:
		return "CANCEL"
	case ActionExpire:
		return "EXPIRE"
	default:
		return "NONE"
	}
}

// Decision carries the action, the fill price when Action is ActionFill,
// and the updated high-water mark for trailing stops. The mark must be
// written back by the caller even when the action is NONE: it ratchets
// upward on every tick and never decreases.
type Decision struct {
	Action        Action
	Price         decimal.Decimal
	HighWaterMark decimal.Decimal
}

var oneHundred = decimal.NewFromInt(100)

// Decide evaluates one pending order against a quote. ind may be nil for
// non-conditional orders. ttl of zero disables expiry; with a positive
// ttl, orders older than it expire before any price check.
func Decide(o model.Order, q model.Quote, ind indicator.Snapshot, now time.Time, ttl time.Duration) Decision {
	none := Decision{Action: ActionNone, HighWaterMark: o.HighWaterMark}

	if ttl > 0 && now.Sub(o.CreatedAt) >= ttl {
		return Decision{Action: ActionExpire, HighWaterMark: o.HighWaterMark}
	}

	switch o.Kind {
	case model.KindLimit:
		if o.Side == model.SideBuy && q.Price.LessThanOrEqual(o.TriggerPrice) {
			// Fill at the limit price, not the possibly better market
			// price: conservative semantics.
			return Decision{Action: ActionFill, Price: o.TriggerPrice}
		}
		if o.Side == model.SideSell && q.Price.GreaterThanOrEqual(o.TriggerPrice) {
			return Decision{Action: ActionFill, Price: o.TriggerPrice}
		}
		return none

	case model.KindStopLossFixed:
		if q.Price.LessThanOrEqual(o.TriggerPrice) {
			return Decision{Action: ActionFill, Price: q.Price}
		}
		return none

	case model.KindTrailingStop:
		// Ratchet first, then check: the mark must advance even on ticks
		// that do not fill.
		hwm := o.HighWaterMark
		if q.Price.GreaterThan(hwm) {
			hwm = q.Price
		}
		threshold := hwm.Mul(decimal.NewFromInt(1).Sub(o.TrailingPct.Div(oneHundred)))
		if q.Price.LessThanOrEqual(threshold) {
			return Decision{Action: ActionFill, Price: q.Price, HighWaterMark: hwm}
		}
		return Decision{Action: ActionNone, HighWaterMark: hwm}

	case model.KindConditional:
		if o.Condition == nil {
			return none
		}
		// Insufficient indicator history means wait, not cancel.
		if ind == nil {
			return none
		}
		if ind.Crossed(o.Condition.ShortWindow, o.Condition.LongWindow, o.Condition.Direction) {
			return Decision{Action: ActionFill, Price: q.Price}
		}
		return none

	default:
		// MARKET and PERCENT_SELL settle at placement and never reach the
		// pending queue.
		return none
	}
}
