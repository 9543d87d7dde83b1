// Package model defines the core domain types shared across the trade engine.
// All monetary values use shopspring/decimal, never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Kind identifies the order variant. The set is closed: the trigger
// evaluator matches on it exhaustively.
type Kind string

const (
	KindMarket        Kind = "MARKET"
	KindLimit         Kind = "LIMIT"
	KindPercentSell   Kind = "PERCENT_SELL"
	KindStopLossFixed Kind = "STOP_LOSS_FIXED"
	KindTrailingStop  Kind = "TRAILING_STOP"
	KindConditional   Kind = "CONDITIONAL"
)

// Status is the lifecycle state of an order. Transitions are strictly
// PENDING → {FILLED, CANCELLED, EXPIRED}; resolved orders are immutable
// and retained for audit.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusFilled    Status = "FILLED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// Resolved reports whether the status is terminal.
func (s Status) Resolved() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusExpired
}

// CrossDirection selects which way a conditional order's crossover must
// resolve before it fires.
type CrossDirection string

const (
	CrossAbove CrossDirection = "ABOVE"
	CrossBelow CrossDirection = "BELOW"
)

// Condition describes an indicator comparison for CONDITIONAL orders:
// SMA(ShortWindow) crossing Direction over SMA(LongWindow). A ShortWindow
// of zero means the raw close price is compared against SMA(LongWindow).
type Condition struct {
	ShortWindow int            `json:"short_window"`
	LongWindow  int            `json:"long_window"`
	Direction   CrossDirection `json:"direction"`
}

// Holding is one symbol's position inside an account. Shares is a whole
// number; AvgCost is the weighted average purchase price.
type Holding struct {
	Shares  int64           `json:"shares"`
	AvgCost decimal.Decimal `json:"avg_cost"`
}

// Account owns a user's cash balance and holdings.
// Invariants: CashBalance >= 0, every Holding.Shares >= 0, and entries
// with zero shares are removed from the map.
type Account struct {
	UserID      string             `json:"user_id"`
	CashBalance decimal.Decimal    `json:"cash_balance"`
	Holdings    map[string]Holding `json:"holdings"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Clone returns a deep copy so staged mutations never leak into committed
// state.
func (a Account) Clone() Account {
	out := a
	out.Holdings = make(map[string]Holding, len(a.Holdings))
	for sym, h := range a.Holdings {
		out.Holdings[sym] = h
	}
	return out
}

// Order is a standing instruction against the account. Resolved orders
// keep their terminal status, fill price, and resolution time for audit.
type Order struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`
	Symbol string `json:"symbol" db:"symbol"`
	Side   Side   `json:"side" db:"side"`
	Kind   Kind   `json:"kind" db:"kind"`

	Quantity int64 `json:"quantity" db:"quantity"`

	// Percent is the holding fraction for PERCENT_SELL, in (0, 100].
	Percent decimal.Decimal `json:"percent,omitempty" db:"percent"`

	// TriggerPrice is the limit price for LIMIT and the stop price for
	// STOP_LOSS_FIXED.
	TriggerPrice decimal.Decimal `json:"trigger_price,omitempty" db:"trigger_price"`

	// TrailingPct and HighWaterMark are TRAILING_STOP state. The mark is
	// initialised to the quote price at creation and only ratchets upward.
	TrailingPct   decimal.Decimal `json:"trailing_pct,omitempty" db:"trailing_pct"`
	HighWaterMark decimal.Decimal `json:"high_water_mark,omitempty" db:"high_water_mark"`

	Condition *Condition `json:"condition,omitempty"`

	Status     Status          `json:"status" db:"status"`
	FillPrice  decimal.Decimal `json:"fill_price,omitempty" db:"fill_price"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty" db:"resolved_at"`
}

// Clone returns a deep copy of the order, including condition and
// resolution metadata.
func (o Order) Clone() Order {
	out := o
	if o.Condition != nil {
		c := *o.Condition
		out.Condition = &c
	}
	if o.ResolvedAt != nil {
		t := *o.ResolvedAt
		out.ResolvedAt = &t
	}
	return out
}

// Quote is a point-in-time price observation for a symbol.
type Quote struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	PrevClose decimal.Decimal `json:"prev_close"`
	Timestamp time.Time       `json:"timestamp"`
}

// Candle is one OHLCV bar of a historical series, oldest-first in slices.
type Candle struct {
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// FillEvent is an immutable record of an order execution. Once created,
// these are never modified.
type FillEvent struct {
	ID       string          `json:"id"`
	OrderID  string          `json:"order_id"`
	UserID   string          `json:"user_id"`
	Symbol   string          `json:"symbol"`
	Side     Side            `json:"side"`
	Kind     Kind            `json:"kind"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Notional decimal.Decimal `json:"notional"`
	At       time.Time       `json:"at"`
}

// LeaderboardEntry ranks one account by net worth. Recomputed on demand,
// never incrementally maintained.
type LeaderboardEntry struct {
	Rank     int             `json:"rank"`
	UserID   string          `json:"user_id"`
	NetWorth decimal.Decimal `json:"net_worth"`
}
