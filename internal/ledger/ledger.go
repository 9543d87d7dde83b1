// Package ledger implements the account ledger: atomic cash and share
// movements with conservation checks. Operations mutate an Account value
// in place; callers that need transactional semantics stage the ops on a
// Clone and commit only after every step (and the persistence write)
// succeeds.
//
// All monetary values use shopspring/decimal, never float64 for money.
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tickersim/trade-engine/internal/model"
)

var (
	// ErrInsufficientFunds is returned when a debit exceeds the cash balance.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrInsufficientShares is returned when a share removal exceeds the
	// held quantity.
	ErrInsufficientShares = errors.New("ledger: insufficient shares")

	// ErrInvalidAmount is returned for negative cash amounts or
	// non-positive share quantities.
	ErrInvalidAmount = errors.New("ledger: invalid amount")
)

// Debit decreases the cash balance. The balance never goes negative: a
// debit larger than the balance fails and leaves the account unchanged.
func Debit(a *model.Account, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: debit %s", ErrInvalidAmount, amount)
	}
	if amount.GreaterThan(a.CashBalance) {
		return fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, amount, a.CashBalance)
	}
	a.CashBalance = a.CashBalance.Sub(amount)
	return nil
}

// Credit increases the cash balance. It only fails on a negative amount.
func Credit(a *model.Account, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: credit %s", ErrInvalidAmount, amount)
	}
	a.CashBalance = a.CashBalance.Add(amount)
	return nil
}

// AddShares adds qty shares of symbol bought at price, recomputing the
// average cost as the weighted average of the prior holding and the new
// lot:
//
//	avgCost' = (shares·avgCost + qty·price) / (shares + qty)
func AddShares(a *model.Account, symbol string, qty int64, price decimal.Decimal) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity %d", ErrInvalidAmount, qty)
	}
	if a.Holdings == nil {
		a.Holdings = make(map[string]model.Holding)
	}

	h, ok := a.Holdings[symbol]
	if !ok {
		a.Holdings[symbol] = model.Holding{Shares: qty, AvgCost: price}
		return nil
	}

	oldShares := decimal.NewFromInt(h.Shares)
	newShares := decimal.NewFromInt(h.Shares + qty)
	lotCost := price.Mul(decimal.NewFromInt(qty))
	h.AvgCost = h.AvgCost.Mul(oldShares).Add(lotCost).Div(newShares)
	h.Shares += qty
	a.Holdings[symbol] = h
	return nil
}

// RemoveShares removes qty shares of symbol. The average cost is left
// unchanged; the holding entry is deleted once shares reach zero.
func RemoveShares(a *model.Account, symbol string, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity %d", ErrInvalidAmount, qty)
	}
	h, ok := a.Holdings[symbol]
	if !ok || qty > h.Shares {
		return fmt.Errorf("%w: %s, need %d, have %d", ErrInsufficientShares, symbol, qty, h.Shares)
	}
	h.Shares -= qty
	if h.Shares == 0 {
		delete(a.Holdings, symbol)
	} else {
		a.Holdings[symbol] = h
	}
	return nil
}

// ApplyBuy settles a buy fill as one unit: debit notional, add shares.
// On failure the account is untouched (the debit is the only fallible
// step and runs first).
func ApplyBuy(a *model.Account, symbol string, qty int64, price decimal.Decimal) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity %d", ErrInvalidAmount, qty)
	}
	notional := price.Mul(decimal.NewFromInt(qty))
	if err := Debit(a, notional); err != nil {
		return err
	}
	if err := AddShares(a, symbol, qty, price); err != nil {
		// Undo the debit so a rejected fill leaves no partial state.
		a.CashBalance = a.CashBalance.Add(notional)
		return err
	}
	return nil
}

// ApplySell settles a sell fill as one unit: remove shares, credit
// notional. On failure the account is untouched.
func ApplySell(a *model.Account, symbol string, qty int64, price decimal.Decimal) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity %d", ErrInvalidAmount, qty)
	}
	if err := RemoveShares(a, symbol, qty); err != nil {
		return err
	}
	return Credit(a, price.Mul(decimal.NewFromInt(qty)))
}
