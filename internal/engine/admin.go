package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tickersim/trade-engine/internal/model"
	"github.com/tickersim/trade-engine/internal/store"
)

// ResetUser wipes a user back to a fresh account with starting cash. No
// holdings, no orders.
func (e *Engine) ResetUser(ctx context.Context, userID string) error {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if e.snapshot(userID) == nil {
		return store.ErrUserNotFound
	}

	snap := &store.UserSnapshot{
		Account: model.Account{
			UserID:      userID,
			CashBalance: e.cfg.StartingCash,
			Holdings:    make(map[string]model.Holding),
			CreatedAt:   time.Now().UTC(),
		},
	}
	if err := e.persist(ctx, snap); err != nil {
		return err
	}
	e.log.Info("user reset", "user", userID)
	return nil
}

// SetBalance overwrites a user's cash balance.
func (e *Engine) SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return fmt.Errorf("%w: balance must not be negative", ErrInvalidOrder)
	}

	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	committed := e.snapshot(userID)
	if committed == nil {
		return store.ErrUserNotFound
	}
	snap := committed.Clone()
	snap.Account.CashBalance = balance

	if err := e.persist(ctx, snap); err != nil {
		return err
	}
	e.log.Info("balance set", "user", userID, "balance", balance.String())
	return nil
}

// ClearOrders cancels every pending order a user has and returns the
// count. Resolved orders keep their history.
func (e *Engine) ClearOrders(ctx context.Context, userID string) (int, error) {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	committed := e.snapshot(userID)
	if committed == nil {
		return 0, store.ErrUserNotFound
	}
	snap := committed.Clone()

	now := time.Now().UTC()
	cleared := 0
	for i := range snap.Orders {
		if snap.Orders[i].Status == model.StatusPending {
			e.resolve(&snap.Orders[i], model.StatusCancelled, now)
			cleared++
		}
	}
	if cleared == 0 {
		return 0, nil
	}

	if err := e.persist(ctx, snap); err != nil {
		return 0, err
	}
	e.log.Info("orders cleared", "user", userID, "count", cleared)
	return cleared, nil
}

// DeleteUser removes a user entirely, from the store and from memory.
func (e *Engine) DeleteUser(ctx context.Context, userID string) error {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := e.store.DeleteUser(ctx, userID); err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.users, userID)
	e.mu.Unlock()

	e.log.Info("user deleted", "user", userID)
	return nil
}
