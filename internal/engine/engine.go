// Package engine owns account and order state. It applies placements,
// cancellations, and tick evaluations against staged copies of user
// snapshots and commits them only after the store accepts the write, so
// in-memory state never runs ahead of persistence.
//
// All monetary values use shopspring/decimal, never float64 for money.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tickersim/trade-engine/internal/feed"
	"github.com/tickersim/trade-engine/internal/model"
	"github.com/tickersim/trade-engine/internal/store"
)

var oneHundred = decimal.NewFromInt(100)

var (
	// ErrInvalidOrder is returned when a placement request fails
	// validation before touching any state.
	ErrInvalidOrder = errors.New("engine: invalid order")

	// ErrOrderNotFound is returned when a cancel names an unknown order.
	ErrOrderNotFound = errors.New("engine: order not found")

	// ErrAlreadyResolved is returned when a cancel names an order that
	// has already filled, cancelled, or expired.
	ErrAlreadyResolved = errors.New("engine: order already resolved")

	// ErrPersistence wraps store failures. State visible to callers is
	// rolled back whenever this is returned.
	ErrPersistence = errors.New("engine: persistence failure")
)

// Config carries the tunables the engine needs at construction.
type Config struct {
	// StartingCash is granted to accounts created on first touch.
	StartingCash decimal.Decimal

	// OrderTTL expires pending orders older than it. Zero disables
	// expiry.
	OrderTTL time.Duration

	// HistoryBars is how many candles to request when evaluating
	// conditional orders.
	HistoryBars int
}

// Engine is the order and portfolio state machine. One instance owns all
// user state; per-user locks serialize mutations so different users
// proceed in parallel.
type Engine struct {
	store store.Store
	feed  feed.Quoter
	log   *slog.Logger
	cfg   Config

	mu    sync.Mutex
	users map[string]*store.UserSnapshot
	locks map[string]*sync.Mutex
}

// New loads every persisted user into memory and returns a ready engine.
func New(ctx context.Context, st store.Store, quoter feed.Quoter, cfg Config, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.StartingCash.LessThanOrEqual(decimal.Zero) {
		cfg.StartingCash = decimal.NewFromInt(10000)
	}
	if cfg.HistoryBars <= 0 {
		cfg.HistoryBars = 60
	}

	e := &Engine{
		store: st,
		feed:  quoter,
		log:   log,
		cfg:   cfg,
		users: make(map[string]*store.UserSnapshot),
		locks: make(map[string]*sync.Mutex),
	}

	ids, err := st.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	for _, id := range ids {
		snap, err := st.LoadUser(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load user %s: %w", id, err)
		}
		e.users[id] = snap
	}
	log.Info("engine loaded", "users", len(ids))
	return e, nil
}

// userLock returns the mutex serializing one user's mutations.
func (e *Engine) userLock(userID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[userID] = l
	}
	return l
}

// snapshot returns the committed snapshot for a user, or nil.
func (e *Engine) snapshot(userID string) *store.UserSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.users[userID]
}

// commit publishes a staged snapshot after the store accepted it.
func (e *Engine) commit(snap *store.UserSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.users[snap.Account.UserID] = snap
}

// stage returns a deep copy of the user's state to mutate, creating the
// account on first touch. Caller must hold the user lock.
func (e *Engine) stage(ctx context.Context, userID string) (*store.UserSnapshot, error) {
	if snap := e.snapshot(userID); snap != nil {
		return snap.Clone(), nil
	}

	snap := &store.UserSnapshot{
		Account: model.Account{
			UserID:      userID,
			CashBalance: e.cfg.StartingCash,
			Holdings:    make(map[string]model.Holding),
			CreatedAt:   time.Now().UTC(),
		},
	}
	if err := e.store.SaveUser(ctx, snap); err != nil {
		return nil, fmt.Errorf("%w: create user %s: %v", ErrPersistence, userID, err)
	}
	e.commit(snap.Clone())
	e.log.Info("account created", "user", userID, "starting_cash", e.cfg.StartingCash.String())
	return snap, nil
}

// persist saves the staged snapshot and commits it on success.
func (e *Engine) persist(ctx context.Context, snap *store.UserSnapshot) error {
	if err := e.store.SaveUser(ctx, snap); err != nil {
		return fmt.Errorf("%w: save user %s: %v", ErrPersistence, snap.Account.UserID, err)
	}
	e.commit(snap)
	return nil
}

// Account returns a copy of the user's account, creating it on first
// touch.
func (e *Engine) Account(ctx context.Context, userID string) (model.Account, error) {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	snap, err := e.stage(ctx, userID)
	if err != nil {
		return model.Account{}, err
	}
	return snap.Account, nil
}

// Orders returns the user's orders, pending first, then resolved, each
// group ordered oldest first.
func (e *Engine) Orders(_ context.Context, userID string) ([]model.Order, error) {
	snap := e.snapshot(userID)
	if snap == nil {
		return nil, store.ErrUserNotFound
	}

	orders := make([]model.Order, len(snap.Orders))
	for i, o := range snap.Orders {
		orders[i] = o.Clone()
	}
	sort.SliceStable(orders, func(i, j int) bool {
		ri, rj := orders[i].Status.Resolved(), orders[j].Status.Resolved()
		if ri != rj {
			return !ri
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders, nil
}

// Users returns every known user ID.
func (e *Engine) Users(context.Context) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.users))
	for id := range e.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Symbols returns every symbol referenced by a holding or a pending
// order, so the caller can keep the price feed tracking all of them.
func (e *Engine) Symbols() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	set := make(map[string]struct{})
	for _, snap := range e.users {
		for sym := range snap.Account.Holdings {
			set[sym] = struct{}{}
		}
		for _, o := range snap.Orders {
			if o.Status == model.StatusPending {
				set[o.Symbol] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for sym := range set {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns a deep copy of one user's full state.
func (e *Engine) Snapshot(userID string) (*store.UserSnapshot, error) {
	snap := e.snapshot(userID)
	if snap == nil {
		return nil, store.ErrUserNotFound
	}
	return snap.Clone(), nil
}

// Snapshots returns deep copies of every user's state, sorted by user ID.
func (e *Engine) Snapshots() []*store.UserSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*store.UserSnapshot, 0, len(e.users))
	for _, snap := range e.users {
		out = append(out, snap.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Account.UserID < out[j].Account.UserID
	})
	return out
}

func newOrderID() string { return uuid.New().String() }
