// Package store defines the persistence interface for the trade engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/tickersim/trade-engine/internal/model"
)

// ErrUserNotFound is returned when no snapshot exists for a user ID.
var ErrUserNotFound = errors.New("store: user not found")

// UserSnapshot is the unit of persistence: one user's account together
// with every order they have placed. SaveUser writes the whole snapshot
// atomically so the account and its orders never diverge on disk.
type UserSnapshot struct {
	Account model.Account `json:"account"`
	Orders  []model.Order `json:"orders"`
}

// Clone returns a deep copy so callers can mutate staged state without
// touching the original.
func (s *UserSnapshot) Clone() *UserSnapshot {
	out := &UserSnapshot{Account: s.Account.Clone()}
	if s.Orders != nil {
		out.Orders = make([]model.Order, len(s.Orders))
		for i, o := range s.Orders {
			out.Orders[i] = o.Clone()
		}
	}
	return out
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// LoadUser retrieves a user's snapshot, or ErrUserNotFound.
	LoadUser(ctx context.Context, userID string) (*UserSnapshot, error)

	// SaveUser persists the full snapshot atomically, replacing any
	// previous state for the user.
	SaveUser(ctx context.Context, snap *UserSnapshot) error

	// ListUsers returns the IDs of every persisted user.
	ListUsers(ctx context.Context) ([]string, error)

	// DeleteUser removes a user's snapshot. Deleting an unknown user
	// returns ErrUserNotFound.
	DeleteUser(ctx context.Context, userID string) error
}
