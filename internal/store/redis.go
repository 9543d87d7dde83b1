package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and refresh the cache; reads check
// Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (s *CachedStore) LoadUser(ctx context.Context, userID string) (*UserSnapshot, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, userKey(userID)).Bytes()
	if err == nil {
		var snap UserSnapshot
		if json.Unmarshal(data, &snap) == nil {
			return &snap, nil
		}
	}

	// Cache miss: read from primary.
	snap, err := s.primary.LoadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.cacheUser(ctx, snap)
	return snap, nil
}

func (s *CachedStore) SaveUser(ctx context.Context, snap *UserSnapshot) error {
	if err := s.primary.SaveUser(ctx, snap); err != nil {
		return err
	}
	// Invalidate rather than write the staged copy; next read re-populates
	// from the source of truth.
	s.rdb.Del(ctx, userKey(snap.Account.UserID))
	return nil
}

func (s *CachedStore) ListUsers(ctx context.Context) ([]string, error) {
	return s.primary.ListUsers(ctx)
}

func (s *CachedStore) DeleteUser(ctx context.Context, userID string) error {
	if err := s.primary.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.rdb.Del(ctx, userKey(userID))
	return nil
}

func (s *CachedStore) cacheUser(ctx context.Context, snap *UserSnapshot) {
	if data, err := json.Marshal(snap); err == nil {
		s.rdb.Set(ctx, userKey(snap.Account.UserID), data, s.ttl)
	}
}

func userKey(id string) string { return fmt.Sprintf("user:%s", id) }
