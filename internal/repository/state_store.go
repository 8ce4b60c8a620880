package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"SignalGate/internal/domain/models"
	"SignalGate/internal/domain/repository"
	"SignalGate/pkg/cache"
)

var ErrStateNotFound = errors.New("state not found")

// CacheStateStore keeps SymbolState and trading locks in a cache.Service.
// All locks taken through one store share a per-process owner token.
type CacheStateStore struct {
	cache    cache.Service
	owner    string
	stateTTL time.Duration
}

// NewCacheStateStore creates a state store; stateTTL <= 0 keeps state for a day.
func NewCacheStateStore(c cache.Service, stateTTL time.Duration) repository.StateStore {
	return newCacheStateStore(c, stateTTL, uuid.NewString())
}

func newCacheStateStore(c cache.Service, stateTTL time.Duration, owner string) *CacheStateStore {
	if stateTTL <= 0 {
		stateTTL = 24 * time.Hour
	}
	return &CacheStateStore{cache: c, owner: owner, stateTTL: stateTTL}
}

func stateKey(symbol string) string { return cache.Key("state", symbol) }
func lockKey(symbol string) string  { return cache.Key("lock", symbol) }

func (s *CacheStateStore) SaveState(ctx context.Context, st models.SymbolState) error {
	if err := s.cache.Set(ctx, stateKey(st.Symbol), st, s.stateTTL); err != nil {
		return fmt.Errorf("save state %s: %w", st.Symbol, err)
	}
	return nil
}

func (s *CacheStateStore) LoadState(ctx context.Context, symbol string) (models.SymbolState, error) {
	var st models.SymbolState
	if err := s.cache.Get(ctx, stateKey(symbol), &st); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return st, ErrStateNotFound
		}
		return st, fmt.Errorf("load state %s: %w", symbol, err)
	}
	return st, nil
}

func (s *CacheStateStore) AcquireLock(ctx context.Context, symbol string, ttl time.Duration) (bool, error) {
	ok, err := s.cache.TryLock(ctx, lockKey(symbol), s.owner, ttl)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	// already ours: extend instead of reporting contention
	err = s.cache.RefreshLock(ctx, lockKey(symbol), s.owner, ttl)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, cache.ErrNotOwner):
		return false, nil
	default:
		return false, err
	}
}

func (s *CacheStateStore) RefreshLock(ctx context.Context, symbol string, ttl time.Duration) error {
	return s.cache.RefreshLock(ctx, lockKey(symbol), s.owner, ttl)
}

func (s *CacheStateStore) ReleaseLock(ctx context.Context, symbol string) error {
	err := s.cache.Unlock(ctx, lockKey(symbol), s.owner)
	if errors.Is(err, cache.ErrNotOwner) {
		return nil
	}
	return err
}
