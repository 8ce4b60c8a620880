package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
	// ErrNotOwner is returned when refreshing or releasing a lock held by someone else.
	ErrNotOwner = errors.New("cache: lock not held by owner")
)

// Service defines cache operations interface.
// Values are stored as JSON; strings are stored raw.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	Expire(ctx context.Context, key string, expiration time.Duration) (bool, error)
	TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	RefreshLock(ctx context.Context, key, owner string, ttl time.Duration) error
	Unlock(ctx context.Context, key, owner string) error
	Close() error
}

// Key joins parts with ':'.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
