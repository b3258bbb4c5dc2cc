package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// WalletLock implements ports.WalletLocker using Redis SET NX with a TTL.
// The TTL bounds how long a crashed holder can keep the wallet marked
// busy; once it expires the lock simply ceases to exist.
type WalletLock struct {
	client *goredis.Client
	prefix string
}

// NewWalletLock creates a new Redis-backed wallet lock.
func NewWalletLock(client *goredis.Client) *WalletLock {
	return &WalletLock{
		client: client,
		prefix: "wallet:lock:",
	}
}

func (l *WalletLock) key(userID uuid.UUID) string {
	return l.prefix + userID.String()
}

// Acquire atomically takes the lock if it is free. Returns false if the
// lock is currently held by another operation.
func (l *WalletLock) Acquire(ctx context.Context, userID uuid.UUID, ttl time.Duration) (bool, error) {
	result, err := l.client.SetArgs(ctx, l.key(userID), 1, goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			// Key already exists — lock is held
			return false, nil
		}
		return false, fmt.Errorf("redis lock acquire: %w", err)
	}
	return result == "OK", nil
}

// Release drops the lock. Releasing an expired or never-held lock is a
// no-op.
func (l *WalletLock) Release(ctx context.Context, userID uuid.UUID) error {
	if err := l.client.Del(ctx, l.key(userID)).Err(); err != nil {
		return fmt.Errorf("redis lock release: %w", err)
	}
	return nil
}

// IsLocked reports whether the lock is currently held.
func (l *WalletLock) IsLocked(ctx context.Context, userID uuid.UUID) (bool, error) {
	n, err := l.client.Exists(ctx, l.key(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock check: %w", err)
	}
	return n > 0, nil
}
