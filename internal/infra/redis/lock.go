package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrLockLost is returned when the lock expired or was taken by another owner.
var ErrLockLost = errors.New("lock lost")

const (
	refreshScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("PEXPIRE", KEYS[1], ARGV[2]) else return 0 end`
	releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`
)

// Lock is a single-owner lease on a key.
type Lock struct {
	rdb   commands
	key   string
	ttl   time.Duration
	token string
}

func newLock(rdb commands, key string, ttl time.Duration) *Lock {
	return &Lock{rdb: rdb, key: key, ttl: ttl, token: uuid.NewString()}
}

// TTL returns the lease duration.
func (l *Lock) TTL() time.Duration {
	return l.ttl
}

// Acquire attempts to take the lock.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// Refresh extends the lease. It fails with ErrLockLost if we no longer own it.
func (l *Lock) Refresh(ctx context.Context) error {
	n, err := l.rdb.Eval(ctx, refreshScript, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrLockLost, l.key)
	}
	return nil
}

// Release deletes the key if we still own it.
func (l *Lock) Release(ctx context.Context) error {
	if err := l.rdb.Eval(ctx, releaseScript, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release failed: %w", err)
	}
	return nil
}

// Wait blocks until the lock is acquired, polling every interval.
func (l *Lock) Wait(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		ok, err := l.Acquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Keep refreshes the lease every third of its TTL until ctx is done or the
// lock is lost.
func (l *Lock) Keep(ctx context.Context) error {
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := l.Refresh(ctx); err != nil && ctx.Err() == nil {
				return err
			}
		}
	}
}
