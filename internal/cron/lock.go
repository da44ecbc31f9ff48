package cron

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockTTL = 25 * time.Hour

// Lock keeps two cron-worker replicas from running the same cycle.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// holderReporter is implemented by locks that can name the current holder.
type holderReporter interface {
	Holder(ctx context.Context) (string, error)
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	DeleteIfValue(ctx context.Context, key, want string) (bool, error)
}

// RedisLock holds key with the value "<instance>/<token>". Every Acquire
// draws a new token, so a release from an expired hold cannot free the
// lock another replica has since taken.
type RedisLock struct {
	store    lockStore
	key      string
	ttl      time.Duration
	instance string
	held     string
}

func NewRedisLock(store lockStore, key string, ttl time.Duration, instance string) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("cron lock: redis client required")
	case key == "":
		return nil, errors.New("cron lock: key required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if instance = strings.TrimSpace(instance); instance == "" {
		instance = "cron"
	}
	return &RedisLock{store: store, key: key, ttl: ttl, instance: instance}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	value := l.instance + "/" + uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, value, l.ttl)
	if err != nil {
		return false, fmt.Errorf("cron lock: acquire %s: %w", l.key, err)
	}
	if ok {
		l.held = value
	}
	return ok, nil
}

// Holder names the instance holding the lock, or "" when it is free.
func (l *RedisLock) Holder(ctx context.Context) (string, error) {
	value, err := l.store.Get(ctx, l.key)
	switch {
	case errors.Is(err, redis.Nil):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("cron lock: read holder: %w", err)
	}
	instance, _, _ := strings.Cut(value, "/")
	return instance, nil
}

// Release frees the lock if this instance still holds it. Releasing a lock
// that expired or was never taken is a no-op.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.held == "" {
		return nil
	}
	value := l.held
	l.held = ""
	if _, err := l.store.DeleteIfValue(ctx, l.key, value); err != nil {
		return fmt.Errorf("cron lock: release %s: %w", l.key, err)
	}
	return nil
}
