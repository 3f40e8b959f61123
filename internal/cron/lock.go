package cron

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const defaultLockTTL = 55 * time.Second

// Lock makes a cycle exclusive across worker instances.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfEquals(ctx context.Context, key, want string) (bool, error)
}

// RedisLock is a SETNX lock whose value is the worker instance id. The TTL
// should stay below the cycle interval so a crashed holder never blocks more
// than one cycle.
type RedisLock struct {
	store  lockStore
	key    string
	holder string
	ttl    time.Duration
	held   bool
}

// NewRedisLock builds a lock on key owned by holder.
func NewRedisLock(store lockStore, key, holder string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("redis store required for cron lock")
	case key == "":
		return nil, errors.New("cron lock key required")
	case holder == "":
		return nil, errors.New("cron lock holder required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, holder: holder, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.store.SetNX(ctx, l.key, l.holder, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire cron lock: %w", err)
	}
	l.held = ok
	return ok, nil
}

// Release deletes the key only while this holder still owns it; an expired
// lock taken over by another instance is left alone.
func (l *RedisLock) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}
	l.held = false
	if _, err := l.store.DelIfEquals(ctx, l.key, l.holder); err != nil {
		return fmt.Errorf("release cron lock: %w", err)
	}
	return nil
}
