package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLeaseTTL = 10 * time.Minute

// Lock keeps replicas of the cron worker from running the same cycle.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// Lease is a Redis key holding a random token. Whoever wrote the token owns
// the cycle until Release or until the TTL runs out after a crash.
type Lease struct {
	store leaseStore
	key   string
	ttl   time.Duration
	token string
}

func NewLease(store leaseStore, key string, ttl time.Duration) (*Lease, error) {
	switch {
	case store == nil:
		return nil, errors.New("lease store is required")
	case key == "":
		return nil, errors.New("lease key is required")
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &Lease{store: store, key: key, ttl: ttl}, nil
}

func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	won, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", l.key, err)
	}
	if won {
		l.token = token
	}
	return won, nil
}

// Release drops the key only while it still carries our token. A lease that
// expired and was claimed by another replica is theirs now.
func (l *Lease) Release(ctx context.Context) error {
	token := l.token
	if token == "" {
		return nil
	}
	l.token = ""

	current, err := l.store.Get(ctx, l.key)
	if errors.Is(err, redis.Nil) || (err == nil && current != token) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", l.key, err)
	}
	if err := l.store.Del(ctx, l.key); err != nil {
		return fmt.Errorf("drop %s: %w", l.key, err)
	}
	return nil
}
