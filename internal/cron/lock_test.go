package cron

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	values map[string]string
}

func newMemoryStore() *memoryStore { return &memoryStore{values: map[string]string{}} }

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	value, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func TestLeaseExcludesSecondReplica(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	first, err := NewLease(store, "pd:lock:cron-worker", time.Minute)
	require.NoError(t, err)
	second, err := NewLease(store, "pd:lock:cron-worker", time.Minute)
	require.NoError(t, err)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	// a non-owner release leaves the lease in place
	require.NoError(t, second.Release(ctx))
	require.Contains(t, store.values, "pd:lock:cron-worker")

	require.NoError(t, first.Release(ctx))
	require.NotContains(t, store.values, "pd:lock:cron-worker")

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLeaseKeepsTakenOverKey(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	lock, err := NewLease(store, "pd:lock:cron-worker", time.Minute)
	require.NoError(t, err)

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	store.values["pd:lock:cron-worker"] = "someone-else"
	require.NoError(t, lock.Release(ctx))
	require.Equal(t, "someone-else", store.values["pd:lock:cron-worker"])
}

func TestNewLeaseDefaults(t *testing.T) {
	_, err := NewLease(nil, "k", time.Minute)
	require.Error(t, err)
	_, err = NewLease(newMemoryStore(), "", time.Minute)
	require.Error(t, err)

	lock, err := NewLease(newMemoryStore(), "k", 0)
	require.NoError(t, err)
	require.Equal(t, defaultLeaseTTL, lock.ttl)
}
