package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, time.Minute), mr
}

func TestRedisLockerReleasesAfterRun(t *testing.T) {
	locker, mr := newTestLocker(t)
	key := PaymentLockKey(7, 42)

	ran := false
	err := locker.WithLock(context.Background(), key, func(ctx context.Context) error {
		ran = true
		require.True(t, mr.Exists(key))
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)
	require.False(t, mr.Exists(key))
}

func TestRedisLockerRejectsConcurrentHolder(t *testing.T) {
	locker, _ := newTestLocker(t)
	key := BankAccountLockKey(7, 3)

	err := locker.WithLock(context.Background(), key, func(ctx context.Context) error {
		inner := locker.WithLock(ctx, key, func(context.Context) error {
			t.Fatal("inner critical section must not run")
			return nil
		})
		require.ErrorIs(t, inner, ErrLocked)
		return nil
	})
	require.NoError(t, err)
}

func TestRedisLockerPropagatesError(t *testing.T) {
	locker, mr := newTestLocker(t)
	key := PaymentLockKey(1, 1)
	boom := errors.New("boom")

	err := locker.WithLock(context.Background(), key, func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists(key))
}

func TestRedisLockerKeepsForeignToken(t *testing.T) {
	locker, mr := newTestLocker(t)
	key := PaymentLockKey(1, 2)

	err := locker.WithLock(context.Background(), key, func(context.Context) error {
		// Simulate expiry followed by another holder taking the key.
		require.NoError(t, mr.Set(key, "other-holder"))
		return nil
	})
	require.NoError(t, err)
	got, err := mr.Get(key)
	require.NoError(t, err)
	require.Equal(t, "other-holder", got)
}

func TestNilLockerRunsUnguarded(t *testing.T) {
	var locker *RedisLocker
	ran := false
	require.NoError(t, locker.WithLock(context.Background(), "k", func(context.Context) error {
		ran = true
		return nil
	}))
	require.True(t, ran)
}
