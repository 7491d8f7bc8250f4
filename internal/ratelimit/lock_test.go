package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newLockRig(t *testing.T) (*SweepLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSweepLocker(client), mr
}

func TestSweepLockMutualExclusion(t *testing.T) {
	locker, _ := newLockRig(t)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "reanalysis", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, lease)

	second, err := locker.Acquire(ctx, "reanalysis", time.Minute)
	require.NoError(t, err)
	require.Nil(t, second)

	// a different sweep is unaffected
	other, err := locker.Acquire(ctx, "competitor", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, other)

	require.NoError(t, lease.Release(ctx))
	third, err := locker.Acquire(ctx, "reanalysis", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, third)
}

func TestSweepLockStaleReleaseKeepsNewHolder(t *testing.T) {
	locker, mr := newLockRig(t)
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "reanalysis", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, stale)

	// the holder's ttl lapses and another process takes over
	mr.FastForward(2 * time.Minute)
	current, err := locker.Acquire(ctx, "reanalysis", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, current)

	// the stale lease's token no longer matches, so release is a no-op
	require.NoError(t, stale.Release(ctx))
	blocked, err := locker.Acquire(ctx, "reanalysis", time.Minute)
	require.NoError(t, err)
	require.Nil(t, blocked)
}

func TestSweepLockValidation(t *testing.T) {
	locker, _ := newLockRig(t)
	ctx := context.Background()

	_, err := locker.Acquire(ctx, "", time.Minute)
	require.Error(t, err)

	_, err = locker.Acquire(ctx, "reanalysis", 0)
	require.Error(t, err)
}
