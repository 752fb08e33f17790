package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cli.Close() })
	return cli, mr
}

func TestRedisLocker(t *testing.T) {
	cli, mr := newTestClient(t)
	ctx := context.Background()
	l := NewLocker(cli)

	token, err := l.TryLock(ctx, "renewal:user-1", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	_, err = l.TryLock(ctx, "renewal:user-1", time.Minute)
	require.ErrorIs(t, err, ErrLockHeld)

	// a stale token must not release someone else's lock
	require.NoError(t, l.Unlock(ctx, "renewal:user-1", "other"))
	require.True(t, mr.Exists("renewal:user-1"))

	require.NoError(t, l.Unlock(ctx, "renewal:user-1", token))
	require.False(t, mr.Exists("renewal:user-1"))

	_, err = l.TryLock(ctx, "renewal:user-1", time.Minute)
	require.NoError(t, err)
}

func TestRedisLockerExpires(t *testing.T) {
	cli, mr := newTestClient(t)
	ctx := context.Background()
	l := NewLocker(cli)

	_, err := l.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)
	_, err = l.TryLock(ctx, "k", time.Second)
	require.NoError(t, err)
}

func TestNopLocker(t *testing.T) {
	l := NewLocker(nil)
	_, ok := l.(NopLocker)
	require.True(t, ok)
	token, err := l.TryLock(context.Background(), "k", time.Second)
	require.NoError(t, err)
	require.NoError(t, l.Unlock(context.Background(), "k", token))
}
