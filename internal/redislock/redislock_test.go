package redislock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, time.Second, nil), mr
}

func TestConnect_EmptyAddr(t *testing.T) {
	assert.Nil(t, Connect("", ""))
}

func TestLock_ExclusivePerOwner(t *testing.T) {
	l, mr := newTestLocker(t)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "owner-1")
	require.NoError(t, err)
	assert.True(t, mr.Exists(keyPrefix+"owner-1"))

	other, err := l.Lock(ctx, "owner-2")
	require.NoError(t, err)
	other()

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = l.Lock(waitCtx, "owner-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.False(t, mr.Exists(keyPrefix+"owner-1"))

	again, err := l.Lock(ctx, "owner-1")
	require.NoError(t, err)
	again()
}

func TestLock_ReleaseKeepsForeignToken(t *testing.T) {
	l, mr := newTestLocker(t)

	unlock, err := l.Lock(context.Background(), "owner-1")
	require.NoError(t, err)

	// Our lock expired and another process took it over.
	require.NoError(t, mr.Set(keyPrefix+"owner-1", "someone-else"))
	unlock()

	got, err := mr.Get(keyPrefix + "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestLock_Expires(t *testing.T) {
	l, mr := newTestLocker(t)

	_, err := l.Lock(context.Background(), "owner-1")
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	unlock, err := l.Lock(context.Background(), "owner-1")
	require.NoError(t, err)
	unlock()
}

func TestLock_RedisDown(t *testing.T) {
	l, mr := newTestLocker(t)
	mr.Close()

	_, err := l.Lock(context.Background(), "owner-1")
	assert.Error(t, err)
}

func TestLock_RenewedWhileHeld(t *testing.T) {
	l, mr := newTestLocker(t)
	key := keyPrefix + "owner-1"

	unlock, err := l.Lock(context.Background(), "owner-1")
	require.NoError(t, err)

	// Most of the TTL passes while the holder is still working.
	mr.FastForward(900 * time.Millisecond)
	require.True(t, mr.Exists(key))
	assert.Eventually(t, func() bool {
		return mr.TTL(key) > 500*time.Millisecond
	}, 2*time.Second, 20*time.Millisecond, "lock should be extended")

	unlock()
	assert.False(t, mr.Exists(key))
	unlock()
}

func TestLock_StopsRenewingLostLock(t *testing.T) {
	l, mr := newTestLocker(t)
	key := keyPrefix + "owner-1"

	unlock, err := l.Lock(context.Background(), "owner-1")
	require.NoError(t, err)
	mr.Del(key)
	require.NoError(t, mr.Set(key, "someone-else"))

	// The renewal sees the foreign token and leaves the key without expiry.
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, time.Duration(0), mr.TTL(key))
	unlock()

	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}
