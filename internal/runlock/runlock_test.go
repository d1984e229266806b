package runlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "tailorreach:run:u1:product:p1", Key("u1", "product", "p1"))
}

func TestMemory_ExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	release, err := m.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	_, err = m.Acquire(ctx, "k", time.Minute)
	assert.True(t, errors.Is(err, ErrLocked))

	_, err = m.Acquire(ctx, "other", time.Minute)
	require.NoError(t, err, "different keys do not contend")

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx), "double release is a no-op")

	_, err = m.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
}

func TestMemory_ExpiredLockIsReplaced(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	m := NewMemory()
	m.now = func() time.Time { return now }

	staleRelease, err := m.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = m.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)

	// The stale holder must not release the new holder's lock.
	require.NoError(t, staleRelease(ctx))
	_, err = m.Acquire(ctx, "k", time.Minute)
	assert.True(t, errors.Is(err, ErrLocked))
}

func TestRedis_AcquireErrorWhenUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	r := NewRedis(client)
	defer r.Close() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := r.Acquire(ctx, "k", time.Minute)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrLocked))
	assert.Contains(t, err.Error(), "runlock: acquire k")
	assert.Error(t, r.Ping(ctx))
}
