package lease_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/freshen/internal/lease"
	"github.com/agentstation/freshen/pkg/errors"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLease(t *testing.T) {
	mr, client := newClient(t)
	ctx := context.Background()
	l := lease.NewRedis(client, "", time.Minute)

	release, err := l.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, mr.Exists(lease.DefaultKey))

	_, err = l.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrLeaseHeld)

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists(lease.DefaultKey))

	release, err = l.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}

func TestRedisLeaseExpires(t *testing.T) {
	mr, client := newClient(t)
	ctx := context.Background()
	l := lease.NewRedis(client, "runs", time.Minute)

	stale, err := l.Acquire(ctx)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	release, err := l.Acquire(ctx)
	require.NoError(t, err)

	// The expired holder must not delete the new holder's key.
	assert.Error(t, stale(ctx))
	assert.True(t, mr.Exists("runs"))
	require.NoError(t, release(ctx))
}

func TestRedisLeaseUnavailable(t *testing.T) {
	mr, client := newClient(t)
	mr.Close()

	_, err := lease.NewRedis(client, "", 0).Acquire(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, errors.ErrLeaseHeld)
}

func TestLocalLease(t *testing.T) {
	var l lease.Local
	ctx := context.Background()

	release, err := l.Acquire(ctx)
	require.NoError(t, err)
	_, err = l.Acquire(ctx)
	assert.ErrorIs(t, err, errors.ErrLeaseHeld)

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx))

	release, err = l.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}
