package runlock

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks", "import.lock")
	ctx := context.Background()

	release, err := NewFileLock(path, "run-1").Acquire(ctx)
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "run=run-1")

	_, err = NewFileLock(path, "run-2").Acquire(ctx)
	require.ErrorIs(t, err, ErrLocked)
	assert.Contains(t, err.Error(), "run-1")

	require.NoError(t, release())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	release2, err := NewFileLock(path, "run-2").Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, release2())
	require.NoError(t, release2(), "releasing twice is harmless")
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisLock(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()

	release, err := NewRedisLock(client, "", "run-1", time.Minute).Acquire(ctx)
	require.NoError(t, err)

	got, err := mr.Get(DefaultRedisKey)
	require.NoError(t, err)
	assert.Equal(t, "run-1", got)
	assert.Equal(t, time.Minute, mr.TTL(DefaultRedisKey))

	_, err = NewRedisLock(client, "", "run-2", time.Minute).Acquire(ctx)
	require.ErrorIs(t, err, ErrLocked)
	assert.Contains(t, err.Error(), "run-1")

	require.NoError(t, release())
	assert.False(t, mr.Exists(DefaultRedisKey))
}

func TestRedisLock_ReleaseKeepsForeignMarker(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()

	release, err := NewRedisLock(client, "k", "run-1", time.Minute).Acquire(ctx)
	require.NoError(t, err)

	// The marker expired and another run took over.
	mr.FastForward(2 * time.Minute)
	release2, err := NewRedisLock(client, "k", "run-2", time.Minute).Acquire(ctx)
	require.NoError(t, err)

	require.NoError(t, release())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "run-2", got)

	require.NoError(t, release2())
	assert.False(t, mr.Exists("k"))
}

func TestNewRedisClient(t *testing.T) {
	client, err := NewRedisClient("redis://localhost:6379/2")
	require.NoError(t, err)
	assert.Equal(t, 2, client.Options().DB)
	client.Close()

	_, err = NewRedisClient("http://nope")
	assert.Error(t, err)
}
