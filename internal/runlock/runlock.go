// =============================================================================
// pouch-ops - Run Lock
// =============================================================================
//
// This module keeps two PayPal imports from running at once. The importer
// diffs against the CRM before it writes, so overlapping runs could both see
// an email as new and insert it twice.
//
// LOCKS:
//   - FileLock  : O_EXCL lock file holding the run id and pid (default)
//   - RedisLock : SET NX run-marker with a TTL, released by compare-and-delete,
//                 for imports started from more than one machine
//
// =============================================================================

package runlock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrLocked is returned when another run holds the lock.
var ErrLocked = errors.New("another import run holds the lock")

// Locker acquires the single-run guard. The returned release function must be
// called when the run ends.
type Locker interface {
	Acquire(ctx context.Context) (release func() error, err error)
}

// =============================================================================
// FILE LOCK
// =============================================================================

// FileLock uses an exclusively-created file as the guard. A crashed run leaves
// the file behind; remove it by hand after checking no import is running.
type FileLock struct {
	Path  string
	RunID string
}

// NewFileLock returns a lock at path tagged with runID.
func NewFileLock(path, runID string) *FileLock {
	return &FileLock{Path: path, RunID: runID}
}

// Acquire creates the lock file or fails with ErrLocked.
func (l *FileLock) Acquire(_ context.Context) (func() error, error) {
	if dir := filepath.Dir(l.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create lock directory: %w", err)
		}
	}

	f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if errors.Is(err, os.ErrExist) {
		holder, _ := os.ReadFile(l.Path)
		return nil, fmt.Errorf("%w: %s (%s)", ErrLocked, l.Path, string(holder))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}

	_, werr := fmt.Fprintf(f, "run=%s pid=%d started=%s", l.RunID, os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(l.Path)
		return nil, fmt.Errorf("failed to write lock file: %w", errors.Join(werr, cerr))
	}

	log.Debug().Str("path", l.Path).Str("run_id", l.RunID).Msg("acquired file lock")

	return func() error {
		if err := os.Remove(l.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove lock file: %w", err)
		}
		return nil
	}, nil
}

// =============================================================================
// REDIS RUN-MARKER
// =============================================================================

// releaseScript deletes the marker only if it still belongs to this run, so a
// run whose marker expired cannot release a later run's marker.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock stores a run-marker key with a TTL. Suitable when imports may be
// started from more than one machine.
type RedisLock struct {
	client *redis.Client
	key    string
	runID  string
	ttl    time.Duration
}

// DefaultRedisKey is the marker key used by the importer.
const DefaultRedisKey = "pouchops:paypal-import:lock"

// NewRedisLock returns a lock on key.
func NewRedisLock(client *redis.Client, key, runID string, ttl time.Duration) *RedisLock {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisLock{client: client, key: key, runID: runID, ttl: ttl}
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Acquire sets the marker with NX or fails with ErrLocked.
func (l *RedisLock) Acquire(ctx context.Context) (func() error, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.runID, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to set run marker: %w", err)
	}
	if !ok {
		holder, _ := l.client.Get(ctx, l.key).Result()
		return nil, fmt.Errorf("%w: %s held by run %s", ErrLocked, l.key, holder)
	}

	log.Debug().Str("key", l.key).Str("run_id", l.runID).Dur("ttl", l.ttl).Msg("acquired redis run marker")

	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.runID).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to release run marker: %w", err)
		}
		return nil
	}, nil
}
