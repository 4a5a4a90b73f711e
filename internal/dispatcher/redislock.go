package dispatcher

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockHint gives the dispatcher a way to coordinate per-session task
// execution across multiple runtime processes. A single in-process
// Dispatcher already serializes tasks correctly via its own mutex and
// per-session queue (spec.md §4.1); LockHint exists only for the
// horizontally-scaled deployment SPEC_FULL.md's domain stack documents as
// the redis variant's scale-out path — it is advisory, not a correctness
// requirement, so the default NoopLockHint always grants the lock.
type LockHint interface {
	// TryAcquire attempts to claim sessionID for this process. On success it
	// returns a release func that must be called when the task finishes.
	TryAcquire(ctx context.Context, sessionID string) (release func(context.Context), ok bool)
}

// NoopLockHint always grants the lock immediately, matching the
// single-process default where the Dispatcher's own mutex is sufficient.
type NoopLockHint struct{}

func (NoopLockHint) TryAcquire(context.Context, string) (func(context.Context), bool) {
	return func(context.Context) {}, true
}

// RedisLockHint claims a session via a short-TTL SET NX key, giving multiple
// dispatcher processes sharing one Redis instance a hint about which
// process currently owns a session's processing task.
type RedisLockHint struct {
	client *redis.Client
	ttl    time.Duration
}

// DefaultLockTTL bounds how long a claimed session lock hint survives
// without renewal, so a crashed process's claim expires instead of
// wedging the session permanently.
const DefaultLockTTL = 30 * time.Second

// NewRedisLockHint wraps an already-configured Redis client.
func NewRedisLockHint(client *redis.Client) *RedisLockHint {
	return &RedisLockHint{client: client, ttl: DefaultLockTTL}
}

func lockKey(sessionID string) string { return "agentrt:session-lock:" + sessionID }

// TryAcquire implements LockHint.
func (r *RedisLockHint) TryAcquire(ctx context.Context, sessionID string) (func(context.Context), bool) {
	ok, err := r.client.SetNX(ctx, lockKey(sessionID), "1", r.ttl).Result()
	if err != nil || !ok {
		return func(context.Context) {}, false
	}
	return func(releaseCtx context.Context) {
		r.client.Del(releaseCtx, lockKey(sessionID))
	}, true
}
