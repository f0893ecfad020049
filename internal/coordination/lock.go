// Package coordination provides the cross-process primitives a
// multi-instance deployment needs that a single storage Set cannot give
// for free: an advisory per-record lock so two association worker
// instances never process the same stage record concurrently, and a
// pub/sub broadcaster so a "poke" reaches every instance's parent
// resolution sweep, not just the one that parked the record.
//
// Both are optional. A single-instance deployment runs without a Redis
// client at all; the association worker and parentresolve.Service
// degrade to their in-process-only behavior.
package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockHeld names the condition of another instance already holding
// the lock for a given key. Lock.Acquire itself reports that case as a
// false result with a nil error, not as this error.
var ErrLockHeld = errors.New("coordination: lock held by another instance")

// redisLocker is the narrow slice of the redis.Client surface Lock
// issues commands against. Isolating it lets tests substitute an
// in-process fake instead of a real Redis server.
type redisLocker interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Lock is an advisory, TTL-bounded mutual-exclusion primitive keyed by an
// arbitrary string. It never blocks: Acquire either wins immediately or
// reports false.
type Lock struct {
	client    redisLocker
	closer    func() error
	namespace string
	ttl       time.Duration
}

// NewLock builds a Lock against redisURL (e.g. "redis://localhost:6379/0").
func NewLock(redisURL string, ttl time.Duration) (*Lock, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("coordination: invalid redis url: %w", err)
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	client := redis.NewClient(opts)
	return &Lock{client: client, closer: client.Close, namespace: "canon:lock", ttl: ttl}, nil
}

func (l *Lock) key(name string) string {
	return l.namespace + ":" + name
}

// Acquire attempts to take the lock for name under the caller-supplied
// token, which Release must later be called with. Backed by SETNX + EXPIRE, the standard
// single-node advisory-lock idiom: good enough to stop two workers from
// racing on the same record, not a fencing guarantee under partition.
func (l *Lock) Acquire(ctx context.Context, name, token string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(name), token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("coordination: acquire %q: %w", name, err)
	}
	return ok, nil
}

// Release drops the lock for name if and only if it is still held by
// token, via a Lua compare-and-delete so one instance can never release a
// lock acquired by another after its own lease expired.
func (l *Lock) Release(ctx context.Context, name, token string) error {
	const script = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`
	if err := l.client.Eval(ctx, script, []string{l.key(name)}, token).Err(); err != nil {
		return fmt.Errorf("coordination: release %q: %w", name, err)
	}
	return nil
}

// Close releases the underlying Redis client.
func (l *Lock) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer()
}
