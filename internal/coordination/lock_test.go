package coordination

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// fakeRedisLocker implements redisLocker with the two commands Lock
// issues, enough to exercise Acquire/Release semantics without a real
// Redis server.
type fakeRedisLocker struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeRedisLocker() *fakeRedisLocker {
	return &fakeRedisLocker{data: make(map[string]string)}
}

func (f *fakeRedisLocker) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewBoolCmd(ctx)
	if _, exists := f.data[key]; exists {
		cmd.SetVal(false)
		return cmd
	}
	f.data[key] = value.(string)
	cmd.SetVal(true)
	return cmd
}

// Eval only needs to support the compare-and-delete script Release uses.
func (f *fakeRedisLocker) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewCmd(ctx)
	key := keys[0]
	token := args[0].(string)
	if f.data[key] == token {
		delete(f.data, key)
		cmd.SetVal(int64(1))
	} else {
		cmd.SetVal(int64(0))
	}
	return cmd
}

func newTestLock() (*Lock, *fakeRedisLocker) {
	fake := newFakeRedisLocker()
	return &Lock{client: fake, namespace: "canon:lock", ttl: time.Second}, fake
}

func TestLockAcquireExclusive(t *testing.T) {
	lock, _ := newTestLock()
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "Contact/abc", "instance-1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = lock.Acquire(ctx, "Contact/abc", "instance-2")
	require.NoError(t, err)
	require.False(t, ok, "second instance must not win the same lock")
}

func TestLockReleaseOnlyOwnToken(t *testing.T) {
	lock, fake := newTestLock()
	ctx := context.Background()

	_, err := lock.Acquire(ctx, "Contact/abc", "instance-1")
	require.NoError(t, err)

	require.NoError(t, lock.Release(ctx, "Contact/abc", "instance-2"))
	fake.mu.Lock()
	_, stillHeld := fake.data[lock.key("Contact/abc")]
	fake.mu.Unlock()
	require.True(t, stillHeld, "release with the wrong token must not drop the lock")

	require.NoError(t, lock.Release(ctx, "Contact/abc", "instance-1"))
	fake.mu.Lock()
	_, stillHeld = fake.data[lock.key("Contact/abc")]
	fake.mu.Unlock()
	require.False(t, stillHeld)
}

func TestLockAcquireAfterRelease(t *testing.T) {
	lock, _ := newTestLock()
	ctx := context.Background()

	_, err := lock.Acquire(ctx, "Contact/abc", "instance-1")
	require.NoError(t, err)
	require.NoError(t, lock.Release(ctx, "Contact/abc", "instance-1"))

	ok, err := lock.Acquire(ctx, "Contact/abc", "instance-2")
	require.NoError(t, err)
	require.True(t, ok)
}
