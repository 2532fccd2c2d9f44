package cursorstore

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// newTestStore connects to a local Redis instance and skips the test when
// one isn't reachable, rather than failing CI runs with no Redis fixture.
func newTestStore(t *testing.T) (*Store, *redis.Client) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 3})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("redis not reachable, skipping: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return New(client), client
}

func TestCursorRoundTrip(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()
	defer client.Del(ctx, cursorKey("test-scanner"))

	_, ok, err := store.GetCursor(ctx, "test-scanner")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.SetCursor(ctx, "test-scanner", 12345))

	block, ok, err := store.GetCursor(ctx, "test-scanner")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(12345), block)
}

func TestLockAcquireAndRelease(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()
	defer client.Del(ctx, lockKey("scanner-1"))

	ok, err := store.AcquireLock(ctx, "scanner-1", "token-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.AcquireLock(ctx, "scanner-1", "token-b", time.Minute)
	require.NoError(t, err)
	require.False(t, ok, "second holder must not acquire an already-held lock")

	err = store.ReleaseLock(ctx, "scanner-1", "token-b")
	require.ErrorIs(t, err, ErrLockNotHeld, "a non-owning token must not release the lock")

	require.NoError(t, store.ReleaseLock(ctx, "scanner-1", "token-a"))

	ok, err = store.AcquireLock(ctx, "scanner-1", "token-b", time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "lock must be free after the owner releases it")
}

func TestCachedAnalysisResult(t *testing.T) {
	store, client := newTestStore(t)
	ctx := context.Background()
	defer client.Del(ctx, cacheKey("proposal-1"))

	_, ok, err := store.GetCachedAnalysisResult(ctx, "proposal-1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.CacheAnalysisResult(ctx, "proposal-1", []byte(`{"risk":10}`), time.Minute))

	payload, ok, err := store.GetCachedAnalysisResult(ctx, "proposal-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"risk":10}`, string(payload))
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	_, client := newTestStore(t)
	ctx := context.Background()
	limiter := NewRateLimiter(client, 100*time.Millisecond, 2)
	defer client.Del(ctx, rateLimitKey("rpc-calls"))

	base := time.Now()
	ok, err := limiter.Allow(ctx, "rpc-calls", base)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = limiter.Allow(ctx, "rpc-calls", base.Add(10*time.Millisecond))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = limiter.Allow(ctx, "rpc-calls", base.Add(20*time.Millisecond))
	require.NoError(t, err)
	require.False(t, ok, "third call within the window must be rejected")

	ok, err = limiter.Allow(ctx, "rpc-calls", base.Add(150*time.Millisecond))
	require.NoError(t, err)
	require.True(t, ok, "call after the window elapses must be allowed")
}
