package gamification

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerExcludes(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Lock(ctx, 1)
			require.NoError(t, err)
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)

	locker.mu.Lock()
	assert.Empty(t, locker.locks, "idle learners must not leak lock entries")
	locker.mu.Unlock()
}

func TestMemoryLockerHonorsContext(t *testing.T) {
	locker := NewMemoryLocker()
	release, err := locker.Lock(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// other learners are not blocked
	other, err := locker.Lock(context.Background(), 2)
	require.NoError(t, err)
	other()

	release()
	release()
	again, err := locker.Lock(context.Background(), 1)
	require.NoError(t, err)
	again()
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLockerAcquireRelease(t *testing.T) {
	mr, client := newTestRedis(t)
	locker := NewRedisLocker(client, 5*time.Second)
	ctx := context.Background()

	release, err := locker.Lock(ctx, 42)
	require.NoError(t, err)
	assert.True(t, mr.Exists(lockKey(42)))
	assert.Equal(t, 5*time.Second, mr.TTL(lockKey(42)))

	waitCtx, cancel := context.WithTimeout(ctx, 80*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(waitCtx, 42)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	assert.False(t, mr.Exists(lockKey(42)))

	release2, err := locker.Lock(ctx, 42)
	require.NoError(t, err)
	release2()
}

func TestRedisLockerKeepsForeignLease(t *testing.T) {
	mr, client := newTestRedis(t)
	locker := NewRedisLocker(client, time.Second)
	ctx := context.Background()

	release, err := locker.Lock(ctx, 7)
	require.NoError(t, err)

	// lease expired and another instance took it
	mr.FastForward(2 * time.Second)
	require.False(t, mr.Exists(lockKey(7)))
	require.NoError(t, mr.Set(lockKey(7), "someone-else"))

	release()
	got, err := mr.Get(lockKey(7))
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestLedgerWithRedisLocker(t *testing.T) {
	_, client := newTestRedis(t)
	h := newHarness(t, defaultCatalog(t))
	h.ledger.locker = NewRedisLocker(client, 5*time.Second)
	ctx := context.Background()

	_, err := h.ledger.EnsureLearner(ctx, 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.ledger.RecordAttempt(ctx, 1, outcome(50, false, false, ledgerNow))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	st, err := h.stats.GetStats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, st.CompletedAttempts)
	assert.Equal(t, int64(5), st.Version)
}
