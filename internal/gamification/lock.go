package gamification

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// MemoryLocker is a per-learner mutex for a single process.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[int64]*learnerLock
}

type learnerLock struct {
	ch   chan struct{}
	refs int
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[int64]*learnerLock)}
}

func (m *MemoryLocker) Lock(ctx context.Context, learnerID int64) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[learnerID]
	if !ok {
		l = &learnerLock{ch: make(chan struct{}, 1)}
		m.locks[learnerID] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.ch
				m.release(learnerID, l)
			})
		}, nil
	case <-ctx.Done():
		m.release(learnerID, l)
		return nil, ctx.Err()
	}
}

func (m *MemoryLocker) release(learnerID int64, l *learnerLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, learnerID)
	}
}

// releaseScript deletes the key only while it still holds our token, so an
// expired lock re-acquired by another instance is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a per-learner lease shared by every server instance.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
}

func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, retry: 25 * time.Millisecond}
}

func lockKey(learnerID int64) string {
	return fmt.Sprintf("rhythmcheck:lock:learner:%d", learnerID)
}

func (r *RedisLocker) Lock(ctx context.Context, learnerID int64) (func(), error) {
	key := lockKey(learnerID)
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire learner lock: %w", err)
		}
		if ok {
			break
		}
		t := time.NewTimer(r.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, r.client, []string{key}, token).Err(); err != nil {
				slog.Warn("failed to release learner lock",
					slog.Int64("learner_id", learnerID),
					slog.String("error", err.Error()))
			}
		})
	}, nil
}
