package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	_ Locker = (*KeyedMutex)(nil)
	_ Locker = (*RedisLocker)(nil)
)

func TestLocker_UnlockIsIdempotent(t *testing.T) {
	var l Locker = NewKeyedMutex()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, ApplicationKey("app-1"))
	require.NoError(t, err)
	unlock()
	unlock()

	again, err := l.Lock(ctx, ApplicationKey("app-1"))
	require.NoError(t, err)
	again()
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(ctx, "app-1")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, m.size())
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	m := NewKeyedMutex()
	ctx := context.Background()

	unlockA, err := m.Lock(ctx, "app-a")
	require.NoError(t, err)
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := m.Lock(ctx, "app-b")
		if err == nil {
			unlockB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestKeyedMutex_ContextTimeout(t *testing.T) {
	m := NewKeyedMutex()

	unlock, err := m.Lock(context.Background(), "app-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx, "app-1")
	assert.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	unlock()
	assert.Equal(t, 0, m.size())

	again, err := m.Lock(context.Background(), "app-1")
	require.NoError(t, err)
	again()
}

func TestApplicationKey(t *testing.T) {
	assert.Equal(t, "lock:application:42", ApplicationKey("42"))
}

// Requires a running redis on localhost; skipped otherwise.
func TestRedisLocker_Integration(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Skipping redis integration test: redis not available")
	}
	defer client.Close()

	locker := NewRedisLocker(client, 5*time.Second, zap.NewNop())
	key := ApplicationKey("redis-locker-test")
	client.Del(ctx, key)

	unlock, err := locker.Lock(ctx, key)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(waitCtx, key)
	assert.ErrorIs(t, err, ErrLockTimeout)

	unlock()

	unlock2, err := locker.Lock(ctx, key)
	require.NoError(t, err)
	unlock2()
}
