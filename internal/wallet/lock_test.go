package wallet

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metlabs/metlabs_back/internal/logging"
)

func newRedisLocker(t *testing.T, ttl, wait time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, ttl, wait, logging.Discard()), mr
}

func TestRedisLockerExclusive(t *testing.T) {
	locker, _ := newRedisLocker(t, 5*time.Second, 100*time.Millisecond)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "lock:test")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "lock:test")
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	release()
	release2, err := locker.Acquire(ctx, "lock:test")
	require.NoError(t, err)
	release2()
}

func TestRedisLockerDoesNotReleaseForeignToken(t *testing.T) {
	locker, mr := newRedisLocker(t, time.Second, 0)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "lock:test")
	require.NoError(t, err)

	// The lock expires and another holder takes it.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("lock:test", "someone-else"))

	release()
	got, err := mr.Get("lock:test")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLockerHonoursContext(t *testing.T) {
	locker, _ := newRedisLocker(t, 5*time.Second, time.Minute)
	release, err := locker.Acquire(context.Background(), "lock:test")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(ctx, "lock:test")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalLockerSerialises(t *testing.T) {
	locker := NewLocalLocker()
	var (
		active  int32
		maxSeen int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(context.Background(), "k")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen)
	assert.Empty(t, locker.slots)
}

func TestLocalLockerCancelledWait(t *testing.T) {
	locker := NewLocalLocker()
	release, err := locker.Acquire(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locker.Acquire(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)

	release()
	release()
	assert.Empty(t, locker.slots)
}
