package redisclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := NewRedisClient(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestSlotKey(t *testing.T) {
	host := uuid.MustParse("7b0f2a9e-1c55-4c2e-9a51-0d3c2f6f1e11")
	start := time.Date(2025, 3, 17, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, "lock:slot:7b0f2a9e-1c55-4c2e-9a51-0d3c2f6f1e11:1742205600", SlotKey(host, start))
}

func TestRedisLockerRunsAndReleases(t *testing.T) {
	mr, rdb := newTestRedis(t)
	locker := NewRedisSlotLocker(rdb, 5*time.Second)

	ran := false
	err := locker.WithSlotLock(context.Background(), "lock:slot:a", func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists("lock:slot:a"))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists("lock:slot:a"))
}

func TestRedisLockerRejectsHeldKey(t *testing.T) {
	mr, rdb := newTestRedis(t)
	locker := NewRedisSlotLocker(rdb, 5*time.Second)
	require.NoError(t, mr.Set("lock:slot:b", "someone-else"))

	err := locker.WithSlotLock(context.Background(), "lock:slot:b", func(ctx context.Context) error {
		t.Fatal("must not run while the lock is held")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	// A foreign token is never deleted.
	got, err := mr.Get("lock:slot:b")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLockerPropagatesError(t *testing.T) {
	mr, rdb := newTestRedis(t)
	locker := NewRedisSlotLocker(rdb, 5*time.Second)
	boom := errors.New("boom")

	err := locker.WithSlotLock(context.Background(), "lock:slot:c", func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("lock:slot:c"))
}

func TestRedisLockerSetsTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	locker := NewRedisSlotLocker(rdb, 3*time.Second)

	err := locker.WithSlotLock(context.Background(), "lock:slot:d", func(ctx context.Context) error {
		assert.Equal(t, 3*time.Second, mr.TTL("lock:slot:d"))
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestLockersAreExclusive(t *testing.T) {
	_, rdb := newTestRedis(t)
	lockers := map[string]Locker{
		"redis": NewRedisSlotLocker(rdb, 5*time.Second),
		"local": NewLocalLocker(5 * time.Second),
	}

	for name, locker := range lockers {
		t.Run(name, func(t *testing.T) {
			var (
				wg       sync.WaitGroup
				inside   atomic.Int32
				won      atomic.Int32
				rejected atomic.Int32
				release  = make(chan struct{})
				entered  = make(chan struct{}, 8)
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := locker.WithSlotLock(context.Background(), "lock:slot:same", func(ctx context.Context) error {
						if inside.Add(1) > 1 {
							t.Error("two holders inside the critical section")
						}
						won.Add(1)
						entered <- struct{}{}
						<-release
						inside.Add(-1)
						return nil
					})
					if errors.Is(err, ErrLockNotAcquired) {
						rejected.Add(1)
					}
				}()
			}
			<-entered
			// Give the other goroutines time to hit the held lock.
			time.Sleep(50 * time.Millisecond)
			close(release)
			wg.Wait()

			assert.GreaterOrEqual(t, won.Load(), int32(1))
			assert.Equal(t, int32(8), won.Load()+rejected.Load())
		})
	}
}
