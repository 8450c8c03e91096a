package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestMemoryCache_ExpiresAfterTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	c := NewMemoryCache().WithClock(clock.Now)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	clock.Advance(59 * time.Second)
	_, ok, _ = c.Get(ctx, "k")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok, "entry is gone exactly at the TTL")
	assert.Equal(t, 0, c.size())
}

func TestMemoryCache_SetCopiesAndZeroTTLSkips(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	buf := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", buf, time.Minute))
	buf[0] = 'z'
	got, _, _ := c.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), got)

	require.NoError(t, c.Set(ctx, "none", []byte("x"), 0))
	_, ok, _ := c.Get(ctx, "none")
	assert.False(t, ok)

	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryCache_Sweep(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := NewMemoryCache().WithClock(clock.Now)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", []byte("1"), time.Second))
	require.NoError(t, c.Set(ctx, "long", []byte("2"), time.Hour))

	clock.Advance(time.Minute)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.size())
}

type point struct {
	X float64 `json:"x"`
}

func TestMemoize_CachesWithinTTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	m := NewMemoizer(NewMemoryCache().WithClock(clock.Now), nil)
	ctx := context.Background()

	calls := 0
	fetch := func(context.Context) (point, error) {
		calls++
		return point{X: float64(calls)}, nil
	}

	v, err := Memoize(ctx, m, "p", 5*time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.X)

	v, err = Memoize(ctx, m, "p", 5*time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.X)
	assert.Equal(t, 1, calls)

	clock.Advance(5 * time.Minute)
	v, err = Memoize(ctx, m, "p", 5*time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, 2.0, v.X)

	require.NoError(t, m.Invalidate(ctx, "p"))
	v, err = Memoize(ctx, m, "p", 5*time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v.X)
}

func TestMemoize_ErrorsAreNotCached(t *testing.T) {
	m := NewMemoizer(NewMemoryCache(), nil)
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := Memoize(ctx, m, "p", time.Minute, func(context.Context) (point, error) {
		return point{}, boom
	})
	require.ErrorIs(t, err, boom)

	v, err := Memoize(ctx, m, "p", time.Minute, func(context.Context) (point, error) {
		return point{X: 7}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7.0, v.X)
}

func TestMemoize_ConcurrentMissesShareOneCall(t *testing.T) {
	m := NewMemoizer(NewMemoryCache(), nil)
	ctx := context.Background()

	var calls int32
	release := make(chan struct{})
	fetch := func(context.Context) (point, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return point{X: 1}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := Memoize(ctx, m, "shared", time.Minute, fetch)
			assert.NoError(t, err)
			assert.Equal(t, 1.0, v.X)
		}()
	}

	// Give the goroutines time to pile up on the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}

func TestMemoize_CancelledCallerDoesNotFailWaiters(t *testing.T) {
	m := NewMemoizer(NewMemoryCache(), nil)

	var once sync.Once
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (point, error) {
		once.Do(func() { close(started) })
		<-release
		return point{X: 5}, ctx.Err()
	}

	first, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := Memoize(first, m, "shared", time.Minute, fetch)
		firstErr <- err
	}()
	<-started

	type result struct {
		v   point
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, err := Memoize(context.Background(), m, "shared", time.Minute, fetch)
		second <- result{v, err}
	}()
	// Let the second caller join the in-flight fill.
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, 5.0, got.v.X)

	v, err := Memoize(context.Background(), m, "shared", time.Minute, func(context.Context) (point, error) {
		return point{}, errors.New("should be cached")
	})
	require.NoError(t, err)
	assert.Equal(t, 5.0, v.X)
}

func TestMemoize_UnreachableRedisFallsThrough(t *testing.T) {
	client := NewRedisClient(RedisOptions{Addr: "127.0.0.1:1"})
	rc := NewRedisCache(client, "test:")
	defer rc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	assert.Error(t, rc.Ping(ctx))

	m := NewMemoizer(rc, nil)
	v, err := Memoize(ctx, m, "p", time.Minute, func(context.Context) (point, error) {
		return point{X: 3}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3.0, v.X)
}
