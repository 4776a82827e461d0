package cache_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priyanshudevsingh/quickmailer/pkg/cache"
	"github.com/priyanshudevsingh/quickmailer/pkg/redis"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("miss", func(t *testing.T) {
		t.Parallel()
		c := cache.NewMemory[string]()
		_, err := c.Get(ctx, "missing")
		require.ErrorIs(t, err, cache.ErrNotFound)
	})

	t.Run("set get delete", func(t *testing.T) {
		t.Parallel()
		c := cache.NewMemory[string]()
		require.NoError(t, c.Set(ctx, "k", "v", time.Minute))

		got, err := c.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v", got)

		require.NoError(t, c.Delete(ctx, "k"))
		_, err = c.Get(ctx, "k")
		require.ErrorIs(t, err, cache.ErrNotFound)
	})

	t.Run("expires", func(t *testing.T) {
		t.Parallel()
		clk := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
		c := cache.NewMemory[int](cache.WithClock(clk.Now), cache.WithDefaultTTL(time.Second))
		require.NoError(t, c.Set(ctx, "k", 1, 0))

		clk.Advance(999 * time.Millisecond)
		_, err := c.Get(ctx, "k")
		require.NoError(t, err)

		clk.Advance(time.Millisecond)
		_, err = c.Get(ctx, "k")
		require.ErrorIs(t, err, cache.ErrNotFound)
		assert.Zero(t, c.Len())
	})

	t.Run("evicts closest to expiry at capacity", func(t *testing.T) {
		t.Parallel()
		c := cache.NewMemory[int](cache.WithMaxEntries(2))
		require.NoError(t, c.Set(ctx, "short", 1, time.Second))
		require.NoError(t, c.Set(ctx, "long", 2, time.Hour))
		require.NoError(t, c.Set(ctx, "new", 3, time.Hour))

		assert.Equal(t, 2, c.Len())
		_, err := c.Get(ctx, "short")
		require.ErrorIs(t, err, cache.ErrNotFound)
		_, err = c.Get(ctx, "long")
		require.NoError(t, err)
	})

	t.Run("overwrite at capacity keeps others", func(t *testing.T) {
		t.Parallel()
		c := cache.NewMemory[int](cache.WithMaxEntries(2))
		require.NoError(t, c.Set(ctx, "a", 1, time.Hour))
		require.NoError(t, c.Set(ctx, "b", 2, time.Hour))
		require.NoError(t, c.Set(ctx, "a", 3, time.Hour))

		got, err := c.Get(ctx, "b")
		require.NoError(t, err)
		assert.Equal(t, 2, got)
	})
}

func TestLoader(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("loads once then serves cache", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		l := cache.NewLoader[string](cache.NewMemory[string](), time.Minute)
		load := func(context.Context) (string, error) {
			calls.Add(1)
			return "ada", nil
		}

		for range 3 {
			got, err := l.Get(ctx, "user", load)
			require.NoError(t, err)
			assert.Equal(t, "ada", got)
		}
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("errors are not cached", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		var calls atomic.Int32
		l := cache.NewLoader[string](cache.NewMemory[string](), time.Minute)
		load := func(context.Context) (string, error) {
			calls.Add(1)
			return "", boom
		}

		_, err := l.Get(ctx, "k", load)
		require.ErrorIs(t, err, boom)
		_, err = l.Get(ctx, "k", load)
		require.ErrorIs(t, err, boom)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("forget reloads", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		l := cache.NewLoader[int32](cache.NewMemory[int32](), time.Minute)
		load := func(context.Context) (int32, error) { return calls.Add(1), nil }

		first, err := l.Get(ctx, "k", load)
		require.NoError(t, err)
		require.NoError(t, l.Forget(ctx, "k"))
		second, err := l.Get(ctx, "k", load)
		require.NoError(t, err)
		assert.Equal(t, first+1, second)
	})

	t.Run("concurrent misses share one load", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		release := make(chan struct{})
		l := cache.NewLoader[string](cache.NewMemory[string](), time.Minute)
		load := func(context.Context) (string, error) {
			calls.Add(1)
			<-release
			return "v", nil
		}

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v, err := l.Get(ctx, "hot", load)
				assert.NoError(t, err)
				assert.Equal(t, "v", v)
			}()
		}
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestRedis(t *testing.T) {
	t.Parallel()

	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := redis.Open(ctx, redis.Config{URL: url})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	type profile struct {
		Email string `json:"email"`
	}
	c := cache.NewRedis[profile](client, "cache-test-"+uuid.NewString(), nil)

	_, err = c.Get(ctx, "k")
	require.ErrorIs(t, err, cache.ErrNotFound)

	require.NoError(t, c.Set(ctx, "k", profile{Email: "ada@example.com"}, time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", got.Email)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	require.ErrorIs(t, err, cache.ErrNotFound)
}
