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

func TestKeyNormalization(t *testing.T) {
	assert.Equal(t, Key("route", "Remember:  Buy Milk"), Key("route", "remember: buy milk"))
	assert.NotEqual(t, Key("route", "remember: buy milk"), Key("route", "remember: buy bread"))
	assert.NotEqual(t, Key("route", "x"), Key("other", "x"))

	// Part boundaries matter: ("ab","c") must not collide with ("a","bc").
	assert.NotEqual(t, Key("s", "ab", "c"), Key("s", "a", "bc"))
}

func TestGetPutExpiry(t *testing.T) {
	c := New()

	_, ok := c.Get("k")
	assert.False(t, ok)

	c.Put("k", "v", 50*time.Millisecond)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	time.Sleep(60 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestGetOrComputeCachesSuccess(t *testing.T) {
	c := New()
	calls := 0

	v, hit, err := c.GetOrCompute(context.Background(), "k", time.Minute, func(context.Context) (interface{}, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 42, v)

	v, hit, err = c.GetOrCompute(context.Background(), "k", time.Minute, func(context.Context) (interface{}, error) {
		calls++
		return 43, nil
	})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestGetOrComputeErrorNotCached(t *testing.T) {
	c := New()
	calls := 0

	_, _, err := c.GetOrCompute(context.Background(), "k", time.Minute, func(context.Context) (interface{}, error) {
		calls++
		return nil, errors.New("upstream down")
	})
	require.Error(t, err)

	v, _, err := c.GetOrCompute(context.Background(), "k", time.Minute, func(context.Context) (interface{}, error) {
		calls++
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", v)
	assert.Equal(t, 2, calls)
}

func TestGetOrComputeSingleFlight(t *testing.T) {
	c := New()
	var upstream atomic.Int32
	release := make(chan struct{})

	const callers = 8
	results := make([]interface{}, callers)
	hits := make([]bool, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, hit, err := c.GetOrCompute(context.Background(), "shared", time.Minute, func(context.Context) (interface{}, error) {
				upstream.Add(1)
				<-release
				return "resolved", nil
			})
			require.NoError(t, err)
			results[i] = v
			hits[i] = hit
		}(i)
	}

	// Give every goroutine time to join the flight before the one
	// upstream call completes.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), upstream.Load())
	misses := 0
	for i, v := range results {
		assert.Equal(t, "resolved", v)
		if !hits[i] {
			misses++
		}
	}
	assert.Equal(t, 1, misses, "only the caller whose fn ran is a miss; joiners are hits")
}

func TestGetOrComputeContextCancelled(t *testing.T) {
	c := New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, err := c.GetOrCompute(ctx, "slow", time.Minute, func(context.Context) (interface{}, error) {
			time.Sleep(time.Second)
			return nil, nil
		})
		assert.ErrorIs(t, err, context.Canceled)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("caller did not observe cancellation")
	}
}

func TestInvalidateScope(t *testing.T) {
	c := New()
	c.Put(Key("route", "a"), 1, time.Minute)
	c.Put(Key("route", "b"), 2, time.Minute)
	c.Put(Key("lookup", "a"), 3, time.Minute)

	c.InvalidateScope("route")
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get(Key("lookup", "a"))
	assert.True(t, ok)
}

func TestInvalidate(t *testing.T) {
	c := New()
	c.Put("k", 1, time.Minute)
	c.Invalidate("k")
	_, ok := c.Get("k")
	assert.False(t, ok)
}
