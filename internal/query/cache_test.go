package query

import (
	"context"
	"errors"
	"io"
	"log/slog"
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

type manualTicker struct {
	ch chan time.Time
}

func (m *manualTicker) new(time.Duration) (<-chan time.Time, func()) {
	return m.ch, func() {}
}

func newTestCache(t *testing.T, opts ...Option) (*Cache, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(logger, append([]Option{WithClock(clk.Now)}, opts...)...)
	t.Cleanup(c.Close)
	return c, clk
}

func counter(n *atomic.Int64, value any) Fetcher {
	return func(context.Context) (any, error) {
		n.Add(1)
		return value, nil
	}
}

var thirty = Policy{StaleTime: 30 * time.Second}

func TestFetchServesFreshEntry(t *testing.T) {
	c, clk := newTestCache(t)
	var calls atomic.Int64
	key := NewKey("alpha", 1)

	for i := 0; i < 3; i++ {
		v, err := c.Fetch(context.Background(), key, thirty, counter(&calls, "a"))
		require.NoError(t, err)
		assert.Equal(t, "a", v)
	}
	assert.Equal(t, int64(1), calls.Load())

	clk.Advance(31 * time.Second)
	_, err := c.Fetch(context.Background(), key, thirty, counter(&calls, "a"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), calls.Load())
}

func TestFetchDeduplicatesConcurrentCallers(t *testing.T) {
	c, _ := newTestCache(t)
	var calls atomic.Int64
	release := make(chan struct{})
	fetch := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]any, 10)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Fetch(context.Background(), NewKey("nextAlphaId"), thirty, fetch)
			assert.NoError(t, err)
			results[i] = v
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, 42, r)
	}
}

func TestFailedRefetchReplacesStaleValue(t *testing.T) {
	c, clk := newTestCache(t)
	key := NewKey("liveStats", 7)
	boom := errors.New("rpc down")

	_, err := c.Fetch(context.Background(), key, thirty, func(context.Context) (any, error) { return "ok", nil })
	require.NoError(t, err)

	clk.Advance(time.Minute)
	_, err = c.Fetch(context.Background(), key, thirty, func(context.Context) (any, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	r, ok := c.Peek(key)
	require.True(t, ok)
	assert.ErrorIs(t, r.Err, boom)
	assert.Nil(t, r.Value)

	// An error state is never served as fresh.
	v, err := c.Fetch(context.Background(), key, thirty, func(context.Context) (any, error) { return "back", nil })
	require.NoError(t, err)
	assert.Equal(t, "back", v)
}

func TestFetchAsTyped(t *testing.T) {
	c, _ := newTestCache(t)
	n, err := FetchAs(context.Background(), c, NewKey("decimals"), thirty, func(context.Context) (uint8, error) {
		return 6, nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint8(6), n)

	_, err = FetchAs(context.Background(), c, NewKey("decimals"), thirty, func(context.Context) (string, error) {
		return "x", nil
	})
	assert.Error(t, err)
}

func TestInvalidateUnwatchedDropsEntries(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	var calls atomic.Int64

	for _, k := range []Key{NewKey("alphas", 0, 20), NewKey("alphas", 20, 20), NewKey("alpha", 1)} {
		_, err := c.Fetch(ctx, k, thirty, counter(&calls, k.String()))
		require.NoError(t, err)
	}
	require.Equal(t, 3, c.Len())

	require.NoError(t, c.Invalidate(ctx, Prefix("alphas")))
	assert.Equal(t, 1, c.Len())
	_, ok := c.Peek(NewKey("alpha", 1))
	assert.True(t, ok)

	require.NoError(t, c.Invalidate(ctx, Exact(NewKey("alpha", 1))))
	assert.Zero(t, c.Len())
}

func TestInvalidateRefetchesWatchedBeforeReturning(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	var calls atomic.Int64
	fetch := func(context.Context) (any, error) {
		return calls.Add(1), nil
	}

	key := NewKey("opponents", 7)
	sub := c.Watch(key, thirty, fetch)
	defer sub.Close()

	first := <-sub.Updates()
	assert.Equal(t, int64(1), first.Value)

	require.NoError(t, c.Invalidate(ctx, Exact(key)))

	r, ok := c.Peek(key)
	require.True(t, ok)
	assert.Equal(t, int64(2), r.Value)

	second := <-sub.Updates()
	assert.Equal(t, int64(2), second.Value)
}

func TestWatchRevalidatesOnInterval(t *testing.T) {
	tk := &manualTicker{ch: make(chan time.Time)}
	c, _ := newTestCache(t, WithTicker(tk.new))
	var calls atomic.Int64
	fetch := func(context.Context) (any, error) {
		return calls.Add(1), nil
	}

	sub := c.Watch(NewKey("withdrawable", "0xabc"), Policy{StaleTime: 30 * time.Second, RefetchInterval: time.Minute}, fetch)
	assert.Equal(t, int64(1), (<-sub.Updates()).Value)

	tk.ch <- time.Now()
	assert.Equal(t, int64(2), (<-sub.Updates()).Value)

	sub.Close()
	_, open := <-sub.Updates()
	assert.False(t, open)
	sub.Close()
}

func TestWatchDeliversFreshValueImmediately(t *testing.T) {
	c, _ := newTestCache(t)
	var calls atomic.Int64
	key := NewKey("stakeTokenInfo")
	_, err := c.Fetch(context.Background(), key, thirty, counter(&calls, "usdc"))
	require.NoError(t, err)

	sub := c.Watch(key, thirty, counter(&calls, "usdc"))
	defer sub.Close()
	r := <-sub.Updates()
	assert.Equal(t, "usdc", r.Value)
	assert.Equal(t, int64(1), calls.Load())
}

func TestFetchHonoursCallerContext(t *testing.T) {
	c, _ := newTestCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	block := make(chan struct{})
	defer close(block)

	done := make(chan error, 1)
	go func() {
		_, err := c.Fetch(ctx, NewKey("slow"), thirty, func(context.Context) (any, error) {
			<-block
			return nil, nil
		})
		done <- err
	}()
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestCloseEndsSubscriptions(t *testing.T) {
	clk := &fakeClock{now: time.Unix(0, 0)}
	c := New(slog.New(slog.NewTextHandler(io.Discard, nil)), WithClock(clk.Now))
	sub := c.Watch(NewKey("k"), thirty, func(context.Context) (any, error) { return 1, nil })
	c.Close()
	for range sub.Updates() {
	}
	sub.Close()
}

func TestWatchAndFetchShareKeyConcurrently(t *testing.T) {
	c, _ := newTestCache(t)
	key := NewKey("liveStats", 1)
	p := Policy{StaleTime: time.Millisecond, RefetchInterval: time.Millisecond}
	var calls atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := c.Watch(key, p, counter(&calls, "stats"))
			_, err := c.Fetch(context.Background(), key, p, counter(&calls, "stats"))
			assert.NoError(t, err)
			sub.Close()
		}()
	}
	wg.Wait()
	assert.Positive(t, calls.Load())
}

func TestIdleEntriesAreSwept(t *testing.T) {
	c, clk := newTestCache(t)
	ctx := context.Background()
	p := Policy{StaleTime: 5 * time.Minute}
	var calls atomic.Int64

	for i := 0; i < 10_000; i++ {
		_, err := c.Fetch(ctx, NewKey("users:fids", i), p, counter(&calls, i))
		require.NoError(t, err)
	}
	require.Equal(t, 10_000, c.Len())

	clk.Advance(24 * time.Hour)
	_, err := c.Fetch(ctx, NewKey("users:fids", "new"), p, counter(&calls, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())
}

func TestSweepKeepsWatchedAndRecentEntries(t *testing.T) {
	c, clk := newTestCache(t, WithGCTime(time.Minute))
	ctx := context.Background()
	var calls atomic.Int64

	sub := c.Watch(NewKey("withdrawable", "0xabc"), thirty, counter(&calls, "1"))
	defer sub.Close()
	<-sub.Updates()
	_, err := c.Fetch(ctx, NewKey("idle"), thirty, counter(&calls, "x"))
	require.NoError(t, err)

	clk.Advance(45 * time.Second)
	_, err = c.Fetch(ctx, NewKey("recent"), thirty, counter(&calls, "y"))
	require.NoError(t, err)
	assert.Equal(t, 3, c.Len(), "idle entry is within stale time plus gc time")

	clk.Advance(time.Minute)
	_, err = c.Fetch(ctx, NewKey("later"), thirty, counter(&calls, "z"))
	require.NoError(t, err)

	_, idle := c.Peek(NewKey("idle"))
	_, watched := c.Peek(NewKey("withdrawable", "0xabc"))
	_, recent := c.Peek(NewKey("recent"))
	assert.False(t, idle)
	assert.True(t, watched)
	assert.True(t, recent)
}
