package memory

import (
	"context"
	"testing"
	"time"

	"github.com/alanyoungcy/alphamarket/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestLockManager(t *testing.T) {
	lm := NewLockManager()
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	lm.now = clk.now
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "wallet", time.Second)
	require.NoError(t, err)
	_, err = lm.Acquire(ctx, "wallet", time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	clk.advance(2 * time.Second)
	fresh, err := lm.Acquire(ctx, "wallet", time.Minute)
	require.NoError(t, err)

	unlock()
	_, err = lm.Acquire(ctx, "wallet", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld, "stale unlock must not release the new holder")

	fresh()
	fresh()
	again, err := lm.Acquire(ctx, "wallet", time.Minute)
	require.NoError(t, err)
	again()
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	rl.now = clk.now
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "k", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := rl.Allow(ctx, "k", 2, time.Minute)
	assert.False(t, ok)
	ok, _ = rl.Allow(ctx, "other", 2, time.Minute)
	assert.True(t, ok)

	clk.advance(61 * time.Second)
	ok, _ = rl.Allow(ctx, "k", 2, time.Minute)
	assert.True(t, ok)
}

func TestRateLimiterWaitCancelled(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	require.NoError(t, rl.Wait(context.Background(), "k"))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, rl.Wait(ctx, "k"), context.DeadlineExceeded)
}

func TestSignalBusPatternsAndClose(t *testing.T) {
	bus := NewSignalBus()
	ctx, cancel := context.WithCancel(context.Background())

	exact, err := bus.Subscribe(ctx, domain.ChannelTx)
	require.NoError(t, err)
	all, err := bus.Subscribe(ctx, domain.ChannelAll)
	require.NoError(t, err)
	other, err := bus.Subscribe(ctx, "ch:other")
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, domain.ChannelTx, []byte("x")))
	assert.Equal(t, "x", string(<-exact))
	assert.Equal(t, "x", string(<-all))
	assert.Empty(t, other)

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-exact:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestSignalBusDropsForSlowSubscriber(t *testing.T) {
	bus := NewSignalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := bus.Subscribe(ctx, "c")
	require.NoError(t, err)

	for i := 0; i < subscriberBuffer+10; i++ {
		require.NoError(t, bus.Publish(ctx, "c", []byte("p")))
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestStreamReadAfterID(t *testing.T) {
	bus := NewSignalBus()
	ctx := context.Background()

	for _, p := range []string{"a", "b", "c"} {
		require.NoError(t, bus.StreamAppend(ctx, domain.StreamTx, []byte(p)))
	}

	first, err := bus.StreamRead(ctx, domain.StreamTx, "0", 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "a", string(first[0].Payload))

	rest, err := bus.StreamRead(ctx, domain.StreamTx, first[1].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "c", string(rest[0].Payload))

	none, err := bus.StreamRead(ctx, "stream:empty", "0", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestIDAfter(t *testing.T) {
	assert.True(t, idAfter("5-1", "0"))
	assert.True(t, idAfter("5-2", "5-1"))
	assert.True(t, idAfter("6-0", "5-9"))
	assert.False(t, idAfter("5-1", "5-1"))
	assert.False(t, idAfter("4-9", "5-0"))
}

func TestTokenStoreExpiry(t *testing.T) {
	ts := NewTokenStore()
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	ts.now = clk.now
	ctx := context.Background()

	_, err := ts.Get(ctx, "0xabc")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, ts.Put(ctx, domain.TokenSnapshot{Address: "0xABC", Symbol: "WETH"}, time.Minute))
	got, err := ts.Get(ctx, "0xAbC")
	require.NoError(t, err)
	assert.Equal(t, "WETH", got.Symbol)

	clk.advance(time.Minute)
	_, err = ts.Get(ctx, "0xabc")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
