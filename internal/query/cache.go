// Package query implements the shared read-through cache that backs every
// contract and upstream read. Entries are keyed by call signature, fetched at
// most once concurrently, and revalidated in the background while watched.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Policy is the freshness policy of one kind of read.
type Policy struct {
	// StaleTime is how long a successful result is served without refetching.
	StaleTime time.Duration
	// RefetchInterval is the background revalidation period while at least
	// one subscriber watches the key. Zero disables revalidation.
	RefetchInterval time.Duration
}

// Fetcher loads the current value for a key.
type Fetcher func(ctx context.Context) (any, error)

// Result is a snapshot of a cache entry.
type Result struct {
	Key       string
	Value     any
	Err       error
	FetchedAt time.Time
}

// Recorder receives cache outcome counts. observability.Metrics satisfies it.
type Recorder interface {
	CacheHit(name string)
	CacheMiss(name string)
	CacheError(name string)
}

type nopRecorder struct{}

func (nopRecorder) CacheHit(string)   {}
func (nopRecorder) CacheMiss(string)  {}
func (nopRecorder) CacheError(string) {}

// Unwatched entries are dropped once they have been stale for gcTime.
// Sweeps run lazily when a new key is added, at most every sweepEvery.
const (
	defaultGCTime = 5 * time.Minute
	sweepEvery    = time.Minute
)

// TickerFunc creates a ticker channel and its stop function.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

type entry struct {
	key       Key
	policy    Policy
	fetch     Fetcher
	value     any
	err       error
	fetchedAt time.Time
	loaded    bool
	gen       uint64
	subs      map[*Subscription]struct{}
	stopLoop  context.CancelFunc
}

func (e *entry) result() Result {
	return Result{Key: e.key.String(), Value: e.value, Err: e.err, FetchedAt: e.fetchedAt}
}

// Cache is a keyed read-through cache. It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	group   singleflight.Group

	now       func() time.Time
	newTicker TickerFunc
	rec       Recorder
	logger    *slog.Logger
	gcTime    time.Duration
	lastSweep time.Time

	baseCtx context.Context
	cancel  context.CancelFunc
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the wall clock used for freshness checks.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithTicker overrides the ticker used by revalidation loops.
func WithTicker(f TickerFunc) Option {
	return func(c *Cache) { c.newTicker = f }
}

// WithGCTime sets how long an unwatched entry outlives its stale time.
func WithGCTime(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.gcTime = d
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Cache) {
		if r != nil {
			c.rec = r
		}
	}
}

// New creates an empty Cache. Call Close to stop background revalidation.
func New(logger *slog.Logger, opts ...Option) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		entries:   make(map[string]*entry),
		now:       time.Now,
		newTicker: realTicker,
		rec:       nopRecorder{},
		gcTime:    defaultGCTime,
		logger:    logger.With(slog.String("component", "query")),
		baseCtx:   ctx,
		cancel:    cancel,
	}
	for _, o := range opts {
		o(c)
	}
	c.lastSweep = c.now()
	return c
}

// Close stops every revalidation loop and closes all subscriptions.
func (c *Cache) Close() {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		for s := range e.subs {
			s.closeLocked()
		}
		e.subs = nil
	}
}

// entryLocked returns the entry for key, creating it when missing.
func (c *Cache) entryLocked(key Key, p Policy, fetch Fetcher) *entry {
	k := key.String()
	e, ok := c.entries[k]
	if !ok {
		c.maybeSweepLocked()
		e = &entry{key: key, subs: make(map[*Subscription]struct{})}
		c.entries[k] = e
	}
	e.policy = p
	e.fetch = fetch
	return e
}

// maybeSweepLocked drops loaded, unwatched entries whose stale time plus
// gcTime has passed. In-flight fetches for a dropped entry are discarded.
func (c *Cache) maybeSweepLocked() {
	now := c.now()
	if now.Sub(c.lastSweep) < sweepEvery {
		return
	}
	c.lastSweep = now
	for k, e := range c.entries {
		if len(e.subs) > 0 || !e.loaded {
			continue
		}
		if now.Sub(e.fetchedAt) >= e.policy.StaleTime+c.gcTime {
			delete(c.entries, k)
			c.group.Forget(k)
		}
	}
}

func (c *Cache) fresh(e *entry) bool {
	return e.loaded && e.err == nil && c.now().Sub(e.fetchedAt) < e.policy.StaleTime
}

// Fetch returns the cached value for key when it is fresh, otherwise it runs
// fetch once on behalf of all concurrent callers and caches the outcome. A
// failed fetch replaces any previous value with the error.
func (c *Cache) Fetch(ctx context.Context, key Key, p Policy, fetch Fetcher) (any, error) {
	c.mu.Lock()
	e := c.entryLocked(key, p, fetch)
	if c.fresh(e) {
		v := e.value
		c.mu.Unlock()
		c.rec.CacheHit(key.Name)
		return v, nil
	}
	c.mu.Unlock()
	c.rec.CacheMiss(key.Name)
	return c.load(ctx, e)
}

// load runs the entry's fetcher through the singleflight group and stores
// the outcome unless the entry was invalidated while the fetch was running.
func (c *Cache) load(ctx context.Context, e *entry) (any, error) {
	k := e.key.String()

	ch := c.group.DoChan(k, func() (any, error) {
		c.mu.Lock()
		gen := e.gen
		fetch := e.fetch
		c.mu.Unlock()

		v, err := fetch(context.WithoutCancel(ctx))

		c.mu.Lock()
		defer c.mu.Unlock()
		if cur, ok := c.entries[k]; !ok || cur != e || e.gen != gen {
			return v, err
		}
		e.loaded = true
		e.fetchedAt = c.now()
		if err != nil {
			e.value, e.err = nil, err
			c.rec.CacheError(e.key.Name)
			c.logger.Warn("query: fetch failed",
				slog.String("key", k),
				slog.String("error", err.Error()),
			)
		} else {
			e.value, e.err = v, nil
		}
		c.notifyLocked(e)
		return v, err
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("query: fetch %s: %w", k, ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return nil, fmt.Errorf("query: fetch %s: %w", k, r.Err)
		}
		return r.Val, nil
	}
}

// FetchAs is Fetch with a typed fetcher and result.
func FetchAs[T any](ctx context.Context, c *Cache, key Key, p Policy, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	v, err := c.Fetch(ctx, key, p, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("query: fetch %s: unexpected value type %T", key, v)
	}
	return t, nil
}

// Peek returns the current entry for key without fetching.
func (c *Cache) Peek(key Key) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok || !e.loaded {
		return Result{}, false
	}
	return e.result(), true
}

// Invalidate drops every entry matched by targets so the next read fetches
// again. Entries that currently have subscribers are refetched before
// Invalidate returns; the first refetch error is returned.
func (c *Cache) Invalidate(ctx context.Context, targets ...Target) error {
	var watched []*entry

	c.mu.Lock()
	for k, e := range c.entries {
		if !matchAny(targets, k) {
			continue
		}
		e.gen++
		c.group.Forget(k)
		if len(e.subs) > 0 {
			e.loaded = false
			watched = append(watched, e)
			continue
		}
		delete(c.entries, k)
	}
	c.mu.Unlock()

	if len(watched) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, e := range watched {
		g.Go(func() error {
			_, err := c.load(gctx, e)
			return err
		})
	}
	return g.Wait()
}

func matchAny(targets []Target, key string) bool {
	for _, t := range targets {
		if t.matches(key) {
			return true
		}
	}
	return false
}

// Len returns the number of entries, including error states.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
