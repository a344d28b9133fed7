package query

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Subscription delivers the latest result of a watched key. Only the newest
// result is buffered; a slow reader skips intermediate values.
type Subscription struct {
	c      *Cache
	e      *entry
	ch     chan Result
	once   sync.Once
	closed bool
}

// Updates returns the result channel. It is closed by Close.
func (s *Subscription) Updates() <-chan Result {
	return s.ch
}

// Close stops delivery. When the last subscriber of a key closes, its
// revalidation loop stops. Close is idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.c.mu.Lock()
		defer s.c.mu.Unlock()
		delete(s.e.subs, s)
		if len(s.e.subs) == 0 && s.e.stopLoop != nil {
			s.e.stopLoop()
			s.e.stopLoop = nil
		}
		s.closeLocked()
	})
}

func (s *Subscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

func (s *Subscription) deliverLocked(r Result) {
	if s.closed {
		return
	}
	select {
	case s.ch <- r:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- r:
	default:
	}
}

func (c *Cache) notifyLocked(e *entry) {
	r := e.result()
	for s := range e.subs {
		s.deliverLocked(r)
	}
}

// Watch subscribes to key. The current value is delivered immediately when
// fresh, otherwise a fetch is started. While subscribed, the key is
// refetched every p.RefetchInterval.
func (c *Cache) Watch(key Key, p Policy, fetch Fetcher) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entryLocked(key, p, fetch)
	s := &Subscription{c: c, e: e, ch: make(chan Result, 1)}
	if c.baseCtx.Err() != nil {
		s.closeLocked()
		return s
	}
	e.subs[s] = struct{}{}

	if e.stopLoop == nil && p.RefetchInterval > 0 {
		ctx, cancel := context.WithCancel(c.baseCtx)
		e.stopLoop = cancel
		go c.revalidate(ctx, e, p.RefetchInterval)
	}

	if c.fresh(e) {
		s.deliverLocked(e.result())
	} else {
		go func() {
			if _, err := c.load(c.baseCtx, e); err != nil {
				c.logger.Debug("query: initial watch fetch failed",
					slog.String("key", key.String()),
					slog.String("error", err.Error()),
				)
			}
		}()
	}
	return s
}

// revalidate refetches e every interval until ctx is cancelled.
func (c *Cache) revalidate(ctx context.Context, e *entry, interval time.Duration) {
	tick, stop := c.newTicker(interval)
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			// A tick must start a new fetch rather than join one that is
			// already delivering its result.
			c.group.Forget(e.key.String())
			_, _ = c.load(ctx, e)
		}
	}
}
