// Package memory implements the cache interfaces in-process for single
// instance deployments that run without Redis.
package memory

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/alphamarket/internal/domain"
)

// LockManager is a process-local domain.LockManager with expiring locks.
type LockManager struct {
	mu   sync.Mutex
	held map[string]lockEntry
	seq  uint64
	now  func() time.Time
}

type lockEntry struct {
	token   uint64
	expires time.Time
}

// NewLockManager creates an empty LockManager.
func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]lockEntry), now: time.Now}
}

// Acquire takes key for ttl or returns domain.ErrLockHeld.
func (lm *LockManager) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if e, ok := lm.held[key]; ok && lm.now().Before(e.expires) {
		return nil, fmt.Errorf("memory: acquire lock %s: %w", key, domain.ErrLockHeld)
	}
	lm.seq++
	token := lm.seq
	lm.held[key] = lockEntry{token: token, expires: lm.now().Add(ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			lm.mu.Lock()
			defer lm.mu.Unlock()
			if e, ok := lm.held[key]; ok && e.token == token {
				delete(lm.held, key)
			}
		})
	}, nil
}

// RateLimiter is a process-local sliding window domain.RateLimiter.
type RateLimiter struct {
	mu         sync.Mutex
	hits       map[string][]time.Time
	now        func() time.Time
	waitLimit  int
	waitWindow time.Duration
}

// NewRateLimiter creates a RateLimiter whose Wait admits limit requests per
// window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &RateLimiter{hits: make(map[string][]time.Time), now: time.Now, waitLimit: limit, waitWindow: window}
}

// Allow counts one request for key when it fits in limit per window.
func (rl *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	cutoff := now.Add(-window)
	kept := rl.hits[key][:0]
	for _, t := range rl.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= limit {
		rl.hits[key] = kept
		return false, nil
	}
	rl.hits[key] = append(kept, now)
	return true, nil
}

// Wait blocks until key is admitted under the default limit.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	for {
		ok, _ := rl.Allow(ctx, key, rl.waitLimit, rl.waitWindow)
		if ok {
			return nil
		}
		t := time.NewTimer(50 * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("memory: rate limit wait %s: %w", key, ctx.Err())
		case <-t.C:
		}
	}
}

const (
	subscriberBuffer = 128
	streamMaxLen     = 10000
)

type subscriber struct {
	pattern string
	ch      chan []byte
}

// SignalBus is a process-local domain.SignalBus. Slow subscribers drop
// messages instead of blocking publishers.
type SignalBus struct {
	mu      sync.Mutex
	subs    map[*subscriber]struct{}
	streams map[string][]domain.StreamMessage
	seq     uint64
}

// NewSignalBus creates an empty SignalBus.
func NewSignalBus() *SignalBus {
	return &SignalBus{
		subs:    make(map[*subscriber]struct{}),
		streams: make(map[string][]domain.StreamMessage),
	}
}

// Publish delivers payload to every matching subscriber.
func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		if ok, _ := path.Match(s.pattern, channel); !ok {
			continue
		}
		select {
		case s.ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe delivers payloads published to channel, which may be a glob
// pattern, until ctx ends.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	s := &subscriber{pattern: channel, ch: make(chan []byte, subscriberBuffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		close(s.ch)
		b.mu.Unlock()
	}()
	return s.ch, nil
}

// StreamAppend adds payload to stream with a Redis-style "<ms>-<seq>" id.
func (b *SignalBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	id := strconv.FormatInt(time.Now().UnixMilli(), 10) + "-" + strconv.FormatUint(b.seq, 10)
	msgs := append(b.streams[stream], domain.StreamMessage{ID: id, Payload: payload})
	if len(msgs) > streamMaxLen {
		msgs = msgs[len(msgs)-streamMaxLen:]
	}
	b.streams[stream] = msgs
	return nil
}

// StreamRead returns up to count entries after lastID.
func (b *SignalBus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.StreamMessage
	for _, m := range b.streams[stream] {
		if !idAfter(m.ID, lastID) {
			continue
		}
		out = append(out, m)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}

// idAfter compares stream ids of the form "<ms>-<seq>".
func idAfter(id, last string) bool {
	if last == "" || last == "0" || last == "0-0" {
		return true
	}
	ims, iseq := splitID(id)
	lms, lseq := splitID(last)
	if ims != lms {
		return ims > lms
	}
	return iseq > lseq
}

func splitID(id string) (uint64, uint64) {
	ms, seq, _ := strings.Cut(id, "-")
	a, _ := strconv.ParseUint(ms, 10, 64)
	b, _ := strconv.ParseUint(seq, 10, 64)
	return a, b
}

type tokenEntry struct {
	snap    domain.TokenSnapshot
	expires time.Time
}

// TokenStore is a process-local domain.TokenStore.
type TokenStore struct {
	mu      sync.Mutex
	entries map[string]tokenEntry
	now     func() time.Time
}

// NewTokenStore creates an empty TokenStore.
func NewTokenStore() *TokenStore {
	return &TokenStore{entries: make(map[string]tokenEntry), now: time.Now}
}

// Put stores snap for ttl.
func (ts *TokenStore) Put(_ context.Context, snap domain.TokenSnapshot, ttl time.Duration) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.entries[strings.ToLower(snap.Address)] = tokenEntry{snap: snap, expires: ts.now().Add(ttl)}
	return nil
}

// Get returns the stored snapshot or domain.ErrNotFound once expired.
func (ts *TokenStore) Get(_ context.Context, addr string) (domain.TokenSnapshot, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	k := strings.ToLower(addr)
	e, ok := ts.entries[k]
	if !ok || !ts.now().Before(e.expires) {
		delete(ts.entries, k)
		return domain.TokenSnapshot{}, domain.ErrNotFound
	}
	return e.snap, nil
}

var (
	_ domain.LockManager = (*LockManager)(nil)
	_ domain.RateLimiter = (*RateLimiter)(nil)
	_ domain.SignalBus   = (*SignalBus)(nil)
	_ domain.TokenStore  = (*TokenStore)(nil)
)
