package infra

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Clock supplies the current time to the cache.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// Observer receives cache events. Implementations must be safe for
// concurrent use.
type Observer interface {
	Hit(cache string)
	Miss(cache string)
	Shared(cache string)
	Fetch(cache string, took time.Duration, err error)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) Hit(string)                         {}
func (NopObserver) Miss(string)                        {}
func (NopObserver) Shared(string)                      {}
func (NopObserver) Fetch(string, time.Duration, error) {}

// Entry holds a cached value and the time it was fetched.
type Entry[V any] struct {
	Value     V
	FetchedAt time.Time
}

// Age returns how old the entry is at now.
func (e Entry[V]) Age(now time.Time) time.Duration {
	return now.Sub(e.FetchedAt)
}

// FetchFunc produces a fresh value for a cache miss.
type FetchFunc[V any] func(ctx context.Context) (V, error)

// CacheOption configures a TTLCache.
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	clock    Clock
	observer Observer
	mirror   Mirror
	logger   zerolog.Logger
}

// WithClock overrides the time source.
func WithClock(c Clock) CacheOption {
	return func(o *cacheOptions) { o.clock = c }
}

// WithObserver attaches an event observer (metrics).
func WithObserver(obs Observer) CacheOption {
	return func(o *cacheOptions) { o.observer = obs }
}

// WithMirror attaches a shared second-tier store.
func WithMirror(m Mirror) CacheOption {
	return func(o *cacheOptions) { o.mirror = m }
}

// WithLogger sets the logger used for mirror and fetch diagnostics.
func WithLogger(l zerolog.Logger) CacheOption {
	return func(o *cacheOptions) { o.logger = l }
}

// TTLCache memoizes the most recent successful result per key.
//
// A value is served while its age is below the window passed to Get.
// Concurrent misses for the same key share a single fetch. Failed fetches
// are returned to the caller and leave the previous entry in place.
// Entries are only removed by Invalidate or Flush.
type TTLCache[V any] struct {
	name     string
	clock    Clock
	observer Observer
	mirror   Mirror
	log      zerolog.Logger

	mu      sync.RWMutex
	entries map[string]Entry[V]

	group singleflight.Group

	hookMu sync.RWMutex
	hooks  []func(key string, e Entry[V])
}

// NewTTLCache creates an empty cache. The name labels metrics and logs.
func NewTTLCache[V any](name string, opts ...CacheOption) *TTLCache[V] {
	o := cacheOptions{
		clock:    SystemClock,
		observer: NopObserver{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTLCache[V]{
		name:     name,
		clock:    o.clock,
		observer: o.observer,
		mirror:   o.mirror,
		log:      o.logger.With().Str("cache", name).Logger(),
		entries:  make(map[string]Entry[V]),
	}
}

// Name returns the cache name.
func (c *TTLCache[V]) Name() string { return c.name }

// Get returns the value for key if it is younger than window. Otherwise it
// runs fetch, stores the result and returns it.
//
// Only one fetch per key runs at a time; callers arriving during a fetch
// wait for its result. The fetch runs detached from ctx: if the caller
// gives up, Get returns ctx.Err() and the fetch still completes and
// populates the cache for later callers.
func (c *TTLCache[V]) Get(ctx context.Context, key string, window time.Duration, fetch FetchFunc[V]) (V, error) {
	if e, ok := c.fresh(key, window); ok {
		c.observer.Hit(c.name)
		return e.Value, nil
	}
	c.observer.Miss(c.name)

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return c.refresh(detached, key, window, fetch)
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.observer.Shared(c.name)
		}
		if res.Err != nil {
			var zero V
			return zero, res.Err
		}
		v, _ := res.Val.(V)
		return v, nil
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

// Peek returns the stored entry for key regardless of its age.
func (c *TTLCache[V]) Peek(key string) (Entry[V], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// Invalidate removes a key from the cache.
func (c *TTLCache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Flush removes all entries from the cache.
func (c *TTLCache[V]) Flush() {
	c.mu.Lock()
	c.entries = make(map[string]Entry[V])
	c.mu.Unlock()
}

// Len returns the number of stored entries, fresh or not.
func (c *TTLCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// OnRefresh registers fn to be called after every successful store.
// Hooks run on the fetching goroutine, outside the cache lock.
func (c *TTLCache[V]) OnRefresh(fn func(key string, e Entry[V])) {
	c.hookMu.Lock()
	c.hooks = append(c.hooks, fn)
	c.hookMu.Unlock()
}

func (c *TTLCache[V]) fresh(key string, window time.Duration) (Entry[V], bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || window <= 0 || e.Age(c.clock.Now()) >= window {
		return e, false
	}
	return e, true
}

// refresh runs inside the single flight for key.
func (c *TTLCache[V]) refresh(ctx context.Context, key string, window time.Duration, fetch FetchFunc[V]) (V, error) {
	// A flight that finished just before this one started may have stored a fresh entry.
	if e, ok := c.fresh(key, window); ok {
		return e.Value, nil
	}

	if e, ok := c.loadMirror(ctx, key, window); ok {
		c.store(key, e)
		return e.Value, nil
	}

	start := c.clock.Now()
	v, err := fetch(ctx)
	c.observer.Fetch(c.name, c.clock.Now().Sub(start), err)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("fetch failed, keeping previous entry")
		return v, err
	}

	e := c.store(key, Entry[V]{Value: v, FetchedAt: c.clock.Now()})
	c.saveMirror(ctx, key, e, window)
	return v, nil
}

// store replaces the entry for key. FetchedAt never moves backwards.
func (c *TTLCache[V]) store(key string, e Entry[V]) Entry[V] {
	c.mu.Lock()
	if prev, ok := c.entries[key]; ok && e.FetchedAt.Before(prev.FetchedAt) {
		e.FetchedAt = prev.FetchedAt
	}
	c.entries[key] = e
	c.mu.Unlock()

	c.hookMu.RLock()
	hooks := c.hooks
	c.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(key, e)
	}
	return e
}

func (c *TTLCache[V]) loadMirror(ctx context.Context, key string, window time.Duration) (Entry[V], bool) {
	var e Entry[V]
	if c.mirror == nil || window <= 0 {
		return e, false
	}

	payload, fetchedAt, ok, err := c.mirror.Load(ctx, c.name+":"+key)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("mirror load failed")
		return e, false
	}
	if !ok || c.clock.Now().Sub(fetchedAt) >= window {
		return e, false
	}
	if prev, exists := c.Peek(key); exists && !fetchedAt.After(prev.FetchedAt) {
		return e, false
	}

	if err := json.Unmarshal(payload, &e.Value); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("mirror payload undecodable")
		return e, false
	}
	e.FetchedAt = fetchedAt
	c.log.Debug().Str("key", key).Time("fetched_at", fetchedAt).Msg("adopted mirror entry")
	return e, true
}

func (c *TTLCache[V]) saveMirror(ctx context.Context, key string, e Entry[V], window time.Duration) {
	if c.mirror == nil {
		return
	}
	payload, err := json.Marshal(e.Value)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("mirror encode failed")
		return
	}
	if err := c.mirror.Store(ctx, c.name+":"+key, payload, e.FetchedAt, window); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("mirror store failed")
	}
}
