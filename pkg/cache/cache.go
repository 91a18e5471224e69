package cache

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/tripchat/internal/logging"
	"github.com/aretw0/tripchat/pkg/domain"
	"github.com/aretw0/tripchat/pkg/ports"
	"golang.org/x/sync/singleflight"
)

// FetchFunc loads the authoritative value for a key.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Config is the policy of one cache. It is immutable after New.
type Config struct {
	// TTL is how long an entry is fresh.
	TTL time.Duration
	// StaleWindow is how long after TTL a stale entry may still be served.
	StaleWindow time.Duration
	// MaxEntries bounds the number of in-memory entries.
	MaxEntries int
	// Compress stores values gzip-compressed in the backing store.
	Compress bool
	// Prefix is prepended to every key written to the backing store.
	Prefix string
	// RefreshTimeout bounds background refreshes. Zero means no bound.
	RefreshTimeout time.Duration
}

func (c Config) validate() error {
	switch {
	case c.TTL <= 0:
		return fmt.Errorf("ttl must be positive, got %s", c.TTL)
	case c.StaleWindow < 0:
		return fmt.Errorf("stale window must not be negative, got %s", c.StaleWindow)
	case c.MaxEntries <= 0:
		return fmt.Errorf("max entries must be positive, got %d", c.MaxEntries)
	}
	return nil
}

// Hooks are optional callbacks for metrics. Nil fields are skipped.
type Hooks struct {
	OnHit          func(key string)
	OnMiss         func(key string)
	OnStale        func(key string)
	OnEvict        func(count int)
	OnRefreshError func(key string, err error)
}

// Cache is an expiring key-value cache. It is safe for concurrent use.
type Cache[T any] struct {
	cfg     Config
	store   ports.KeyValueStore
	logger  *slog.Logger
	hooks   Hooks
	now     func() time.Time
	clone   func(T) T
	fetcher FetchFunc[T]
	filter  func([]byte) []byte

	mu      sync.Mutex
	entries map[string]*Entry[T]
	seqs    map[string]uint64
	seq     uint64

	group     singleflight.Group
	refreshes sync.WaitGroup
	bgCtx     context.Context
	bgCancel  context.CancelFunc
}

// Option configures a Cache.
type Option[T any] func(*Cache[T])

// WithStore enables write-through persistence to store.
func WithStore[T any](store ports.KeyValueStore) Option[T] {
	return func(c *Cache[T]) {
		c.store = store
	}
}

// WithLogger configures a logger for storage faults and refresh failures.
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(c *Cache[T]) {
		c.logger = logger
	}
}

// WithHooks installs metric callbacks.
func WithHooks[T any](hooks Hooks) Option[T] {
	return func(c *Cache[T]) {
		c.hooks = hooks
	}
}

// WithClock replaces time.Now.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(c *Cache[T]) {
		c.now = now
	}
}

// WithCloner sets how values are copied in and out of the cache. Reference
// types (slices, maps, pointers) need one to keep entries private.
func WithCloner[T any](clone func(T) T) Option[T] {
	return func(c *Cache[T]) {
		c.clone = clone
	}
}

// WithFetcher sets the refresh function used when Get finds a stale entry.
func WithFetcher[T any](fetch FetchFunc[T]) Option[T] {
	return func(c *Cache[T]) {
		c.fetcher = fetch
	}
}

// WithPersistFilter rewrites the JSON of each value before it is compressed
// and persisted. In-memory entries keep the original value.
func WithPersistFilter[T any](filter func([]byte) []byte) Option[T] {
	return func(c *Cache[T]) {
		c.filter = filter
	}
}

// New creates a cache with the given policy.
func New[T any](cfg Config, opts ...Option[T]) (*Cache[T], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	bgCtx, cancel := context.WithCancel(context.Background())
	c := &Cache[T]{
		cfg:      cfg,
		logger:   logging.NewNop(),
		now:      time.Now,
		clone:    func(v T) T { return v },
		entries:  make(map[string]*Entry[T]),
		seqs:     make(map[string]uint64),
		bgCtx:    bgCtx,
		bgCancel: cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type window int

const (
	fresh window = iota
	stale
	expired
)

func (c *Cache[T]) classify(e *Entry[T], now time.Time) window {
	ttl := c.cfg.TTL
	if e.TTL > 0 {
		ttl = e.TTL
	}
	age := now.Sub(e.Timestamp)
	switch {
	case age <= ttl:
		return fresh
	case age <= ttl+c.cfg.StaleWindow:
		return stale
	default:
		return expired
	}
}

// Get returns the value for key. A stale value is returned and, if a default
// fetcher is configured, refreshed in the background.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, bool) {
	return c.lookup(ctx, key, c.fetcher)
}

// GetOrFetch returns the cached value or loads it with fetch. Stale values are
// served immediately while fetch refreshes them in the background. On a miss
// fetch runs in the foreground, deduplicated across concurrent callers, and
// its error is returned.
func (c *Cache[T]) GetOrFetch(ctx context.Context, key string, fetch FetchFunc[T]) (T, error) {
	if v, ok := c.lookup(ctx, key, fetch); ok {
		return v, nil
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, v, 0, c.cfg.Compress)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return c.clone(res.(T)), nil
}

func (c *Cache[T]) lookup(ctx context.Context, key string, fetch FetchFunc[T]) (T, bool) {
	var zero T

	c.mu.Lock()
	e, ok := c.entries[key]
	c.mu.Unlock()

	if !ok {
		loaded := c.load(ctx, key)
		if loaded == nil {
			c.miss(key)
			return zero, false
		}
		c.mu.Lock()
		if cur, exists := c.entries[key]; exists {
			e = cur
		} else {
			e = loaded
			c.insertLocked(key, e)
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	switch c.classify(e, c.now()) {
	case fresh:
		v := c.clone(e.Value)
		c.mu.Unlock()
		if c.hooks.OnHit != nil {
			c.hooks.OnHit(key)
		}
		return v, true

	case stale:
		e.Stale = true
		v := c.clone(e.Value)
		schedule := fetch != nil && !e.Refreshing
		if schedule {
			e.Refreshing = true
		}
		c.mu.Unlock()
		if c.hooks.OnStale != nil {
			c.hooks.OnStale(key)
		}
		if schedule {
			c.refresh(key, e, fetch)
		}
		return v, true

	default:
		if c.entries[key] == e {
			c.removeLocked(key)
		}
		c.mu.Unlock()
		c.deletePersisted(ctx, key)
		c.miss(key)
		return zero, false
	}
}

func (c *Cache[T]) miss(key string) {
	if c.hooks.OnMiss != nil {
		c.hooks.OnMiss(key)
	}
}

// refresh runs fetch in the background for a stale entry. The entry's
// Refreshing flag was set by the caller.
func (c *Cache[T]) refresh(key string, old *Entry[T], fetch FetchFunc[T]) {
	c.refreshes.Add(1)
	go func() {
		defer c.refreshes.Done()

		ctx := c.bgCtx
		if c.cfg.RefreshTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.cfg.RefreshTimeout)
			defer cancel()
		}

		v, err := fetch(ctx)
		if err != nil {
			c.mu.Lock()
			if c.entries[key] == old {
				old.Refreshing = false
			}
			c.mu.Unlock()

			if isCancellation(err) {
				c.logger.Debug("background refresh cancelled", "key", key, "err", err)
				return
			}
			c.logger.Warn("background refresh failed", "key", key, "err", err)
			if c.hooks.OnRefreshError != nil {
				c.hooks.OnRefreshError(key, err)
			}
			return
		}
		if c.bgCtx.Err() != nil {
			return
		}
		c.set(c.bgCtx, key, v, old.TTL, old.Compressed)
	}()
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Set stores value under key using the cache's TTL.
func (c *Cache[T]) Set(ctx context.Context, key string, value T) {
	c.set(ctx, key, value, 0, c.cfg.Compress)
}

// SetWithTTL stores value with a per-entry TTL override. ttl <= 0 uses the cache TTL.
func (c *Cache[T]) SetWithTTL(ctx context.Context, key string, value T, ttl time.Duration) {
	c.set(ctx, key, value, max(ttl, 0), c.cfg.Compress)
}

// SetCompressed stores value and forces compression of its persisted form.
func (c *Cache[T]) SetCompressed(ctx context.Context, key string, value T) {
	c.set(ctx, key, value, 0, true)
}

func (c *Cache[T]) set(ctx context.Context, key string, value T, ttl time.Duration, compressed bool) {
	e := &Entry[T]{
		Value:      c.clone(value),
		Timestamp:  c.now(),
		TTL:        ttl,
		Compressed: compressed,
	}

	// Encode before publishing: once in the map, flags may change under c.mu.
	var data []byte
	if c.store != nil {
		var err error
		if data, err = encodeEntry(e, c.filter); err != nil {
			c.logger.Warn("cache entry not persisted", "key", key, "err", err)
		}
	}

	c.mu.Lock()
	c.insertLocked(key, e)
	evicted := c.evictLocked()
	c.mu.Unlock()

	if data != nil {
		if err := c.store.Set(ctx, c.cfg.Prefix+key, data); err != nil {
			c.logger.Warn("cache entry not persisted", "key", key, "err", err)
		}
	}
	for _, k := range evicted {
		c.deletePersisted(ctx, k)
	}
	if len(evicted) > 0 && c.hooks.OnEvict != nil {
		c.hooks.OnEvict(len(evicted))
	}
}

func (c *Cache[T]) insertLocked(key string, e *Entry[T]) {
	c.seq++
	c.entries[key] = e
	c.seqs[key] = c.seq
}

func (c *Cache[T]) removeLocked(key string) {
	delete(c.entries, key)
	delete(c.seqs, key)
}

// evictLocked drops the oldest-written 20% of entries once MaxEntries is exceeded.
func (c *Cache[T]) evictLocked() []string {
	if len(c.entries) <= c.cfg.MaxEntries {
		return nil
	}
	n := (len(c.entries) + 4) / 5

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b string) int {
		if d := c.entries[a].Timestamp.Compare(c.entries[b].Timestamp); d != 0 {
			return d
		}
		return cmp.Compare(c.seqs[a], c.seqs[b])
	})

	victims := keys[:n]
	for _, k := range victims {
		c.removeLocked(k)
	}
	return victims
}

// Delete removes key from memory and from the backing store.
func (c *Cache[T]) Delete(ctx context.Context, key string) {
	c.mu.Lock()
	c.removeLocked(key)
	c.mu.Unlock()
	c.deletePersisted(ctx, key)
}

// DeletePrefix removes every key starting with prefix and returns how many
// in-memory entries were dropped.
func (c *Cache[T]) DeletePrefix(ctx context.Context, prefix string) int {
	c.mu.Lock()
	n := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			c.removeLocked(k)
			n++
		}
	}
	c.mu.Unlock()
	c.deletePersistedPrefix(ctx, prefix)
	return n
}

// Clear removes every entry of this cache, including persisted ones.
func (c *Cache[T]) Clear(ctx context.Context) {
	c.mu.Lock()
	c.entries = make(map[string]*Entry[T])
	c.seqs = make(map[string]uint64)
	c.mu.Unlock()
	c.deletePersistedPrefix(ctx, "")
}

// Hydrate loads persisted entries into memory and returns how many were
// restored. Corrupt and expired records are dropped from the store without
// aborting the rest.
func (c *Cache[T]) Hydrate(ctx context.Context) int {
	if c.store == nil {
		return 0
	}
	keys, err := c.store.Keys(ctx, c.cfg.Prefix)
	if err != nil {
		c.logger.Warn("cache hydration skipped", "prefix", c.cfg.Prefix, "err", err)
		return 0
	}

	now := c.now()
	loaded := 0
	for _, full := range keys {
		key := strings.TrimPrefix(full, c.cfg.Prefix)
		e := c.load(ctx, key)
		if e == nil {
			continue
		}
		if c.classify(e, now) == expired {
			c.deletePersisted(ctx, key)
			continue
		}
		c.mu.Lock()
		if _, exists := c.entries[key]; !exists {
			c.insertLocked(key, e)
			loaded++
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	evicted := c.evictLocked()
	c.mu.Unlock()
	for _, k := range evicted {
		c.deletePersisted(ctx, k)
	}
	return loaded - len(evicted)
}

// load reads one entry from the backing store. Faults degrade to nil.
func (c *Cache[T]) load(ctx context.Context, key string) *Entry[T] {
	if c.store == nil {
		return nil
	}
	data, err := c.store.Get(ctx, c.cfg.Prefix+key)
	if err != nil {
		if !errors.Is(err, domain.ErrKeyNotFound) {
			c.logger.Warn("cache read failed", "key", key, "err", err)
		}
		return nil
	}
	e, err := decodeEntry[T](data)
	if err != nil {
		c.logger.Debug("dropping corrupt cache record", "key", key, "err", err)
		c.deletePersisted(ctx, key)
		return nil
	}
	return e
}

func (c *Cache[T]) deletePersisted(ctx context.Context, key string) {
	if c.store == nil {
		return
	}
	if err := c.store.Delete(ctx, c.cfg.Prefix+key); err != nil {
		c.logger.Warn("cache delete failed", "key", key, "err", err)
	}
}

func (c *Cache[T]) deletePersistedPrefix(ctx context.Context, prefix string) {
	if c.store == nil {
		return
	}
	keys, err := c.store.Keys(ctx, c.cfg.Prefix+prefix)
	if err != nil {
		c.logger.Warn("cache clear failed", "prefix", c.cfg.Prefix+prefix, "err", err)
		return
	}
	for _, k := range keys {
		if err := c.store.Delete(ctx, k); err != nil {
			c.logger.Warn("cache delete failed", "key", k, "err", err)
		}
	}
}

// Inspect returns a copy of the entry bookkeeping for key without touching
// freshness or scheduling refreshes.
func (c *Cache[T]) Inspect(key string) (Entry[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Entry[T]{}, false
	}
	out := *e
	out.Value = c.clone(e.Value)
	return out, true
}

// Len returns the number of in-memory entries.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns the in-memory keys in sorted order.
func (c *Cache[T]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Wait blocks until in-flight background refreshes have finished.
func (c *Cache[T]) Wait() {
	c.refreshes.Wait()
}

// Close cancels in-flight background refreshes and waits for them.
func (c *Cache[T]) Close() {
	c.bgCancel()
	c.refreshes.Wait()
}
