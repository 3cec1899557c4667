// Package cache is a two-tier (memory + persistent store) key-value cache
// with per-entry TTL. Entries expire on read: a value older than its TTL
// is removed from both tiers and reported as a miss. Every key written is
// recorded in a registry kept in the persistent tier so that Clear, Size
// and Keys see entries written before a restart. A missing or unreadable
// registry is rebuilt from the store's own key listing.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RegistryKey is the reserved key holding the list of cached keys.
const RegistryKey = "__registry__"

// DefaultTTL applies when neither the cache nor the caller sets one.
const DefaultTTL = 5 * time.Minute

// Backends understood by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

var (
	// ErrNotFound is returned for missing and expired keys.
	ErrNotFound = errors.New("cache: key not found")

	// ErrInvalidKey is returned for empty or reserved keys.
	ErrInvalidKey = errors.New("cache: invalid key")
)

// entry is the envelope stored in both tiers.
type entry struct {
	Value     json.RawMessage `json:"value"`
	WrittenAt time.Time       `json:"written_at"`
	TTL       time.Duration   `json:"ttl"`
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.WrittenAt) > e.TTL
}

// Cache is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	memory   map[string]*entry
	registry map[string]struct{}
	store    Store

	defaultTTL time.Duration
	now        func() time.Time
	logger     *zap.Logger
	metrics    *Metrics
	stats      statistics
}

// Option configures a Cache.
type Option func(*Cache)

// WithDefaultTTL sets the TTL used when Set is called with ttl <= 0.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics exports counters to Prometheus.
func WithMetrics(m *Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New builds a Cache over store and loads the key registry from it.
func New(ctx context.Context, store Store, opts ...Option) (*Cache, error) {
	if store == nil {
		store = NewMemoryStore()
	}
	c := &Cache{
		memory:     make(map[string]*entry),
		registry:   make(map[string]struct{}),
		store:      store,
		defaultTTL: DefaultTTL,
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	raw, err := store.Get(ctx, RegistryKey)
	switch {
	case errors.Is(err, ErrNotFound):
		if err := c.rebuildRegistry(ctx); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load cache registry: %w", err)
	default:
		var keys []string
		if err := json.Unmarshal(raw, &keys); err != nil {
			c.logger.Warn("rebuilding unreadable cache registry", zap.Error(err))
			if err := c.rebuildRegistry(ctx); err != nil {
				return nil, err
			}
			break
		}
		for _, k := range keys {
			c.registry[k] = struct{}{}
		}
	}

	return c, nil
}

// rebuildRegistry registers every key the store already holds. It runs
// when the registry record is missing or unreadable.
func (c *Cache) rebuildRegistry(ctx context.Context) error {
	keys, err := c.store.Keys(ctx)
	if err != nil {
		return fmt.Errorf("failed to list cache keys: %w", err)
	}
	for _, k := range keys {
		if k != RegistryKey {
			c.registry[k] = struct{}{}
		}
	}
	if len(c.registry) == 0 {
		return nil
	}
	c.logger.Info("rebuilt cache registry", zap.Int("keys", len(c.registry)))
	return c.saveRegistryLocked(ctx)
}

// Open builds the Store for a backend name and wraps it in a Cache.
func Open(ctx context.Context, backend, dir string, opts ...Option) (*Cache, error) {
	var (
		store Store
		err   error
	)
	switch strings.ToLower(backend) {
	case BackendFile, "":
		store, err = NewFileStore(dir)
	case BackendSQLite:
		store, err = NewSQLiteStore(filepath.Join(dir, "cache.db"))
	case BackendMemory:
		store = NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
	if err != nil {
		return nil, err
	}

	c, err := New(ctx, store, opts...)
	if err != nil {
		store.Close()
		return nil, err
	}
	return c, nil
}

// DefaultDir returns the per-user cache directory for overhead.
func DefaultDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "overhead")
	}
	return filepath.Join(dir, "overhead")
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" || key == RegistryKey {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// Get decodes the value for key into dst. Memory is consulted first, then
// the store; a store hit is promoted to memory. Missing and expired keys
// return ErrNotFound.
func (c *Cache) Get(ctx context.Context, key string, dst any) error {
	if err := validateKey(key); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, ok := c.memory[key]
	if !ok {
		raw, err := c.store.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			c.recordMiss()
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read %q: %w", key, err)
		}
		e = new(entry)
		if err := json.Unmarshal(raw, e); err != nil {
			c.logger.Warn("dropping unreadable cache entry", zap.String("key", key), zap.Error(err))
			c.removeLocked(ctx, key)
			c.recordMiss()
			return ErrNotFound
		}
		if !e.expired(now) {
			c.memory[key] = e
		}
	}

	if e.expired(now) {
		if err := c.removeLocked(ctx, key); err != nil {
			return err
		}
		c.recordEviction()
		c.recordMiss()
		return ErrNotFound
	}

	if err := json.Unmarshal(e.Value, dst); err != nil {
		return fmt.Errorf("failed to decode %q: %w", key, err)
	}
	c.recordHit()
	return nil
}

// Set stores value under key in both tiers. ttl <= 0 uses the default TTL.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry{Value: payload, WrittenAt: c.now(), TTL: ttl}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}
	if err := c.store.Put(ctx, key, raw); err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	c.memory[key] = e

	if _, known := c.registry[key]; !known {
		c.registry[key] = struct{}{}
		if err := c.saveRegistryLocked(ctx); err != nil {
			return err
		}
	}

	c.stats.sets.Add(1)
	if c.metrics != nil {
		c.metrics.sets.Inc()
	}
	return nil
}

// Delete removes key from both tiers. Deleting a missing key is not an error.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(ctx, key)
}

// Clear removes every registered key from both tiers, then the registry.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for key := range c.registry {
		if err := c.store.Delete(ctx, key); err != nil {
			errs = append(errs, err)
			continue
		}
		delete(c.registry, key)
	}
	c.memory = make(map[string]*entry)

	if len(c.registry) == 0 {
		if err := c.store.Delete(ctx, RegistryKey); err != nil {
			errs = append(errs, err)
		}
	} else if err := c.saveRegistryLocked(ctx); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	c.logger.Debug("cache cleared")
	return nil
}

// Size returns the number of registered keys that have not expired.
func (c *Cache) Size(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for key := range c.registry {
		e, err := c.lookupLocked(ctx, key)
		if err != nil {
			return 0, err
		}
		if e != nil && !e.expired(now) {
			n++
		}
	}
	return n, nil
}

// Keys returns all registered keys, sorted. Expired keys are included
// until they are read or pruned.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	keys := make([]string, 0, len(c.registry))
	for k := range c.registry {
		keys = append(keys, k)
	}
	c.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// Prune removes every expired entry and returns how many were removed.
func (c *Cache) Prune(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key := range c.registry {
		e, err := c.lookupLocked(ctx, key)
		if err != nil {
			return removed, err
		}
		if e != nil && !e.expired(now) {
			continue
		}
		if err := c.removeLocked(ctx, key); err != nil {
			return removed, err
		}
		c.recordEviction()
		removed++
	}

	if removed > 0 {
		c.logger.Debug("pruned expired cache entries", zap.Int("removed", removed))
	}
	return removed, nil
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	entries := len(c.registry)
	inMemory := len(c.memory)
	c.mu.Unlock()
	return c.stats.snapshot(entries, inMemory)
}

// Close closes the persistent store.
func (c *Cache) Close() error {
	return c.store.Close()
}

// lookupLocked returns the entry for key from memory or the store, or nil
// when the store has no record of it.
func (c *Cache) lookupLocked(ctx context.Context, key string) (*entry, error) {
	if e, ok := c.memory[key]; ok {
		return e, nil
	}
	raw, err := c.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", key, err)
	}
	e := new(entry)
	if err := json.Unmarshal(raw, e); err != nil {
		return nil, nil
	}
	return e, nil
}

func (c *Cache) removeLocked(ctx context.Context, key string) error {
	delete(c.memory, key)
	if err := c.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	if _, known := c.registry[key]; known {
		delete(c.registry, key)
		return c.saveRegistryLocked(ctx)
	}
	return nil
}

func (c *Cache) saveRegistryLocked(ctx context.Context) error {
	keys := make([]string, 0, len(c.registry))
	for k := range c.registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	raw, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("failed to encode cache registry: %w", err)
	}
	if err := c.store.Put(ctx, RegistryKey, raw); err != nil {
		return fmt.Errorf("failed to write cache registry: %w", err)
	}
	return nil
}

func (c *Cache) recordHit() {
	c.stats.hits.Add(1)
	if c.metrics != nil {
		c.metrics.hits.Inc()
	}
}

func (c *Cache) recordMiss() {
	c.stats.misses.Add(1)
	if c.metrics != nil {
		c.metrics.misses.Inc()
	}
}

func (c *Cache) recordEviction() {
	c.stats.evictions.Add(1)
	if c.metrics != nil {
		c.metrics.evictions.Inc()
	}
}
