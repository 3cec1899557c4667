package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
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

type payload struct {
	URL   string `json:"url"`
	Count int    `json:"count"`
}

func TestSetGet(t *testing.T) {
	ctx := context.Background()
	c, err := New(ctx, NewMemoryStore())
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "image:url:B738", payload{URL: "https://img/b738.jpg", Count: 2}, time.Hour))

	var got payload
	require.NoError(t, c.Get(ctx, "image:url:B738", &got))
	assert.Equal(t, payload{URL: "https://img/b738.jpg", Count: 2}, got)

	err = c.Get(ctx, "missing", &got)
	assert.ErrorIs(t, err, ErrNotFound)

	st := c.Stats()
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.Equal(t, int64(1), st.Sets)
	assert.Equal(t, 1, st.Entries)
	assert.InDelta(t, 0.5, st.HitRatio, 1e-9)
}

func TestExpiryOnRead(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStore()
	c, err := New(ctx, store, WithClock(clock.Now))
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))

	t.Run("At exactly the TTL the entry is still valid", func(t *testing.T) {
		clock.Advance(time.Minute)
		var v string
		require.NoError(t, c.Get(ctx, "k", &v))
		assert.Equal(t, "v", v)
	})

	t.Run("Past the TTL the entry is gone from both tiers", func(t *testing.T) {
		clock.Advance(time.Nanosecond)
		var v string
		assert.ErrorIs(t, c.Get(ctx, "k", &v), ErrNotFound)

		_, err := store.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Empty(t, c.Keys())
		assert.Equal(t, int64(1), c.Stats().Evictions)
	})
}

func TestDefaultTTL(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c, err := New(ctx, NewMemoryStore(), WithClock(clock.Now), WithDefaultTTL(10*time.Second))
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "k", 1, 0))
	clock.Advance(11 * time.Second)

	var v int
	assert.ErrorIs(t, c.Get(ctx, "k", &v), ErrNotFound)
}

func TestInvalidKey(t *testing.T) {
	ctx := context.Background()
	c, err := New(ctx, NewMemoryStore())
	require.NoError(t, err)

	for _, key := range []string{"", "   ", RegistryKey} {
		assert.ErrorIs(t, c.Set(ctx, key, 1, time.Minute), ErrInvalidKey, "key %q", key)
		var v int
		assert.ErrorIs(t, c.Get(ctx, key, &v), ErrInvalidKey, "key %q", key)
		assert.ErrorIs(t, c.Delete(ctx, key), ErrInvalidKey, "key %q", key)
	}
}

func TestPromotionAndRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := Open(ctx, BackendFile, dir)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "type:UAL123", "B738", time.Hour))
	require.NoError(t, first.Set(ctx, "detect:previous", []string{"abc123"}, time.Hour))
	require.NoError(t, first.Close())

	second, err := Open(ctx, BackendFile, dir)
	require.NoError(t, err)
	defer second.Close()

	assert.Equal(t, []string{"detect:previous", "type:UAL123"}, second.Keys())
	assert.Equal(t, 0, second.Stats().InMemory)

	var typ string
	require.NoError(t, second.Get(ctx, "type:UAL123", &typ))
	assert.Equal(t, "B738", typ)
	assert.Equal(t, 1, second.Stats().InMemory, "disk hit should be promoted")

	n, err := second.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c, err := New(ctx, store)
	require.NoError(t, err)

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, c.Set(ctx, k, k, time.Hour))
	}
	// Entry only in the persistent tier, written by an earlier run
	raw := []byte(`{"value":"d","written_at":"2024-01-01T00:00:00Z","ttl":3600000000000}`)
	require.NoError(t, store.Put(ctx, "d", raw))

	require.NoError(t, c.Clear(ctx))

	n, err := c.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, c.Keys())

	keys, err := store.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, keys, "unregistered keys are left alone")
}

func TestRegistryRebuiltFromStore(t *testing.T) {
	ctx := context.Background()

	for name, registry := range map[string][]byte{
		"corrupt": []byte("{not json"),
		"missing": nil,
	} {
		t.Run(name, func(t *testing.T) {
			store := NewMemoryStore()
			first, err := New(ctx, store)
			require.NoError(t, err)
			require.NoError(t, first.Set(ctx, "img:b738", "https://img/b738.jpg", time.Hour))
			require.NoError(t, first.Set(ctx, "detect:previous", []string{"abc123"}, time.Hour))

			if registry == nil {
				require.NoError(t, store.Delete(ctx, RegistryKey))
			} else {
				require.NoError(t, store.Put(ctx, RegistryKey, registry))
			}

			second, err := New(ctx, store)
			require.NoError(t, err)
			assert.Equal(t, []string{"detect:previous", "img:b738"}, second.Keys())

			n, err := second.Size(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			require.NoError(t, second.Clear(ctx))
			keys, err := store.Keys(ctx)
			require.NoError(t, err)
			assert.Empty(t, keys, "entries on disk must not outlive Clear")
		})
	}
}

func TestSizeIgnoresExpired(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c, err := New(ctx, NewMemoryStore(), WithClock(clock.Now))
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "short", 1, time.Minute))
	require.NoError(t, c.Set(ctx, "long", 2, time.Hour))
	clock.Advance(2 * time.Minute)

	n, err := c.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, c.Keys(), 2, "Size does not evict")
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c, err := New(ctx, NewMemoryStore(), WithClock(clock.Now))
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "a", 1, time.Minute))
	require.NoError(t, c.Set(ctx, "b", 2, time.Minute))
	require.NoError(t, c.Set(ctx, "c", 3, time.Hour))
	clock.Advance(5 * time.Minute)

	removed, err := c.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, []string{"c"}, c.Keys())
}

func TestDeleteMissing(t *testing.T) {
	ctx := context.Background()
	c, err := New(ctx, NewMemoryStore())
	require.NoError(t, err)
	assert.NoError(t, c.Delete(ctx, "never-set"))
}

func TestSQLiteBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c, err := Open(ctx, BackendSQLite, dir)
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "image:url:A320", "https://img/a320.jpg", time.Hour))
	require.NoError(t, c.Close())

	c, err = Open(ctx, BackendSQLite, dir)
	require.NoError(t, err)
	defer c.Close()

	var url string
	require.NoError(t, c.Get(ctx, "image:url:A320", &url))
	assert.Equal(t, "https://img/a320.jpg", url)
	assert.Equal(t, []string{"image:url:A320"}, c.Keys())
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), "redis", t.TempDir())
	assert.Error(t, err)
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	c, err := New(ctx, NewMemoryStore(), WithMetrics(m))
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "k", 1, time.Hour))
	var v int
	require.NoError(t, c.Get(ctx, "k", &v))
	_ = c.Get(ctx, "nope", &v)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.hits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.misses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sets))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "duplicate registration")
}
