package imagery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/overhead/pkg/adsb"
	"github.com/unklstewy/overhead/pkg/cache"
)

// imageHost serves the listed keys and counts requests per path.
type imageHost struct {
	*httptest.Server
	mu    sync.Mutex
	hits  map[string]int
	serve map[string]bool
}

func newImageHost(t *testing.T, keys ...string) *imageHost {
	h := &imageHost{hits: map[string]int{}, serve: map[string]bool{}}
	for _, k := range keys {
		h.serve["/img/"+k+".jpg"] = true
	}
	h.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		h.hits[r.Method+" "+r.URL.Path]++
		ok := h.serve[r.URL.Path]
		h.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("\xff\xd8\xff fake jpeg"))
	}))
	t.Cleanup(h.Close)
	return h
}

func (h *imageHost) count(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hits["HEAD /img/"+key+".jpg"]
}

func newCache(t *testing.T) *cache.Cache {
	c, err := cache.New(context.Background(), cache.NewMemoryStore())
	require.NoError(t, err)
	return c
}

func newTestResolver(t *testing.T, host *imageHost, opts ...Option) (*Resolver, *cache.Cache) {
	c := newCache(t)
	r := NewResolver(Config{Enabled: true, BaseURL: host.URL + "/img/{key}.jpg"}, c, opts...)
	return r, c
}

func TestResolveFallbackChain(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		served   []string
		aircraft adsb.Aircraft
		level    Level
		key      string
		fallback bool
	}{
		{"Exact type", []string{"b738", "boeing", "airliner", "default"}, adsb.Aircraft{TypeCode: "B738"}, LevelType, "b738", false},
		{"Manufacturer", []string{"boeing", "airliner", "default"}, adsb.Aircraft{TypeCode: "B738"}, LevelManufacturer, "boeing", false},
		{"Category", []string{"airliner", "default"}, adsb.Aircraft{TypeCode: "B738"}, LevelCategory, "airliner", false},
		{"Emitter category", []string{"helicopter", "default"}, adsb.Aircraft{Category: "A7"}, LevelCategory, "helicopter", false},
		{"Default", []string{"default"}, adsb.Aircraft{TypeCode: "ZZZZ"}, LevelDefault, "default", true},
		{"Nothing served", nil, adsb.Aircraft{TypeCode: "B738"}, LevelDefault, "default", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := newImageHost(t, tt.served...)
			r, _ := newTestResolver(t, host)

			img, err := r.Resolve(ctx, tt.aircraft)
			require.NoError(t, err)
			assert.Equal(t, tt.level, img.Level)
			assert.Equal(t, tt.key, img.Key)
			assert.Equal(t, tt.fallback, img.Fallback)
			assert.Equal(t, host.URL+"/img/"+tt.key+".jpg", img.URL)
		})
	}
}

func TestResolveCachesImageChecks(t *testing.T) {
	ctx := context.Background()
	host := newImageHost(t, "boeing")
	r, c := newTestResolver(t, host)

	for i := 0; i < 3; i++ {
		img, err := r.Resolve(ctx, adsb.Aircraft{TypeCode: "B738"})
		require.NoError(t, err)
		assert.Equal(t, LevelManufacturer, img.Level)
	}

	assert.Equal(t, 1, host.count("b738"), "negative result is cached")
	assert.Equal(t, 1, host.count("boeing"))
	assert.Contains(t, c.Keys(), "image:url:b738")
	assert.Contains(t, c.Keys(), "image:url:boeing")
}

func TestResolveCollapsesConcurrentChecks(t *testing.T) {
	ctx := context.Background()

	var heads atomic.Int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		heads.Add(1)
		<-release
	}))
	defer server.Close()

	r := NewResolver(Config{Enabled: true, BaseURL: server.URL + "/{key}.png"}, newCache(t))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			img, err := r.Resolve(ctx, adsb.Aircraft{TypeCode: "ZZZZ"})
			assert.NoError(t, err)
			assert.Equal(t, LevelType, img.Level)
		}()
	}

	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), heads.Load())
}

func TestResolveDisabled(t *testing.T) {
	r := NewResolver(Config{Enabled: false, BaseURL: "http://x/{key}"}, newCache(t))
	img, err := r.Resolve(context.Background(), adsb.Aircraft{TypeCode: "B738"})
	require.NoError(t, err)
	assert.Equal(t, Image{}, img)

	r = NewResolver(Config{Enabled: true}, newCache(t))
	assert.False(t, r.Enabled())
}

func TestURLFor(t *testing.T) {
	r := NewResolver(Config{BaseURL: "https://img.example.com/a/{key}.webp"}, nil)
	assert.Equal(t, "https://img.example.com/a/b738.webp", r.URLFor("b738"))

	r = NewResolver(Config{BaseURL: "https://img.example.com/a/"}, nil)
	assert.Equal(t, "https://img.example.com/a/b738.jpg", r.URLFor("b738"))
}

type fakeTypes struct {
	calls atomic.Int32
	types map[string]string
	err   error
}

func (f *fakeTypes) GetAircraftType(_ context.Context, callsign string) (string, error) {
	f.calls.Add(1)
	return f.types[callsign], f.err
}

func TestResolveTypeEnrichment(t *testing.T) {
	ctx := context.Background()
	host := newImageHost(t, "a320")
	types := &fakeTypes{types: map[string]string{"JBU12": "A320"}}
	r, c := newTestResolver(t, host, WithTypeLookup(types))

	for i := 0; i < 2; i++ {
		img, err := r.Resolve(ctx, adsb.Aircraft{Callsign: "jbu12 "})
		require.NoError(t, err)
		assert.Equal(t, LevelType, img.Level)
		assert.Equal(t, "Airbus", img.Type.Manufacturer)
	}
	assert.Equal(t, int32(1), types.calls.Load())

	var cached string
	require.NoError(t, c.Get(ctx, "type:JBU12", &cached))
	assert.Equal(t, "A320", cached)

	t.Run("Lookup errors fall back to the category", func(t *testing.T) {
		host := newImageHost(t, "light")
		r, _ := newTestResolver(t, host, WithTypeLookup(&fakeTypes{err: errors.New("quota")}))
		img, err := r.Resolve(ctx, adsb.Aircraft{Callsign: "N123AB", Category: "A1"})
		require.NoError(t, err)
		assert.Equal(t, LevelCategory, img.Level)
	})
}

type fakeMakers struct {
	calls  atomic.Int32
	makers map[string]string
}

func (f *fakeMakers) GetManufacturer(_ context.Context, typeCode string) (string, error) {
	f.calls.Add(1)
	return f.makers[typeCode], nil
}

func TestResolveMakerEnrichment(t *testing.T) {
	ctx := context.Background()
	host := newImageHost(t, "daher")
	makers := &fakeMakers{makers: map[string]string{"KODI": "Daher"}}
	r, c := newTestResolver(t, host, WithMakerLookup(makers))

	for i := 0; i < 2; i++ {
		img, err := r.Resolve(ctx, adsb.Aircraft{TypeCode: "KODI"})
		require.NoError(t, err)
		assert.Equal(t, LevelManufacturer, img.Level)
		assert.Equal(t, "Daher", img.Type.Manufacturer)
	}
	assert.Equal(t, int32(1), makers.calls.Load())

	var cached string
	require.NoError(t, c.Get(ctx, "maker:KODI", &cached))
	assert.Equal(t, "Daher", cached)

	// Listed types never reach the lookup
	_, err := r.Resolve(ctx, adsb.Aircraft{TypeCode: "B738"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), makers.calls.Load())
}

func TestResolveDownloadsToFileCache(t *testing.T) {
	ctx := context.Background()
	host := newImageHost(t, "b738")
	fc, err := NewFileCache(t.TempDir(), nil)
	require.NoError(t, err)
	r, _ := newTestResolver(t, host, WithFileCache(fc))

	img, err := r.Resolve(ctx, adsb.Aircraft{TypeCode: "B738"})
	require.NoError(t, err)
	require.NotEmpty(t, img.Path)
	assert.True(t, strings.HasSuffix(img.Path, ".jpg"))

	data, err := os.ReadFile(img.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "fake jpeg")
	assert.Equal(t, fc.Path(img.URL), img.Path)
}

func TestFileCacheFetch(t *testing.T) {
	ctx := context.Background()
	var gets atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gets.Add(1)
		if r.URL.Path == "/missing.png" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("png"))
	}))
	defer server.Close()

	fc, err := NewFileCache(t.TempDir(), server.Client())
	require.NoError(t, err)

	p1, err := fc.Fetch(ctx, server.URL+"/a.png")
	require.NoError(t, err)
	p2, err := fc.Fetch(ctx, server.URL+"/a.png")
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Equal(t, int32(1), gets.Load(), "second fetch is served from disk")

	_, err = fc.Fetch(ctx, server.URL+"/missing.png")
	assert.Error(t, err)

	assert.NotEqual(t, fc.Path("http://a/x.png"), fc.Path("http://b/x.png"))
}
