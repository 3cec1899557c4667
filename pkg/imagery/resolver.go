// Package imagery picks a picture for an aircraft. It walks a fallback
// chain from the most specific key to the most generic: exact type code,
// manufacturer, broad category, then a default image. The first key whose
// URL answers on the image host wins.
package imagery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/unklstewy/overhead/pkg/adsb"
	"github.com/unklstewy/overhead/pkg/cache"
)

// Level is how specific a resolved image is.
type Level string

const (
	LevelType         Level = "type"
	LevelManufacturer Level = "manufacturer"
	LevelCategory     Level = "category"
	LevelDefault      Level = "default"
)

// DefaultKey is the image key of the last-resort picture.
const DefaultKey = "default"

// Image is the picture chosen for an aircraft.
type Image struct {
	URL   string   `json:"url,omitempty"`
	Path  string   `json:"path,omitempty"`
	Level Level    `json:"level,omitempty"`
	Key   string   `json:"key,omitempty"`
	Type  TypeInfo `json:"type"`

	// Fallback is true when nothing more specific than the default matched
	Fallback bool `json:"fallback"`
}

// Store is the slice of the TTL cache the resolver needs.
type Store interface {
	Get(ctx context.Context, key string, dst any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// TypeLookup finds the aircraft type flown under a callsign.
type TypeLookup interface {
	GetAircraftType(ctx context.Context, callsign string) (string, error)
}

// MakerLookup finds the manufacturer of a type designator the built-in
// table does not know.
type MakerLookup interface {
	GetManufacturer(ctx context.Context, typeCode string) (string, error)
}

// Config configures a Resolver.
type Config struct {
	Enabled bool

	// BaseURL is a template containing {key}, e.g.
	// "https://img.example.com/aircraft/{key}.jpg". Without {key} the
	// key is appended as "/{key}.jpg".
	BaseURL string

	// TTL for resolved image URLs
	TTL time.Duration

	// NegativeTTL for keys the host has no image for
	NegativeTTL time.Duration

	// TypeTTL for callsign to type and type to manufacturer lookups
	TypeTTL time.Duration
}

// hostResult is what the cache stores per image key.
type hostResult struct {
	URL   string `json:"url"`
	Found bool   `json:"found"`
}

// Resolver resolves aircraft images. It is safe for concurrent use.
type Resolver struct {
	cfg    Config
	store  Store
	files  *FileCache
	types  TypeLookup
	makers MakerLookup
	client *http.Client
	logger *zap.Logger
	group  singleflight.Group
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFileCache downloads resolved images to a local directory.
func WithFileCache(fc *FileCache) Option {
	return func(r *Resolver) { r.files = fc }
}

// WithTypeLookup enables type enrichment for aircraft without a type code.
func WithTypeLookup(tl TypeLookup) Option {
	return func(r *Resolver) { r.types = tl }
}

// WithMakerLookup fills in the manufacturer of unlisted type codes.
func WithMakerLookup(ml MakerLookup) Option {
	return func(r *Resolver) { r.makers = ml }
}

// WithHTTPClient overrides the client used for image checks.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Resolver) { r.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver creates a Resolver backed by store.
func NewResolver(cfg Config, store Store, opts ...Option) *Resolver {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * 24 * time.Hour
	}
	if cfg.NegativeTTL <= 0 {
		cfg.NegativeTTL = time.Hour
	}
	if cfg.TypeTTL <= 0 {
		cfg.TypeTTL = 7 * 24 * time.Hour
	}
	r := &Resolver{
		cfg:    cfg,
		store:  store,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enabled reports whether Resolve does any work.
func (r *Resolver) Enabled() bool {
	return r.cfg.Enabled && r.cfg.BaseURL != ""
}

// URLFor expands the base URL template for an image key.
func (r *Resolver) URLFor(key string) string {
	base := r.cfg.BaseURL
	if strings.Contains(base, "{key}") {
		return strings.ReplaceAll(base, "{key}", key)
	}
	return strings.TrimRight(base, "/") + "/" + key + ".jpg"
}

// Candidate is one step of the fallback chain.
type Candidate struct {
	Level Level
	Key   string
}

// Candidates returns the image keys tried for info, most specific first.
func Candidates(info TypeInfo) []Candidate {
	var out []Candidate
	if info.Code != "" {
		out = append(out, Candidate{LevelType, strings.ToLower(info.Code)})
	}
	if info.Manufacturer != "" {
		out = append(out, Candidate{LevelManufacturer, slug(info.Manufacturer)})
	}
	if info.Category != CategoryUnknown {
		out = append(out, Candidate{LevelCategory, string(info.Category)})
	}
	return append(out, Candidate{LevelDefault, DefaultKey})
}

// Resolve picks the image for ac. Image host and cache failures fall through
// the chain; if every candidate fails the default image is returned with
// Fallback set and a nil error. A disabled resolver returns an empty Image.
func (r *Resolver) Resolve(ctx context.Context, ac adsb.Aircraft) (Image, error) {
	if !r.Enabled() {
		return Image{}, nil
	}

	info := r.TypeInfo(ctx, ac)

	for _, c := range Candidates(info) {
		if err := ctx.Err(); err != nil {
			return Image{}, err
		}
		url, ok := r.lookupImage(ctx, c.Key)
		if !ok {
			continue
		}
		img := Image{
			URL:      url,
			Level:    c.Level,
			Key:      c.Key,
			Type:     info,
			Fallback: c.Level == LevelDefault,
		}
		img.Path = r.download(ctx, url)
		return img, nil
	}

	url := r.URLFor(DefaultKey)
	return Image{
		URL:      url,
		Level:    LevelDefault,
		Key:      DefaultKey,
		Type:     info,
		Fallback: true,
	}, nil
}

// TypeInfo classifies ac, enriching a missing type code by callsign when
// a TypeLookup is configured and a missing manufacturer by type code when
// a MakerLookup is. The emitter category fills in a missing class.
func (r *Resolver) TypeInfo(ctx context.Context, ac adsb.Aircraft) TypeInfo {
	code := ac.TypeCode
	if code == "" {
		code = r.lookupType(ctx, ac.Callsign)
	}
	info := LookupType(code)
	if info.Code != "" && info.Manufacturer == "" {
		info.Manufacturer = r.lookupMaker(ctx, info.Code)
	}
	if info.Category == CategoryUnknown {
		info.Category = CategoryFromEmitter(ac.Category)
	}
	return info
}

func (r *Resolver) lookupType(ctx context.Context, callsign string) string {
	callsign = strings.ToUpper(strings.TrimSpace(callsign))
	if r.types == nil || callsign == "" {
		return ""
	}
	return r.cachedLookup(ctx, "type:"+callsign, func() (string, error) {
		return r.types.GetAircraftType(ctx, callsign)
	})
}

func (r *Resolver) lookupMaker(ctx context.Context, typeCode string) string {
	if r.makers == nil {
		return ""
	}
	return r.cachedLookup(ctx, "maker:"+typeCode, func() (string, error) {
		return r.makers.GetManufacturer(ctx, typeCode)
	})
}

// cachedLookup answers key from the cache or fn. Concurrent misses share
// one call, and empty answers are cached too so the quota is not spent
// again.
func (r *Resolver) cachedLookup(ctx context.Context, key string, fn func() (string, error)) string {
	var val string
	if err := r.store.Get(ctx, key, &val); err == nil {
		return val
	} else if !errors.Is(err, cache.ErrNotFound) {
		r.logger.Debug("lookup cache read failed", zap.String("key", key), zap.Error(err))
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		val, err := fn()
		if err != nil {
			return "", err
		}
		if err := r.store.Set(ctx, key, val, r.cfg.TypeTTL); err != nil {
			r.logger.Debug("lookup cache write failed", zap.String("key", key), zap.Error(err))
		}
		return val, nil
	})
	if err != nil {
		r.logger.Warn("aircraft lookup failed", zap.String("key", key), zap.Error(err))
		return ""
	}
	return v.(string)
}

// lookupImage returns the URL for key if the image host has it, using the
// cache under image:url:{key}.
func (r *Resolver) lookupImage(ctx context.Context, key string) (string, bool) {
	cacheKey := "image:url:" + key

	var res hostResult
	if err := r.store.Get(ctx, cacheKey, &res); err == nil {
		return res.URL, res.Found
	} else if !errors.Is(err, cache.ErrNotFound) {
		r.logger.Debug("image cache read failed", zap.String("key", cacheKey), zap.Error(err))
	}

	v, err, _ := r.group.Do(cacheKey, func() (interface{}, error) {
		url := r.URLFor(key)
		found, err := r.imageExists(ctx, url)
		if err != nil {
			// Transport errors are not cached; the host may be back next poll
			return hostResult{}, err
		}
		res := hostResult{URL: url, Found: found}
		ttl := r.cfg.TTL
		if !found {
			ttl = r.cfg.NegativeTTL
		}
		if err := r.store.Set(ctx, cacheKey, res, ttl); err != nil {
			r.logger.Debug("image cache write failed", zap.String("key", cacheKey), zap.Error(err))
		}
		return res, nil
	})
	if err != nil {
		r.logger.Debug("image check failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	res = v.(hostResult)
	return res.URL, res.Found
}

// imageExists reports whether url answers 200. HEAD is tried first; hosts that
// reject HEAD get a GET.
func (r *Resolver) imageExists(ctx context.Context, url string) (bool, error) {
	status, err := r.request(ctx, http.MethodHead, url)
	if err != nil {
		return false, err
	}
	if status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented {
		if status, err = r.request(ctx, http.MethodGet, url); err != nil {
			return false, err
		}
	}
	if status >= 500 {
		return false, fmt.Errorf("image host returned status %d", status)
	}
	return status == http.StatusOK, nil
}

func (r *Resolver) request(ctx context.Context, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func (r *Resolver) download(ctx context.Context, url string) string {
	if r.files == nil {
		return ""
	}
	p, err := r.files.Fetch(ctx, url)
	if err != nil {
		r.logger.Warn("failed to cache image locally", zap.String("url", url), zap.Error(err))
		return ""
	}
	return p
}
