// Package app assembles the overhead pipeline from a configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/unklstewy/overhead/internal/db"
	"github.com/unklstewy/overhead/internal/metrics"
	"github.com/unklstewy/overhead/internal/watcher"
	"github.com/unklstewy/overhead/pkg/adsb"
	"github.com/unklstewy/overhead/pkg/cache"
	"github.com/unklstewy/overhead/pkg/config"
	"github.com/unklstewy/overhead/pkg/coordinates"
	"github.com/unklstewy/overhead/pkg/detect"
	"github.com/unklstewy/overhead/pkg/flightaware"
	"github.com/unklstewy/overhead/pkg/imagery"
	"github.com/unklstewy/overhead/pkg/notify"
)

// App holds every wired component. Optional parts are nil when disabled.
type App struct {
	Logger   *zap.Logger
	Registry *prometheus.Registry

	Cache    *cache.Cache
	Source   adsb.DataSource
	Detector *detect.Detector
	Throttle *notify.Throttle
	Resolver *imagery.Resolver
	History  *notify.History
	Hub      *notify.Hub
	NATS     *notify.NATSNotifier
	Location *watcher.MutableLocation
	Watcher  *watcher.Watcher

	DB        *db.DB
	Sightings *db.SightingRepository
	Locations *db.LocationRepository

	mu  sync.RWMutex
	cfg *config.Config
}

// Option adjusts how New wires the App.
type Option func(*options)

type options struct {
	registry   *prometheus.Registry
	noDatabase bool
}

// WithRegistry uses reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithoutDatabase skips the sighting log even when configured. One-shot
// commands use it.
func WithoutDatabase() Option {
	return func(o *options) { o.noDatabase = true }
}

// New builds the App. Close releases what it opened.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
		o.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	a := &App{Logger: logger, Registry: o.registry, cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// Cache
	cacheMetrics, err := cache.NewMetrics(a.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register cache metrics: %w", err)
	}
	cacheDir := cfg.Cache.Dir
	if cacheDir == "" {
		cacheDir = cache.DefaultDir()
	}
	a.Cache, err = cache.Open(ctx, cfg.Cache.Backend, cacheDir,
		cache.WithDefaultTTL(time.Duration(cfg.Cache.DefaultTTLMinutes)*time.Minute),
		cache.WithLogger(logger.Named("cache")),
		cache.WithMetrics(cacheMetrics),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	// Flight source
	src, ok := cfg.ADSB.ActiveSource()
	if !ok {
		return nil, errors.New("no enabled ADS-B source")
	}
	a.Source, err = adsb.NewDataSource(adsb.SourceOptions{
		Type:             src.Type,
		BaseURL:          src.BaseURL,
		Username:         src.Username,
		Password:         src.Password,
		RateLimitSeconds: src.RateLimitSeconds,
		Timeout:          time.Duration(cfg.ADSB.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	// Detection and throttle; the previous poll outlives one missed cycle.
	// Watcher.Apply keeps the TTL in step with reloaded poll intervals.
	a.Detector = detect.New(a.Cache, filterFrom(cfg.Detection), 2*cfg.Detection.PollInterval(), logger.Named("detect"))
	a.Throttle = notify.NewThrottle(cfg.Notifications.MinInterval(), cfg.Notifications.NotifiedTTL())

	// Imagery
	a.Resolver, err = newResolver(cfg, a.Cache, logger.Named("imagery"))
	if err != nil {
		return nil, err
	}

	// Sinks
	a.History = notify.NewHistory(cfg.Notifications.HistorySize)
	sinks := notify.Multi{a.History}
	if cfg.Notifications.LogEnabled {
		sinks = append(sinks, notify.NewLogNotifier(logger.Named("notify")))
	}
	if cfg.Notifications.WebSocketEnabled {
		a.Hub = notify.NewHub(logger.Named("ws"))
		sinks = append(sinks, a.Hub)
	}
	if cfg.Notifications.NATSURL != "" {
		a.NATS, err = notify.NewNATSNotifier(notify.NATSOptions{
			URL:     cfg.Notifications.NATSURL,
			Subject: cfg.Notifications.NATSSubject,
		}, logger.Named("nats"))
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, a.NATS)
	}
	if cfg.Notifications.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookNotifier(cfg.Notifications.WebhookURL, logger.Named("webhook")))
	}

	// Sighting log
	var recorder watcher.Recorder
	if cfg.Database.Enabled && !o.noDatabase {
		a.DB, err = db.ReconnectWithRetry(ctx, cfg.Database, 3, time.Second, logger.Named("db"))
		if err != nil {
			return nil, err
		}
		if err := a.DB.InitSchema(ctx); err != nil {
			return nil, err
		}
		a.Sightings = db.NewSightingRepository(a.DB)
		a.Locations = db.NewLocationRepository(a.DB)
		recorder = a.Sightings
	}

	pipeline, err := metrics.NewPipeline(a.Registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}

	retry := adsb.DefaultRetryConfig()
	if cfg.ADSB.MaxRetries > 0 {
		retry.MaxRetries = cfg.ADSB.MaxRetries
	}

	a.Location = watcher.NewMutableLocation(cfg.Observer.Location())
	if err := a.restoreLocation(ctx); err != nil {
		logger.Warn("could not restore reported location", zap.Error(err))
	}
	a.Watcher, err = watcher.New(watcher.Options{
		Source:        a.Source,
		Detector:      a.Detector,
		Throttle:      a.Throttle,
		Notifier:      sinks,
		Location:      a.Location,
		Resolver:      a.Resolver,
		Recorder:      recorder,
		Cache:         a.Cache,
		Metrics:       pipeline,
		Logger:        logger.Named("watcher"),
		RadiusKm:      cfg.Detection.RadiusKm,
		PollInterval:  cfg.Detection.PollInterval(),
		PruneInterval: time.Duration(cfg.Cache.CleanupIntervalMinutes) * time.Minute,
		Retry:         retry,
		Observer:      cfg.Observer.Location(),
	})
	if err != nil {
		return nil, err
	}

	return a, nil
}

func filterFrom(d config.DetectionConfig) detect.Filter {
	return detect.Filter{
		MinAltitudeFt:   d.MinAltitudeFt,
		MaxAltitudeFt:   d.MaxAltitudeFt,
		IncludeOnGround: d.IncludeOnGround,
	}
}

func newResolver(cfg *config.Config, store imagery.Store, logger *zap.Logger) (*imagery.Resolver, error) {
	opts := []imagery.Option{imagery.WithLogger(logger)}

	if cfg.Imagery.Enabled && cfg.Imagery.CacheDir != "" {
		fc, err := imagery.NewFileCache(cfg.Imagery.CacheDir, &http.Client{Timeout: 30 * time.Second})
		if err != nil {
			return nil, fmt.Errorf("failed to create image cache: %w", err)
		}
		opts = append(opts, imagery.WithFileCache(fc))
	}

	if cfg.FlightAware.Enabled {
		fa := flightaware.NewClient(flightaware.Config{
			APIKey:          cfg.FlightAware.APIKey,
			BaseURL:         cfg.FlightAware.BaseURL,
			RequestsPerHour: cfg.FlightAware.RequestsPerHour,
		})
		opts = append(opts, imagery.WithTypeLookup(fa), imagery.WithMakerLookup(fa))
	}

	return imagery.NewResolver(imagery.Config{
		Enabled: cfg.Imagery.Enabled,
		BaseURL: cfg.Imagery.BaseURL,
		TTL:     time.Duration(cfg.Imagery.TTLHours) * time.Hour,
	}, store, opts...), nil
}

// Config returns the configuration currently in effect.
func (a *App) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Reload applies a changed configuration to the running pipeline.
// Source, cache backend and sinks are fixed at startup.
func (a *App) Reload(cfg *config.Config) {
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
	a.Watcher.Apply(cfg)
}

// restoreLocation moves the observer to the last reported position
// unless the config file has moved it since.
func (a *App) restoreLocation(ctx context.Context) error {
	if a.Locations == nil {
		return nil
	}
	last, err := a.Locations.Latest(ctx)
	if err != nil {
		return err
	}
	if !last.Restorable(a.cfg.Observer.Location()) {
		return nil
	}
	if err := a.Location.Set(last.Location); err != nil {
		return err
	}
	a.Logger.Info("restored reported location",
		zap.Float64("lat", last.Location.Latitude),
		zap.Float64("lon", last.Location.Longitude),
		zap.Time("reported_at", last.ReportedAt))
	return nil
}

// SetLocation moves the observer and records the report when the
// sighting log is enabled. A failed write is logged, not returned.
func (a *App) SetLocation(ctx context.Context, loc coordinates.Geographic) error {
	if err := a.Location.Set(loc); err != nil {
		return err
	}
	if a.Locations != nil {
		if _, err := a.Locations.Save(ctx, loc, a.Config().Observer.Location(), time.Now()); err != nil {
			a.Logger.Warn("failed to record reported location", zap.Error(err))
		}
	}
	return nil
}

// Notifications returns recent notifications, newest first, from the
// sighting log when enabled and the in-memory history otherwise.
func (a *App) Notifications(ctx context.Context, limit int) ([]notify.Notification, error) {
	if a.Sightings != nil {
		return a.Sightings.RecentNotifications(ctx, limit)
	}
	return a.History.Recent(limit), nil
}

// RunRetention deletes sighting log rows past the configured retention
// once an hour until ctx is cancelled. It returns at once when the log
// is disabled or retention is unlimited.
func (a *App) RunRetention(ctx context.Context) error {
	days := a.Config().Database.RetentionDays
	if a.DB == nil || days <= 0 {
		return nil
	}
	maxAge := time.Duration(days) * 24 * time.Hour

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		removed, err := a.DB.CleanupOldData(ctx, maxAge)
		if err != nil {
			a.Logger.Warn("sighting log cleanup failed", zap.Error(err))
		} else if removed > 0 {
			a.Logger.Info("sighting log cleaned up", zap.Int64("removed", removed))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Close releases everything New opened.
func (a *App) Close() error {
	var errs []error
	if a.Hub != nil {
		errs = append(errs, a.Hub.Close())
	}
	if a.NATS != nil {
		errs = append(errs, a.NATS.Close())
	}
	if a.Source != nil {
		errs = append(errs, a.Source.Close())
	}
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

// ConfigPath returns path, or the per-user default when empty.
func ConfigPath(path string) string {
	if path != "" {
		return path
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "overhead.yaml"
	}
	return filepath.Join(dir, "overhead", "config.yaml")
}
