// Package watcher runs the overhead pipeline: poll the flight source,
// find new flights inside the radius, throttle, illustrate and notify.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unklstewy/overhead/internal/metrics"
	"github.com/unklstewy/overhead/pkg/adsb"
	"github.com/unklstewy/overhead/pkg/config"
	"github.com/unklstewy/overhead/pkg/coordinates"
	"github.com/unklstewy/overhead/pkg/detect"
	"github.com/unklstewy/overhead/pkg/imagery"
	"github.com/unklstewy/overhead/pkg/notify"
)

// Recorder persists delivered notifications.
type Recorder interface {
	RecordNotification(ctx context.Context, n notify.Notification) error
}

// Pruner drops expired cache entries.
type Pruner interface {
	Prune(ctx context.Context) (int, error)
}

// Options wires a Watcher. Source, Detector, Throttle, Notifier and
// Location are required.
type Options struct {
	Source   adsb.DataSource
	Detector *detect.Detector
	Throttle *notify.Throttle
	Notifier notify.Notifier
	Location Location

	// Optional
	Resolver *imagery.Resolver
	Recorder Recorder
	Cache    Pruner
	Metrics  *metrics.Pipeline
	Logger   *zap.Logger

	RadiusKm      float64
	PollInterval  time.Duration
	PruneInterval time.Duration
	Retry         adsb.RetryConfig

	// Observer is the configured position. A reload moves a
	// MutableLocation only when the configured position changes.
	Observer coordinates.Geographic

	// Clock defaults to time.Now
	Clock func() time.Time
}

// Result is the outcome of one check.
type Result struct {
	CheckedAt time.Time              `json:"checked_at"`
	Location  coordinates.Geographic `json:"location"`
	RadiusKm  float64                `json:"radius_km"`
	Overhead  []detect.Sighting      `json:"overhead"`
	New       []detect.Sighting      `json:"new"`

	// Notification is set when one was delivered
	Notification *notify.Notification `json:"notification,omitempty"`
	Notified     bool                 `json:"notified"`

	// Throttled is true when new flights waited on the minimum interval
	Throttled bool          `json:"throttled"`
	RetryIn   time.Duration `json:"retry_in,omitempty"`

	// Suppressed flights were notified recently
	Suppressed []string `json:"suppressed,omitempty"`

	Err   error  `json:"-"`
	Error string `json:"error,omitempty"`
}

// Watcher polls and notifies.
type Watcher struct {
	source   adsb.DataSource
	detector *detect.Detector
	throttle *notify.Throttle
	notifier notify.Notifier
	location Location
	resolver *imagery.Resolver
	recorder Recorder
	cache    Pruner
	metrics  *metrics.Pipeline
	logger   *zap.Logger
	retry    adsb.RetryConfig
	now      func() time.Time

	// checkMu serializes checks from Run and on-demand callers
	checkMu sync.Mutex
	// pending holds admitted flights held back by the throttle gate
	pending map[string]detect.Sighting

	mu            sync.RWMutex
	radiusKm      float64
	pollInterval  time.Duration
	pruneInterval time.Duration
	observer      coordinates.Geographic
	last          *Result
}

// New creates a Watcher.
func New(opts Options) (*Watcher, error) {
	switch {
	case opts.Source == nil:
		return nil, errors.New("watcher: source is required")
	case opts.Detector == nil:
		return nil, errors.New("watcher: detector is required")
	case opts.Throttle == nil:
		return nil, errors.New("watcher: throttle is required")
	case opts.Notifier == nil:
		return nil, errors.New("watcher: notifier is required")
	case opts.Location == nil:
		return nil, errors.New("watcher: location is required")
	case opts.RadiusKm <= 0:
		return nil, fmt.Errorf("watcher: radius must be positive, got %v", opts.RadiusKm)
	}

	w := &Watcher{
		source:        opts.Source,
		detector:      opts.Detector,
		throttle:      opts.Throttle,
		notifier:      opts.Notifier,
		location:      opts.Location,
		resolver:      opts.Resolver,
		recorder:      opts.Recorder,
		cache:         opts.Cache,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		retry:         opts.Retry,
		now:           opts.Clock,
		pending:       make(map[string]detect.Sighting),
		radiusKm:      opts.RadiusKm,
		pollInterval:  opts.PollInterval,
		pruneInterval: opts.PruneInterval,
		observer:      opts.Observer,
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.pollInterval <= 0 {
		w.pollInterval = 5 * time.Minute
	}
	if w.retry.MaxRetries == 0 && w.retry.InitialDelay == 0 {
		w.retry = adsb.DefaultRetryConfig()
	}
	if w.retry.Logger == nil {
		w.retry.Logger = w.logger
	}
	return w, nil
}

// Radius returns the detection radius in kilometers.
func (w *Watcher) Radius() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.radiusKm
}

// PollInterval returns the time between checks in Run.
func (w *Watcher) PollInterval() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pollInterval
}

// Last returns the most recent check result.
func (w *Watcher) Last() (Result, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.last == nil {
		return Result{}, false
	}
	return *w.last, true
}

// Apply takes the reloadable settings from a new configuration: radius,
// poll interval, altitude filter, throttle limits and, for a
// MutableLocation, the observer position when the configured one moved.
func (w *Watcher) Apply(cfg *config.Config) {
	observer := cfg.Observer.Location()

	w.mu.Lock()
	w.radiusKm = cfg.Detection.RadiusKm
	w.pollInterval = cfg.Detection.PollInterval()
	if cfg.Cache.CleanupIntervalMinutes > 0 {
		w.pruneInterval = time.Duration(cfg.Cache.CleanupIntervalMinutes) * time.Minute
	}
	moved := observer != w.observer
	w.observer = observer
	w.mu.Unlock()

	w.detector.SetFilter(detect.Filter{
		MinAltitudeFt:   cfg.Detection.MinAltitudeFt,
		MaxAltitudeFt:   cfg.Detection.MaxAltitudeFt,
		IncludeOnGround: cfg.Detection.IncludeOnGround,
	})
	// The previous poll outlives one missed cycle
	w.detector.SetPreviousTTL(2 * cfg.Detection.PollInterval())
	w.throttle.SetLimits(cfg.Notifications.MinInterval(), cfg.Notifications.NotifiedTTL())

	if ml, ok := w.location.(*MutableLocation); ok && moved {
		if err := ml.Set(observer); err != nil {
			w.logger.Warn("ignoring reloaded observer location", zap.Error(err))
		}
	}

	w.logger.Info("watcher settings updated",
		zap.Float64("radius_km", cfg.Detection.RadiusKm),
		zap.Duration("poll_interval", cfg.Detection.PollInterval()),
		zap.Bool("observer_moved", moved))
}

// Check runs one pass of the pipeline. The returned error is also set
// on Result.Err; a failed notification sink does not fail the check.
func (w *Watcher) Check(ctx context.Context) (Result, error) {
	w.checkMu.Lock()
	defer w.checkMu.Unlock()

	start := w.now()
	res, err := w.check(ctx, start)
	if err != nil {
		res.Err = err
		res.Error = err.Error()
	}

	w.mu.Lock()
	w.last = &res
	w.mu.Unlock()

	return res, err
}

func (w *Watcher) check(ctx context.Context, now time.Time) (Result, error) {
	radius := w.Radius()
	res := Result{CheckedAt: now, RadiusKm: radius}

	loc, err := w.location.Location(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to get location: %w", err)
	}
	res.Location = loc

	radiusNM := radius / coordinates.KmPerNauticalMile
	aircraft, err := adsb.RetryWithBackoffResult(ctx, w.retry, func() ([]adsb.Aircraft, error) {
		return w.source.GetAircraft(ctx, loc.Latitude, loc.Longitude, radiusNM)
	})
	w.metrics.ObservePoll(err)
	if err != nil {
		return res, fmt.Errorf("failed to fetch aircraft: %w", err)
	}

	det, err := w.detector.Detect(ctx, aircraft, loc, radius)
	if err != nil {
		// The detection itself succeeded; only persisting the poll failed
		w.logger.Warn("detection state not saved", zap.Error(err))
	}
	res.Overhead = det.Overhead
	res.New = det.New
	defer func() {
		w.metrics.ObserveCheck(len(res.Overhead), len(res.New), w.now().Sub(now))
	}()

	candidates := w.candidates(det)
	if len(candidates) == 0 {
		clear(w.pending)
		return res, nil
	}

	ids := make([]string, 0, len(candidates))
	for _, s := range candidates {
		ids = append(ids, s.ID())
	}

	decision := w.throttle.Admit(ids, now)
	res.Suppressed = decision.Suppressed
	w.metrics.ObserveNotification(metrics.OutcomeSuppressed, len(decision.Suppressed))

	admitted := pick(candidates, decision.IDs)
	if len(admitted) == 0 {
		clear(w.pending)
		return res, nil
	}

	if decision.Blocked {
		res.Throttled = true
		res.RetryIn = decision.RetryIn
		w.hold(admitted)
		w.metrics.ObserveNotification(metrics.OutcomeThrottled, len(admitted))
		w.logger.Info("notification held by throttle",
			zap.Int("flights", len(admitted)),
			zap.Duration("retry_in", decision.RetryIn))
		return res, nil
	}

	n := notify.Compose(admitted, w.images(ctx, admitted[0]), now)
	outcome := metrics.OutcomeSent
	if err := w.notifier.Notify(ctx, n); err != nil {
		var de *notify.DeliveryError
		if !errors.As(err, &de) || !de.Reached() {
			// Retried on the next poll while the flights are still overhead
			w.hold(admitted)
			w.metrics.ObserveNotification(metrics.OutcomeFailed, len(admitted))
			w.logger.Error("notification delivery failed", zap.String("notification_id", n.ID), zap.Error(err))
			return res, nil
		}
		// Resending would repeat it on the sinks that worked
		outcome = metrics.OutcomePartial
		w.logger.Warn("notification missed some sinks",
			zap.String("notification_id", n.ID),
			zap.Int("delivered", de.Delivered),
			zap.Int("failed", de.Failed),
			zap.Error(err))
	}

	w.throttle.MarkDelivered(n.IDs(), now)
	clear(w.pending)
	res.Notification = &n
	res.Notified = true
	w.metrics.ObserveNotification(outcome, len(admitted))

	if w.recorder != nil {
		if err := w.recorder.RecordNotification(ctx, n); err != nil {
			w.logger.Warn("failed to record notification", zap.Error(err))
		}
	}

	return res, nil
}

// candidates merges this poll's new flights with flights held from
// earlier polls that are still overhead. Order follows det.Overhead.
func (w *Watcher) candidates(det detect.Result) []detect.Sighting {
	want := make(map[string]bool, len(det.New)+len(w.pending))
	for _, s := range det.New {
		want[s.ID()] = true
	}
	for id := range w.pending {
		want[id] = true
	}

	var out []detect.Sighting
	for _, s := range det.Overhead {
		if want[s.ID()] {
			out = append(out, s)
		}
	}
	return out
}

func (w *Watcher) hold(sightings []detect.Sighting) {
	clear(w.pending)
	for _, s := range sightings {
		w.pending[s.ID()] = s
	}
}

// pick returns the sightings whose IDs are in ids, keeping order.
func pick(sightings []detect.Sighting, ids []string) []detect.Sighting {
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	out := make([]detect.Sighting, 0, len(ids))
	for _, s := range sightings {
		if keep[s.ID()] {
			out = append(out, s)
		}
	}
	return out
}

// images resolves the picture for the closest flight. Resolver errors
// only cost the picture.
func (w *Watcher) images(ctx context.Context, closest detect.Sighting) map[string]imagery.Image {
	if w.resolver == nil || !w.resolver.Enabled() {
		return nil
	}
	img, err := w.resolver.Resolve(ctx, closest.Aircraft)
	if err != nil {
		w.logger.Warn("image resolution failed", zap.String("flight", closest.ID()), zap.Error(err))
		return nil
	}
	return map[string]imagery.Image{closest.ID(): img}
}

// Run checks immediately and then every poll interval until ctx is
// cancelled. Expired cache entries are pruned on their own interval.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watcher started",
		zap.Float64("radius_km", w.Radius()),
		zap.Duration("poll_interval", w.PollInterval()))

	w.runCheck(ctx)

	interval := w.PollInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pruneC <-chan time.Time
	w.mu.RLock()
	pruneInterval := w.pruneInterval
	w.mu.RUnlock()
	if w.cache != nil && pruneInterval > 0 {
		pruneTicker := time.NewTicker(pruneInterval)
		defer pruneTicker.Stop()
		pruneC = pruneTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopped")
			return nil
		case <-ticker.C:
			w.runCheck(ctx)
			// Pick up a reloaded interval
			if next := w.PollInterval(); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		case <-pruneC:
			w.prune(ctx)
		}
	}
}

func (w *Watcher) runCheck(ctx context.Context) {
	res, err := w.Check(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Error("check failed (will retry next cycle)", zap.Error(err))
		}
		return
	}
	w.logger.Info("check complete",
		zap.Int("overhead", len(res.Overhead)),
		zap.Int("new", len(res.New)),
		zap.Bool("notified", res.Notified),
		zap.Bool("throttled", res.Throttled))
}

func (w *Watcher) prune(ctx context.Context) {
	removed, err := w.cache.Prune(ctx)
	if err != nil {
		w.logger.Warn("cache prune failed", zap.Error(err))
		return
	}
	if removed > 0 {
		w.logger.Debug("cache pruned", zap.Int("removed", removed))
	}
}
