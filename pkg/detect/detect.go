// Package detect turns a poll of nearby aircraft into the set of flights
// that are overhead now and the subset that were not overhead on the
// previous poll.
package detect

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unklstewy/overhead/pkg/adsb"
	"github.com/unklstewy/overhead/pkg/cache"
	"github.com/unklstewy/overhead/pkg/coordinates"
)

// PreviousKey is the cache key holding the identifiers seen on the last poll.
const PreviousKey = "detect:previous"

// Sighting is an aircraft inside the detection radius.
type Sighting struct {
	Aircraft adsb.Aircraft `json:"aircraft"`

	// DistanceKm is the great-circle distance from the observer
	DistanceKm float64 `json:"distance_km"`

	// Bearing from the observer to the aircraft, degrees from north
	Bearing float64 `json:"bearing"`

	// Direction is the 8-point compass label of Bearing
	Direction string `json:"direction"`

	// Elevation above the observer's horizon in degrees
	Elevation float64 `json:"elevation"`

	// Approaching is true when the ground track closes on the observer
	Approaching bool `json:"approaching"`

	// TimeToClosest is zero unless Approaching
	TimeToClosest time.Duration `json:"time_to_closest"`

	SeenAt time.Time `json:"seen_at"`
}

// ID returns the normalised identifier used for deduplication.
func (s Sighting) ID() string {
	return NormalizeID(s.Aircraft.ICAO)
}

// NormalizeID lower-cases and trims an ICAO address.
func NormalizeID(icao string) string {
	return strings.ToLower(strings.TrimSpace(icao))
}

// Store is the slice of the cache the detector needs.
type Store interface {
	Get(ctx context.Context, key string, dst any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Filter limits which aircraft count as overhead beyond the radius.
type Filter struct {
	// MinAltitudeFt and MaxAltitudeFt bound airborne aircraft; zero disables a bound
	MinAltitudeFt float64
	MaxAltitudeFt float64

	// IncludeOnGround keeps aircraft reporting ground status
	IncludeOnGround bool
}

// Detector finds overhead aircraft and remembers the previous poll.
type Detector struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger

	// mu guards the settings a config reload replaces
	mu          sync.RWMutex
	filter      Filter
	previousTTL time.Duration
}

// New creates a Detector. previousTTL bounds how long the last poll's
// identifiers are remembered; after that every flight is new again.
func New(store Store, filter Filter, previousTTL time.Duration, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		filter:      filter,
		store:       store,
		previousTTL: previousTTL,
		now:         time.Now,
		logger:      logger,
	}
}

// SetFilter replaces the altitude and ground filter.
func (d *Detector) SetFilter(f Filter) {
	d.mu.Lock()
	d.filter = f
	d.mu.Unlock()
}

// SetPreviousTTL changes how long the previous poll is remembered. It
// must stay above the poll interval or every flight turns new again.
func (d *Detector) SetPreviousTTL(ttl time.Duration) {
	d.mu.Lock()
	d.previousTTL = ttl
	d.mu.Unlock()
}

func (d *Detector) settings() (Filter, time.Duration) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.filter, d.previousTTL
}

// Overhead returns the aircraft within radiusKm of observer, sorted by
// distance. Aircraft without an identifier are dropped; when one
// identifier appears twice the closer report wins.
func (d *Detector) Overhead(aircraft []adsb.Aircraft, observer coordinates.Geographic, radiusKm float64) []Sighting {
	now := d.now()
	filter, _ := d.settings()
	byID := make(map[string]Sighting, len(aircraft))

	for _, ac := range aircraft {
		id := NormalizeID(ac.ICAO)
		if id == "" || !filter.keep(ac) {
			continue
		}

		pos := coordinates.Geographic{
			Latitude:  ac.Latitude,
			Longitude: ac.Longitude,
			Altitude:  ac.Altitude * coordinates.FeetToMeters,
		}
		dist, ok := coordinates.WithinRadius(observer, pos, radiusKm)
		if !ok {
			continue
		}

		if prev, dup := byID[id]; dup && prev.DistanceKm <= dist {
			continue
		}

		bearing := coordinates.Bearing(observer, pos)
		_, ttc, approaching := coordinates.EstimateTimeToClosestApproach(observer, pos, ac.GroundSpeed, ac.Track)

		ac.ICAO = id
		byID[id] = Sighting{
			Aircraft:      ac,
			DistanceKm:    dist,
			Bearing:       bearing,
			Direction:     coordinates.CardinalDirection(bearing),
			Elevation:     coordinates.LookAngleTo(observer, pos).Elevation,
			Approaching:   approaching,
			TimeToClosest: ttc,
			SeenAt:        now,
		}
	}

	out := make([]Sighting, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].Aircraft.ICAO < out[j].Aircraft.ICAO
	})
	return out
}

func (f Filter) keep(ac adsb.Aircraft) bool {
	if ac.OnGround {
		return f.IncludeOnGround
	}
	if f.MinAltitudeFt > 0 && ac.Altitude < f.MinAltitudeFt {
		return false
	}
	if f.MaxAltitudeFt > 0 && ac.Altitude > f.MaxAltitudeFt {
		return false
	}
	return true
}

// NewSince returns the sightings whose identifier is not in previous,
// keeping the input order, and the full identifier set of current to
// remember for the next poll.
func NewSince(current []Sighting, previous []string) (fresh []Sighting, ids []string) {
	seen := make(map[string]struct{}, len(previous))
	for _, id := range previous {
		seen[NormalizeID(id)] = struct{}{}
	}

	ids = make([]string, 0, len(current))
	for _, s := range current {
		id := s.ID()
		ids = append(ids, id)
		if _, ok := seen[id]; ok {
			continue
		}
		fresh = append(fresh, s)
	}
	sort.Strings(ids)
	return fresh, ids
}

// Result is the outcome of one detection pass.
type Result struct {
	Overhead []Sighting `json:"overhead"`
	New      []Sighting `json:"new"`
}

// Detect runs Overhead and NewSince, loading the previous poll from the
// store and saving the current one. A store read failure is treated as
// an empty previous set so a broken cache never hides flights.
func (d *Detector) Detect(ctx context.Context, aircraft []adsb.Aircraft, observer coordinates.Geographic, radiusKm float64) (Result, error) {
	overhead := d.Overhead(aircraft, observer, radiusKm)

	var previous []string
	if err := d.store.Get(ctx, PreviousKey, &previous); err != nil && !errors.Is(err, cache.ErrNotFound) {
		d.logger.Warn("failed to load previous poll", zap.Error(err))
		previous = nil
	}

	fresh, ids := NewSince(overhead, previous)

	_, ttl := d.settings()
	if err := d.store.Set(ctx, PreviousKey, ids, ttl); err != nil {
		return Result{Overhead: overhead, New: fresh}, fmt.Errorf("failed to save poll identifiers: %w", err)
	}

	d.logger.Debug("detection pass",
		zap.Int("overhead", len(overhead)),
		zap.Int("new", len(fresh)),
		zap.Int("previous", len(previous)))

	return Result{Overhead: overhead, New: fresh}, nil
}

// Reset forgets the previous poll.
func (d *Detector) Reset(ctx context.Context) error {
	_, ttl := d.settings()
	return d.store.Set(ctx, PreviousKey, []string{}, ttl)
}
