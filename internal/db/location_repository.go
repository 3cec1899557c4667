package db

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/unklstewy/overhead/pkg/coordinates"
)

// ObserverLocation is a position reported while the watcher ran.
type ObserverLocation struct {
	ID         int64                  `json:"id"`
	Location   coordinates.Geographic `json:"location"`
	Base       coordinates.Geographic `json:"base"`
	ReportedAt time.Time              `json:"reported_at"`
}

// LocationRepository stores observer positions reported at runtime so
// they survive a restart.
type LocationRepository struct {
	db *DB
}

// NewLocationRepository creates a new location repository.
func NewLocationRepository(db *DB) *LocationRepository {
	return &LocationRepository{db: db}
}

// Save records loc as reported at the given time. base is the configured
// position in effect when it was reported.
func (r *LocationRepository) Save(ctx context.Context, loc, base coordinates.Geographic, at time.Time) (*ObserverLocation, error) {
	if !loc.Valid() {
		return nil, fmt.Errorf("invalid location (%.4f, %.4f)", loc.Latitude, loc.Longitude)
	}

	rec := &ObserverLocation{Location: loc, Base: base, ReportedAt: at.UTC()}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO observer_locations (latitude, longitude, elevation_m, base_lat, base_lon, reported_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		loc.Latitude, loc.Longitude, loc.Altitude, base.Latitude, base.Longitude, rec.ReportedAt,
	).Scan(&rec.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to save observer location: %w", err)
	}
	return rec, nil
}

// Latest returns the most recent report, or nil when there is none.
func (r *LocationRepository) Latest(ctx context.Context) (*ObserverLocation, error) {
	recs, err := r.Recent(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[0], nil
}

// Recent returns up to limit reports, newest first.
func (r *LocationRepository) Recent(ctx context.Context, limit int) ([]ObserverLocation, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, latitude, longitude, elevation_m, base_lat, base_lon, reported_at
		 FROM observer_locations
		 ORDER BY reported_at DESC, id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query observer locations: %w", err)
	}
	defer rows.Close()

	var recs []ObserverLocation
	for rows.Next() {
		var rec ObserverLocation
		if err := rows.Scan(
			&rec.ID,
			&rec.Location.Latitude,
			&rec.Location.Longitude,
			&rec.Location.Altitude,
			&rec.Base.Latitude,
			&rec.Base.Longitude,
			&rec.ReportedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan observer location: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read observer locations: %w", err)
	}
	return recs, nil
}

// Restorable reports whether rec should replace the configured position.
// A report is stale once the config file moves the observer.
func (rec *ObserverLocation) Restorable(configured coordinates.Geographic) bool {
	if rec == nil {
		return false
	}
	return math.Abs(rec.Base.Latitude-configured.Latitude) <= positionTolerance &&
		math.Abs(rec.Base.Longitude-configured.Longitude) <= positionTolerance
}
