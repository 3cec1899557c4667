package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/unklstewy/overhead/pkg/adsb"
	"github.com/unklstewy/overhead/pkg/detect"
	"github.com/unklstewy/overhead/pkg/notify"
)

// SightingRecord is one row of the sighting log.
type SightingRecord struct {
	ID             int64     `json:"id"`
	NotificationID string    `json:"notification_id,omitempty"`
	ICAO           string    `json:"icao"`
	Callsign       string    `json:"callsign,omitempty"`
	Registration   string    `json:"registration,omitempty"`
	TypeCode       string    `json:"type_code,omitempty"`
	Latitude       float64   `json:"lat"`
	Longitude      float64   `json:"lon"`
	AltitudeFt     float64   `json:"altitude_ft"`
	GroundSpeedKts float64   `json:"ground_speed_kt"`
	TrackDeg       float64   `json:"track"`
	OnGround       bool      `json:"on_ground"`
	DistanceKm     float64   `json:"distance_km"`
	Bearing        float64   `json:"bearing"`
	Direction      string    `json:"direction"`
	Elevation      float64   `json:"elevation"`
	Approaching    bool      `json:"approaching"`
	SeenAt         time.Time `json:"seen_at"`
}

// SightingRepository handles database operations for the sighting log.
type SightingRepository struct {
	db *DB
}

// NewSightingRepository creates a new sighting repository.
func NewSightingRepository(db *DB) *SightingRepository {
	return &SightingRepository{db: db}
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Record stores one sighting. notificationID may be empty for sightings
// that were not part of a delivered notification. A sighting whose
// position is unchanged since the aircraft's last row is skipped.
func (r *SightingRepository) Record(ctx context.Context, notificationID string, s detect.Sighting) error {
	return r.record(ctx, r.db, notificationID, s)
}

func (r *SightingRepository) record(ctx context.Context, q execer, notificationID string, s detect.Sighting) error {
	ac := s.Aircraft
	icao := detect.NormalizeID(ac.ICAO)
	if icao == "" {
		return fmt.Errorf("sighting has no ICAO address")
	}

	var prev previousPosition
	err := q.QueryRowContext(ctx,
		`SELECT latitude, longitude, altitude_ft, ground_speed_kts
		 FROM sightings WHERE icao = $1
		 ORDER BY seen_at DESC LIMIT 1`,
		icao,
	).Scan(&prev.Latitude, &prev.Longitude, &prev.AltitudeFt, &prev.GroundSpeedKts)
	switch {
	case err == nil:
		if positionsEqual(ac, prev) {
			return nil
		}
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("failed to query previous sighting: %w", err)
	}

	seenAt := s.SeenAt
	if seenAt.IsZero() {
		seenAt = time.Now()
	}

	_, err = q.ExecContext(ctx,
		`INSERT INTO sightings (
			notification_id, icao, callsign, registration, type_code,
			latitude, longitude, altitude_ft, ground_speed_kts, track_deg, on_ground,
			distance_km, bearing_deg, direction, elevation_deg, approaching, seen_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)`,
		nullString(notificationID), icao, strings.TrimSpace(ac.Callsign), ac.Registration, ac.TypeCode,
		ac.Latitude, ac.Longitude, ac.Altitude, ac.GroundSpeed, ac.Track, ac.OnGround,
		s.DistanceKm, s.Bearing, s.Direction, s.Elevation, s.Approaching, seenAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert sighting: %w", err)
	}
	return nil
}

// RecordNotification stores a delivered notification and each of its
// sightings in one transaction.
func (r *SightingRepository) RecordNotification(ctx context.Context, n notify.Notification) error {
	sightings, err := json.Marshal(n.Sightings)
	if err != nil {
		return fmt.Errorf("failed to encode sightings: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO notifications (id, created_at, title, body, image_url, image_path, sightings)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		n.ID, n.CreatedAt.UTC(), n.Title, n.Body, n.ImageURL, n.ImagePath, sightings,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}

	for _, s := range n.Sightings {
		if err := r.record(ctx, tx, n.ID, s); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit notification: %w", err)
	}
	return nil
}

// Recent returns the newest sightings, newest first.
func (r *SightingRepository) Recent(ctx context.Context, limit int) ([]SightingRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, COALESCE(notification_id::text, ''), icao, callsign, registration, type_code,
		        latitude, longitude, altitude_ft, ground_speed_kts, track_deg, on_ground,
		        distance_km, bearing_deg, direction, elevation_deg, approaching, seen_at
		 FROM sightings
		 ORDER BY seen_at DESC, id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sightings: %w", err)
	}
	defer rows.Close()

	var records []SightingRecord
	for rows.Next() {
		var rec SightingRecord
		err := rows.Scan(
			&rec.ID, &rec.NotificationID, &rec.ICAO, &rec.Callsign, &rec.Registration, &rec.TypeCode,
			&rec.Latitude, &rec.Longitude, &rec.AltitudeFt, &rec.GroundSpeedKts, &rec.TrackDeg, &rec.OnGround,
			&rec.DistanceKm, &rec.Bearing, &rec.Direction, &rec.Elevation, &rec.Approaching, &rec.SeenAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sighting: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// RecentNotifications returns the newest notifications, newest first.
func (r *SightingRepository) RecentNotifications(ctx context.Context, limit int) ([]notify.Notification, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, created_at, title, body, image_url, image_path, sightings
		 FROM notifications
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []notify.Notification
	for rows.Next() {
		var (
			n         notify.Notification
			sightings []byte
		)
		if err := rows.Scan(&n.ID, &n.CreatedAt, &n.Title, &n.Body, &n.ImageURL, &n.ImagePath, &sightings); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if err := json.Unmarshal(sightings, &n.Sightings); err != nil {
			return nil, fmt.Errorf("failed to decode sightings: %w", err)
		}
		out = append(out, n)
	}

	return out, rows.Err()
}

// previousPosition is the last logged position of an aircraft.
type previousPosition struct {
	Latitude       float64
	Longitude      float64
	AltitudeFt     float64
	GroundSpeedKts float64
}

// Position tolerance: 0.000001 degrees, about 0.1 meters
const positionTolerance = 0.000001

// positionsEqual checks if two aircraft positions are effectively identical.
// This prevents logging the same parked or loitering aircraft every poll.
func positionsEqual(current adsb.Aircraft, prev previousPosition) bool {
	const altitudeTolerance = 1.0
	// Stationary below 1 knot
	const speedThreshold = 1.0

	latChanged := math.Abs(current.Latitude-prev.Latitude) > positionTolerance
	lonChanged := math.Abs(current.Longitude-prev.Longitude) > positionTolerance
	altChanged := math.Abs(current.Altitude-prev.AltitudeFt) > altitudeTolerance
	isMoving := current.GroundSpeed >= speedThreshold || prev.GroundSpeedKts >= speedThreshold

	return !latChanged && !lonChanged && !altChanged && !isMoving
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
