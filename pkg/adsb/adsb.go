// Package adsb fetches aircraft telemetry from public flight-tracking APIs.
package adsb

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Aircraft represents an aircraft tracked via ADS-B.
// All position data is in WGS84 coordinate system.
type Aircraft struct {
	// ICAO is the unique 24-bit ICAO aircraft address (e.g., "a12345")
	ICAO string `json:"icao"`

	// Callsign is the flight number or aircraft registration
	Callsign string `json:"callsign,omitempty"`

	// Registration is the tail number (e.g., "N12345"), when the feed has it
	Registration string `json:"registration,omitempty"`

	// TypeCode is the ICAO aircraft type designator (e.g., "B738")
	TypeCode string `json:"type_code,omitempty"`

	// Category is the ADS-B emitter category (e.g., "A3")
	Category string `json:"category,omitempty"`

	// Latitude in decimal degrees (-90 to +90)
	Latitude float64 `json:"lat"`

	// Longitude in decimal degrees (-180 to +180)
	Longitude float64 `json:"lon"`

	// Altitude in feet above mean sea level (MSL)
	// Note: Some aircraft report geometric altitude, others barometric
	Altitude float64 `json:"altitude_ft"`

	// GroundSpeed in knots
	GroundSpeed float64 `json:"ground_speed_kt"`

	// Track is the ground track (heading) in degrees (0-359)
	// 0 = North, 90 = East, 180 = South, 270 = West
	Track float64 `json:"track"`

	// VerticalRate in feet per minute (positive = climbing, negative = descending)
	VerticalRate float64 `json:"vertical_rate_fpm"`

	// OnGround is true when the transponder reports the aircraft on the surface
	OnGround bool `json:"on_ground"`

	// Squawk is the transponder code
	Squawk string `json:"squawk,omitempty"`

	// LastSeen is the timestamp of the last position update
	LastSeen time.Time `json:"last_seen"`
}

// DisplayName returns the best human label: callsign, then registration,
// then the upper-cased ICAO address.
func (a Aircraft) DisplayName() string {
	if cs := strings.TrimSpace(a.Callsign); cs != "" {
		return cs
	}
	if a.Registration != "" {
		return a.Registration
	}
	return strings.ToUpper(a.ICAO)
}

// DataSource is the interface that all ADS-B data providers must implement.
// This abstraction allows switching between online services without
// touching the detection pipeline.
type DataSource interface {
	// GetAircraft returns all currently tracked aircraft within a given radius.
	// centerLat/centerLon define the search center in decimal degrees.
	// radiusNM is the search radius in nautical miles.
	GetAircraft(ctx context.Context, centerLat, centerLon, radiusNM float64) ([]Aircraft, error)

	// GetAircraftByICAO returns a specific aircraft by its ICAO address.
	// Returns nil if the aircraft is not currently tracked.
	GetAircraftByICAO(ctx context.Context, icao string) (*Aircraft, error)

	// Close cleanly shuts down the data source connection.
	Close() error
}

// Source types understood by NewDataSource.
const (
	SourceAirplanesLive = "airplanes.live"
	SourceOpenSky       = "opensky"
)

// SourceOptions configures a data source built by NewDataSource.
type SourceOptions struct {
	Type             string
	BaseURL          string
	Username         string
	Password         string
	RateLimitSeconds float64
	Timeout          time.Duration
}

// NewDataSource builds the client for a configured source type.
func NewDataSource(opts SourceOptions) (DataSource, error) {
	switch strings.ToLower(opts.Type) {
	case SourceAirplanesLive, "airplaneslive", "":
		c := NewAirplanesLiveClient(opts.BaseURL)
		c.SetRateLimit(opts.RateLimitSeconds)
		if opts.Timeout > 0 {
			c.httpClient.Timeout = opts.Timeout
		}
		return c, nil
	case SourceOpenSky:
		c := NewOpenSkyClient(opts.BaseURL, opts.Username, opts.Password)
		c.SetRateLimit(opts.RateLimitSeconds)
		if opts.Timeout > 0 {
			c.httpClient.Timeout = opts.Timeout
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown ADS-B source type %q", opts.Type)
	}
}
