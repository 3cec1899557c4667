package adsb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultAirplanesLiveURL is the public airplanes.live v2 API.
const DefaultAirplanesLiveURL = "https://api.airplanes.live/v2"

// MaxAirplanesLiveRadiusNM is the largest radius the point endpoint accepts.
const MaxAirplanesLiveRadiusNM = 250.0

// AirplanesLiveClient implements the DataSource interface for airplanes.live API.
// API Documentation: https://airplanes.live/api-guide/
// Rate Limit: 1 request per second
type AirplanesLiveClient struct {
	// baseURL is the API base URL (default: https://api.airplanes.live/v2)
	baseURL string

	// httpClient is the HTTP client used for API requests
	httpClient *http.Client

	// limiter spaces out API calls
	limiter *rate.Limiter
}

// NewAirplanesLiveClient creates a new airplanes.live API client.
// baseURL should be "https://api.airplanes.live/v2" (or custom for testing)
func NewAirplanesLiveClient(baseURL string) *AirplanesLiveClient {
	if baseURL == "" {
		baseURL = DefaultAirplanesLiveURL
	}
	return &AirplanesLiveClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: newLimiter(1.0),
	}
}

// SetRateLimit changes the minimum spacing between calls. The API itself
// allows one request per second, so smaller values are raised to that.
func (c *AirplanesLiveClient) SetRateLimit(seconds float64) {
	if seconds < 1.0 {
		seconds = 1.0
	}
	c.limiter = newLimiter(seconds)
}

// GetAircraft returns all aircraft within a radius of a given point.
// Uses the /point/[lat]/[lon]/[radius] endpoint.
// Maximum radius is 250 nautical miles.
func (c *AirplanesLiveClient) GetAircraft(ctx context.Context, centerLat, centerLon, radiusNM float64) ([]Aircraft, error) {
	if radiusNM > MaxAirplanesLiveRadiusNM {
		radiusNM = MaxAirplanesLiveRadiusNM
	}
	// The endpoint takes whole miles; never ask for less than the caller wants
	if radiusNM < 1 {
		radiusNM = 1
	}

	apiResp, err := c.fetch(ctx, fmt.Sprintf("%s/point/%.4f/%.4f/%.0f", c.baseURL, centerLat, centerLon, radiusNM))
	if err != nil {
		return nil, err
	}

	aircraft := make([]Aircraft, 0, len(apiResp.Aircraft))
	for _, ac := range apiResp.Aircraft {
		// Skip aircraft with invalid data
		if ac.Lat == nil || ac.Lon == nil {
			continue
		}
		aircraft = append(aircraft, ac.toAircraft(time.Now().UTC()))
	}

	return aircraft, nil
}

// GetAircraftByICAO returns a specific aircraft by its ICAO hex code.
// Uses the /hex/[hex] endpoint.
func (c *AirplanesLiveClient) GetAircraftByICAO(ctx context.Context, icao string) (*Aircraft, error) {
	apiResp, err := c.fetch(ctx, fmt.Sprintf("%s/hex/%s", c.baseURL, url.PathEscape(strings.ToLower(icao))))
	if err != nil {
		return nil, err
	}

	if len(apiResp.Aircraft) == 0 {
		return nil, nil
	}

	ac := apiResp.Aircraft[0].toAircraft(time.Now().UTC())
	return &ac, nil
}

// Close cleanly shuts down the client.
// For airplanes.live, this is a no-op as there are no persistent connections.
func (c *AirplanesLiveClient) Close() error {
	return nil
}

func (c *AirplanesLiveClient) fetch(ctx context.Context, endpoint string) (*airplanesLiveResponse, error) {
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := doGet(ctx, c.httpClient, c.limiter, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var apiResp airplanesLiveResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse API response: %w", err)
	}
	return &apiResp, nil
}

// airplanesLiveResponse is the readsb-style JSON document the API returns.
// Field reference: https://airplanes.live/adsb-field-explanations/
type airplanesLiveResponse struct {
	Aircraft []airplanesLiveAircraft `json:"ac"`
	Total    int                     `json:"total"`
	Now      float64                 `json:"now"` // ms since epoch
}

type airplanesLiveAircraft struct {
	Hex          string   `json:"hex"`
	Flight       *string  `json:"flight"`
	Registration string   `json:"r"`
	TypeCode     string   `json:"t"`
	Category     string   `json:"category"`
	Squawk       string   `json:"squawk"`
	Lat          *float64 `json:"lat"`
	Lon          *float64 `json:"lon"`
	AltBaro      any      `json:"alt_baro"` // feet, or "ground"
	AltGeom      any      `json:"alt_geom"`
	Gs           *float64 `json:"gs"`
	Track        *float64 `json:"track"`
	BaroRate     *float64 `json:"baro_rate"`
	Seen         *float64 `json:"seen"` // seconds since the last message
}

func (ac airplanesLiveAircraft) toAircraft(now time.Time) Aircraft {
	a := Aircraft{
		ICAO:         strings.ToLower(strings.TrimSpace(ac.Hex)),
		Registration: strings.TrimSpace(ac.Registration),
		TypeCode:     strings.ToUpper(strings.TrimSpace(ac.TypeCode)),
		Category:     strings.ToUpper(strings.TrimSpace(ac.Category)),
		Squawk:       ac.Squawk,
		OnGround:     ac.AltBaro == "ground",
		GroundSpeed:  deref(ac.Gs),
		Track:        deref(ac.Track),
		VerticalRate: deref(ac.BaroRate),
		Latitude:     deref(ac.Lat),
		Longitude:    deref(ac.Lon),
		LastSeen:     now,
	}
	if ac.Flight != nil {
		a.Callsign = strings.TrimSpace(*ac.Flight)
	}

	// Geometric altitude wins over barometric when both are present
	if alt, ok := parseAltitude(ac.AltGeom); ok {
		a.Altitude = alt
	} else if alt, ok := parseAltitude(ac.AltBaro); ok {
		a.Altitude = alt
	}

	if ac.Seen != nil {
		a.LastSeen = now.Add(-time.Duration(*ac.Seen * float64(time.Second)))
	}
	return a
}

// parseAltitude reads an altitude that is either a number of feet or the
// string "ground", which counts as zero.
func parseAltitude(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case string:
		return 0, v == "ground"
	default:
		return 0, false
	}
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
