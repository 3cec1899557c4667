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

	"github.com/unklstewy/overhead/pkg/coordinates"
)

// DefaultOpenSkyURL is the public OpenSky Network REST API.
const DefaultOpenSkyURL = "https://opensky-network.org/api"

const (
	msToKnots      = 1.943844
	msToFeetPerMin = 196.850394
)

// OpenSkyClient implements DataSource against the OpenSky Network
// /states/all endpoint, which is queried by bounding box rather than by
// radius. Anonymous access is limited to one call every 10 seconds.
type OpenSkyClient struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewOpenSkyClient creates a new OpenSky client. username/password are
// optional and raise the API quota when present.
func NewOpenSkyClient(baseURL, username, password string) *OpenSkyClient {
	if baseURL == "" {
		baseURL = DefaultOpenSkyURL
	}
	return &OpenSkyClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: newLimiter(10.0),
	}
}

// SetRateLimit changes the minimum spacing between calls.
func (c *OpenSkyClient) SetRateLimit(seconds float64) {
	c.limiter = newLimiter(seconds)
}

// GetAircraft returns aircraft inside the bounding box around the circle.
// The box is an over-approximation; callers still apply the exact radius.
func (c *OpenSkyClient) GetAircraft(ctx context.Context, centerLat, centerLon, radiusNM float64) ([]Aircraft, error) {
	center := coordinates.Geographic{Latitude: centerLat, Longitude: centerLon}
	box := coordinates.BoundingBoxAround(center, radiusNM*coordinates.KmPerNauticalMile)
	return c.GetAircraftInBox(ctx, box)
}

// GetAircraftInBox queries /states/all for a bounding box. Boxes crossing
// the antimeridian are split into two requests.
func (c *OpenSkyClient) GetAircraftInBox(ctx context.Context, box coordinates.BoundingBox) ([]Aircraft, error) {
	boxes := []coordinates.BoundingBox{box}
	if box.CrossesAntimeridian() {
		boxes = []coordinates.BoundingBox{
			{MinLat: box.MinLat, MinLon: box.MinLon, MaxLat: box.MaxLat, MaxLon: 180},
			{MinLat: box.MinLat, MinLon: -180, MaxLat: box.MaxLat, MaxLon: box.MaxLon},
		}
	}

	var aircraft []Aircraft
	for _, b := range boxes {
		q := url.Values{}
		q.Set("lamin", fmt.Sprintf("%.4f", b.MinLat))
		q.Set("lomin", fmt.Sprintf("%.4f", b.MinLon))
		q.Set("lamax", fmt.Sprintf("%.4f", b.MaxLat))
		q.Set("lomax", fmt.Sprintf("%.4f", b.MaxLon))
		q.Set("extended", "1")

		resp, err := c.fetch(ctx, q)
		if err != nil {
			return nil, err
		}
		aircraft = append(aircraft, resp.aircraft()...)
	}

	return aircraft, nil
}

// GetAircraftByICAO returns a specific aircraft by its ICAO hex code.
func (c *OpenSkyClient) GetAircraftByICAO(ctx context.Context, icao string) (*Aircraft, error) {
	q := url.Values{}
	q.Set("icao24", strings.ToLower(icao))
	q.Set("extended", "1")

	resp, err := c.fetch(ctx, q)
	if err != nil {
		return nil, err
	}

	aircraft := resp.aircraft()
	if len(aircraft) == 0 {
		return nil, nil
	}
	return &aircraft[0], nil
}

// Close is a no-op; the client holds no persistent connections.
func (c *OpenSkyClient) Close() error {
	return nil
}

func (c *OpenSkyClient) fetch(ctx context.Context, q url.Values) (*openSkyResponse, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/states/all?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := doGet(ctx, c.httpClient, c.limiter, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var apiResp openSkyResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse API response: %w", err)
	}
	return &apiResp, nil
}

// openSkyResponse is the /states/all payload. Each state vector is a
// positional JSON array:
//
//	0 icao24, 1 callsign, 2 origin_country, 3 time_position, 4 last_contact,
//	5 longitude, 6 latitude, 7 baro_altitude (m), 8 on_ground,
//	9 velocity (m/s), 10 true_track, 11 vertical_rate (m/s), 12 sensors,
//	13 geo_altitude (m), 14 squawk, 15 spi, 16 position_source, 17 category
type openSkyResponse struct {
	Time   int64           `json:"time"`
	States [][]interface{} `json:"states"`
}

func (r *openSkyResponse) aircraft() []Aircraft {
	out := make([]Aircraft, 0, len(r.States))
	for _, state := range r.States {
		if ac, ok := convertOpenSkyState(state); ok {
			out = append(out, ac)
		}
	}
	return out
}

// convertOpenSkyState converts one state vector. Vectors without a
// position are rejected.
func convertOpenSkyState(s []interface{}) (Aircraft, bool) {
	if len(s) < 17 {
		return Aircraft{}, false
	}

	lon, okLon := s[5].(float64)
	lat, okLat := s[6].(float64)
	if !okLon || !okLat {
		return Aircraft{}, false
	}

	ac := Aircraft{
		ICAO:      strings.ToLower(stringAt(s, 0)),
		Callsign:  strings.TrimSpace(stringAt(s, 1)),
		Latitude:  lat,
		Longitude: lon,
		Squawk:    stringAt(s, 14),
	}

	if geo, ok := s[13].(float64); ok {
		ac.Altitude = geo * coordinates.MetersToFeet
	} else if baro, ok := s[7].(float64); ok {
		ac.Altitude = baro * coordinates.MetersToFeet
	}
	if onGround, ok := s[8].(bool); ok {
		ac.OnGround = onGround
	}
	if v, ok := s[9].(float64); ok {
		ac.GroundSpeed = v * msToKnots
	}
	if v, ok := s[10].(float64); ok {
		ac.Track = v
	}
	if v, ok := s[11].(float64); ok {
		ac.VerticalRate = v * msToFeetPerMin
	}

	ac.LastSeen = time.Now().UTC()
	if ts, ok := s[4].(float64); ok && ts > 0 {
		ac.LastSeen = time.Unix(int64(ts), 0).UTC()
	}

	if len(s) > 17 {
		if cat, ok := s[17].(float64); ok {
			ac.Category = openSkyCategory(int(cat))
		}
	}

	return ac, true
}

func stringAt(s []interface{}, i int) string {
	if v, ok := s[i].(string); ok {
		return v
	}
	return ""
}

// openSkyCategory maps OpenSky's numeric category onto the ADS-B emitter
// category letters used elsewhere (2 = A1 light ... 7 = A6 high performance,
// 8 = A7 rotorcraft, 9.. = B group).
func openSkyCategory(c int) string {
	switch {
	case c >= 2 && c <= 8:
		return fmt.Sprintf("A%d", c-1)
	case c >= 9 && c <= 15:
		return fmt.Sprintf("B%d", c-8)
	default:
		return ""
	}
}
