package adsb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// Trimmed from a live /point response near JFK
const pointResponse = `{
  "ac": [
    {"hex": "a1b2c3", "flight": "UAL123  ", "r": "N37502", "t": "b738", "category": "a3",
     "lat": 40.6612, "lon": -73.7901, "alt_baro": 3200, "alt_geom": 3275,
     "gs": 182.4, "track": 221.5, "baro_rate": -704, "squawk": "2301", "seen": 0.4},
    {"hex": "ac82ec", "flight": "DAL9    ", "t": "A321",
     "lat": 40.6441, "lon": -73.7822, "alt_baro": "ground", "gs": 12.1, "seen": 1.2},
    {"hex": "a00001", "alt_baro": 37000, "seen": 14.0},
    {"hex": "~2a1b3c", "lat": 40.70, "alt_baro": 12000}
  ],
  "total": 4,
  "now": 1717243200000
}`

func feedServer(t *testing.T, wantPath, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wantPath != "" && r.URL.Path != wantPath {
			t.Errorf("Expected path %s, got %s", wantPath, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestAirplanesLiveGetAircraft(t *testing.T) {
	server := feedServer(t, "/point/40.6413/-73.7781/5", pointResponse)
	client := NewAirplanesLiveClient(server.URL + "/")

	aircraft, err := client.GetAircraft(context.Background(), 40.6413, -73.7781, 5)
	if err != nil {
		t.Fatalf("GetAircraft failed: %v", err)
	}

	// Entries without a position are dropped
	if len(aircraft) != 2 {
		t.Fatalf("Expected 2 positioned aircraft, got %d", len(aircraft))
	}

	ual := aircraft[0]
	if ual.ICAO != "a1b2c3" || ual.Callsign != "UAL123" || ual.Registration != "N37502" {
		t.Errorf("Unexpected identity: %+v", ual)
	}
	if ual.TypeCode != "B738" || ual.Category != "A3" || ual.Squawk != "2301" {
		t.Errorf("Unexpected metadata: %+v", ual)
	}
	if ual.Altitude != 3275 {
		t.Errorf("Expected geometric altitude 3275, got %f", ual.Altitude)
	}
	if ual.GroundSpeed != 182.4 || ual.Track != 221.5 || ual.VerticalRate != -704 {
		t.Errorf("Unexpected kinematics: %+v", ual)
	}
	if ual.OnGround {
		t.Error("Expected UAL123 airborne")
	}
	if age := time.Since(ual.LastSeen); age < 300*time.Millisecond || age > 5*time.Second {
		t.Errorf("Expected LastSeen about 0.4s ago, got %v", age)
	}

	dal := aircraft[1]
	if !dal.OnGround || dal.Altitude != 0 || dal.Callsign != "DAL9" {
		t.Errorf("Expected DAL9 on the ground at 0 ft, got %+v", dal)
	}
}

func TestAirplanesLiveRadius(t *testing.T) {
	tests := []struct {
		name     string
		radiusNM float64
		wantPath string
	}{
		{"Whole miles", 10, "/point/40.0000/-74.0000/10"},
		{"Sub-mile radius asks for one mile", 0.3, "/point/40.0000/-74.0000/1"},
		{"Capped at the API maximum", 500, "/point/40.0000/-74.0000/250"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := feedServer(t, tt.wantPath, `{"ac": [], "total": 0}`)
			client := NewAirplanesLiveClient(server.URL)
			if _, err := client.GetAircraft(context.Background(), 40, -74, tt.radiusNM); err != nil {
				t.Fatalf("GetAircraft failed: %v", err)
			}
		})
	}
}

func TestAirplanesLiveErrors(t *testing.T) {
	t.Run("Rate limited", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "30")
			w.Header().Set("X-Rate-Limit-Limit", "100")
			w.Header().Set("X-Rate-Limit-Remaining", "0")
			http.Error(w, "slow down", http.StatusTooManyRequests)
		}))
		defer server.Close()

		_, err := NewAirplanesLiveClient(server.URL).GetAircraft(context.Background(), 40, -74, 5)
		rle, ok := IsRateLimitError(err)
		if !ok {
			t.Fatalf("Expected RateLimitError, got %v", err)
		}
		if rle.RetryAfter != 30*time.Second || rle.Headers.Limit != 100 || rle.Headers.Remaining != 0 {
			t.Errorf("Unexpected rate limit details: %+v", rle)
		}
		if !IsRetryable(err) {
			t.Error("Expected 429 to be retryable")
		}
	})

	t.Run("Server error is retryable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream timeout", http.StatusGatewayTimeout)
		}))
		defer server.Close()

		_, err := NewAirplanesLiveClient(server.URL).GetAircraft(context.Background(), 40, -74, 5)
		var se *StatusError
		if !errors.As(err, &se) || se.StatusCode != http.StatusGatewayTimeout {
			t.Fatalf("Expected 504 StatusError, got %v", err)
		}
		if !IsRetryable(err) {
			t.Error("Expected 504 to be retryable")
		}
	})

	t.Run("Not found is final", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		defer server.Close()

		_, err := NewAirplanesLiveClient(server.URL).GetAircraft(context.Background(), 40, -74, 5)
		if err == nil || IsRetryable(err) {
			t.Errorf("Expected a final error, got %v", err)
		}
	})

	t.Run("Malformed body", func(t *testing.T) {
		server := feedServer(t, "", `{"ac": [`)
		if _, err := NewAirplanesLiveClient(server.URL).GetAircraft(context.Background(), 40, -74, 5); err == nil {
			t.Error("Expected a parse error")
		}
	})
}

func TestAirplanesLiveGetAircraftByICAO(t *testing.T) {
	t.Run("Tracked", func(t *testing.T) {
		server := feedServer(t, "/hex/a1b2c3", pointResponse)
		ac, err := NewAirplanesLiveClient(server.URL).GetAircraftByICAO(context.Background(), "A1B2C3")
		if err != nil {
			t.Fatalf("GetAircraftByICAO failed: %v", err)
		}
		if ac == nil || ac.Callsign != "UAL123" {
			t.Errorf("Unexpected aircraft: %+v", ac)
		}
	})

	t.Run("Not tracked", func(t *testing.T) {
		server := feedServer(t, "/hex/ffffff", `{"ac": [], "total": 0}`)
		ac, err := NewAirplanesLiveClient(server.URL).GetAircraftByICAO(context.Background(), "ffffff")
		if err != nil || ac != nil {
			t.Errorf("Expected nil, nil; got %+v, %v", ac, err)
		}
	})
}

func TestParseAltitude(t *testing.T) {
	tests := []struct {
		input  any
		want   float64
		wantOK bool
	}{
		{35000.0, 35000, true},
		{"ground", 0, true},
		{"n/a", 0, false},
		{nil, 0, false},
		{int64(12), 0, false},
	}

	for _, tt := range tests {
		got, ok := parseAltitude(tt.input)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("parseAltitude(%v) = %v, %v; expected %v, %v", tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestAirplanesLiveRateLimitFloor(t *testing.T) {
	client := NewAirplanesLiveClient("")
	if client.baseURL != DefaultAirplanesLiveURL {
		t.Errorf("Expected default URL, got %s", client.baseURL)
	}

	client.SetRateLimit(0.2)
	if got := client.limiter.Limit(); got != 1 {
		t.Errorf("Expected one request per second at most, got %v", got)
	}
	client.SetRateLimit(5)
	if got := client.limiter.Limit(); got != 0.2 {
		t.Errorf("Expected one request per 5s, got %v", got)
	}
}
