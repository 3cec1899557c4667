package flightaware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(url string) *Client {
	return NewClient(Config{APIKey: "secret", BaseURL: url, RequestsPerHour: 3600 * 1000})
}

// TestGetAircraftType tests the callsign to type lookup.
func TestGetAircraftType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-apikey") != "secret" {
			t.Errorf("Expected API key header, got %q", r.Header.Get("x-apikey"))
		}
		switch r.URL.Path {
		case "/flights/UAL123":
			w.Write([]byte(`{"flights":[
				{"ident":"UAL123","status":"Scheduled","aircraft_type":"A320"},
				{"ident":"UAL123","status":"En Route / On Time","aircraft_type":"b738"}
			]}`))
		case "/flights/NONE":
			w.Write([]byte(`{"flights":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	ctx := context.Background()

	t.Run("Prefers the en route flight", func(t *testing.T) {
		typ, err := client.GetAircraftType(ctx, " ual123 ")
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if typ != "B738" {
			t.Errorf("Expected B738, got %q", typ)
		}
	})

	t.Run("No flights", func(t *testing.T) {
		typ, err := client.GetAircraftType(ctx, "NONE")
		if err != nil || typ != "" {
			t.Errorf("Expected empty result, got %q, %v", typ, err)
		}
	})

	t.Run("Not found is not an error", func(t *testing.T) {
		flight, err := client.GetFlightByCallsign(ctx, "XYZ9")
		if err != nil || flight != nil {
			t.Errorf("Expected nil, nil; got %v, %v", flight, err)
		}
	})

	t.Run("Empty callsign skips the request", func(t *testing.T) {
		flight, err := client.GetFlightByCallsign(ctx, "  ")
		if err != nil || flight != nil {
			t.Errorf("Expected nil, nil; got %v, %v", flight, err)
		}
	})
}

// TestDescribeType tests the aircraft type endpoint.
func TestDescribeType(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/aircraft/types/B738" {
			w.Write([]byte(`{"manufacturer":"Boeing","type":"737-800","description":"L2J","engine_type":"Jet","engine_count":2}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	desc, err := client.DescribeType(context.Background(), "b738")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if desc.Manufacturer != "Boeing" || desc.EngineCount != 2 {
		t.Errorf("Unexpected description: %+v", desc)
	}

	if _, err := client.DescribeType(context.Background(), "ZZZZ"); err == nil {
		t.Error("Expected error for 500 response")
	}

	maker, err := client.GetManufacturer(context.Background(), "B738")
	if err != nil || maker != "Boeing" {
		t.Errorf("GetManufacturer() = %q, %v; want Boeing", maker, err)
	}
}

// TestNewClientDefaults tests default configuration.
func TestNewClientDefaults(t *testing.T) {
	client := NewClient(Config{APIKey: "k"})
	if client.baseURL != BaseURL {
		t.Errorf("Expected base URL %s, got %s", BaseURL, client.baseURL)
	}
	if client.httpClient.Timeout != DefaultTimeout {
		t.Errorf("Expected timeout %v, got %v", DefaultTimeout, client.httpClient.Timeout)
	}
}
