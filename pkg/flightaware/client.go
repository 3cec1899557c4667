// Package flightaware provides a client for the FlightAware AeroAPI v4.
//
// Live ADS-B feeds often omit the aircraft type for a flight. AeroAPI can
// fill that in from the filed flight and describe a type designator, which
// the image resolver uses to pick a picture.
//
// API Documentation: https://www.flightaware.com/aeroapi/portal/documentation
// Rate Limits: Free tier allows 500 requests/month, paid tiers offer higher limits.
package flightaware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// BaseURL is the FlightAware AeroAPI v4 base URL
	BaseURL = "https://aeroapi.flightaware.com/aeroapi"

	// DefaultTimeout for API requests
	DefaultTimeout = 10 * time.Second
)

// Client represents a FlightAware AeroAPI client.
type Client struct {
	apiKey      string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	baseURL     string
}

// Config contains configuration for the FlightAware client.
type Config struct {
	APIKey          string
	BaseURL         string
	RequestsPerHour int
	Timeout         time.Duration
}

// NewClient creates a new FlightAware AeroAPI client.
//
// The client includes:
// - Rate limiting to prevent exceeding API quotas
// - Configurable timeout for requests
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.RequestsPerHour == 0 {
		// Default: 500 requests/month ≈ 0.7 requests/hour, use 1 req/hour as safe default
		cfg.RequestsPerHour = 1
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}

	// Convert requests per hour to rate limiter (allows burst of 1)
	requestsPerSecond := float64(cfg.RequestsPerHour) / 3600.0
	limiter := rate.NewLimiter(rate.Limit(requestsPerSecond), 1)

	return &Client{
		apiKey: cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: limiter,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// Flight is the subset of an AeroAPI flight record used for enrichment.
type Flight struct {
	Ident        string `json:"ident"`
	FAFlightID   string `json:"fa_flight_id"`
	Registration string `json:"registration"`
	AircraftType string `json:"aircraft_type"` // ICAO aircraft type (e.g., "B738")
	Operator     string `json:"operator"`

	Origin struct {
		Code string `json:"code_icao"`
		City string `json:"city"`
	} `json:"origin"`

	Destination struct {
		Code string `json:"code_icao"`
		City string `json:"city"`
	} `json:"destination"`

	Status string `json:"status"` // e.g., "Scheduled", "En Route", "Arrived"
}

// TypeDescription describes an ICAO aircraft type designator.
type TypeDescription struct {
	Manufacturer string `json:"manufacturer"`
	Type         string `json:"type"`
	Description  string `json:"description"` // e.g., "L2J" (landplane, 2 jets)
	EngineType   string `json:"engine_type"`
	EngineCount  int    `json:"engine_count"`
}

// GetFlightByCallsign retrieves the most recent flight for a callsign.
//
// The callsign should be the aircraft's identifier (e.g., "UAL123", "N12345").
// Flights that are en route are preferred over scheduled or arrived ones.
//
// Returns nil, nil if no flight is found (not an error).
// Returns error for API failures or network issues.
func (c *Client) GetFlightByCallsign(ctx context.Context, callsign string) (*Flight, error) {
	callsign = strings.ToUpper(strings.TrimSpace(callsign))
	if callsign == "" {
		return nil, nil
	}

	var response struct {
		Flights []Flight `json:"flights"`
	}
	found, err := c.get(ctx, "/flights/"+url.PathEscape(callsign), &response)
	if err != nil || !found || len(response.Flights) == 0 {
		return nil, err
	}

	for i := range response.Flights {
		if strings.HasPrefix(response.Flights[i].Status, "En Route") {
			return &response.Flights[i], nil
		}
	}
	return &response.Flights[0], nil
}

// GetAircraftType returns the ICAO type designator flown under callsign,
// or "" when AeroAPI does not know it.
func (c *Client) GetAircraftType(ctx context.Context, callsign string) (string, error) {
	flight, err := c.GetFlightByCallsign(ctx, callsign)
	if err != nil || flight == nil {
		return "", err
	}
	return strings.ToUpper(strings.TrimSpace(flight.AircraftType)), nil
}

// DescribeType looks up manufacturer and engine details for a type
// designator. Returns nil, nil for unknown types.
func (c *Client) DescribeType(ctx context.Context, typeCode string) (*TypeDescription, error) {
	typeCode = strings.ToUpper(strings.TrimSpace(typeCode))
	if typeCode == "" {
		return nil, nil
	}

	var desc TypeDescription
	found, err := c.get(ctx, "/aircraft/types/"+url.PathEscape(typeCode), &desc)
	if err != nil || !found {
		return nil, err
	}
	return &desc, nil
}

// GetManufacturer returns the manufacturer of a type designator, or ""
// when AeroAPI does not know the type.
func (c *Client) GetManufacturer(ctx context.Context, typeCode string) (string, error) {
	desc, err := c.DescribeType(ctx, typeCode)
	if err != nil || desc == nil {
		return "", err
	}
	return strings.TrimSpace(desc.Manufacturer), nil
}

// get performs a rate limited GET against path and decodes the JSON body
// into out. A 404 reports found=false without an error.
func (c *Client) get(ctx context.Context, path string, out any) (bool, error) {
	// Wait for rate limiter
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("x-apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return false, fmt.Errorf("parse response: %w", err)
	}
	return true, nil
}
