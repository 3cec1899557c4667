// Package config loads the overhead configuration from a JSON or YAML
// file, applies OVERHEAD_* environment overrides and validates it.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/unklstewy/overhead/pkg/coordinates"
)

// Config represents the complete application configuration.
type Config struct {
	Server        ServerConfig        `json:"server" yaml:"server"`
	Database      DatabaseConfig      `json:"database" yaml:"database"`
	ADSB          ADSBConfig          `json:"adsb" yaml:"adsb"`
	Observer      ObserverConfig      `json:"observer" yaml:"observer"`
	Detection     DetectionConfig     `json:"detection" yaml:"detection"`
	Notifications NotificationsConfig `json:"notifications" yaml:"notifications"`
	Cache         CacheConfig         `json:"cache" yaml:"cache"`
	Imagery       ImageryConfig       `json:"imagery" yaml:"imagery"`
	FlightAware   FlightAwareConfig   `json:"flightaware" yaml:"flightaware"`
	Logging       LoggingConfig       `json:"logging" yaml:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Port is the HTTP server port (default: 8080)
	Port string `json:"port" yaml:"port"`

	// Host is the server bind address (default: "0.0.0.0")
	Host string `json:"host" yaml:"host"`

	// TLSEnabled determines if HTTPS should be used
	TLSEnabled bool `json:"tls_enabled" yaml:"tls_enabled"`

	// TLSCertFile is the path to the TLS certificate
	TLSCertFile string `json:"tls_cert_file" yaml:"tls_cert_file"`

	// TLSKeyFile is the path to the TLS private key
	TLSKeyFile string `json:"tls_key_file" yaml:"tls_key_file"`

	// AllowedOrigins for CORS (default: any)
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig contains the optional PostgreSQL sighting log settings.
type DatabaseConfig struct {
	// Enabled turns on the sighting log
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Host is the database server hostname
	Host string `json:"host" yaml:"host"`

	// Port is the database server port
	Port int `json:"port" yaml:"port"`

	// Database is the database name
	Database string `json:"database" yaml:"database"`

	// Username for database authentication
	Username string `json:"username" yaml:"username"`

	// Password for database authentication (should be loaded from environment)
	Password string `json:"password" yaml:"password"`

	// SSLMode for PostgreSQL connections (disable, require, verify-ca, verify-full)
	SSLMode string `json:"ssl_mode" yaml:"ssl_mode"`

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int `json:"max_open_conns" yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int `json:"max_idle_conns" yaml:"max_idle_conns"`

	// RetentionDays is how long sightings are kept (0 = forever)
	RetentionDays int `json:"retention_days" yaml:"retention_days"`
}

// ADSBConfig contains ADS-B data source configuration.
type ADSBConfig struct {
	// Sources is a list of configured ADS-B data sources. The first
	// enabled source is used.
	Sources []ADSBSource `json:"sources" yaml:"sources"`

	// TimeoutSeconds is the HTTP timeout per request
	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds"`

	// MaxRetries for a failed poll before the cycle is skipped
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// ADSBSource represents a single ADS-B data source configuration.
type ADSBSource struct {
	// Name is a friendly name for this source
	Name string `json:"name" yaml:"name"`

	// Type is the source type: "airplanes.live" or "opensky"
	Type string `json:"type" yaml:"type"`

	// Enabled determines if this source should be used
	Enabled bool `json:"enabled" yaml:"enabled"`

	// BaseURL is the API base URL
	BaseURL string `json:"base_url" yaml:"base_url"`

	// Username and Password for sources with accounts (OpenSky)
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`

	// RateLimitSeconds is the minimum time between API calls in seconds
	// 0 = source default
	RateLimitSeconds float64 `json:"rate_limit_seconds" yaml:"rate_limit_seconds"`
}

// ActiveSource returns the first enabled source.
func (a ADSBConfig) ActiveSource() (ADSBSource, bool) {
	for _, s := range a.Sources {
		if s.Enabled {
			return s, true
		}
	}
	return ADSBSource{}, false
}

// ObserverConfig is the device location notifications are computed for.
type ObserverConfig struct {
	// Name is a friendly identifier for this location
	Name string `json:"name" yaml:"name"`

	// Latitude in decimal degrees (-90 to +90)
	Latitude float64 `json:"latitude" yaml:"latitude"`

	// Longitude in decimal degrees (-180 to +180)
	Longitude float64 `json:"longitude" yaml:"longitude"`

	// Elevation in meters above sea level
	Elevation float64 `json:"elevation" yaml:"elevation"`

	// TimeZone is the IANA timezone name (e.g., "America/New_York")
	TimeZone string `json:"timezone" yaml:"timezone"`
}

// Location returns the observer position.
func (o ObserverConfig) Location() coordinates.Geographic {
	return coordinates.Geographic{Latitude: o.Latitude, Longitude: o.Longitude, Altitude: o.Elevation}
}

// DetectionConfig controls what counts as overhead and how often to poll.
type DetectionConfig struct {
	// RadiusKm is the detection radius around the observer
	RadiusKm float64 `json:"radius_km" yaml:"radius_km"`

	// PollIntervalSeconds is the time between polls
	PollIntervalSeconds int `json:"poll_interval_seconds" yaml:"poll_interval_seconds"`

	// MinAltitudeFt and MaxAltitudeFt bound airborne aircraft (0 = no bound)
	MinAltitudeFt float64 `json:"min_altitude_ft" yaml:"min_altitude_ft"`
	MaxAltitudeFt float64 `json:"max_altitude_ft" yaml:"max_altitude_ft"`

	// IncludeOnGround counts taxiing aircraft as overhead
	IncludeOnGround bool `json:"include_on_ground" yaml:"include_on_ground"`
}

// PollInterval returns the poll interval as a duration.
func (d DetectionConfig) PollInterval() time.Duration {
	return time.Duration(d.PollIntervalSeconds) * time.Second
}

// RadiusNM returns the detection radius in nautical miles.
func (d DetectionConfig) RadiusNM() float64 {
	return d.RadiusKm / coordinates.KmPerNauticalMile
}

// NotificationsConfig controls the notification throttle and sinks.
type NotificationsConfig struct {
	// MinIntervalSeconds is the minimum time between two notifications
	MinIntervalSeconds int `json:"min_interval_seconds" yaml:"min_interval_seconds"`

	// NotifiedTTLMinutes is how long a notified flight stays suppressed
	NotifiedTTLMinutes int `json:"notified_ttl_minutes" yaml:"notified_ttl_minutes"`

	// WebhookURL receives each notification as a JSON POST (optional)
	WebhookURL string `json:"webhook_url" yaml:"webhook_url"`

	// LogEnabled writes notifications to the log
	LogEnabled bool `json:"log_enabled" yaml:"log_enabled"`

	// WebSocketEnabled pushes notifications to /ws clients
	WebSocketEnabled bool `json:"websocket_enabled" yaml:"websocket_enabled"`

	// NATSURL publishes each notification to a NATS server (optional)
	NATSURL string `json:"nats_url" yaml:"nats_url"`

	// NATSSubject is the subject notifications are published on
	NATSSubject string `json:"nats_subject" yaml:"nats_subject"`

	// HistorySize is how many notifications the status API keeps in memory
	HistorySize int `json:"history_size" yaml:"history_size"`
}

// MinInterval returns the throttle gate as a duration.
func (n NotificationsConfig) MinInterval() time.Duration {
	return time.Duration(n.MinIntervalSeconds) * time.Second
}

// NotifiedTTL returns the per-flight suppression window.
func (n NotificationsConfig) NotifiedTTL() time.Duration {
	return time.Duration(n.NotifiedTTLMinutes) * time.Minute
}

// CacheConfig controls the two-tier TTL cache.
type CacheConfig struct {
	// Backend is the persistent tier: "file", "sqlite" or "memory"
	Backend string `json:"backend" yaml:"backend"`

	// Dir is where the persistent tier lives (default: user cache dir)
	Dir string `json:"dir" yaml:"dir"`

	// DefaultTTLMinutes applies to entries written without a TTL
	DefaultTTLMinutes int `json:"default_ttl_minutes" yaml:"default_ttl_minutes"`

	// CleanupIntervalMinutes is how often expired entries are pruned
	CleanupIntervalMinutes int `json:"cleanup_interval_minutes" yaml:"cleanup_interval_minutes"`
}

// ImageryConfig controls aircraft image resolution.
type ImageryConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// BaseURL is the image URL template, containing {key}
	BaseURL string `json:"base_url" yaml:"base_url"`

	// CacheDir stores downloaded images (empty = do not download)
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`

	// TTLHours is how long a resolved image URL is trusted
	TTLHours int `json:"ttl_hours" yaml:"ttl_hours"`
}

// FlightAwareConfig contains FlightAware AeroAPI settings.
type FlightAwareConfig struct {
	// APIKey is the FlightAware API key for AeroAPI v4
	// Sign up at: https://www.flightaware.com/aeroapi/
	APIKey string `json:"api_key" yaml:"api_key"`

	// Enabled determines if FlightAware type enrichment should be used
	Enabled bool `json:"enabled" yaml:"enabled"`

	// BaseURL overrides the AeroAPI endpoint
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// RequestsPerHour limits the API call rate
	// Free tier: ~0.7 requests/hour (500/month)
	// Basic tier: ~340 requests/hour (250,000/month)
	RequestsPerHour int `json:"requests_per_hour" yaml:"requests_per_hour"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error
	Level string `json:"level" yaml:"level"`

	// Format is "json" or "console"
	Format string `json:"format" yaml:"format"`
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load reads configuration from a JSON or YAML file (by extension).
// Fields missing from the file keep their defaults. If the file doesn't
// exist, returns the default configuration. Environment overrides are
// applied and the result is validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err == nil {
		// Decoding into the default slice would merge element fields
		defaultSources := cfg.ADSB.Sources
		cfg.ADSB.Sources = nil

		if isYAML(path) {
			err = yaml.Unmarshal(data, cfg)
		} else {
			err = json.Unmarshal(data, cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		if cfg.ADSB.Sources == nil {
			cfg.ADSB.Sources = defaultSources
		}
	}

	// Override with environment variables
	cfg.applyEnvironmentOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as JSON, or YAML for .yaml/.yml paths.
func (c *Config) Save(path string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := c.Marshal(isYAML(path))
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Marshal renders the configuration as indented JSON or YAML.
func (c *Config) Marshal(asYAML bool) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if asYAML {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:       "8080",
			Host:       "0.0.0.0",
			TLSEnabled: false,
		},
		Database: DatabaseConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "overhead",
			Username:      "overhead",
			SSLMode:       "disable",
			MaxOpenConns:  10,
			MaxIdleConns:  2,
			RetentionDays: 30,
		},
		ADSB: ADSBConfig{
			Sources: []ADSBSource{
				{
					Name:             "airplanes.live",
					Type:             "airplanes.live",
					Enabled:          true,
					BaseURL:          "https://api.airplanes.live/v2",
					RateLimitSeconds: 3.0,
				},
				{
					Name:             "opensky",
					Type:             "opensky",
					Enabled:          false,
					BaseURL:          "https://opensky-network.org/api",
					RateLimitSeconds: 10.0,
				},
			},
			TimeoutSeconds: 10,
			MaxRetries:     3,
		},
		Observer: ObserverConfig{
			Name:      "Home",
			Latitude:  0.0,
			Longitude: 0.0,
			Elevation: 0.0,
			TimeZone:  "UTC",
		},
		Detection: DetectionConfig{
			RadiusKm:            10,
			PollIntervalSeconds: 300, // Every 5 minutes
			MinAltitudeFt:       0,
			MaxAltitudeFt:       0,
			IncludeOnGround:     false,
		},
		Notifications: NotificationsConfig{
			MinIntervalSeconds: 60,
			NotifiedTTLMinutes: 60,
			LogEnabled:         true,
			WebSocketEnabled:   true,
			NATSSubject:        "overhead.notifications",
			HistorySize:        50,
		},
		Cache: CacheConfig{
			Backend:                "file",
			DefaultTTLMinutes:      60,
			CleanupIntervalMinutes: 30,
		},
		Imagery: ImageryConfig{
			Enabled:  false,
			TTLHours: 24 * 30,
		},
		FlightAware: FlightAwareConfig{
			Enabled:         false,
			RequestsPerHour: 1, // Conservative default for free tier
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks ranges and cross-field requirements. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !c.Observer.Location().Valid() {
		add("observer: latitude/longitude out of range (%.4f, %.4f)", c.Observer.Latitude, c.Observer.Longitude)
	}

	maxRadiusKm := 250 * coordinates.KmPerNauticalMile
	if c.Detection.RadiusKm <= 0 || c.Detection.RadiusKm > maxRadiusKm {
		add("detection.radius_km must be in (0, %.0f], got %v", maxRadiusKm, c.Detection.RadiusKm)
	}
	if c.Detection.PollIntervalSeconds < 10 {
		add("detection.poll_interval_seconds must be at least 10, got %d", c.Detection.PollIntervalSeconds)
	}
	if c.Detection.MaxAltitudeFt > 0 && c.Detection.MaxAltitudeFt < c.Detection.MinAltitudeFt {
		add("detection.max_altitude_ft is below min_altitude_ft")
	}

	if c.Notifications.MinIntervalSeconds < 0 {
		add("notifications.min_interval_seconds must not be negative")
	}
	if c.Notifications.NotifiedTTLMinutes < 0 {
		add("notifications.notified_ttl_minutes must not be negative")
	}

	if c.Notifications.NATSURL != "" && strings.TrimSpace(c.Notifications.NATSSubject) == "" {
		add("notifications.nats_subject is required when nats_url is set")
	}
	if strings.ContainsAny(c.Notifications.NATSSubject, " \t*>") {
		add("notifications.nats_subject must be a literal subject, got %q", c.Notifications.NATSSubject)
	}

	if src, ok := c.ADSB.ActiveSource(); !ok {
		add("adsb: no enabled source")
	} else if t := strings.ToLower(src.Type); t != "airplanes.live" && t != "airplaneslive" && t != "opensky" {
		add("adsb: unknown source type %q", src.Type)
	}

	switch strings.ToLower(c.Cache.Backend) {
	case "file", "sqlite", "memory":
	default:
		add("cache.backend must be file, sqlite or memory, got %q", c.Cache.Backend)
	}

	if c.Imagery.Enabled && c.Imagery.BaseURL == "" {
		add("imagery.base_url is required when imagery is enabled")
	}
	if c.FlightAware.Enabled && c.FlightAware.APIKey == "" {
		add("flightaware.api_key is required when flightaware is enabled")
	}
	if c.Database.Enabled && (c.Database.Host == "" || c.Database.Database == "") {
		add("database.host and database.database are required when the database is enabled")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		add("logging.format must be json or console, got %q", c.Logging.Format)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
// This allows sensitive data like passwords to be kept out of config files.
func (c *Config) applyEnvironmentOverrides() {
	if port := os.Getenv("OVERHEAD_PORT"); port != "" {
		c.Server.Port = port
	}
	if dbPassword := os.Getenv("OVERHEAD_DB_PASSWORD"); dbPassword != "" {
		c.Database.Password = dbPassword
	}
	if lat, ok := envFloat("OVERHEAD_LATITUDE"); ok {
		c.Observer.Latitude = lat
	}
	if lon, ok := envFloat("OVERHEAD_LONGITUDE"); ok {
		c.Observer.Longitude = lon
	}
	if radius, ok := envFloat("OVERHEAD_RADIUS_KM"); ok {
		c.Detection.RadiusKm = radius
	}
	if webhook := os.Getenv("OVERHEAD_WEBHOOK_URL"); webhook != "" {
		c.Notifications.WebhookURL = webhook
	}
	if natsURL := os.Getenv("OVERHEAD_NATS_URL"); natsURL != "" {
		c.Notifications.NATSURL = natsURL
	}
	// OpenSky credentials apply to every opensky source
	user, pass := os.Getenv("OVERHEAD_OPENSKY_USERNAME"), os.Getenv("OVERHEAD_OPENSKY_PASSWORD")
	if user != "" {
		for i := range c.ADSB.Sources {
			if strings.EqualFold(c.ADSB.Sources[i].Type, "opensky") {
				c.ADSB.Sources[i].Username = user
				c.ADSB.Sources[i].Password = pass
			}
		}
	}
	if faKey := os.Getenv("OVERHEAD_FLIGHTAWARE_API_KEY"); faKey != "" {
		c.FlightAware.APIKey = faKey
	}
	if level := os.Getenv("OVERHEAD_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

func envFloat(name string) (float64, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
