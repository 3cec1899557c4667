// Package server exposes the status API, the notification WebSocket and
// Prometheus metrics over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/unklstewy/overhead/internal/app"
	"github.com/unklstewy/overhead/internal/db"
	"github.com/unklstewy/overhead/pkg/config"
	"github.com/unklstewy/overhead/pkg/coordinates"
	"github.com/unklstewy/overhead/pkg/detect"
)

// maxLimit caps ?limit= on the list endpoints.
const maxLimit = 500

// Server holds the HTTP router and its dependencies.
type Server struct {
	router  *chi.Mux
	app     *app.App
	logger  *zap.Logger
	started time.Time
}

// New creates a Server for a and registers its routes.
func New(a *app.App) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		app:     a,
		logger:  a.Logger.Named("http"),
		started: time.Now(),
	}
	s.setupRoutes()
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.app.Config().Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/overhead", s.handleOverhead)
		r.Get("/overhead.geojson", s.handleOverheadGeoJSON)
		r.Get("/aircraft/{icao}", s.handleAircraft)
		r.Post("/location", s.handleSetLocation)
		r.Post("/check", s.handleCheck)
		r.Get("/cache", s.handleCacheStats)
		r.Delete("/cache", s.handleCacheClear)
		r.Get("/notifications", s.handleNotifications)
		r.Get("/sightings", s.handleSightings)
		r.Get("/locations", s.handleLocations)
	})

	if s.app.Hub != nil {
		r.Handle("/ws", s.app.Hub)
	}
	r.Handle("/metrics", promhttp.HandlerFor(s.app.Registry, promhttp.HandlerOpts{}))
}

// requestLogger logs each request through zap.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{
		"status":   "ok",
		"uptime":   time.Since(s.started).Round(time.Second).String(),
		"database": "disabled",
	}

	if s.app.DB != nil {
		if err := db.HealthCheck(r.Context(), s.app.DB); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["database"] = err.Error()
		} else {
			body["database"] = "ok"
			if stats, err := s.app.DB.GetStats(r.Context()); err != nil {
				s.logger.Warn("failed to read sighting log stats", zap.Error(err))
			} else {
				body["sighting_log"] = stats
			}
		}
	}

	respondJSON(w, status, body)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cfg := s.app.Config()
	loc, _ := s.app.Location.Location(r.Context())

	body := map[string]any{
		"location":       loc,
		"radius_km":      s.app.Watcher.Radius(),
		"poll_interval":  s.app.Watcher.PollInterval().String(),
		"source":         sourceName(cfg),
		"notified":       s.app.Throttle.Notified(),
		"imagery":        s.app.Resolver.Enabled(),
		"sighting_log":   s.app.DB != nil,
		"cache":          s.app.Cache.Stats(),
		"location_moved": !s.app.Location.UpdatedAt().IsZero(),
	}
	if last := s.app.Throttle.LastDelivered(); !last.IsZero() {
		body["last_notification_at"] = last
	}
	if s.app.Hub != nil {
		body["websocket_clients"] = s.app.Hub.Clients()
	}
	if res, ok := s.app.Watcher.Last(); ok {
		body["last_check"] = res
	}

	respondJSON(w, http.StatusOK, body)
}

func (s *Server) handleOverhead(w http.ResponseWriter, r *http.Request) {
	res, ok := s.app.Watcher.Last()
	if !ok {
		respondJSON(w, http.StatusOK, map[string]any{"aircraft": []any{}, "count": 0})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"aircraft":   res.Overhead,
		"count":      len(res.Overhead),
		"checked_at": res.CheckedAt,
		"location":   res.Location,
		"radius_km":  res.RadiusKm,
	})
}

// handleAircraft asks the flight source for one aircraft by ICAO address
// and places it relative to the observer.
func (s *Server) handleAircraft(w http.ResponseWriter, r *http.Request) {
	icao := detect.NormalizeID(chi.URLParam(r, "icao"))
	if !validICAO(icao) {
		respondError(w, http.StatusBadRequest, "icao must be 6 hex digits")
		return
	}

	ac, err := s.app.Source.GetAircraftByICAO(r.Context(), icao)
	if err != nil {
		s.logger.Warn("aircraft lookup failed", zap.String("icao", icao), zap.Error(err))
		respondError(w, http.StatusBadGateway, "flight source unavailable")
		return
	}
	if ac == nil {
		respondError(w, http.StatusNotFound, "aircraft not tracked")
		return
	}

	body := map[string]any{"aircraft": ac}
	if ac.Latitude != 0 || ac.Longitude != 0 {
		loc, _ := s.app.Location.Location(r.Context())
		pos := coordinates.Geographic{Latitude: ac.Latitude, Longitude: ac.Longitude}
		bearing := coordinates.Bearing(loc, pos)
		body["distance_km"] = coordinates.DistanceKilometers(loc, pos)
		body["bearing"] = bearing
		body["direction"] = coordinates.CardinalDirection(bearing)
	}
	respondJSON(w, http.StatusOK, body)
}

func validICAO(icao string) bool {
	if len(icao) != 6 {
		return false
	}
	for _, c := range icao {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// locationRequest is the body of POST /api/location.
type locationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Elevation float64  `json:"elevation"`

	// Check runs a check at the new position before responding
	Check bool `json:"check"`
}

func (s *Server) handleSetLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		respondError(w, http.StatusBadRequest, "latitude and longitude are required")
		return
	}

	loc := coordinates.Geographic{Latitude: *req.Latitude, Longitude: *req.Longitude, Altitude: req.Elevation}
	if err := s.app.SetLocation(r.Context(), loc); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("location updated", zap.Float64("lat", loc.Latitude), zap.Float64("lon", loc.Longitude))

	if !req.Check {
		respondJSON(w, http.StatusOK, map[string]any{"location": loc})
		return
	}
	s.handleCheck(w, r)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	res, err := s.app.Watcher.Check(r.Context())
	if err != nil {
		respondJSON(w, http.StatusBadGateway, res)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	size, err := s.app.Cache.Size(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to size cache")
		return
	}
	body := map[string]any{
		"stats": s.app.Cache.Stats(),
		"size":  size,
	}
	if r.URL.Query().Get("keys") != "" {
		body["keys"] = s.app.Cache.Keys()
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Cache.Clear(r.Context()); err != nil {
		s.logger.Error("cache clear failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to clear cache")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"cleared": true})
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	notifications, err := s.app.Notifications(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to load notifications", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load notifications")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"notifications": notifications,
		"count":         len(notifications),
	})
}

func (s *Server) handleSightings(w http.ResponseWriter, r *http.Request) {
	if s.app.Sightings == nil {
		respondError(w, http.StatusNotFound, "sighting log is disabled")
		return
	}
	records, err := s.app.Sightings.Recent(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		s.logger.Error("failed to load sightings", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load sightings")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"sightings": records,
		"count":     len(records),
	})
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	if s.app.Locations == nil {
		respondError(w, http.StatusNotFound, "sighting log is disabled")
		return
	}
	records, err := s.app.Locations.Recent(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		s.logger.Error("failed to load reported locations", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load reported locations")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"locations": records,
		"count":     len(records),
	})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
// TLS is used when the server configuration enables it.
func (s *Server) ListenAndServe(ctx context.Context) error {
	sc := s.app.Config().Server
	addr := sc.Addr()
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // POST /api/check waits on the flight source
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", addr), zap.Bool("tls", sc.TLSEnabled))
		if sc.TLSEnabled {
			errCh <- httpServer.ListenAndServeTLS(sc.TLSCertFile, sc.TLSKeyFile)
			return
		}
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func sourceName(cfg *config.Config) string {
	src, _ := cfg.ADSB.ActiveSource()
	return src.Name
}

func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	return min(v, maxLimit)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
