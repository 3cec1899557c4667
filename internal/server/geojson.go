package server

import (
	"net/http"

	geojson "github.com/paulmach/go.geojson"
	"go.uber.org/zap"

	"github.com/unklstewy/overhead/internal/watcher"
	"github.com/unklstewy/overhead/pkg/coordinates"
)

// overheadFeatures renders a check as a FeatureCollection: the observer
// first, then one point per aircraft. Coordinates are [lon, lat, alt_m].
func overheadFeatures(res watcher.Result) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	observer := geojson.NewPointFeature([]float64{res.Location.Longitude, res.Location.Latitude})
	observer.ID = "observer"
	observer.SetProperty("kind", "observer")
	observer.SetProperty("radius_km", res.RadiusKm)
	if !res.CheckedAt.IsZero() {
		observer.SetProperty("checked_at", res.CheckedAt)
	}
	fc.AddFeature(observer)

	fresh := make(map[string]bool, len(res.New))
	for _, s := range res.New {
		fresh[s.Aircraft.ICAO] = true
	}

	for _, s := range res.Overhead {
		ac := s.Aircraft
		f := geojson.NewPointFeature([]float64{ac.Longitude, ac.Latitude, ac.Altitude * coordinates.FeetToMeters})
		f.ID = ac.ICAO
		f.SetProperty("kind", "aircraft")
		f.SetProperty("icao", ac.ICAO)
		f.SetProperty("name", ac.DisplayName())
		f.SetProperty("type_code", ac.TypeCode)
		f.SetProperty("altitude_ft", ac.Altitude)
		f.SetProperty("ground_speed_kt", ac.GroundSpeed)
		f.SetProperty("track", ac.Track)
		f.SetProperty("distance_km", s.DistanceKm)
		f.SetProperty("bearing", s.Bearing)
		f.SetProperty("direction", s.Direction)
		f.SetProperty("elevation", s.Elevation)
		f.SetProperty("approaching", s.Approaching)
		f.SetProperty("new", fresh[ac.ICAO])
		fc.AddFeature(f)
	}
	return fc
}

func (s *Server) handleOverheadGeoJSON(w http.ResponseWriter, r *http.Request) {
	res, ok := s.app.Watcher.Last()
	if !ok {
		loc, _ := s.app.Location.Location(r.Context())
		res = watcher.Result{Location: loc, RadiusKm: s.app.Config().Detection.RadiusKm}
	}

	data, err := overheadFeatures(res).MarshalJSON()
	if err != nil {
		s.logger.Error("failed to encode geojson", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to encode geojson")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
