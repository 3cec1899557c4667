package coordinates

import "math"

// KmPerDegreeLatitude is the length of one degree of latitude on the
// sphere DistanceKilometers uses.
const KmPerDegreeLatitude = EarthRadiusKm * DegreesToRadians

// boxPad widens each edge so floating-point error never rejects a point
// that is exactly on the circle.
const boxPad = 1e-9

// BoundingBox is a latitude/longitude rectangle. When MinLon > MaxLon the
// box crosses the antimeridian.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// BoundingBoxAround returns the smallest lat/lon rectangle that contains a
// circle of radiusKm around center on the same sphere as
// DistanceKilometers. It is used to cheaply reject far away aircraft
// before the Haversine check and to build bounding-box queries for
// flight APIs.
func BoundingBoxAround(center Geographic, radiusKm float64) BoundingBox {
	if radiusKm < 0 {
		radiusKm = 0
	}

	dLat := radiusKm/KmPerDegreeLatitude + boxPad
	minLat := math.Max(-90, center.Latitude-dLat)
	maxLat := math.Min(90, center.Latitude+dLat)

	// Near the poles a degree of longitude shrinks to nothing, so the box
	// has to span every longitude
	cosLat := math.Cos(center.Latitude * DegreesToRadians)
	if minLat <= -90 || maxLat >= 90 || cosLat < 1e-9 {
		return BoundingBox{MinLat: minLat, MinLon: -180, MaxLat: maxLat, MaxLon: 180}
	}

	// Widest longitude offset of a spherical circle: asin(sin δ / cos φ)
	ratio := math.Sin(radiusKm/EarthRadiusKm) / cosLat
	if ratio >= 1 {
		return BoundingBox{MinLat: minLat, MinLon: -180, MaxLat: maxLat, MaxLon: 180}
	}
	dLon := math.Asin(ratio)*RadiansToDegrees + boxPad
	if dLon >= 180 {
		return BoundingBox{MinLat: minLat, MinLon: -180, MaxLat: maxLat, MaxLon: 180}
	}

	return BoundingBox{
		MinLat: minLat,
		MinLon: NormalizeLongitude(center.Longitude - dLon),
		MaxLat: maxLat,
		MaxLon: wrapMaxLongitude(center.Longitude + dLon),
	}
}

// wrapMaxLongitude keeps +180 as a valid eastern limit instead of folding
// it to -180.
func wrapMaxLongitude(lon float64) float64 {
	if lon == 180 {
		return 180
	}
	return NormalizeLongitude(lon)
}

// CrossesAntimeridian reports whether the box wraps across ±180°.
func (b BoundingBox) CrossesAntimeridian() bool {
	return b.MinLon > b.MaxLon
}

// Contains reports whether p lies inside the box (edges inclusive).
func (b BoundingBox) Contains(p Geographic) bool {
	if p.Latitude < b.MinLat || p.Latitude > b.MaxLat {
		return false
	}
	if b.CrossesAntimeridian() {
		return p.Longitude >= b.MinLon || p.Longitude <= b.MaxLon
	}
	return p.Longitude >= b.MinLon && p.Longitude <= b.MaxLon
}

// WithinRadius reports whether point is within radiusKm of center. The
// bounding box rejects most points before the exact Haversine distance is
// computed. The boundary is inclusive.
func WithinRadius(center, point Geographic, radiusKm float64) (float64, bool) {
	if !BoundingBoxAround(center, radiusKm).Contains(point) {
		return 0, false
	}
	d := DistanceKilometers(center, point)
	return d, d <= radiusKm
}
