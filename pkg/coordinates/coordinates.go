// Package coordinates provides the geodesy used to decide whether an
// aircraft is overhead: great-circle distance, bearing, bounding boxes and
// the observer's look angle.
package coordinates

import (
	"math"
	"time"
)

const (
	DegreesToRadians = math.Pi / 180.0
	RadiansToDegrees = 180.0 / math.Pi

	// EarthRadiusKm is the WGS84 mean radius
	EarthRadiusKm     = 6371.0
	KmPerNauticalMile = 1.852

	FeetToMeters = 0.3048
	MetersToFeet = 1 / FeetToMeters
)

// Geographic is a WGS84 position: degrees north and east, altitude in
// meters above mean sea level.
type Geographic struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

// Valid reports whether the coordinates are inside the WGS84 ranges.
func (g Geographic) Valid() bool {
	if math.IsNaN(g.Latitude) || math.IsNaN(g.Longitude) {
		return false
	}
	return g.Latitude >= -90 && g.Latitude <= 90 &&
		g.Longitude >= -180 && g.Longitude <= 180
}

// NormalizeAzimuth ensures azimuth is in the range [0, 360).
func NormalizeAzimuth(azimuth float64) float64 {
	az := math.Mod(azimuth, 360.0)
	if az < 0 {
		az += 360.0
	}
	return az
}

// NormalizeLongitude wraps a longitude into [-180, 180).
func NormalizeLongitude(lon float64) float64 {
	l := math.Mod(lon+180.0, 360.0)
	if l < 0 {
		l += 360.0
	}
	return l - 180.0
}

// Bearing is the initial great-circle bearing from one point to another in
// degrees clockwise from north, in [0, 360).
func Bearing(from, to Geographic) float64 {
	lat1 := from.Latitude * DegreesToRadians
	lon1 := from.Longitude * DegreesToRadians
	lat2 := to.Latitude * DegreesToRadians
	lon2 := to.Longitude * DegreesToRadians

	dLon := lon2 - lon1
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)

	return NormalizeAzimuth(math.Atan2(y, x) * RadiansToDegrees)
}

var cardinals = [...]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// CardinalDirection converts a bearing into an 8-point compass label.
func CardinalDirection(bearing float64) string {
	idx := int(math.Floor(NormalizeAzimuth(bearing)/45.0+0.5)) % len(cardinals)
	return cardinals[idx]
}

// DistanceKilometers calculates the great-circle distance between two points.
// Uses the Haversine formula for accuracy over short and long distances.
func DistanceKilometers(from, to Geographic) float64 {
	lat1Rad := from.Latitude * DegreesToRadians
	lon1Rad := from.Longitude * DegreesToRadians
	lat2Rad := to.Latitude * DegreesToRadians
	lon2Rad := to.Longitude * DegreesToRadians

	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	// Haversine formula
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	// Rounding can push a a hair past 1 for antipodal points
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// DistanceNauticalMiles calculates the great-circle distance between two points
// in nautical miles.
func DistanceNauticalMiles(from, to Geographic) float64 {
	return DistanceKilometers(from, to) / KmPerNauticalMile
}

// EstimateTimeToClosestApproach projects a straight track and returns the
// cross-track miss distance, the time until the aircraft is abeam the
// observer, and whether it is closing at all. Receding or stationary
// aircraft report their current range and zero time.
func EstimateTimeToClosestApproach(
	observerPos Geographic,
	aircraftPos Geographic,
	groundSpeedKnots float64,
	trackDegrees float64,
) (closestRangeNM float64, timeToClosest time.Duration, isApproaching bool) {
	currentRange := DistanceNauticalMiles(observerPos, aircraftPos)
	if groundSpeedKnots <= 0 {
		return currentRange, 0, false
	}

	// If the aircraft is flying directly toward the observer the relative
	// angle is ~0°, directly away it is ~180°
	bearingFromAircraft := Bearing(aircraftPos, observerPos)
	relativeAngle := math.Abs(trackDegrees - bearingFromAircraft)
	if relativeAngle > 180 {
		relativeAngle = 360 - relativeAngle
	}

	// Component of velocity toward/away from observer
	relativeAngleRad := relativeAngle * DegreesToRadians
	velocityToward := groundSpeedKnots * math.Cos(relativeAngleRad)

	isApproaching = velocityToward > 0.1
	if !isApproaching {
		return currentRange, 0, false
	}

	// t = range * cos(angle) / speed
	timeHours := currentRange * math.Cos(relativeAngleRad) / groundSpeedKnots
	if timeHours < 0 {
		timeHours = 0
	}
	timeToClosest = time.Duration(timeHours * float64(time.Hour))

	// Closest range is the cross-track distance
	closestRangeNM = math.Abs(currentRange * math.Sin(relativeAngleRad))

	return closestRangeNM, timeToClosest, isApproaching
}
