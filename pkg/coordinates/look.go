package coordinates

import "math"

// LookAngle is where the observer has to look to see a target: elevation
// above the horizon and azimuth from north, both in degrees.
type LookAngle struct {
	// Elevation in degrees above the horizon (negative = below)
	Elevation float64 `json:"elevation"`

	// Azimuth in degrees from north (0-360)
	Azimuth float64 `json:"azimuth"`
}

// LookAngleTo computes the elevation and azimuth of target as seen from
// observer. Earth curvature is ignored; at the ranges notifications are
// raised for (tens of kilometers) the error is well below a degree.
func LookAngleTo(observer, target Geographic) LookAngle {
	surfaceM := DistanceKilometers(observer, target) * 1000.0
	deltaAltM := target.Altitude - observer.Altitude

	return LookAngle{
		Elevation: math.Atan2(deltaAltM, surfaceM) * RadiansToDegrees,
		Azimuth:   Bearing(observer, target),
	}
}
