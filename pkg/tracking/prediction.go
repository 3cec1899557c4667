// Package tracking projects aircraft positions forward from their last
// ADS-B report. Polls are minutes apart, so live views use it to move
// blips between polls.
package tracking

import (
	"math"
	"time"

	"github.com/unklstewy/overhead/pkg/adsb"
	"github.com/unklstewy/overhead/pkg/coordinates"
)

// MaxHorizon is how far ahead a projection is trusted. Beyond it the
// position is held at the horizon.
const MaxHorizon = 10 * time.Minute

// PredictedPosition is an aircraft's projected position.
type PredictedPosition struct {
	// Position is the projected location; Altitude is in meters
	Position coordinates.Geographic

	// PredictionTime is when this projection is valid
	PredictionTime time.Time

	// Confidence is 1 at the report and falls to 0 at MaxHorizon
	Confidence float64

	// OriginalPosition is the report the projection started from
	OriginalPosition adsb.Aircraft
}

// PredictPosition projects where aircraft will be at predictionTime,
// assuming it holds ground speed, track and vertical rate.
func PredictPosition(aircraft adsb.Aircraft, predictionTime time.Time) PredictedPosition {
	deltaT := predictionTime.Sub(aircraft.LastSeen)

	if deltaT <= 0 || aircraft.LastSeen.IsZero() || aircraft.OnGround {
		return PredictedPosition{
			Position: coordinates.Geographic{
				Latitude:  aircraft.Latitude,
				Longitude: aircraft.Longitude,
				Altitude:  aircraft.Altitude * coordinates.FeetToMeters,
			},
			PredictionTime:   predictionTime,
			Confidence:       1.0,
			OriginalPosition: aircraft,
		}
	}

	if deltaT > MaxHorizon {
		deltaT = MaxHorizon
	}
	seconds := deltaT.Seconds()
	confidence := math.Max(0.0, 1.0-seconds/MaxHorizon.Seconds())

	newLat, newLon := predictHorizontalPosition(
		aircraft.Latitude,
		aircraft.Longitude,
		aircraft.GroundSpeed,
		aircraft.Track,
		seconds,
	)

	// VerticalRate is feet per minute
	newAltitudeFt := aircraft.Altitude + aircraft.VerticalRate*(seconds/60.0)
	if newAltitudeFt < 0 {
		newAltitudeFt = 0
		confidence *= 0.5
	}

	return PredictedPosition{
		Position: coordinates.Geographic{
			Latitude:  newLat,
			Longitude: newLon,
			Altitude:  newAltitudeFt * coordinates.FeetToMeters,
		},
		PredictionTime:   predictionTime,
		Confidence:       confidence,
		OriginalPosition: aircraft,
	}
}

// predictHorizontalPosition moves lat/lon along a great circle for deltaT
// seconds at speedKnots on trackDeg.
func predictHorizontalPosition(lat, lon, speedKnots, trackDeg, deltaT float64) (float64, float64) {
	latRad := lat * coordinates.DegreesToRadians
	lonRad := lon * coordinates.DegreesToRadians
	trackRad := trackDeg * coordinates.DegreesToRadians

	distanceKm := speedKnots * coordinates.KmPerNauticalMile * (deltaT / 3600.0)
	angularDistance := distanceKm / coordinates.EarthRadiusKm

	newLatRad := math.Asin(
		math.Sin(latRad)*math.Cos(angularDistance) +
			math.Cos(latRad)*math.Sin(angularDistance)*math.Cos(trackRad),
	)
	newLonRad := lonRad + math.Atan2(
		math.Sin(trackRad)*math.Sin(angularDistance)*math.Cos(latRad),
		math.Cos(angularDistance)-math.Sin(latRad)*math.Sin(newLatRad),
	)

	return newLatRad * coordinates.RadiansToDegrees,
		coordinates.NormalizeLongitude(newLonRad * coordinates.RadiansToDegrees)
}
