// Package geo provides great-circle distance and geofence checks.
package geo

import "math"

const (
	// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
	EarthRadiusMeters = 6_371_000.0

	// DefaultGeofenceRadius is the on-site radius in meters.
	DefaultGeofenceRadius = 50.0
)

// Distance returns the haversine distance in meters between two points given
// in decimal degrees. Inputs outside |lat|<=90, |lon|<=180 give meaningless results.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1, phi2 := radians(lat1), radians(lat2)
	dPhi := radians(lat2 - lat1)
	dLambda := radians(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// WithinGeofence reports whether the user position is within radiusMeters of the site.
// A non-positive radius falls back to DefaultGeofenceRadius.
func WithinGeofence(userLat, userLon, siteLat, siteLon, radiusMeters float64) bool {
	if radiusMeters <= 0 {
		radiusMeters = DefaultGeofenceRadius
	}
	return Distance(userLat, userLon, siteLat, siteLon) <= radiusMeters
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
