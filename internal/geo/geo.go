// Package geo provides great-circle distance math for proximity filtering.
package geo

import "math"

// EarthRadiusMeters is the spherical-Earth approximation radius.
const EarthRadiusMeters = 6371000

// DefaultRadiusMeters is the listing radius applied when the caller
// supplies a center point but no radius.
const DefaultRadiusMeters = 5000

// Point is a WGS84 coordinate pair in degrees.
type Point struct {
	Lat float64
	Lng float64
}

// Distance returns the great-circle distance between two points in meters,
// computed with the haversine formula.
func Distance(a, b Point) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// WithinRadius reports whether p lies within radius meters of center.
func WithinRadius(center, p Point, radius float64) bool {
	return Distance(center, p) <= radius
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
