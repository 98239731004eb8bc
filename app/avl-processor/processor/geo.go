package processor

import (
	"math"
)

const earthRadiusMeters = 6_371_000.0

// latLngDistanceMeters returns the approximate distance between two points.
// Equirectangular approximation, plenty for stop-scale distances.
func latLngDistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	lat1r := lat1 * math.Pi / 180.0
	lat2r := lat2 * math.Pi / 180.0
	x := (lng2 - lng1) * math.Pi / 180.0 * math.Cos((lat1r+lat2r)/2.0)
	y := lat2r - lat1r
	return math.Sqrt(x*x+y*y) * earthRadiusMeters
}

// nearestPointOnSegment projects the point at (lat, lng) onto the segment
// from a to b, returning the distance to the nearest point and how far along
// the segment it lies as a 0..1 fraction.
func nearestPointOnSegment(lat, lng, aLat, aLng, bLat, bLng float64) (distance float64, fraction float64) {
	// work in a flat plane scaled by the cosine of the latitude
	scale := math.Cos(aLat * math.Pi / 180.0)
	ax, ay := aLng*scale, aLat
	bx, by := bLng*scale, bLat
	px, py := lng*scale, lat

	dx, dy := bx-ax, by-ay
	lengthSquared := dx*dx + dy*dy
	if lengthSquared == 0 {
		return latLngDistanceMeters(lat, lng, aLat, aLng), 0
	}
	fraction = ((px-ax)*dx + (py-ay)*dy) / lengthSquared
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	nearestLat := aLat + fraction*(bLat-aLat)
	nearestLng := aLng + fraction*(bLng-aLng)
	return latLngDistanceMeters(lat, lng, nearestLat, nearestLng), fraction
}
