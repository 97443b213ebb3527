package spatial

import "math"

const (
	earthRadiusKm    = 6371.0
	earthRadiusMiles = 3958.8
)

// haversine returns the central angle between two WGS-84 points in radians.
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// DistanceKm is the great-circle distance in kilometres.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	return earthRadiusKm * haversine(lat1, lon1, lat2, lon2)
}

// DistanceMiles is the great-circle distance in statute miles.
func DistanceMiles(lat1, lon1, lat2, lon2 float64) float64 {
	return earthRadiusMiles * haversine(lat1, lon1, lat2, lon2)
}
