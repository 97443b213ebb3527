package geo

// WGS-84 → Texas North-Central (EPSG:2276) Lambert Conformal Conic, US-feet.
// The district's polygon layers are published in this CRS.

import "math"

// lambert is a two-parallel Lambert Conformal Conic projection on the NAD83
// ellipsoid, producing US survey feet.
type lambert struct {
	falseEasting  float64
	falseNorthing float64
	lon0          float64 // radians
	n, f, rho0    float64
}

const (
	ftPerMeter = 3.2808333333333334 // US survey foot
	semiMajorM = 6378137.0          // NAD83 semi-major axis (metres)
	e2         = 0.00669438002290   // NAD83 eccentricity squared
)

func toRad(d float64) float64 { return d * math.Pi / 180 }

func lambertM(phi float64) float64 {
	return math.Cos(phi) / math.Sqrt(1-e2*math.Sin(phi)*math.Sin(phi))
}

func lambertT(phi float64) float64 {
	e := math.Sqrt(e2)
	return math.Tan(math.Pi/4-phi/2) / math.Pow((1-e*math.Sin(phi))/(1+e*math.Sin(phi)), e/2)
}

func newLambert(phi0Deg, phi1Deg, phi2Deg, lon0Deg, falseEasting, falseNorthing float64) lambert {
	phi0, phi1, phi2 := toRad(phi0Deg), toRad(phi1Deg), toRad(phi2Deg)

	m1, m2 := lambertM(phi1), lambertM(phi2)
	t0, t1, t2 := lambertT(phi0), lambertT(phi1), lambertT(phi2)

	l := lambert{falseEasting: falseEasting, falseNorthing: falseNorthing, lon0: toRad(lon0Deg)}
	l.n = math.Log(m1/m2) / math.Log(t1/t2)
	aFt := semiMajorM * ftPerMeter
	l.f = aFt * m1 / (l.n * math.Pow(t1, l.n))
	l.rho0 = l.f * math.Pow(t0, l.n)
	return l
}

// project returns (northing, easting) in feet for a WGS-84 lat/lon, matching
// the [y, x] ordering of feature rings.
func (l lambert) project(latDeg, lonDeg float64) (northingFt, eastingFt float64) {
	rho := l.f * math.Pow(lambertT(toRad(latDeg)), l.n)
	theta := l.n * (toRad(lonDeg) - l.lon0)

	eastingFt = rho*math.Sin(theta) + l.falseEasting
	northingFt = l.rho0 - rho*math.Cos(theta) + l.falseNorthing
	return
}

var txNorthCentral = newLambert(
	31.66666666666667, // latitude of origin
	32.13333333333333, // standard parallel 1
	33.96666666666667, // standard parallel 2
	-98.5,             // central meridian
	1968500.0,         // false easting
	6561666.666666666, // false northing
)

// ToTexasNorthCentral converts WGS-84 decimal degrees to State-Plane
// North-Central Texas feet.
func ToTexasNorthCentral(latDeg, lonDeg float64) (northingFt, eastingFt float64) {
	return txNorthCentral.project(latDeg, lonDeg)
}
