package ephemeris

import "math"

// earthRadiusKm is the equatorial radius used for lunar parallax.
const earthRadiusKm = 6378.14

// lunarTerm is one periodic term of the lunar series: multiples of the
// fundamental arguments D, M, M', F and the coefficient in 1e-6 degrees
// (longitude, latitude) or metres (distance).
type lunarTerm struct {
	d, m, mp, f float64
	coef        float64
}

var moonLongitudeTerms = []lunarTerm{
	{0, 0, 1, 0, 6288774},
	{2, 0, -1, 0, 1274027},
	{2, 0, 0, 0, 658314},
	{0, 0, 2, 0, 213618},
	{0, 1, 0, 0, -185116},
	{0, 0, 0, 2, -114332},
	{2, 0, -2, 0, 58793},
	{2, -1, -1, 0, 57066},
	{2, 0, 1, 0, 53322},
	{2, -1, 0, 0, 45758},
	{0, 1, -1, 0, -40923},
	{1, 0, 0, 0, -34720},
	{0, 1, 1, 0, -30383},
	{2, 0, 0, -2, 15327},
	{0, 0, 1, 2, -12528},
	{0, 0, 1, -2, 10980},
	{4, 0, -1, 0, 10675},
	{0, 0, 3, 0, 10034},
	{4, 0, -2, 0, 8548},
	{2, 1, -1, 0, -7888},
	{2, 1, 0, 0, -6766},
	{1, 0, -1, 0, -5163},
	{1, 1, 0, 0, 4987},
	{2, -1, 1, 0, 4036},
	{2, 0, 2, 0, 3994},
}

var moonLatitudeTerms = []lunarTerm{
	{0, 0, 0, 1, 5128122},
	{0, 0, 1, 1, 280602},
	{0, 0, 1, -1, 277693},
	{2, 0, 0, -1, 173237},
	{2, 0, -1, 1, 55413},
	{2, 0, -1, -1, 46271},
	{2, 0, 0, 1, 32573},
	{0, 0, 2, 1, 17198},
}

var moonDistanceTerms = []lunarTerm{
	{0, 0, 1, 0, -20905355},
	{2, 0, -1, 0, -3699111},
	{2, 0, 0, 0, -2955968},
	{0, 0, 2, 0, -569925},
	{0, 1, 0, 0, 48888},
	{1, 0, 0, 0, -3149},
	{2, 0, -2, 0, 246158},
	{2, -1, 0, 0, -152138},
	{2, 0, 1, 0, -170733},
	{2, -1, -1, 0, -204586},
}

// moonPosition is the Moon's geocentric ecliptic position of date.
type moonPosition struct {
	lon, lat   float64 // degrees
	distanceKm float64
}

// moonGeocentric evaluates the truncated lunar series at T centuries.
func moonGeocentric(T float64) moonPosition {
	Lp := 218.3164477 + 481267.88123421*T - 0.0015786*T*T
	D := 297.8501921 + 445267.1114034*T - 0.0018819*T*T
	M := 357.5291092 + 35999.0502909*T - 0.0001536*T*T
	Mp := 134.9633964 + 477198.8675055*T + 0.0087414*T*T
	F := 93.2720950 + 483202.0175233*T - 0.0036539*T*T
	E := 1 - 0.002516*T - 0.0000074*T*T

	A1 := 119.75 + 131.849*T
	A2 := 53.09 + 479264.290*T
	A3 := 313.45 + 481266.484*T

	sum := func(terms []lunarTerm, fn func(float64) float64) float64 {
		var s float64
		for _, t := range terms {
			arg := t.d*D + t.m*M + t.mp*Mp + t.f*F
			c := t.coef
			// Terms involving the Sun's anomaly shrink with Earth's eccentricity.
			switch math.Abs(t.m) {
			case 1:
				c *= E
			case 2:
				c *= E * E
			}
			s += c * fn(arg)
		}
		return s
	}

	sl := sum(moonLongitudeTerms, sinD) + 3958*sinD(A1) + 1962*sinD(Lp-F) + 318*sinD(A2)
	sb := sum(moonLatitudeTerms, sinD) - 2235*sinD(Lp) + 382*sinD(A3) +
		175*sinD(A1-F) + 175*sinD(A1+F)
	sr := sum(moonDistanceTerms, cosD)

	return moonPosition{
		lon:        norm(Lp + sl/1e6),
		lat:        sb / 1e6,
		distanceKm: 385000.56 + sr/1000,
	}
}

// topocentricLongitude shifts a geocentric ecliptic position to the
// observer's frame. lst is local sidereal time and eps the obliquity,
// both in degrees.
func topocentricLongitude(p moonPosition, loc Location, lst, eps float64) float64 {
	sinPi := earthRadiusKm / p.distanceKm

	// Geocentric latitude terms for a sea-level observer.
	u := math.Atan(0.99664719 * tanD(loc.Lat))
	rhoSin := 0.99664719 * math.Sin(u)
	rhoCos := math.Cos(u)

	y := sinD(p.lon)*cosD(p.lat) - sinPi*(rhoSin*sinD(eps)+rhoCos*cosD(eps)*sinD(lst))
	x := cosD(p.lon)*cosD(p.lat) - rhoCos*sinPi*cosD(lst)
	return atan2D(y, x)
}
