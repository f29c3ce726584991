package ephemeris

import (
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// j2000 is the Julian Date of the J2000.0 epoch (January 1, 2000, 12:00:00 TT).
const j2000 = 2451545.0

// omegaEarth is Earth's rotation rate in rad/s (IAU value).
const omegaEarth = 7.292115146706979e-5

// JulianDate converts t to a Julian Date. go-satellite works in whole
// seconds; the sub-second remainder is added back so the result is
// continuous in t.
func JulianDate(t time.Time) float64 {
	t = t.UTC()
	jd := satellite.JDay(t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	return jd + float64(t.Nanosecond())/1e9/86400.0
}

// Centuries returns Julian centuries since J2000.0 at t.
func Centuries(t time.Time) float64 {
	return (JulianDate(t) - j2000) / 36525.0
}

// FromJulianDate converts a Julian Date back to UTC.
func FromJulianDate(jd float64) time.Time {
	const unixEpochJD = 2440587.5
	ns := (jd - unixEpochJD) * 86400e9
	return time.Unix(0, int64(math.Round(ns))).UTC()
}

// GMST returns Greenwich Mean Sidereal Time in radians (IAU-82).
func GMST(t time.Time) float64 {
	t = t.UTC()
	g := satellite.GSTimeFromDate(t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	g += omegaEarth * float64(t.Nanosecond()) / 1e9
	g = math.Mod(g, 2*math.Pi)
	if g < 0 {
		g += 2 * math.Pi
	}
	return g
}

// LocalSiderealDeg returns local mean sidereal time in degrees for an
// observer at east longitude lonDeg.
func LocalSiderealDeg(t time.Time, lonDeg float64) float64 {
	return norm(GMST(t)*180/math.Pi + lonDeg)
}

// MeanObliquity returns the mean obliquity of the ecliptic in degrees.
func MeanObliquity(T float64) float64 {
	return 23.439291111 - 0.013004167*T - 1.6389e-7*T*T + 5.0361e-7*T*T*T
}

// nutationLongitude returns the dominant terms of nutation in longitude, degrees.
func nutationLongitude(T float64) float64 {
	omega := 125.04452 - 1934.136261*T
	ls := 280.4665 + 36000.7698*T
	lm := 218.3165 + 481267.8813*T
	arcsec := -17.20*sinD(omega) - 1.32*sinD(2*ls) - 0.23*sinD(2*lm) + 0.21*sinD(2*omega)
	return arcsec / 3600
}
