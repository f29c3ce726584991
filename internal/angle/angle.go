// Package angle provides normalization and circular-arc helpers for
// ecliptic longitudes.
package angle

import "math"

// Normalize360 returns x reduced to [0, 360).
func Normalize360(x float64) float64 {
	r := math.Mod(x, 360)
	if r < 0 {
		r += 360
	}
	// -1e-15 + 360 rounds to exactly 360 in float64.
	if r >= 360 {
		r = 0
	}
	return r
}

// Normalize180 returns the signed representation of an angular difference,
// ((x + 180) mod 360) - 180, in [-180, 180).
func Normalize180(x float64) float64 {
	return Normalize360(x+180) - 180
}

// Diff returns the signed minimal difference a - b.
func Diff(a, b float64) float64 {
	return Normalize180(a - b)
}

// CircularContains reports whether lon lies in the half-open arc [a, b)
// running counterclockwise from a. Arcs crossing 0° are handled by
// unwrapping b (and lon, when it sits below a) by one turn.
func CircularContains(lon, a, b float64) bool {
	lon = Normalize360(lon)
	a = Normalize360(a)
	b = Normalize360(b)
	if b < a {
		b += 360
		if lon < a {
			lon += 360
		}
	}
	return lon >= a && lon < b
}

var signs = [12]string{
	"ARIES", "TAURUS", "GEMINI", "CANCER", "LEO", "VIRGO",
	"LIBRA", "SCORPIO", "SAGITTARIUS", "CAPRICORN", "AQUARIUS", "PISCES",
}

// SignIndex returns the zodiac sector 0..11 holding lon.
func SignIndex(lon float64) int {
	i := int(Normalize360(lon) / 30)
	if i > 11 {
		i = 11
	}
	return i
}

// Sign returns the upper-case zodiac sign name holding lon.
func Sign(lon float64) string {
	return signs[SignIndex(lon)]
}

// Deg2Rad converts degrees to radians.
func Deg2Rad(d float64) float64 { return d * math.Pi / 180 }

// Rad2Deg converts radians to degrees.
func Rad2Deg(r float64) float64 { return r * 180 / math.Pi }

// SinD, CosD and TanD take their argument in degrees.
func SinD(d float64) float64 { return math.Sin(Deg2Rad(d)) }

func CosD(d float64) float64 { return math.Cos(Deg2Rad(d)) }

func TanD(d float64) float64 { return math.Tan(Deg2Rad(d)) }

// Atan2D returns atan2(y, x) in degrees normalized to [0, 360).
func Atan2D(y, x float64) float64 {
	return Normalize360(Rad2Deg(math.Atan2(y, x)))
}
