package ephemeris

import (
	"math"

	"github.com/creator4ever-bot/geodac/internal/body"
)

// keplerElements are mean orbital elements at J2000 with linear rates per
// Julian century (JPL "Approximate Positions of the Planets", 1800-2050).
// Angles are in degrees, a in AU.
type keplerElements struct {
	a, e, i, l, peri, node                   float64
	aDot, eDot, iDot, lDot, periDot, nodeDot float64
}

// emBary is the Earth-Moon barycenter, the observer's heliocentric origin.
var emBary = keplerElements{
	1.00000261, 0.01671123, -0.00001531, 100.46457166, 102.93768193, 0,
	0.00000562, -0.00004392, -0.01294668, 35999.37244981, 0.32327364, 0,
}

var planetElements = map[body.Body]keplerElements{
	body.Mercury: {
		0.38709927, 0.20563593, 7.00497902, 252.25032350, 77.45779628, 48.33076593,
		0.00000037, 0.00001906, -0.00594749, 149472.67411175, 0.16047689, -0.12534081,
	},
	body.Venus: {
		0.72333566, 0.00677672, 3.39467605, 181.97909950, 131.60246718, 76.67984255,
		0.00000390, -0.00004107, -0.00078890, 58517.81538729, 0.00268329, -0.27769418,
	},
	body.Mars: {
		1.52371034, 0.09339410, 1.84969142, -4.55343205, -23.94362959, 49.55953891,
		0.00001847, 0.00007882, -0.00813131, 19140.30268499, 0.44441088, -0.29257343,
	},
	body.Jupiter: {
		5.20288700, 0.04838624, 1.30439695, 34.39644051, 14.72847983, 100.47390909,
		-0.00011607, -0.00013253, -0.00183714, 3034.74612775, 0.21252668, 0.20469106,
	},
	body.Saturn: {
		9.53667594, 0.05386179, 2.48599187, 49.95424423, 92.59887831, 113.66242448,
		-0.00125060, -0.00050991, 0.00193609, 1222.49362201, -0.41897216, -0.28867794,
	},
	body.Uranus: {
		19.18916464, 0.04725744, 0.77263783, 313.23810451, 170.95427630, 74.01692503,
		-0.00196176, -0.00004397, -0.00242939, 428.48202785, 0.40805281, 0.04240589,
	},
	body.Neptune: {
		30.06992276, 0.00859048, 1.77004347, -55.12002969, 44.96476227, 131.78422574,
		0.00026291, 0.00005105, 0.00035372, 218.45945325, -0.32241464, -0.00508664,
	},
	body.Pluto: {
		39.48211675, 0.24882730, 17.14001206, 238.92903833, 224.06891629, 110.30393684,
		-0.00031596, 0.00005170, 0.00004818, 145.20780515, -0.04062942, -0.01183482,
	},
}

// Validity span of the element table in Julian centuries from J2000.
const (
	keplerMinT = -2.0 // 1800
	keplerMaxT = 0.5  // 2050
)

// heliocentric returns J2000 ecliptic rectangular coordinates in AU.
func (k keplerElements) heliocentric(T float64) (x, y, z float64) {
	a := k.a + k.aDot*T
	e := k.e + k.eDot*T
	incl := k.i + k.iDot*T
	L := k.l + k.lDot*T
	peri := k.peri + k.periDot*T
	node := k.node + k.nodeDot*T

	omega := peri - node
	M := math.Mod(L-peri, 360)
	if M > 180 {
		M -= 360
	} else if M < -180 {
		M += 360
	}

	E := solveKepler(M, e)
	xp := a * (cosD(E) - e)
	yp := a * math.Sqrt(1-e*e) * sinD(E)

	cw, sw := cosD(omega), sinD(omega)
	cn, sn := cosD(node), sinD(node)
	ci, si := cosD(incl), sinD(incl)

	x = (cw*cn-sw*sn*ci)*xp + (-sw*cn-cw*sn*ci)*yp
	y = (cw*sn+sw*cn*ci)*xp + (-sw*sn+cw*cn*ci)*yp
	z = (sw*si)*xp + (cw*si)*yp
	return x, y, z
}

// solveKepler solves M = E - e*sin(E) for E, all angles in degrees.
func solveKepler(M, e float64) float64 {
	eDeg := e * 180 / math.Pi
	E := M + eDeg*sinD(M)
	for i := 0; i < 30; i++ {
		dM := M - (E - eDeg*sinD(E))
		dE := dM / (1 - e*cosD(E))
		E += dE
		if math.Abs(dE) < 1e-9 {
			break
		}
	}
	return E
}

// precessionLongitude is the general precession in longitude from J2000
// to the date, degrees.
func precessionLongitude(T float64) float64 {
	return 1.396971*T + 0.0003086*T*T
}

// planetGeocentricLongitude returns the geocentric ecliptic longitude of
// date for b, without nutation.
func planetGeocentricLongitude(b body.Body, T float64) (float64, error) {
	k, ok := planetElements[b]
	if !ok {
		return 0, ErrUnsupportedBody
	}
	if T < keplerMinT || T > keplerMaxT {
		return 0, ErrOutOfRange
	}
	px, py, _ := k.heliocentric(T)
	ex, ey, _ := emBary.heliocentric(T)
	return norm(atan2D(py-ey, px-ex) + precessionLongitude(T)), nil
}
