package ephemeris

import (
	"context"
	"fmt"
	"time"

	"github.com/creator4ever-bot/geodac/internal/body"
)

// Builtin is a self-contained low-precision ephemeris. The Sun and Moon
// come from truncated analytic series, the planets from mean Keplerian
// elements and the angles from mean sidereal time. Expect errors of a few
// arcminutes for the luminaries and up to a fraction of a degree for the
// outer planets; good enough for orb windows, not for exact timing.
type Builtin struct {
	// Geocentric disables the lunar parallax correction.
	Geocentric bool
}

// NewBuiltin returns the built-in oracle.
func NewBuiltin() *Builtin {
	return &Builtin{}
}

// Longitude implements Oracle.
func (o *Builtin) Longitude(_ context.Context, b body.Body, t time.Time, loc Location) (float64, error) {
	T := Centuries(t)
	dpsi := nutationLongitude(T)

	switch {
	case b == body.Sun:
		return sunApparentLongitude(T), nil

	case b == body.Moon:
		p := moonGeocentric(T)
		p.lon = norm(p.lon + dpsi)
		if o.Geocentric {
			return p.lon, nil
		}
		eps := MeanObliquity(T)
		return topocentricLongitude(p, loc, LocalSiderealDeg(t, loc.Lon), eps), nil

	case b == body.NNode:
		return meanNode(T), nil

	case b.IsPlanet():
		lon, err := planetGeocentricLongitude(b, T)
		if err != nil {
			return 0, fmt.Errorf("%s at %s: %w", b, t.Format(time.RFC3339), err)
		}
		return norm(lon + dpsi), nil

	case b.IsAngle():
		ramc := LocalSiderealDeg(t, loc.Lon)
		eps := MeanObliquity(T)
		switch b {
		case body.ASC:
			return ascendant(ramc, eps, loc.Lat), nil
		case body.DSC:
			return norm(ascendant(ramc, eps, loc.Lat) + 180), nil
		case body.MC:
			return midheaven(ramc, eps), nil
		default:
			return norm(midheaven(ramc, eps) + 180), nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedBody, b)
}
