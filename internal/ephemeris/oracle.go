// Package ephemeris answers "where is this body" for a given instant and
// observer, in ecliptic longitude of date.
package ephemeris

import (
	"context"
	"errors"
	"time"

	"github.com/creator4ever-bot/geodac/internal/body"
)

var (
	// ErrUnsupportedBody is returned for bodies an oracle cannot place.
	ErrUnsupportedBody = errors.New("unsupported body")
	// ErrOutOfRange is returned for instants outside an oracle's validity span.
	ErrOutOfRange = errors.New("instant outside ephemeris range")
)

// Location is an observer position in degrees, east longitude positive.
type Location struct {
	Lat float64
	Lon float64
}

// Oracle returns the topocentric apparent ecliptic longitude of b in
// [0, 360). Angular points (ASC, MC, DSC, IC) are solved for the
// observer's location. Implementations must be safe for concurrent use.
type Oracle interface {
	Longitude(ctx context.Context, b body.Body, t time.Time, loc Location) (float64, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, b body.Body, t time.Time, loc Location) (float64, error)

// Longitude calls f.
func (f OracleFunc) Longitude(ctx context.Context, b body.Body, t time.Time, loc Location) (float64, error) {
	return f(ctx, b, t, loc)
}
