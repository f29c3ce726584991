package transit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/creator4ever-bot/geodac/internal/angle"
	"github.com/creator4ever-bot/geodac/internal/body"
	"github.com/creator4ever-bot/geodac/internal/ephemeris"
)

var (
	// ErrNoRoot means the bracket holds no usable aspect crossing. It is not
	// a failure: the candidate is skipped.
	ErrNoRoot = errors.New("no root in bracket")
	// ErrBracketRejected marks a bracket whose sign change is an artifact of
	// the ±180° wrap rather than a true crossing.
	ErrBracketRejected = fmt.Errorf("%w: bracket rejected by clamp", ErrNoRoot)
)

// Refiner defaults.
const (
	DefaultClamp     = 30.0
	DefaultConfirm   = 0.1
	DefaultMaxIter   = 32
	DefaultPrecision = time.Minute
)

// Refiner solves for the instant the wrapped difference between a moving
// body and a target longitude crosses zero.
type Refiner struct {
	Oracle    ephemeris.Oracle
	Location  ephemeris.Location
	Clamp     float64
	Confirm   float64
	MaxIter   int
	Precision time.Duration
}

// NewRefiner returns a Refiner with the default tolerances.
func NewRefiner(oracle ephemeris.Oracle, loc ephemeris.Location) *Refiner {
	return &Refiner{
		Oracle:    oracle,
		Location:  loc,
		Clamp:     DefaultClamp,
		Confirm:   DefaultConfirm,
		MaxIter:   DefaultMaxIter,
		Precision: DefaultPrecision,
	}
}

func (r *Refiner) diff(ctx context.Context, b body.Body, targetDeg float64, t time.Time) (float64, error) {
	lon, err := r.Oracle.Longitude(ctx, b, t, r.Location)
	if err != nil {
		return 0, err
	}
	return angle.Normalize180(lon - targetDeg), nil
}

// Root bisects [from, to] for the instant b reaches targetDeg. It returns
// the instant and the absolute residual there. Brackets without a real
// crossing yield an error matching ErrNoRoot; oracle failures are returned
// as they are.
func (r *Refiner) Root(ctx context.Context, b body.Body, targetDeg float64, from, to time.Time) (time.Time, float64, error) {
	fa, err := r.diff(ctx, b, targetDeg, from)
	if err != nil {
		return time.Time{}, 0, err
	}
	fb, err := r.diff(ctx, b, targetDeg, to)
	if err != nil {
		return time.Time{}, 0, err
	}
	return r.rootFrom(ctx, b, targetDeg, from, to, fa, fb)
}

// rootFrom is Root with the endpoint differences already known.
func (r *Refiner) rootFrom(ctx context.Context, b body.Body, targetDeg float64, from, to time.Time, fa, fb float64) (time.Time, float64, error) {
	if math.Min(math.Abs(fa), math.Abs(fb)) > r.Clamp {
		return time.Time{}, 0, ErrBracketRejected
	}
	switch {
	case fa == 0:
		return r.confirm(ctx, b, targetDeg, from)
	case fb == 0:
		return r.confirm(ctx, b, targetDeg, to)
	case (fa < 0) == (fb < 0):
		return time.Time{}, 0, ErrNoRoot
	}

	lo, hi := from, to
	for i := 0; i < r.MaxIter && hi.Sub(lo) > r.Precision; i++ {
		mid := lo.Add(hi.Sub(lo) / 2)
		fm, err := r.diff(ctx, b, targetDeg, mid)
		if err != nil {
			return time.Time{}, 0, err
		}
		if fm == 0 {
			lo, hi = mid, mid
			break
		}
		if (fa < 0) == (fm < 0) {
			lo, fa = mid, fm
		} else {
			hi = mid
		}
	}
	return r.confirm(ctx, b, targetDeg, lo.Add(hi.Sub(lo)/2))
}

// confirm re-checks the candidate against the tight tolerance.
func (r *Refiner) confirm(ctx context.Context, b body.Body, targetDeg float64, t time.Time) (time.Time, float64, error) {
	f, err := r.diff(ctx, b, targetDeg, t)
	if err != nil {
		return time.Time{}, 0, err
	}
	if math.Abs(f) > r.Confirm {
		return time.Time{}, 0, fmt.Errorf("%w: residual %.3f° exceeds %.3f°", ErrNoRoot, math.Abs(f), r.Confirm)
	}
	return t, math.Abs(f), nil
}
