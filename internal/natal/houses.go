package natal

import (
	"fmt"
	"math"

	"github.com/creator4ever-bot/geodac/internal/angle"
)

// fallbackHouse is returned when no sector matches, which only happens
// for cusps that do not partition the circle.
const fallbackHouse = 12

// HouseOf returns the house 1..12 containing lon. House i spans
// [cusps[i-1], cusps[i]) counterclockwise; house 12 wraps back to cusp 1.
func HouseOf(lon float64, cusps [12]float64) int {
	for i := 0; i < 12; i++ {
		if angle.CircularContains(lon, cusps[i], cusps[(i+1)%12]) {
			return i + 1
		}
	}
	return fallbackHouse
}

// NormalizeCusps converts a raw cusp list into twelve longitudes in [0,360).
// A thirteen-slot list with an empty leading slot is accepted.
func NormalizeCusps(raw []*float64) ([12]float64, error) {
	var out [12]float64
	if len(raw) == 13 && raw[0] == nil {
		raw = raw[1:]
	}
	if len(raw) != 12 {
		return out, fmt.Errorf("%w: expected 12 cusps, got %d", ErrInvalidFrame, len(raw))
	}
	for i, c := range raw {
		if c == nil {
			return out, fmt.Errorf("%w: cusp %d is empty", ErrInvalidFrame, i+1)
		}
		if math.IsNaN(*c) || math.IsInf(*c, 0) {
			return out, fmt.Errorf("%w: cusp %d is not a number", ErrInvalidFrame, i+1)
		}
		out[i] = angle.Normalize360(*c)
	}
	return out, nil
}

func normalize(x float64) float64 { return angle.Normalize360(x) }
