package natal

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/creator4ever-bot/geodac/internal/body"
)

// ErrInvalidFrame marks a natal frame that cannot be scanned against.
var ErrInvalidFrame = errors.New("invalid natal frame")

// Location is an observer position in degrees, east longitude positive.
type Location struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Frame is the fixed reference chart every transit is measured against.
// It is read-only once loaded.
type Frame struct {
	Name      string
	Birth     time.Time
	Location  Location
	Cusps     [12]float64
	Positions map[body.Body]float64
	Timezone  *time.Location
	Source    string
	LoadedAt  time.Time
}

// Validate checks the fields a scan depends on.
func (f *Frame) Validate() error {
	if f.Birth.IsZero() {
		return fmt.Errorf("%w: missing birth instant", ErrInvalidFrame)
	}
	if math.IsNaN(f.Location.Lat) || f.Location.Lat < -90 || f.Location.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidFrame, f.Location.Lat)
	}
	if math.IsNaN(f.Location.Lon) || f.Location.Lon < -180 || f.Location.Lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidFrame, f.Location.Lon)
	}
	for b, lon := range f.Positions {
		if !b.Valid() {
			return fmt.Errorf("%w: position for unknown body %d", ErrInvalidFrame, int(b))
		}
		if math.IsNaN(lon) || math.IsInf(lon, 0) {
			return fmt.Errorf("%w: position for %s is not a number", ErrInvalidFrame, b)
		}
	}
	return nil
}

// House maps a longitude to the frame's house 1..12.
func (f *Frame) House(lon float64) int {
	return HouseOf(lon, f.Cusps)
}

// Position returns the tabulated natal longitude for b, if present.
// Angles missing from the table are derived from their opposite half.
func (f *Frame) Position(b body.Body) (float64, bool) {
	if lon, ok := f.Positions[b]; ok {
		return lon, true
	}
	if opp := b.Opposite(); opp != body.None {
		if lon, ok := f.Positions[opp]; ok {
			return normalize(lon + 180), true
		}
	}
	return 0, false
}

// Zone returns the display timezone, UTC when unset.
func (f *Frame) Zone() *time.Location {
	if f.Timezone == nil {
		return time.UTC
	}
	return f.Timezone
}
