package transit

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/creator4ever-bot/geodac/internal/aspect"
	"github.com/creator4ever-bot/geodac/internal/body"
)

// ErrInvalidConfig marks a scan configuration that cannot run.
var ErrInvalidConfig = errors.New("invalid scan config")

// Scan defaults.
const (
	DefaultAxisPadding     = 6 * time.Hour
	DefaultExactBracket    = 3 * time.Hour
	DefaultExactDedup      = 6 * time.Hour
	DefaultMaxFailureRatio = 0.05
	maxSamplesPerBody      = 5_000_000
)

// Config parameterizes one scan: which bodies move, which natal points
// they are measured against, the aspects and the sampled time range.
type Config struct {
	Style   string
	Bodies  []body.Body
	Targets []body.Body
	Aspects []aspect.Definition

	From time.Time
	To   time.Time
	Step time.Duration

	// BothSides also matches the waning side of asymmetric aspects.
	BothSides bool
	// Refine sharpens each window's peak by bisection.
	Refine bool
	// Exact adds an event at every confirmed exact crossing not already
	// covered by a window peak within ExactDedup.
	Exact        bool
	ExactBracket time.Duration
	ExactDedup   time.Duration
	// Ingresses emits an event whenever a moving body changes natal house.
	Ingresses bool

	MergeAxes   bool
	AxisPadding time.Duration

	// HouseShift adds a fixed number of houses to the reported transit
	// house per aspect angle. Empty means no correction.
	HouseShift map[int]int

	MaxFailureRatio float64
	Workers         int
}

// Preset is a named scan setup matching one of the classic runs.
type Preset struct {
	Name     string
	Style    string
	Bodies   []body.Body
	Step     time.Duration
	OrbConj  float64
	OrbOther float64
}

var presets = map[string]Preset{
	"lunar": {
		Name:     "lunar",
		Style:    "lunar_natal",
		Bodies:   []body.Body{body.Moon},
		Step:     2 * time.Minute,
		OrbConj:  2.0,
		OrbOther: 1.0,
	},
	"augment": {
		Name:     "augment",
		Style:    "augment",
		Bodies:   []body.Body{body.Moon},
		Step:     5 * time.Minute,
		OrbConj:  1.5,
		OrbOther: 1.0,
	},
	"planets": {
		Name:     "planets",
		Style:    "planets_natal",
		Bodies:   []body.Body{body.Sun, body.Mercury, body.Venus, body.Mars},
		Step:     10 * time.Minute,
		OrbConj:  1.0,
		OrbOther: 1.0,
	},
	"long": {
		Name:     "long",
		Style:    "long_natal",
		Bodies:   []body.Body{body.Jupiter, body.Saturn, body.Uranus, body.Neptune, body.Pluto},
		Step:     20 * time.Minute,
		OrbConj:  1.0,
		OrbOther: 1.0,
	},
}

// LookupPreset returns the named preset.
func LookupPreset(name string) (Preset, bool) {
	p, ok := presets[strings.ToLower(name)]
	return p, ok
}

// PresetNames lists the available presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Config builds a scan config for the preset over [from, to].
func (p Preset) Config(from, to time.Time) Config {
	return Config{
		Style:   p.Style,
		Bodies:  append([]body.Body(nil), p.Bodies...),
		Targets: append([]body.Body(nil), body.Targets...),
		Aspects: aspect.Set(p.OrbConj, p.OrbOther),
		From:    from,
		To:      to,
		Step:    p.Step,
	}
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Style == "" {
		c.Style = "natal"
	}
	if len(c.Targets) == 0 {
		c.Targets = append([]body.Body(nil), body.Targets...)
	}
	if len(c.Aspects) == 0 {
		c.Aspects = aspect.Set(1.0, 1.0)
	}
	if c.AxisPadding <= 0 {
		c.AxisPadding = DefaultAxisPadding
	}
	if c.ExactBracket <= 0 {
		c.ExactBracket = DefaultExactBracket
	}
	if c.ExactDedup <= 0 {
		c.ExactDedup = DefaultExactDedup
	}
	if c.MaxFailureRatio <= 0 {
		c.MaxFailureRatio = DefaultMaxFailureRatio
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
}

// Validate checks the config is runnable.
func (c *Config) Validate() error {
	if len(c.Bodies) == 0 {
		return fmt.Errorf("%w: no moving bodies", ErrInvalidConfig)
	}
	for _, b := range c.Bodies {
		if !b.Valid() || b.IsAngle() {
			return fmt.Errorf("%w: %v cannot be a moving body", ErrInvalidConfig, b)
		}
	}
	for _, b := range c.Targets {
		if !b.Valid() {
			return fmt.Errorf("%w: invalid target %d", ErrInvalidConfig, int(b))
		}
	}
	seen := make(map[int]bool, len(c.Aspects))
	for _, a := range c.Aspects {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if seen[a.Angle] {
			return fmt.Errorf("%w: aspect %d listed twice", ErrInvalidConfig, a.Angle)
		}
		seen[a.Angle] = true
	}
	if c.From.IsZero() || c.To.IsZero() {
		return fmt.Errorf("%w: time range not set", ErrInvalidConfig)
	}
	if c.To.Before(c.From) {
		return fmt.Errorf("%w: range end %s before start %s", ErrInvalidConfig, c.To.Format(time.RFC3339), c.From.Format(time.RFC3339))
	}
	if c.Step <= 0 {
		return fmt.Errorf("%w: step must be positive", ErrInvalidConfig)
	}
	if c.PlannedSamples() > maxSamplesPerBody {
		return fmt.Errorf("%w: %d samples per body exceeds %d; widen the step", ErrInvalidConfig, c.PlannedSamples(), maxSamplesPerBody)
	}
	if c.MaxFailureRatio < 0 || c.MaxFailureRatio >= 1 {
		return fmt.Errorf("%w: max failure ratio %v outside [0, 1)", ErrInvalidConfig, c.MaxFailureRatio)
	}
	for deg := range c.HouseShift {
		if !seen[deg] {
			return fmt.Errorf("%w: house shift for unscanned aspect %d", ErrInvalidConfig, deg)
		}
	}
	return nil
}

// PlannedSamples is the number of grid points per moving body.
func (c *Config) PlannedSamples() int {
	if c.Step <= 0 || c.To.Before(c.From) {
		return 0
	}
	return int(c.To.Sub(c.From)/c.Step) + 1
}

// keys returns the window keys in a fixed order.
func (c *Config) keys(natal map[body.Body]float64) []Key {
	var keys []Key
	for _, t := range c.Targets {
		if _, ok := natal[t]; !ok {
			continue
		}
		for _, a := range c.Aspects {
			keys = append(keys, Key{Target: t, Angle: a.Angle})
		}
	}
	return keys
}

func (c *Config) orb(deg int) float64 {
	for _, a := range c.Aspects {
		if a.Angle == deg {
			return a.Orb
		}
	}
	return 0
}

// shiftHouse applies the configured per-aspect house correction.
func (c *Config) shiftHouse(house, deg int) int {
	n, ok := c.HouseShift[deg]
	if !ok || n == 0 {
		return house
	}
	return ((house-1+n)%12+12)%12 + 1
}
