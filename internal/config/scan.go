package config

import (
	"fmt"
	"time"

	"github.com/creator4ever-bot/geodac/internal/aspect"
	"github.com/creator4ever-bot/geodac/internal/body"
	"github.com/creator4ever-bot/geodac/internal/transit"
)

// Accepted layouts for from/to. Values without an offset are read in the
// display zone.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime reads an instant in one of the accepted layouts.
func ParseTime(s string, zone *time.Location) (time.Time, error) {
	if zone == nil {
		zone = time.UTC
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, zone); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse time %q", ErrInvalid, s)
}

// Zone returns the configured display zone, or fallback when unset.
func (c *Config) Zone(fallback *time.Location) *time.Location {
	if c.Timezone != "" {
		if loc, err := time.LoadLocation(c.Timezone); err == nil {
			return loc
		}
	}
	if fallback == nil {
		return time.UTC
	}
	return fallback
}

// ScanConfig resolves the preset and overrides into a transit scan
// config. An unset range starts at midnight of now's day in zone and runs
// for Days days.
func (c *Config) ScanConfig(zone *time.Location, now time.Time) (transit.Config, error) {
	var sc transit.Config
	orbConj, orbOther := 1.0, 1.0
	if c.Preset != "" {
		p, ok := transit.LookupPreset(c.Preset)
		if !ok {
			return sc, fmt.Errorf("%w: unknown preset %q", ErrInvalid, c.Preset)
		}
		sc = p.Config(time.Time{}, time.Time{})
		orbConj, orbOther = p.OrbConj, p.OrbOther
	}
	if c.Style != "" {
		sc.Style = c.Style
	}

	if len(c.Bodies) > 0 {
		bodies, err := body.ParseList(c.Bodies)
		if err != nil {
			return sc, fmt.Errorf("%w: bodies: %v", ErrInvalid, err)
		}
		sc.Bodies = bodies
	}
	if len(c.Targets) > 0 {
		targets, err := body.ParseList(c.Targets)
		if err != nil {
			return sc, fmt.Errorf("%w: targets: %v", ErrInvalid, err)
		}
		sc.Targets = targets
	}

	if c.OrbConj > 0 {
		orbConj = c.OrbConj
	}
	if c.OrbOther > 0 {
		orbOther = c.OrbOther
	}
	if len(c.Aspects) > 0 || c.OrbConj > 0 || c.OrbOther > 0 || len(sc.Aspects) == 0 {
		sc.Aspects = aspectDefinitions(c.Aspects, orbConj, orbOther)
	}

	if zone == nil {
		zone = time.UTC
	}
	from := now.In(zone)
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, zone)
	if c.From != "" {
		t, err := ParseTime(c.From, zone)
		if err != nil {
			return sc, err
		}
		from = t
	}
	to := from.AddDate(0, 0, c.Days)
	if c.To != "" {
		t, err := ParseTime(c.To, zone)
		if err != nil {
			return sc, err
		}
		to = t
	}
	sc.From, sc.To = from.UTC(), to.UTC()

	if c.Step > 0 {
		sc.Step = c.Step
	}
	if sc.Step == 0 {
		sc.Step = 10 * time.Minute
	}

	sc.BothSides = c.BothSides
	sc.Refine = c.Refine
	sc.Exact = c.Exact
	sc.Ingresses = c.Ingresses
	sc.MergeAxes = c.MergeAxes == nil || *c.MergeAxes
	sc.AxisPadding = c.AxisPadding
	sc.HouseShift = c.HouseShift
	sc.MaxFailureRatio = c.MaxFailureRatio
	sc.Workers = c.Workers

	sc.SetDefaults()
	if err := sc.Validate(); err != nil {
		return sc, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return sc, nil
}

func aspectDefinitions(degs []int, orbConj, orbOther float64) []aspect.Definition {
	if len(degs) == 0 {
		return aspect.Set(orbConj, orbOther)
	}
	defs := make([]aspect.Definition, 0, len(degs))
	for _, deg := range degs {
		orb := orbOther
		if deg == aspect.Conjunction {
			orb = orbConj
		}
		defs = append(defs, aspect.Definition{Angle: deg, Orb: orb})
	}
	return defs
}
