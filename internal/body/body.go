// Package body enumerates the moving bodies and natal points a scan works with.
package body

import (
	"fmt"
	"strings"
)

// Body identifies a planet, a lunar node or an angular point.
type Body int

const (
	None Body = iota
	Sun
	Moon
	Mercury
	Venus
	Mars
	Jupiter
	Saturn
	Uranus
	Neptune
	Pluto
	NNode
	ASC
	MC
	DSC
	IC
)

var names = [...]string{
	None:    "",
	Sun:     "Sun",
	Moon:    "Moon",
	Mercury: "Mercury",
	Venus:   "Venus",
	Mars:    "Mars",
	Jupiter: "Jupiter",
	Saturn:  "Saturn",
	Uranus:  "Uranus",
	Neptune: "Neptune",
	Pluto:   "Pluto",
	NNode:   "NNode",
	ASC:     "ASC",
	MC:      "MC",
	DSC:     "DSC",
	IC:      "IC",
}

var aliases = map[string]Body{
	"node":      NNode,
	"northnode": NNode,
	"truenode":  NNode,
	"meannode":  NNode,
	"asc":       ASC,
	"mc":        MC,
	"dsc":       DSC,
	"desc":      DSC,
	"ic":        IC,
}

// Planets lists the bodies with a natal house, Sun through Pluto.
var Planets = []Body{Sun, Moon, Mercury, Venus, Mars, Jupiter, Saturn, Uranus, Neptune, Pluto}

// Targets lists the default natal targets of a scan.
var Targets = []Body{Sun, Moon, Mercury, Venus, Mars, Jupiter, Saturn, Uranus, Neptune, Pluto, NNode, ASC, MC, DSC, IC}

func (b Body) String() string {
	if b < 0 || int(b) >= len(names) {
		return fmt.Sprintf("Body(%d)", int(b))
	}
	return names[b]
}

// Valid reports whether b is a known, non-empty identifier.
func (b Body) Valid() bool {
	return b > None && int(b) < len(names)
}

// IsPlanet reports whether b is the Sun, the Moon or a planet.
func (b Body) IsPlanet() bool {
	return b >= Sun && b <= Pluto
}

// IsAngle reports whether b is one of the four chart angles.
func (b Body) IsAngle() bool {
	return b >= ASC && b <= IC
}

// IsSlow reports whether b is an outer body scanned with a coarse step.
func (b Body) IsSlow() bool {
	return b >= Jupiter && b <= Pluto
}

// Axis is the category of a pair of opposite angles.
type Axis int

const (
	NoAxis Axis = iota
	Horizontal
	Vertical
)

func (a Axis) String() string {
	switch a {
	case Horizontal:
		return "HOR"
	case Vertical:
		return "VERT"
	default:
		return ""
	}
}

// Axis returns the axis an angle belongs to, or NoAxis for other bodies.
func (b Body) Axis() Axis {
	switch b {
	case ASC, DSC:
		return Horizontal
	case MC, IC:
		return Vertical
	default:
		return NoAxis
	}
}

// Opposite returns the other half of an axis, or None.
func (b Body) Opposite() Body {
	switch b {
	case ASC:
		return DSC
	case DSC:
		return ASC
	case MC:
		return IC
	case IC:
		return MC
	default:
		return None
	}
}

// Halves returns the two angles forming the axis.
func (a Axis) Halves() (Body, Body) {
	switch a {
	case Horizontal:
		return ASC, DSC
	case Vertical:
		return MC, IC
	default:
		return None, None
	}
}

// Parse resolves a body name case-insensitively.
func Parse(s string) (Body, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if b, ok := aliases[key]; ok {
		return b, nil
	}
	for i := Sun; int(i) < len(names); i++ {
		if strings.ToLower(names[i]) == key {
			return i, nil
		}
	}
	return None, fmt.Errorf("unknown body %q", s)
}

// ParseList resolves a list of names, failing on the first unknown one.
func ParseList(ss []string) ([]Body, error) {
	out := make([]Body, 0, len(ss))
	for _, s := range ss {
		if strings.TrimSpace(s) == "" {
			continue
		}
		b, err := Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// MarshalText encodes the canonical name; None encodes as empty.
func (b Body) MarshalText() ([]byte, error) {
	if b != None && !b.Valid() {
		return nil, fmt.Errorf("invalid body %d", int(b))
	}
	return []byte(b.String()), nil
}

// UnmarshalText decodes a body name; empty text decodes to None.
func (b *Body) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*b = None
		return nil
	}
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}
