// Package aspect defines the angular relationships a scan looks for.
package aspect

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/creator4ever-bot/geodac/internal/angle"
)

// Standard aspect angles in degrees.
const (
	Conjunction = 0
	Sextile     = 60
	Square      = 90
	Trine       = 120
	Opposition  = 180
)

// IngressSymbol labels house ingress events, which carry no aspect angle.
const IngressSymbol = "∠"

var symbols = map[int]string{
	Conjunction: "☌",
	Sextile:     "✶",
	Square:      "□",
	Trine:       "△",
	Opposition:  "☍",
}

// priority orders symbols in composite labels, most interesting first.
var priority = map[int]int{
	Square:      0,
	Opposition:  1,
	Trine:       2,
	Sextile:     3,
	Conjunction: 4,
}

// Definition is an aspect angle with its orb.
type Definition struct {
	Angle int     `yaml:"angle" json:"angle"`
	Orb   float64 `yaml:"orb" json:"orb"`
}

// Symbol returns the glyph for the definition's angle.
func (d Definition) Symbol() string { return Symbol(d.Angle) }

// Validate checks the angle is a supported aspect and the orb is usable.
func (d Definition) Validate() error {
	if _, ok := symbols[d.Angle]; !ok {
		return fmt.Errorf("unsupported aspect angle %d", d.Angle)
	}
	if d.Orb <= 0 || d.Orb >= 30 || math.IsNaN(d.Orb) {
		return fmt.Errorf("aspect %d: orb %v outside (0, 30)", d.Angle, d.Orb)
	}
	return nil
}

// Set builds the five standard aspects with a wider orb for the conjunction.
func Set(orbConj, orbOther float64) []Definition {
	return []Definition{
		{Angle: Conjunction, Orb: orbConj},
		{Angle: Sextile, Orb: orbOther},
		{Angle: Square, Orb: orbOther},
		{Angle: Trine, Orb: orbOther},
		{Angle: Opposition, Orb: orbOther},
	}
}

// Symbol returns the glyph for an aspect angle, or "?" if unknown.
func Symbol(deg int) string {
	if s, ok := symbols[deg]; ok {
		return s
	}
	return "?"
}

// Angle returns the aspect angle for a glyph.
func Angle(symbol string) (int, bool) {
	for deg, s := range symbols {
		if s == symbol {
			return deg, true
		}
	}
	return 0, false
}

// Separation returns how far the moving longitude is from forming the
// aspect to the target, |normalize180((moving - target) - angle)|.
func Separation(moving, target float64, deg int) float64 {
	return math.Abs(angle.Normalize180(moving - target - float64(deg)))
}

// SeparationBothSides also matches the waning side, where the moving body
// trails the target by the aspect angle.
func SeparationBothSides(moving, target float64, deg int) float64 {
	lead := Separation(moving, target, deg)
	trail := math.Abs(angle.Normalize180(moving - target + float64(deg)))
	return math.Min(lead, trail)
}

// SortByPriority orders aspect angles by display priority.
func SortByPriority(degs []int) {
	sort.SliceStable(degs, func(i, j int) bool {
		return rank(degs[i]) < rank(degs[j])
	})
}

func rank(deg int) int {
	if p, ok := priority[deg]; ok {
		return p
	}
	return len(priority)
}

// Label returns the symbol of a single angle, or a composite label of the
// distinct angles ordered by priority and joined with "/".
func Label(degs []int) string {
	seen := make(map[int]bool, len(degs))
	uniq := make([]int, 0, len(degs))
	for _, d := range degs {
		if !seen[d] {
			seen[d] = true
			uniq = append(uniq, d)
		}
	}
	SortByPriority(uniq)
	parts := make([]string, len(uniq))
	for i, d := range uniq {
		parts[i] = Symbol(d)
	}
	return strings.Join(parts, "/")
}
