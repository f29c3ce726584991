package transit

import (
	"sort"
	"time"

	"github.com/creator4ever-bot/geodac/internal/body"
)

// Kind distinguishes the events a scan produces.
type Kind string

const (
	KindAspect  Kind = "aspect"
	KindAxis    Kind = "axis"
	KindIngress Kind = "ingress"
	KindExact   Kind = "exact"
)

// Event is one detected transit. Events are values and are not modified
// after a scan returns them.
type Event struct {
	Kind    Kind
	Transit body.Body
	Target  body.Body   // None for axis and ingress events
	Targets []body.Body // both halves of a merged axis
	House   int         // house entered, ingress events only
	Angle   int         // aspect angle; -1 for ingress
	Label   string

	Start time.Time
	Peak  time.Time
	End   time.Time

	OrbAtPeak    float64
	TransitLon   float64 // moving body at peak
	NatalLon     float64
	TransitHouse int
	NatalHouse   int // 0 when the target has no natal house

	Truncated bool // still open at the end of the scan
	Refined   bool // peak solved by bisection
}

// Reason explains why a (target, aspect) pair could not be resolved.
type Reason string

const (
	ReasonBracketRejected Reason = "bracket_rejected"
	ReasonNoRoot          Reason = "no_root"
	ReasonOracleFailure   Reason = "oracle_failure"
	ReasonConfig          Reason = "config_error"
)

// Diagnostic records a pair the scan could not resolve, so that "no aspect
// occurred" can be told apart from "computation failed".
type Diagnostic struct {
	Transit body.Body `json:"transit"`
	Target  body.Body `json:"target,omitempty"`
	Angle   int       `json:"aspect_deg"`
	Reason  Reason    `json:"reason"`
	Detail  string    `json:"detail"`
	Time    time.Time `json:"time,omitempty"`
}

// sortEvents orders events by peak, then by identity, so scan output is
// reproducible regardless of worker scheduling.
func sortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Peak.Equal(b.Peak) {
			return a.Peak.Before(b.Peak)
		}
		if a.Transit != b.Transit {
			return a.Transit < b.Transit
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		if a.Angle != b.Angle {
			return a.Angle < b.Angle
		}
		return a.House < b.House
	})
}

func sortDiagnostics(diags []Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i], diags[j]
		if a.Transit != b.Transit {
			return a.Transit < b.Transit
		}
		if a.Target != b.Target {
			return a.Target < b.Target
		}
		if a.Angle != b.Angle {
			return a.Angle < b.Angle
		}
		return a.Time.Before(b.Time)
	})
}
