package transit

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/creator4ever-bot/geodac/internal/angle"
	"github.com/creator4ever-bot/geodac/internal/body"
)

// RecordTimeLayout is the local wall-clock format of record timestamps.
const RecordTimeLayout = "2006-01-02 15:04"

// recordNamespace seeds the deterministic record ids.
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/creator4ever-bot/geodac/records"))

// Houses holds the transit and natal house numbers of a record.
type Houses struct {
	Tr  *int `json:"tr"`
	Nat *int `json:"nat"`
}

// Signs holds the zodiac signs of the transit and natal longitudes.
type Signs struct {
	Tr  string `json:"tr,omitempty"`
	Nat string `json:"nat,omitempty"`
}

// Record is the stable field contract handed to formatting and storage.
type Record struct {
	ID         string   `json:"id"`
	Style      string   `json:"style"`
	Kind       Kind     `json:"kind"`
	Transit    string   `json:"transit"`
	Target     string   `json:"target"`
	Targets    []string `json:"targets,omitempty"`
	Aspect     string   `json:"aspect"`
	AspectDeg  int      `json:"aspect_deg"`
	Start      string   `json:"start"`
	Peak       string   `json:"peak"`
	End        string   `json:"end"`
	Houses     *Houses  `json:"houses,omitempty"`
	Signs      Signs    `json:"signs"`
	OrbPeakDeg float64  `json:"orb_peak_deg"`
	Truncated  bool     `json:"truncated,omitempty"`
	Refined    bool     `json:"refined,omitempty"`
}

// ToRecord renders an event in the given display zone.
func ToRecord(e Event, style string, zone *time.Location) Record {
	if zone == nil {
		zone = time.UTC
	}
	r := Record{
		Style:      style,
		Kind:       e.Kind,
		Transit:    e.Transit.String(),
		Target:     targetName(e),
		Aspect:     e.Label,
		AspectDeg:  e.Angle,
		Start:      formatLocal(e.Start, zone),
		Peak:       formatLocal(e.Peak, zone),
		End:        formatLocal(e.End, zone),
		OrbPeakDeg: roundOrb(e.OrbAtPeak),
		Truncated:  e.Truncated,
		Refined:    e.Refined,
	}
	for _, t := range e.Targets {
		r.Targets = append(r.Targets, t.String())
	}

	switch e.Kind {
	case KindAxis:
		r.Signs = Signs{Tr: angle.Sign(e.TransitLon)}
		if !math.IsNaN(e.NatalLon) {
			r.Signs.Nat = angle.Sign(e.NatalLon)
		}
	case KindIngress:
		r.Houses = &Houses{Tr: intPtr(e.TransitHouse), Nat: intPtr(e.NatalHouse)}
		r.Signs = Signs{Tr: angle.Sign(e.TransitLon)}
	default:
		r.Houses = &Houses{Tr: intPtr(e.TransitHouse)}
		if e.NatalHouse > 0 {
			r.Houses.Nat = intPtr(e.NatalHouse)
		}
		r.Signs = Signs{Tr: angle.Sign(e.TransitLon), Nat: angle.Sign(e.NatalLon)}
	}

	r.ID = RecordID(style, r.Transit, r.Target, r.Aspect, r.Start, r.End)
	return r
}

// ToRecords renders a scan result.
func ToRecords(res *Result, zone *time.Location) []Record {
	out := make([]Record, 0, len(res.Events))
	for _, e := range res.Events {
		out = append(out, ToRecord(e, res.Style, zone))
	}
	return out
}

// RecordID derives a stable id from the identifying fields, so re-running
// a scan yields the same ids.
func RecordID(style, transit, targets, aspect, start, end string) string {
	name := strings.Join([]string{style, transit, targets, aspect, start, end}, "|")
	return uuid.NewSHA1(recordNamespace, []byte(name)).String()
}

func targetName(e Event) string {
	switch e.Kind {
	case KindIngress:
		return fmt.Sprintf("H%d", e.House)
	case KindAxis:
		names := make([]string, len(e.Targets))
		for i, t := range e.Targets {
			names[i] = t.String()
		}
		return strings.Join(names, "/")
	}
	if e.Target == body.None {
		return ""
	}
	return e.Target.String()
}

// formatLocal renders t in zone truncated to the minute.
func formatLocal(t time.Time, zone *time.Location) string {
	return t.In(zone).Truncate(time.Minute).Format(RecordTimeLayout)
}

// roundOrb rounds half away from zero to three decimals.
func roundOrb(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(3).Float64()
	return f
}

func intPtr(v int) *int { return &v }
