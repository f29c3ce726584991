package transit

import (
	"math"
	"sort"
	"time"

	"github.com/creator4ever-bot/geodac/internal/aspect"
	"github.com/creator4ever-bot/geodac/internal/body"
)

type axisGroup struct {
	axis    body.Axis
	transit body.Body
}

// MergeAxes folds aspect events to both halves of an axis (ASC/DSC or
// MC/IC) by the same moving body into one axis event when their windows
// overlap within pad. Clusters holding only one half, and all other
// events, pass through unchanged. The merged peak is the midpoint of the
// union window.
func MergeAxes(events []Event, pad time.Duration) []Event {
	out := make([]Event, 0, len(events))
	groups := make(map[axisGroup][]Event)
	var order []axisGroup

	for _, e := range events {
		ax := e.Target.Axis()
		if e.Kind != KindAspect || ax == body.NoAxis {
			out = append(out, e)
			continue
		}
		g := axisGroup{axis: ax, transit: e.Transit}
		if _, ok := groups[g]; !ok {
			order = append(order, g)
		}
		groups[g] = append(groups[g], e)
	}

	for _, g := range order {
		members := groups[g]
		sort.SliceStable(members, func(i, j int) bool {
			if !members[i].Start.Equal(members[j].Start) {
				return members[i].Start.Before(members[j].Start)
			}
			return members[i].Target < members[j].Target
		})

		for _, cl := range clusterByOverlap(members, pad) {
			if merged, ok := mergeCluster(g.axis, cl); ok {
				out = append(out, merged)
			} else {
				out = append(out, cl...)
			}
		}
	}

	sortEvents(out)
	return out
}

// clusterByOverlap greedily groups start-sorted events whose span meets the
// running cluster envelope, allowing a gap of at most pad.
func clusterByOverlap(sorted []Event, pad time.Duration) [][]Event {
	var (
		clusters [][]Event
		cur      []Event
		envEnd   time.Time
	)
	for _, e := range sorted {
		if len(cur) == 0 {
			cur = []Event{e}
			envEnd = e.End
			continue
		}
		limit := envEnd
		if e.End.Before(limit) {
			limit = e.End
		}
		if !e.Start.After(limit.Add(pad)) {
			cur = append(cur, e)
			if e.End.After(envEnd) {
				envEnd = e.End
			}
			continue
		}
		clusters = append(clusters, cur)
		cur = []Event{e}
		envEnd = e.End
	}
	if len(cur) > 0 {
		clusters = append(clusters, cur)
	}
	return clusters
}

// mergeCluster builds the axis event for a cluster containing both halves.
func mergeCluster(axis body.Axis, cl []Event) (Event, bool) {
	first, second := axis.Halves()
	var haveFirst, haveSecond bool
	for _, e := range cl {
		haveFirst = haveFirst || e.Target == first
		haveSecond = haveSecond || e.Target == second
	}
	if !haveFirst || !haveSecond {
		return Event{}, false
	}

	start, end := cl[0].Start, cl[0].End
	best := cl[0]
	angles := make([]int, 0, len(cl))
	truncated := false
	for _, e := range cl {
		if e.Start.Before(start) {
			start = e.Start
		}
		if e.End.After(end) {
			end = e.End
		}
		if e.OrbAtPeak < best.OrbAtPeak {
			best = e
		}
		angles = append(angles, e.Angle)
		truncated = truncated || e.Truncated
	}
	aspect.SortByPriority(angles)

	natalLon := math.NaN()
	for _, e := range cl {
		if e.Target == first {
			natalLon = e.NatalLon
			break
		}
	}

	return Event{
		Kind:       KindAxis,
		Transit:    cl[0].Transit,
		Targets:    []body.Body{first, second},
		Angle:      angles[0],
		Label:      aspect.Label(angles),
		Start:      start,
		Peak:       start.Add(end.Sub(start) / 2),
		End:        end,
		OrbAtPeak:  best.OrbAtPeak,
		TransitLon: best.TransitLon,
		NatalLon:   natalLon,
		Truncated:  truncated,
	}, true
}
