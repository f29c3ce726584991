package transit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/creator4ever-bot/geodac/internal/aspect"
	"github.com/creator4ever-bot/geodac/internal/body"
	"github.com/creator4ever-bot/geodac/internal/ephemeris"
	"github.com/creator4ever-bot/geodac/internal/natal"
)

// CoverageRow reports the closest approach of one (transit, target, aspect)
// triple over a range and whether a produced event accounts for it.
type CoverageRow struct {
	Transit   body.Body `json:"transit"`
	Target    body.Body `json:"target"`
	Angle     int       `json:"aspect_deg"`
	Aspect    string    `json:"aspect"`
	Orb       float64   `json:"orb"`
	MinSep    float64   `json:"min_sep"`
	At        time.Time `json:"at"`
	WithinOrb bool      `json:"within_orb"`
	Covered   bool      `json:"covered"`
}

// Missing reports an approach inside the orb with no event around it.
func (r CoverageRow) Missing() bool {
	return r.WithinOrb && !r.Covered
}

// Coverage re-samples cfg's grid independently of the window state machine
// and checks every in-orb approach against events. It is the QA
// counterpart of Scan: a MISSING row means the scan lost a window.
func (s *Scanner) Coverage(ctx context.Context, frame *natal.Frame, cfg Config, events []Event) ([]CoverageRow, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := frame.Validate(); err != nil {
		return nil, err
	}

	loc := ephemeris.Location(frame.Location)
	table, _ := s.natalTable(ctx, frame, loc, cfg.Targets)
	keys := cfg.keys(table)
	separation := aspect.Separation
	if cfg.BothSides {
		separation = aspect.SeparationBothSides
	}

	pool := NewWorkerPool(s.oracle, cfg.Workers, s.logger)
	grid := Grid(cfg.From, cfg.To, cfg.Step)

	var rows []CoverageRow
	for _, b := range cfg.Bodies {
		samples, ok, failed := pool.SampleGrid(ctx, b, grid, loc)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ok == 0 {
			return nil, fmt.Errorf("%w: no samples for %s", ErrOracleUnreliable, b)
		}
		if float64(failed) > float64(len(grid))*cfg.MaxFailureRatio {
			return nil, fmt.Errorf("%w: %d of %d samples failed for %s", ErrOracleUnreliable, failed, len(grid), b)
		}

		for _, k := range keys {
			row := CoverageRow{
				Transit: b,
				Target:  k.Target,
				Angle:   k.Angle,
				Aspect:  aspect.Symbol(k.Angle),
				Orb:     cfg.orb(k.Angle),
				MinSep:  math.Inf(1),
			}
			for _, smp := range samples {
				if sep := separation(smp.Lon, table[k.Target], k.Angle); sep < row.MinSep {
					row.MinSep = sep
					row.At = smp.Time
				}
			}
			row.WithinOrb = row.MinSep <= row.Orb
			row.Covered = covered(events, b, k, row.At, cfg.Step)
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// covered reports whether an event for the triple spans t, allowing one
// sample step of slack for refined or exact instants.
func covered(events []Event, b body.Body, k Key, t time.Time, slack time.Duration) bool {
	for _, e := range events {
		if e.Transit != b || e.Kind == KindIngress {
			continue
		}
		if !eventHasTarget(e, k) {
			continue
		}
		if !t.Before(e.Start.Add(-slack)) && !t.After(e.End.Add(slack)) {
			return true
		}
	}
	return false
}

func eventHasTarget(e Event, k Key) bool {
	if e.Kind == KindAxis {
		for _, t := range e.Targets {
			if t == k.Target {
				return true
			}
		}
		return false
	}
	return e.Target == k.Target && e.Angle == k.Angle
}
