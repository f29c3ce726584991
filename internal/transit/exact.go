package transit

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/creator4ever-bot/geodac/internal/angle"
	"github.com/creator4ever-bot/geodac/internal/aspect"
	"github.com/creator4ever-bot/geodac/internal/body"
	"github.com/creator4ever-bot/geodac/internal/natal"
)

// exactTarget is one longitude the sweep looks for, natal + side*angle.
type exactTarget struct {
	key Key
	deg float64
}

// Bounds on the width of an exact event window.
const (
	minExactWindow = 45 * time.Minute
	maxExactWindow = 150 * time.Minute
)

// exactWindow is the time the body needs to cross the full orb at the speed
// it had over the bracket, clamped to [minExactWindow, maxExactWindow].
func exactWindow(orb, degPerBracket float64, bracket time.Duration) time.Duration {
	speed := math.Abs(degPerBracket)
	if speed == 0 {
		return maxExactWindow
	}
	w := time.Duration(2 * orb / speed * float64(bracket)).Round(time.Minute)
	return min(max(w, minExactWindow), maxExactWindow)
}

// exactHits walks consecutive brackets of cfg.ExactBracket and bisects
// every bracket whose wrapped difference changes sign. Confirmed roots not
// already covered by a window peak of the same pair become exact events
// centred on the root, sized by exactWindow. Brackets whose sign change comes from the ±180° wrap are
// skipped without a diagnostic.
func (s *Scanner) exactHits(ctx context.Context, r *Refiner, frame *natal.Frame, table map[body.Body]float64, cfg *Config, b body.Body, keys []Key, out *bodyResult) {
	var targets []exactTarget
	for _, k := range keys {
		natalLon := table[k.Target]
		targets = append(targets, exactTarget{key: k, deg: angle.Normalize360(natalLon + float64(k.Angle))})
		if cfg.BothSides && k.Angle != aspect.Conjunction && k.Angle != aspect.Opposition {
			targets = append(targets, exactTarget{key: k, deg: angle.Normalize360(natalLon - float64(k.Angle))})
		}
	}

	peaks := make(map[Key][]time.Time)
	for _, e := range out.events {
		if e.Kind == KindAspect {
			k := Key{Target: e.Target, Angle: e.Angle}
			peaks[k] = append(peaks[k], e.Peak)
		}
	}

	prevT := cfg.From
	prevLon, prevErr := r.Oracle.Longitude(ctx, b, prevT, r.Location)
	for t := cfg.From.Add(cfg.ExactBracket); ; t = t.Add(cfg.ExactBracket) {
		if t.After(cfg.To) {
			t = cfg.To
		}
		if ctx.Err() != nil {
			return
		}
		lon, err := r.Oracle.Longitude(ctx, b, t, r.Location)

		if err == nil && prevErr == nil {
			for _, et := range targets {
				fa := angle.Normalize180(prevLon - et.deg)
				fb := angle.Normalize180(lon - et.deg)
				if (fa < 0) == (fb < 0) && fa != 0 && fb != 0 {
					continue
				}
				if math.Min(math.Abs(fa), math.Abs(fb)) > r.Clamp {
					continue
				}
				root, residual, rerr := r.rootFrom(ctx, b, et.deg, prevT, t, fa, fb)
				if rerr != nil {
					reason := ReasonNoRoot
					if !errors.Is(rerr, ErrNoRoot) {
						reason = ReasonOracleFailure
					}
					out.diagnostics = append(out.diagnostics, Diagnostic{
						Transit: b,
						Target:  et.key.Target,
						Angle:   et.key.Angle,
						Reason:  reason,
						Detail:  rerr.Error(),
						Time:    prevT,
					})
					continue
				}
				if nearAny(peaks[et.key], root, cfg.ExactDedup) {
					continue
				}
				peaks[et.key] = append(peaks[et.key], root)
				half := exactWindow(cfg.orb(et.key.Angle), angle.Normalize180(lon-prevLon), t.Sub(prevT)) / 2
				ev := Event{
					Kind:         KindExact,
					Transit:      b,
					Target:       et.key.Target,
					Angle:        et.key.Angle,
					Label:        aspect.Symbol(et.key.Angle),
					Start:        root.Add(-half),
					Peak:         root,
					End:          root.Add(half),
					OrbAtPeak:    residual,
					TransitLon:   et.deg,
					NatalLon:     table[et.key.Target],
					TransitHouse: cfg.shiftHouse(frame.House(et.deg), et.key.Angle),
					Refined:      true,
				}
				if et.key.Target.IsPlanet() {
					ev.NatalHouse = frame.House(ev.NatalLon)
				}
				out.events = append(out.events, ev)
			}
		}

		prevT, prevLon, prevErr = t, lon, err
		if !t.Before(cfg.To) {
			return
		}
	}
}

func nearAny(times []time.Time, t time.Time, within time.Duration) bool {
	for _, p := range times {
		if d := p.Sub(t); d <= within && d >= -within {
			return true
		}
	}
	return false
}
