package transit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/creator4ever-bot/geodac/internal/angle"
	"github.com/creator4ever-bot/geodac/internal/aspect"
	"github.com/creator4ever-bot/geodac/internal/body"
	"github.com/creator4ever-bot/geodac/internal/ephemeris"
	"github.com/creator4ever-bot/geodac/internal/metrics"
	"github.com/creator4ever-bot/geodac/internal/natal"
)

var (
	// ErrOracleUnreliable aborts a scan whose ephemeris failed on too many samples.
	ErrOracleUnreliable = errors.New("ephemeris failures exceed tolerance")
	// ErrNoTargets means no natal target longitude could be established.
	ErrNoTargets = errors.New("no natal targets available")
)

var tracer = otel.Tracer("github.com/creator4ever-bot/geodac/internal/transit")

// Result is the outcome of one scan.
type Result struct {
	Style       string
	From        time.Time
	To          time.Time
	Events      []Event
	Diagnostics []Diagnostic
	Natal       map[body.Body]float64
	Samples     int
	Failures    int
}

// Scanner runs the aspect window engine against an ephemeris.
type Scanner struct {
	oracle ephemeris.Oracle
	logger *slog.Logger
}

// NewScanner creates a Scanner.
func NewScanner(oracle ephemeris.Oracle, logger *slog.Logger) *Scanner {
	return &Scanner{oracle: oracle, logger: logger}
}

// bodyResult is the output of scanning one moving body.
type bodyResult struct {
	events      []Event
	diagnostics []Diagnostic
	samples     int
	failures    int
	err         error
}

// Scan detects every aspect window of cfg.Bodies to the frame's natal
// targets over [cfg.From, cfg.To]. Each moving body is scanned in its own
// goroutine, bounded by cfg.Workers.
func (s *Scanner) Scan(ctx context.Context, frame *natal.Frame, cfg Config) (*Result, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if frame == nil {
		return nil, fmt.Errorf("%w: no frame loaded", natal.ErrInvalidFrame)
	}
	if err := frame.Validate(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "transit.Scan")
	defer span.End()
	span.SetAttributes(
		attribute.String("style", cfg.Style),
		attribute.String("from", cfg.From.Format(time.RFC3339)),
		attribute.String("to", cfg.To.Format(time.RFC3339)),
		attribute.Int("bodies", len(cfg.Bodies)),
	)
	started := time.Now()

	loc := ephemeris.Location(frame.Location)
	table, diags := s.natalTable(ctx, frame, loc, cfg.Targets)
	if len(table) == 0 {
		span.SetStatus(codes.Error, ErrNoTargets.Error())
		return nil, ErrNoTargets
	}

	results := make([]bodyResult, len(cfg.Bodies))
	sem := make(chan struct{}, cfg.Workers)
	var wg sync.WaitGroup

	for i, b := range cfg.Bodies {
		wg.Add(1)
		go func(idx int, b body.Body) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = bodyResult{err: ctx.Err()}
				return
			}

			results[idx] = s.scanBody(ctx, frame, loc, table, &cfg, b)
		}(i, b)
	}
	wg.Wait()

	res := &Result{
		Style: cfg.Style,
		From:  cfg.From,
		To:    cfg.To,
		Natal: table,
	}
	res.Diagnostics = append(res.Diagnostics, diags...)
	for i, br := range results {
		if br.err != nil {
			span.RecordError(br.err)
			span.SetStatus(codes.Error, br.err.Error())
			return nil, fmt.Errorf("scanning %s: %w", cfg.Bodies[i], br.err)
		}
		res.Events = append(res.Events, br.events...)
		res.Diagnostics = append(res.Diagnostics, br.diagnostics...)
		res.Samples += br.samples
		res.Failures += br.failures
	}

	if cfg.MergeAxes {
		res.Events = MergeAxes(res.Events, cfg.AxisPadding)
	}
	sortEvents(res.Events)
	sortDiagnostics(res.Diagnostics)

	for _, e := range res.Events {
		metrics.IncEvent(string(e.Kind))
	}
	for _, d := range res.Diagnostics {
		metrics.IncDiagnostic(string(d.Reason))
	}
	metrics.ObserveScan(cfg.Style, time.Since(started))
	span.SetAttributes(
		attribute.Int("events", len(res.Events)),
		attribute.Int("diagnostics", len(res.Diagnostics)),
		attribute.Int("oracle_failures", res.Failures),
	)

	s.logger.Info("scan complete",
		"style", cfg.Style,
		"from", cfg.From,
		"to", cfg.To,
		"bodies", len(cfg.Bodies),
		"targets", len(table),
		"events", len(res.Events),
		"diagnostics", len(res.Diagnostics),
		"samples", res.Samples,
		"oracle_failures", res.Failures,
		"duration", time.Since(started),
	)
	return res, nil
}

// natalTable resolves the target longitudes once, before any worker starts.
// Tabulated positions win; the rest are computed at the birth instant.
func (s *Scanner) natalTable(ctx context.Context, frame *natal.Frame, loc ephemeris.Location, targets []body.Body) (map[body.Body]float64, []Diagnostic) {
	table := make(map[body.Body]float64, len(targets))
	var diags []Diagnostic
	for _, t := range targets {
		if lon, ok := frame.Position(t); ok {
			table[t] = lon
			continue
		}
		lon, err := s.oracle.Longitude(ctx, t, frame.Birth, loc)
		if err != nil {
			s.logger.Warn("natal target unavailable", "target", t.String(), "error", err)
			diags = append(diags, Diagnostic{
				Target: t,
				Angle:  -1,
				Reason: ReasonConfig,
				Detail: fmt.Sprintf("natal longitude unavailable: %v", err),
				Time:   frame.Birth,
			})
			continue
		}
		table[t] = lon
	}
	return table, diags
}

// scanBody runs every window state machine for one moving body.
func (s *Scanner) scanBody(ctx context.Context, frame *natal.Frame, loc ephemeris.Location, table map[body.Body]float64, cfg *Config, b body.Body) bodyResult {
	keys := cfg.keys(table)
	windows := make(map[Key]*Window, len(keys))
	for _, k := range keys {
		windows[k] = NewWindow(cfg.orb(k.Angle))
	}
	separation := aspect.Separation
	if cfg.BothSides {
		separation = aspect.SeparationBothSides
	}

	var (
		out         bodyResult
		refiner     = NewRefiner(s.oracle, loc)
		planned     = cfg.PlannedSamples()
		maxFailures = int(math.Floor(float64(planned) * cfg.MaxFailureRatio))
		prevHouse   int
		lastErr     error
		firstFail   time.Time
	)

	closeSpan := func(k Key, span Span) {
		ev := s.newEvent(frame, table, cfg, b, k, span)
		if cfg.Refine && s.refinePeak(ctx, refiner, &ev, cfg, &out) {
			ev.TransitHouse = cfg.shiftHouse(frame.House(ev.TransitLon), k.Angle)
		}
		out.events = append(out.events, ev)
	}

	for t := cfg.From; !t.After(cfg.To); t = t.Add(cfg.Step) {
		if err := ctx.Err(); err != nil {
			out.err = err
			return out
		}

		lon, err := s.oracle.Longitude(ctx, b, t, loc)
		if err != nil {
			out.failures++
			metrics.IncOracleFailure(b.String())
			if firstFail.IsZero() {
				firstFail = t
			}
			lastErr = err
			if out.failures > maxFailures {
				out.err = fmt.Errorf("%w: %d of %d samples failed for %s, last error: %v",
					ErrOracleUnreliable, out.failures, planned, b, err)
				return out
			}
			continue
		}
		out.samples++

		for _, k := range keys {
			sep := separation(lon, table[k.Target], k.Angle)
			if span, ok := windows[k].Update(t, sep, lon); ok {
				closeSpan(k, span)
			}
		}

		if cfg.Ingresses {
			h := frame.House(lon)
			if prevHouse != 0 && h != prevHouse {
				out.events = append(out.events, ingressEvent(b, t, lon, h, prevHouse))
			}
			prevHouse = h
		}
	}

	for _, k := range keys {
		if span, ok := windows[k].Finalize(cfg.To); ok {
			closeSpan(k, span)
		}
	}

	if cfg.Exact {
		s.exactHits(ctx, refiner, frame, table, cfg, b, keys, &out)
	}

	if out.failures > 0 {
		out.diagnostics = append(out.diagnostics, Diagnostic{
			Transit: b,
			Angle:   -1,
			Reason:  ReasonOracleFailure,
			Detail:  fmt.Sprintf("%d of %d samples skipped, last error: %v", out.failures, planned, lastErr),
			Time:    firstFail,
		})
	}
	metrics.AddSamples(b.String(), out.samples)
	return out
}

// newEvent annotates a closed span with houses and longitudes.
func (s *Scanner) newEvent(frame *natal.Frame, table map[body.Body]float64, cfg *Config, b body.Body, k Key, span Span) Event {
	natalLon := table[k.Target]
	ev := Event{
		Kind:         KindAspect,
		Transit:      b,
		Target:       k.Target,
		Angle:        k.Angle,
		Label:        aspect.Symbol(k.Angle),
		Start:        span.Start,
		Peak:         span.Peak,
		End:          span.End,
		OrbAtPeak:    span.OrbAtPeak,
		TransitLon:   span.PeakLon,
		NatalLon:     natalLon,
		TransitHouse: cfg.shiftHouse(frame.House(span.PeakLon), k.Angle),
		Truncated:    span.Truncated,
	}
	if k.Target.IsPlanet() {
		ev.NatalHouse = frame.House(natalLon)
	}
	return ev
}

// refinePeak replaces the sampled peak with the bisected exact instant.
// A failed refinement keeps the sampled peak and leaves a diagnostic.
func (s *Scanner) refinePeak(ctx context.Context, r *Refiner, ev *Event, cfg *Config, out *bodyResult) bool {
	target := aspectTarget(ev.TransitLon, ev.NatalLon, ev.Angle, cfg.BothSides)
	from, to := ev.Peak.Add(-cfg.Step), ev.Peak.Add(cfg.Step)

	root, residual, err := r.Root(ctx, ev.Transit, target, from, to)
	if err == nil && (root.Before(ev.Start) || root.After(ev.End)) {
		err = fmt.Errorf("%w: root %s outside window", ErrNoRoot, root.Format(time.RFC3339))
	}
	if err != nil {
		reason := ReasonNoRoot
		switch {
		case errors.Is(err, ErrBracketRejected):
			reason = ReasonBracketRejected
		case !errors.Is(err, ErrNoRoot):
			reason = ReasonOracleFailure
		}
		out.diagnostics = append(out.diagnostics, Diagnostic{
			Transit: ev.Transit,
			Target:  ev.Target,
			Angle:   ev.Angle,
			Reason:  reason,
			Detail:  err.Error(),
			Time:    ev.Peak,
		})
		return false
	}

	ev.Peak = root
	ev.OrbAtPeak = residual
	ev.Refined = true
	if lon, err := r.Oracle.Longitude(ctx, ev.Transit, root, r.Location); err == nil {
		ev.TransitLon = lon
	}
	return true
}

// aspectTarget returns the longitude the moving body must reach to perfect
// the aspect, picking the nearer side when both sides are scanned.
func aspectTarget(movingLon, natalLon float64, deg int, bothSides bool) float64 {
	lead := angle.Normalize360(natalLon + float64(deg))
	if !bothSides {
		return lead
	}
	trail := angle.Normalize360(natalLon - float64(deg))
	if math.Abs(angle.Diff(movingLon, trail)) < math.Abs(angle.Diff(movingLon, lead)) {
		return trail
	}
	return lead
}

func ingressEvent(b body.Body, t time.Time, lon float64, house, prev int) Event {
	return Event{
		Kind:         KindIngress,
		Transit:      b,
		House:        house,
		Angle:        -1,
		Label:        aspect.IngressSymbol,
		Start:        t,
		Peak:         t,
		End:          t.Add(time.Minute),
		TransitLon:   lon,
		TransitHouse: house,
		NatalHouse:   prev,
	}
}
