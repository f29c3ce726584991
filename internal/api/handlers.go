package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/creator4ever-bot/geodac/internal/body"
	"github.com/creator4ever-bot/geodac/internal/config"
	"github.com/creator4ever-bot/geodac/internal/natal"
	"github.com/creator4ever-bot/geodac/internal/transit"
)

// maxSampleBudget caps grid points per request across all moving bodies.
const maxSampleBudget = 200_000

// maxFrameBody bounds PUT /api/v1/frame.
const maxFrameBody = 1 << 20

type transitsResponse struct {
	Style       string               `json:"style"`
	From        time.Time            `json:"from"`
	To          time.Time            `json:"to"`
	Samples     int                  `json:"samples"`
	Records     []transit.Record     `json:"records"`
	Diagnostics []transit.Diagnostic `json:"diagnostics"`
}

type coverageResponse struct {
	Style   string                `json:"style"`
	Rows    []transit.CoverageRow `json:"rows"`
	Missing int                   `json:"missing"`
}

type frameResponse struct {
	Name       string                `json:"name"`
	Birth      time.Time             `json:"birth"`
	Lat        float64               `json:"lat"`
	Lon        float64               `json:"lon"`
	Timezone   string                `json:"timezone"`
	Cusps      [12]float64           `json:"cusps"`
	Positions  map[body.Body]float64 `json:"positions"`
	Source     string                `json:"source"`
	LoadedAt   time.Time             `json:"loaded_at"`
	AgeSeconds float64               `json:"age_seconds"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// scanRequest resolves query overrides on top of the server defaults.
func scanRequest(q url.Values, defaults config.Config, frame *natal.Frame, maxSpan time.Duration) (transit.Config, *time.Location, error) {
	c := defaults
	if v := q.Get("preset"); v != "" {
		c.Preset = v
		c.Style = ""
		c.Bodies = nil
	}
	if v := q.Get("bodies"); v != "" {
		c.Bodies = strings.Split(v, ",")
	}
	if v := q.Get("targets"); v != "" {
		c.Targets = strings.Split(v, ",")
	}
	c.From = q.Get("from")
	c.To = q.Get("to")
	if v := q.Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return transit.Config{}, nil, fmt.Errorf("days must be a positive integer")
		}
		c.Days = n
	}
	if v := q.Get("step"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return transit.Config{}, nil, fmt.Errorf("step: %v", err)
		}
		c.Step = d
	}
	for name, dst := range map[string]*bool{
		"refine":    &c.Refine,
		"exact":     &c.Exact,
		"ingresses": &c.Ingresses,
	} {
		if v := q.Get(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return transit.Config{}, nil, fmt.Errorf("%s must be a boolean", name)
			}
			*dst = b
		}
	}
	if v := q.Get("merge"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return transit.Config{}, nil, fmt.Errorf("merge must be a boolean")
		}
		c.MergeAxes = &b
	}
	if c.Days <= 0 {
		c.Days = 7
	}

	zone := c.Zone(frame.Zone())
	sc, err := c.ScanConfig(zone, time.Now())
	if err != nil {
		return sc, zone, err
	}
	if maxSpan > 0 && sc.To.Sub(sc.From) > maxSpan {
		return sc, zone, fmt.Errorf("range %s exceeds maximum %s", sc.To.Sub(sc.From), maxSpan)
	}
	if n := sc.PlannedSamples() * len(sc.Bodies); n > maxSampleBudget {
		return sc, zone, fmt.Errorf("%d samples exceeds budget of %d; widen step or narrow range", n, maxSampleBudget)
	}
	return sc, zone, nil
}

// scanStatus maps scan errors to HTTP statuses.
func scanStatus(err error) int {
	switch {
	case errors.Is(err, transit.ErrOracleUnreliable):
		return http.StatusBadGateway
	case errors.Is(err, transit.ErrNoTargets):
		return http.StatusUnprocessableEntity
	case errors.Is(err, transit.ErrInvalidConfig):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func transitsHandler(logger *slog.Logger, deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		frame := deps.Frames.Get()
		if frame == nil {
			writeError(w, http.StatusServiceUnavailable, "no natal frame loaded")
			return
		}
		sc, zone, err := scanRequest(r.URL.Query(), deps.Defaults, frame, deps.Defaults.Server.MaxSpan)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		res, err := deps.Scanner.Scan(r.Context(), frame, sc)
		if err != nil {
			logger.Warn("scan failed", "component", "api", "style", sc.Style, "error", err)
			writeError(w, scanStatus(err), err.Error())
			return
		}

		records := transit.ToRecords(res, zone)
		if records == nil {
			records = []transit.Record{}
		}
		diags := res.Diagnostics
		if diags == nil {
			diags = []transit.Diagnostic{}
		}
		writeJSON(w, http.StatusOK, transitsResponse{
			Style:       res.Style,
			From:        res.From,
			To:          res.To,
			Samples:     res.Samples,
			Records:     records,
			Diagnostics: diags,
		})
	}
}

func coverageHandler(logger *slog.Logger, deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		frame := deps.Frames.Get()
		if frame == nil {
			writeError(w, http.StatusServiceUnavailable, "no natal frame loaded")
			return
		}
		sc, _, err := scanRequest(r.URL.Query(), deps.Defaults, frame, deps.Defaults.Server.MaxSpan)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		res, err := deps.Scanner.Scan(r.Context(), frame, sc)
		if err != nil {
			writeError(w, scanStatus(err), err.Error())
			return
		}
		rows, err := deps.Scanner.Coverage(r.Context(), frame, sc, res.Events)
		if err != nil {
			logger.Warn("coverage failed", "component", "api", "error", err)
			writeError(w, scanStatus(err), err.Error())
			return
		}

		resp := coverageResponse{Style: res.Style, Rows: rows}
		if resp.Rows == nil {
			resp.Rows = []transit.CoverageRow{}
		}
		for _, row := range rows {
			if row.Missing() {
				resp.Missing++
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func frameHandler(store *natal.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := store.Get()
		if f == nil {
			writeError(w, http.StatusServiceUnavailable, "no natal frame loaded")
			return
		}
		writeJSON(w, http.StatusOK, frameResponse{
			Name:       f.Name,
			Birth:      f.Birth,
			Lat:        f.Location.Lat,
			Lon:        f.Location.Lon,
			Timezone:   f.Zone().String(),
			Cusps:      f.Cusps,
			Positions:  f.Positions,
			Source:     f.Source,
			LoadedAt:   f.LoadedAt,
			AgeSeconds: store.AgeSeconds(),
		})
	}
}

// replaceFrameHandler swaps the active frame for a JSON or YAML document.
func replaceFrameHandler(logger *slog.Logger, store *natal.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFrameBody))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "frame document too large")
			return
		}
		format := "json"
		if ct := r.Header.Get("Content-Type"); strings.Contains(ct, "yaml") {
			format = "yaml"
		}
		f, err := natal.Parse(data, format)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		f.Source = "api"
		store.Set(f)
		logger.Info("natal frame replaced", "component", "api", "name", f.Name)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "name": f.Name})
	}
}
