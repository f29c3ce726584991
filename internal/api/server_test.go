package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/creator4ever-bot/geodac/internal/auth"
	"github.com/creator4ever-bot/geodac/internal/body"
	"github.com/creator4ever-bot/geodac/internal/config"
	"github.com/creator4ever-bot/geodac/internal/ephemeris"
	"github.com/creator4ever-bot/geodac/internal/httputil"
	"github.com/creator4ever-bot/geodac/internal/natal"
	"github.com/creator4ever-bot/geodac/internal/transit"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// linearOracle moves every body at rate degrees per hour from lon0 at t0.
func linearOracle(lon0, rate float64) ephemeris.Oracle {
	return ephemeris.OracleFunc(func(_ context.Context, b body.Body, t time.Time, loc ephemeris.Location) (float64, error) {
		lon := lon0 + rate*t.Sub(t0).Hours()
		for lon < 0 {
			lon += 360
		}
		for lon >= 360 {
			lon -= 360
		}
		return lon, nil
	})
}

func testFrame() *natal.Frame {
	f := &natal.Frame{
		Name:      "test",
		Birth:     time.Date(1990, 6, 15, 12, 0, 0, 0, time.UTC),
		Location:  natal.Location{Lat: 55.75, Lon: 37.62},
		Positions: map[body.Body]float64{body.Sun: 0},
		Timezone:  time.UTC,
		LoadedAt:  time.Now(),
	}
	for i := range f.Cusps {
		f.Cusps[i] = float64(i * 30)
	}
	return f
}

func testDefaults() config.Config {
	return config.Config{
		Style:    "test",
		Bodies:   []string{"moon"},
		Targets:  []string{"sun"},
		Aspects:  []int{90},
		OrbOther: 1,
		Days:     1,
		Step:     5 * time.Minute,
		Workers:  2,
		Server:   config.ServerConfig{MaxSpan: 92 * 24 * time.Hour},
	}
}

func newTestServer(t *testing.T, oracle ephemeris.Oracle, frame *natal.Frame, authCfg auth.Config) http.Handler {
	t.Helper()
	frames := natal.NewStore()
	if frame != nil {
		frames.Set(frame)
	}
	srv := NewServer(":0", testLogger(), authCfg, Deps{
		Frames:   frames,
		Scanner:  transit.NewScanner(oracle, testLogger()),
		Defaults: testDefaults(),
	})
	return srv.HTTPServer().Handler
}

const tenHours = "?from=2024-01-01T00:00:00Z&to=2024-01-01T10:00:00Z"

func TestTransitsSquareWindow(t *testing.T) {
	h := newTestServer(t, linearOracle(88, 0.5), testFrame(), auth.Config{})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/transits"+tenHours, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp transitsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Style != "test" {
		t.Errorf("style = %q, want test", resp.Style)
	}
	if len(resp.Records) != 1 {
		t.Fatalf("got %d records, want 1: %+v", len(resp.Records), resp.Records)
	}
	r := resp.Records[0]
	if r.Transit != "Moon" || r.Target != "Sun" || r.AspectDeg != 90 {
		t.Errorf("record = %+v", r)
	}
	if r.Start != "2024-01-01 02:00" || r.Peak != "2024-01-01 04:00" {
		t.Errorf("start/peak = %s/%s", r.Start, r.Peak)
	}
	if resp.Diagnostics == nil {
		t.Error("diagnostics should encode as an empty array")
	}
}

func TestTransitsRequestLimits(t *testing.T) {
	h := newTestServer(t, linearOracle(88, 0.5), testFrame(), auth.Config{})

	tests := []struct {
		name       string
		query      string
		wantStatus int
	}{
		{"within budget", tenHours, http.StatusOK},
		{"span over maximum", "?from=2024-01-01&to=2025-01-01&step=1h", http.StatusBadRequest},
		{"sample budget exceeded", "?from=2024-01-01&to=2024-03-01&step=10s", http.StatusBadRequest},
		{"bad time", "?from=yesterday", http.StatusBadRequest},
		{"bad step", tenHours + "&step=soon", http.StatusBadRequest},
		{"bad bool", tenHours + "&refine=maybe", http.StatusBadRequest},
		{"unknown body", tenHours + "&bodies=vulcan", http.StatusBadRequest},
		{"unknown preset", tenHours + "&preset=weekly", http.StatusBadRequest},
		{"reversed range", "?from=2024-01-02&to=2024-01-01", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/transits"+tt.query, nil))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus == http.StatusBadRequest {
				var resp map[string]string
				json.NewDecoder(w.Body).Decode(&resp)
				if resp["error"] == "" {
					t.Error("expected error message in response")
				}
			}
		})
	}
}

func TestTransitsNoFrame(t *testing.T) {
	h := newTestServer(t, linearOracle(88, 0.5), nil, auth.Config{})
	for _, path := range []string{"/api/v1/transits", "/api/v1/coverage", "/api/v1/frame"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want 503", path, w.Code)
		}
	}
}

func TestTransitsOracleUnreliable(t *testing.T) {
	failing := ephemeris.OracleFunc(func(context.Context, body.Body, time.Time, ephemeris.Location) (float64, error) {
		return 0, errors.New("ephemeris down")
	})
	h := newTestServer(t, failing, testFrame(), auth.Config{})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/transits"+tenHours, nil))
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestCoverage(t *testing.T) {
	h := newTestServer(t, linearOracle(88, 0.5), testFrame(), auth.Config{})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/coverage"+tenHours, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp coverageResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(resp.Rows))
	}
	if !resp.Rows[0].WithinOrb || !resp.Rows[0].Covered || resp.Missing != 0 {
		t.Errorf("row = %+v, missing = %d", resp.Rows[0], resp.Missing)
	}
}

func TestFrameGetAndReplace(t *testing.T) {
	h := newTestServer(t, linearOracle(88, 0.5), testFrame(), auth.Config{Token: "s3cret"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/frame", nil)
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/api/v1/frame", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got frameResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "test" || got.Positions[body.Sun] != 0 || got.Cusps[3] != 90 {
		t.Errorf("frame = %+v", got)
	}

	doc := `name: replacement
birth: "1985-03-02 08:30"
timezone: UTC
location: {lat: 10, lon: 20}
cusps: [0, 30, 60, 90, 120, 150, 180, 210, 240, 270, 300, 330]
`
	w = httptest.NewRecorder()
	req = httptest.NewRequest("PUT", "/api/v1/frame", strings.NewReader(doc))
	req.Header.Set("Authorization", "Bearer s3cret")
	req.Header.Set("Content-Type", "application/yaml")
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("replace status = %d, body %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest("PUT", "/api/v1/frame", strings.NewReader(`{"name": "x"}`))
	req.Header.Set("Authorization", "Bearer s3cret")
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid frame status = %d, want 400", w.Code)
	}
}

func TestProbesArePublic(t *testing.T) {
	h := newTestServer(t, linearOracle(88, 0.5), testFrame(), auth.Config{Token: "s3cret"})
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, w.Code)
		}
	}
}

func TestRateLimit(t *testing.T) {
	frames := natal.NewStore()
	frames.Set(testFrame())
	srv := NewServer(":0", testLogger(), auth.Config{}, Deps{
		Frames:   frames,
		Scanner:  transit.NewScanner(linearOracle(88, 0.5), testLogger()),
		Defaults: testDefaults(),
		Limiter:  httputil.NewLimiter(0.001, 1, 16, time.Minute, false),
	})
	h := srv.HTTPServer().Handler

	codes := make([]int, 2)
	for i := range codes {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/v1/frame", nil)
		req.RemoteAddr = "192.0.2.7:4000"
		h.ServeHTTP(w, req)
		codes[i] = w.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 429]", codes)
	}
}
