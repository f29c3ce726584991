package ephemeris

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/creator4ever-bot/geodac/internal/body"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

func TestRemoteSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/longitude" {
			t.Errorf("path = %q, want /v1/longitude", r.URL.Path)
		}
		if got := r.URL.Query().Get("body"); got != "Moon" {
			t.Errorf("body param = %q, want Moon", got)
		}
		w.Write([]byte(`{"longitude": 370.5}`))
	}))
	defer server.Close()

	r := NewRemote(server.URL, time.Second, time.Second, testLogger)
	got, err := r.Longitude(context.Background(), body.Moon, time.Now(), Location{Lat: 1, Lon: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 10.5 {
		t.Errorf("Longitude = %v, want normalized 10.5", got)
	}
}

// TestRemoteRetriesServerErrors verifies 5xx responses are retried.
func TestRemoteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"longitude": 42}`))
	}))
	defer server.Close()

	r := NewRemote(server.URL, time.Second, 10*time.Second, testLogger)
	got, err := r.Longitude(context.Background(), body.Sun, time.Now(), Location{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 || calls.Load() != 3 {
		t.Errorf("got %v after %d calls, want 42 after 3", got, calls.Load())
	}
}

// TestRemoteUnsupportedIsPermanent verifies 404 fails without retrying.
func TestRemoteUnsupportedIsPermanent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "no such body"}`))
	}))
	defer server.Close()

	r := NewRemote(server.URL, time.Second, 10*time.Second, testLogger)
	_, err := r.Longitude(context.Background(), body.NNode, time.Now(), Location{})
	if !errors.Is(err, ErrUnsupportedBody) {
		t.Fatalf("error = %v, want ErrUnsupportedBody", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

// TestRemoteBodyLimit verifies oversized responses are rejected.
func TestRemoteBodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"longitude": 1, "pad": "` + strings.Repeat("A", maxResponseBytes) + `"}`))
	}))
	defer server.Close()

	r := NewRemote(server.URL, time.Second, time.Second, testLogger)
	_, err := r.Longitude(context.Background(), body.Sun, time.Now(), Location{})
	if err == nil || !strings.Contains(err.Error(), "byte limit") {
		t.Errorf("expected body limit error, got: %v", err)
	}
}

// TestRemoteBreakerOpensOnDeadService verifies that once lookups keep
// failing, later lookups fail at once without reaching the service.
func TestRemoteBreakerOpensOnDeadService(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	r := NewRemote(server.URL, time.Second, 50*time.Millisecond, testLogger)
	for i := 0; i < breakerThreshold; i++ {
		if _, err := r.Longitude(context.Background(), body.Sun, time.Now(), Location{}); err == nil {
			t.Fatalf("lookup %d: expected error", i)
		}
	}
	before := calls.Load()

	start := time.Now()
	_, err := r.Longitude(context.Background(), body.Sun, time.Now(), Location{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
	if calls.Load() != before {
		t.Errorf("service called %d more times while breaker open", calls.Load()-before)
	}
	if d := time.Since(start); d > 100*time.Millisecond {
		t.Errorf("open-breaker lookup took %v", d)
	}
}

func TestRemoteBreakerCloses(t *testing.T) {
	var healthy atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"longitude": 7}`))
	}))
	defer server.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewRemote(server.URL, time.Second, 20*time.Millisecond, testLogger)
	r.breaker.now = func() time.Time { return now }
	for i := 0; i < breakerThreshold; i++ {
		r.Longitude(context.Background(), body.Sun, now, Location{})
	}
	if _, err := r.Longitude(context.Background(), body.Sun, now, Location{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}

	healthy.Store(true)
	now = now.Add(breakerCooldown)
	got, err := r.Longitude(context.Background(), body.Sun, now, Location{})
	if err != nil || got != 7 {
		t.Fatalf("after cooldown got %v, %v", got, err)
	}
	if !r.breaker.allow() {
		t.Error("breaker should be closed after a successful lookup")
	}
}

// TestRemoteHonoursContext verifies a cancelled lookup stops retrying.
func TestRemoteHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	r := NewRemote(server.URL, time.Second, time.Minute, testLogger)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := r.Longitude(ctx, body.Sun, time.Now(), Location{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
	if d := time.Since(start); d > 5*time.Second {
		t.Errorf("lookup ran %v after its context expired", d)
	}
	if !r.breaker.allow() {
		t.Error("a cancelled lookup should not count against the service")
	}
}

func TestCached(t *testing.T) {
	var calls int
	inner := OracleFunc(func(_ context.Context, b body.Body, ts time.Time, loc Location) (float64, error) {
		calls++
		if b == body.Pluto {
			return 0, ErrOutOfRange
		}
		return 12.5, nil
	})
	c := NewCached(inner, 16, time.Minute)
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if v, err := c.Longitude(context.Background(), body.Sun, ts, Location{}); err != nil || v != 12.5 {
			t.Fatalf("Longitude = %v, %v", v, err)
		}
	}
	if calls != 1 {
		t.Errorf("inner calls = %d, want 1", calls)
	}

	for i := 0; i < 2; i++ {
		if _, err := c.Longitude(context.Background(), body.Pluto, ts, Location{}); !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("error = %v, want ErrOutOfRange", err)
		}
	}
	if calls != 3 {
		t.Errorf("inner calls = %d, want 3 (errors not cached)", calls)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}
