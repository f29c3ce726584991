// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Healthz returns 200 "ok\n" unconditionally.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// Check reports why a dependency is not ready, or nil.
type Check func(ctx context.Context) error

// Readiness aggregates named checks.
type Readiness struct {
	mu      sync.RWMutex
	checks  map[string]Check
	order   []string
	timeout time.Duration
}

// NewReadiness creates a Readiness whose checks each get timeout.
func NewReadiness(timeout time.Duration) *Readiness {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Readiness{checks: make(map[string]Check), timeout: timeout}
}

// Add registers a check under name, replacing any previous one.
func (rd *Readiness) Add(name string, c Check) {
	rd.mu.Lock()
	defer rd.mu.Unlock()
	if _, ok := rd.checks[name]; !ok {
		rd.order = append(rd.order, name)
	}
	rd.checks[name] = c
}

// Run executes every check and returns the failures by name.
func (rd *Readiness) Run(ctx context.Context) map[string]string {
	rd.mu.RLock()
	defer rd.mu.RUnlock()

	failed := make(map[string]string)
	for _, name := range rd.order {
		cctx, cancel := context.WithTimeout(ctx, rd.timeout)
		err := rd.checks[name](cctx)
		cancel()
		if err != nil {
			failed[name] = err.Error()
		}
	}
	return failed
}

// Readyz returns 200 "ready\n" when every check passes, otherwise 503 with
// the failing checks as JSON.
func (rd *Readiness) Readyz(w http.ResponseWriter, r *http.Request) {
	failed := rd.Run(r.Context())
	if len(failed) == 0 {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready\n"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(map[string]any{"ready": false, "failed": failed})
}
