package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geodac_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geodac_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	scanDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geodac_scan_duration_seconds",
			Help:    "Wall time of a full transit scan.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"style"},
	)

	samplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geodac_samples_total",
			Help: "Ephemeris samples consumed by the window state machine.",
		},
		[]string{"body"},
	)

	oracleFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geodac_oracle_failures_total",
			Help: "Ephemeris lookups that failed and were skipped.",
		},
		[]string{"body"},
	)

	oracleCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geodac_oracle_cache_total",
			Help: "Ephemeris cache lookups by result.",
		},
		[]string{"result"},
	)

	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geodac_events_total",
			Help: "Transit events emitted by kind.",
		},
		[]string{"kind"},
	)

	diagnosticsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geodac_diagnostics_total",
			Help: "Unresolved (target, aspect) pairs by reason.",
		},
		[]string{"reason"},
	)

	emitTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geodac_emit_records_total",
			Help: "Records handed to output sinks by sink and result.",
		},
		[]string{"sink", "result"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(scanDurationSeconds)
	prometheus.MustRegister(samplesTotal)
	prometheus.MustRegister(oracleFailuresTotal)
	prometheus.MustRegister(oracleCacheTotal)
	prometheus.MustRegister(eventsTotal)
	prometheus.MustRegister(diagnosticsTotal)
	prometheus.MustRegister(emitTotal)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveScan records the duration of one scan.
func ObserveScan(style string, d time.Duration) {
	scanDurationSeconds.WithLabelValues(style).Observe(d.Seconds())
}

// AddSamples counts samples consumed for a moving body.
func AddSamples(body string, n int) {
	samplesTotal.WithLabelValues(body).Add(float64(n))
}

// IncOracleFailure counts one skipped ephemeris sample.
func IncOracleFailure(body string) {
	oracleFailuresTotal.WithLabelValues(body).Inc()
}

// IncCache counts an ephemeris cache hit or miss.
func IncCache(hit bool) {
	if hit {
		oracleCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	oracleCacheTotal.WithLabelValues("miss").Inc()
}

// IncEvent counts one emitted event.
func IncEvent(kind string) {
	eventsTotal.WithLabelValues(kind).Inc()
}

// IncDiagnostic counts one unresolved pair.
func IncDiagnostic(reason string) {
	diagnosticsTotal.WithLabelValues(reason).Inc()
}

// AddEmitted counts records written to a sink.
func AddEmitted(sink, result string, n int) {
	emitTotal.WithLabelValues(sink, result).Add(float64(n))
}

// knownRoutes are served paths that keep their own label.
var knownRoutes = map[string]bool{
	"/":                true,
	"/healthz":         true,
	"/readyz":          true,
	"/metrics":         true,
	"/api/v1/transits": true,
	"/api/v1/frame":    true,
	"/api/v1/coverage": true,
}

// normalizeRoute collapses unknown paths into one label to bound cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
