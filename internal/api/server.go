// Package api serves transit scans over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/creator4ever-bot/geodac/internal/auth"
	"github.com/creator4ever-bot/geodac/internal/config"
	"github.com/creator4ever-bot/geodac/internal/health"
	"github.com/creator4ever-bot/geodac/internal/httputil"
	"github.com/creator4ever-bot/geodac/internal/metrics"
	"github.com/creator4ever-bot/geodac/internal/natal"
	"github.com/creator4ever-bot/geodac/internal/transit"
)

// Deps are the collaborators the handlers read from.
type Deps struct {
	Frames    *natal.Store
	Scanner   *transit.Scanner
	Defaults  config.Config
	Readiness *health.Readiness
	Limiter   *httputil.Limiter
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, deps Deps) *Server {
	if deps.Readiness == nil {
		deps.Readiness = health.NewReadiness(0)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", deps.Readiness.Readyz)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/v1/transits", transitsHandler(logger, deps))
	mux.HandleFunc("GET /api/v1/coverage", coverageHandler(logger, deps))
	mux.HandleFunc("GET /api/v1/frame", frameHandler(deps.Frames))
	mux.HandleFunc("PUT /api/v1/frame", replaceFrameHandler(logger, deps.Frames))

	// metrics -> logging -> auth -> rate limit -> mux.
	var handler http.Handler = mux
	if deps.Limiter != nil {
		handler = deps.Limiter.Middleware(handler)
	}
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}
			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"query", r.URL.RawQuery,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_ip", httputil.ClientIP(r, false),
			)
		})
	}
}
