// Package api serves pass predictions and dataset management over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/star/passwatch/internal/auth"
	"github.com/star/passwatch/internal/health"
	"github.com/star/passwatch/internal/httputil"
	"github.com/star/passwatch/internal/metrics"
	"github.com/star/passwatch/internal/tle"
	"github.com/star/passwatch/internal/visibility"
)

// Options configures the HTTP server.
type Options struct {
	Addr           string
	TrustProxy     bool
	Auth           auth.Config
	MaxPerClient   int           // concurrent scans per client IP
	CacheSize      int           // result cache entries, 0 disables caching
	CacheTTL       time.Duration // result cache entry lifetime
	RequestTimeout time.Duration // deadline for one scan, 503 once exceeded
}

const (
	// maxConcurrentScans caps scans across all clients.
	maxConcurrentScans = 64
	// writeGrace leaves room to write the 503 after a scan deadline.
	writeGrace = 5 * time.Second
)

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server. loader may refresh the store
// on demand; its fetcher may be nil when fetching is disabled.
func NewServer(opts Options, logger *slog.Logger, store *tle.Store, loader *tle.Loader, engine *visibility.Engine) *Server {
	if opts.MaxPerClient < 1 {
		opts.MaxPerClient = 4
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}

	p := &passAPI{
		store:      store,
		engine:     engine,
		scans:      newResultCache[passesResponse](opts.CacheSize, opts.CacheTTL),
		nexts:      newResultCache[visibility.NextPassResult](opts.CacheSize, opts.CacheTTL),
		limiter:    httputil.NewLimiter(opts.MaxPerClient, maxConcurrentScans),
		timeout:    opts.RequestTimeout,
		trustProxy: opts.TrustProxy,
		logger:     logger,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(store))
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /api/v1/tle/metadata", metadataHandler(store))
	mux.HandleFunc("POST /api/v1/tle/fetch", fetchHandler(logger, loader))
	mux.HandleFunc("GET /api/v1/passes", p.handlePasses)
	mux.HandleFunc("GET /api/v1/passes/next", p.handleNextPass)
	mux.HandleFunc("GET /api/v1/passes/{norad_id}", p.handleSatellitePasses)
	mux.HandleFunc("POST /api/v1/passes", p.handleSubmit)

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(opts.Auth)(handler)
	handler = loggingMiddleware(logger, opts.TrustProxy)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              opts.Addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      opts.RequestTimeout + writeGrace,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

const requestIDHeader = "X-Request-ID"

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			id := r.Header.Get(requestIDHeader)
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)

			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"client_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}
