package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passwatch_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "passwatch_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	scanDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "passwatch_scan_duration_seconds",
			Help:    "Duration of a multi-satellite visibility scan.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
	)

	scanSatellitesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passwatch_scan_satellites_total",
			Help: "Satellites processed by visibility scans, by outcome.",
		},
		[]string{"outcome"},
	)

	sampleErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "passwatch_scan_sample_errors_total",
			Help: "Samples skipped because propagation reported an invalid state.",
		},
	)

	passesFoundTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "passwatch_passes_found_total",
			Help: "Passes emitted by visibility scans.",
		},
	)

	fallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passwatch_next_pass_threshold_total",
			Help: "Next-pass lookups by the elevation threshold that produced the answer (\"none\" when nothing was found).",
		},
		[]string{"threshold"},
	)

	resultCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passwatch_result_cache_total",
			Help: "API scan result cache lookups by result (hit, miss).",
		},
		[]string{"result"},
	)

	tleFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "passwatch_tle_fetch_total",
			Help: "TLE refresh attempts by result.",
		},
		[]string{"result"},
	)

	tleDatasetCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "passwatch_tle_dataset_count",
			Help: "Number of element sets in the current dataset.",
		},
	)

	tleDatasetAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "passwatch_tle_dataset_age_seconds",
			Help: "Age of the current dataset in seconds.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		scanDurationSeconds,
		scanSatellitesTotal,
		sampleErrorsTotal,
		passesFoundTotal,
		fallbackTotal,
		resultCacheTotal,
		tleFetchTotal,
		tleDatasetCount,
		tleDatasetAgeSeconds,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordScan records one orchestrator run.
func RecordScan(duration time.Duration, scanned, skipped, sampleErrors, passes int) {
	scanDurationSeconds.Observe(duration.Seconds())
	scanSatellitesTotal.WithLabelValues("scanned").Add(float64(scanned))
	scanSatellitesTotal.WithLabelValues("skipped").Add(float64(skipped))
	sampleErrorsTotal.Add(float64(sampleErrors))
	passesFoundTotal.Add(float64(passes))
}

// RecordNextPass records which rung of the threshold ladder answered a lookup.
// A negative threshold means no pass was found at any rung.
func RecordNextPass(threshold float64) {
	label := "none"
	if threshold >= 0 {
		label = strconv.FormatFloat(threshold, 'f', -1, 64)
	}
	fallbackTotal.WithLabelValues(label).Inc()
}

// IncResultCache counts one API result cache lookup.
func IncResultCache(hit bool) {
	if hit {
		resultCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	resultCacheTotal.WithLabelValues("miss").Inc()
}

// IncTLEFetch counts a refresh attempt; result is "ok" or "error".
func IncTLEFetch(result string) {
	tleFetchTotal.WithLabelValues(result).Inc()
}

// SetTLEDatasetCount publishes the current dataset size.
func SetTLEDatasetCount(n int) {
	tleDatasetCount.Set(float64(n))
}

// SetTLEDatasetAge publishes the current dataset age.
func SetTLEDatasetAge(seconds float64) {
	tleDatasetAgeSeconds.Set(seconds)
}

// knownRoutes are the exact paths that get their own label.
var knownRoutes = map[string]bool{
	"/":                    true,
	"/healthz":             true,
	"/readyz":              true,
	"/metrics":             true,
	"/api/v1/tle/metadata": true,
	"/api/v1/tle/fetch":    true,
	"/api/v1/passes":       true,
	"/api/v1/passes/next":  true,
}

// normalizeRoute bounds label cardinality: unknown paths collapse to "other".
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/passes/"); ok && rest != "" && !strings.Contains(rest, "/") {
		return "/api/v1/passes/{id}"
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

		path := normalizeRoute(r.URL.Path)
		httpRequestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		httpDurationSeconds.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())
	})
}
