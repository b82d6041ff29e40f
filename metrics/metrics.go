// Package metrics holds the node's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	FetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ocw_fetch_total", Help: "Price fetch attempts by result"},
		[]string{"result"},
	)
	FetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "ocw_fetch_duration_seconds", Help: "Price fetch latency", Buckets: prometheus.DefBuckets},
	)
	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ocw_submissions_total", Help: "Per-identity dispatch outcomes"},
		[]string{"result"},
	)
	IndexWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ocw_index_writes_total", Help: "Local index writes by result"},
		[]string{"result"},
	)
	BlockHeight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "ocw_block_height", Help: "Last block applied by the dev host"},
	)
	BlockExtrinsics = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ocw_block_extrinsics_total", Help: "Included extrinsics by result"},
		[]string{"result"},
	)
	WorkerDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "ocw_worker_dropped_total", Help: "Heights dropped because the worker queue was full"},
	)
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "HTTP requests"},
		[]string{"method", "path", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "Request latency", Buckets: prometheus.DefBuckets},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(FetchTotal, FetchDuration, SubmissionsTotal, IndexWritesTotal,
		BlockHeight, BlockExtrinsics, WorkerDropped, httpRequestsTotal, httpRequestDuration)
}

// Result maps an error to the "ok"/"error" label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// PathLabel returns the route template of a request, falling back to the raw path.
type PathLabel func(r *http.Request) string

// Instrument records request count and latency. label keeps path cardinality
// bounded; nil uses the raw URL path.
func Instrument(next http.Handler, label PathLabel) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		path := r.URL.Path
		if label != nil {
			path = label(r)
		}
		httpRequestsTotal.WithLabelValues(r.Method, path, statusLabel(ww.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// responseWriter captures status code for Prometheus labeling.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return strconv.Itoa(code)
	}
}
