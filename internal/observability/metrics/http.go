package metrics

import (
	"cmp"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/docqa/internal/core/domain"
)

const namespace = "docqa"

// HTTPServerMetrics covers the API surface and the query engine's gate
// decisions. Every series carries a constant service label.
type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge

	queries    *prometheus.CounterVec
	rejections *prometheus.CounterVec
	confidence *prometheus.HistogramVec
	citations  prometheus.Histogram
	candidates *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	constLabels := prometheus.Labels{"service": service}

	return &HTTPServerMetrics{
		registry: registry,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "Total HTTP requests processed.", ConstLabels: constLabels,
		}, []string{"method", "path", "status"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help: "HTTP request duration in seconds.", ConstLabels: constLabels,
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "http", Name: "in_flight_requests",
			Help: "Number of in-flight HTTP requests.", ConstLabels: constLabels,
		}),
		queries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rag", Name: "queries_total",
			Help: "Total answered queries by profile and outcome.", ConstLabels: constLabels,
		}, []string{"profile", "outcome"}),
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "rag", Name: "rejections_total",
			Help: "Total queries rejected by the confidence gate, by reason.", ConstLabels: constLabels,
		}, []string{"reason"}),
		confidence: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "rag", Name: "confidence",
			Help: "Distribution of query confidence scores.", ConstLabels: constLabels,
			Buckets: []float64{0.05, 0.1, 0.15, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		}, []string{"profile"}),
		citations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "rag", Name: "citations",
			Help: "Distribution of citations per admitted query.", ConstLabels: constLabels,
			Buckets: []float64{0, 1, 2, 3, 4, 5, 8},
		}),
		candidates: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "rag", Name: "candidates",
			Help: "Distribution of retrieved candidates per query.", ConstLabels: constLabels,
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}, []string{"profile"}),
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		route := routeLabel(r.URL.Path)
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		m.inFlight.Inc()
		defer m.inFlight.Dec()
		next.ServeHTTP(sw, r)

		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		m.latency.WithLabelValues(r.Method, route).Observe(time.Since(started).Seconds())
	})
}

// routeLabel folds path parameters so label cardinality stays bounded.
func routeLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{id}"
	case strings.HasPrefix(path, "/v1/index/documents/"):
		return "/v1/index/documents/{id}"
	case strings.HasPrefix(path, "/v1/scopes/"):
		for _, suffix := range []string{"/snapshot/load", "/snapshot"} {
			if strings.HasSuffix(path, suffix) {
				return "/v1/scopes/{scope}" + suffix
			}
		}
		return "/v1/scopes/{scope}"
	}
	return path
}

// ObserveQuery records one finished query, admitted or rejected.
func (m *HTTPServerMetrics) ObserveQuery(result *domain.QueryResult) {
	if result == nil {
		return
	}
	profile := cmp.Or(result.Profile, "unknown")

	outcome := "answered"
	if result.HasRelevantInfo {
		m.citations.Observe(float64(len(result.Citations)))
	} else {
		outcome = "rejected"
		m.rejections.WithLabelValues(string(result.RejectionReason)).Inc()
	}
	m.queries.WithLabelValues(profile, outcome).Inc()
	m.confidence.WithLabelValues(profile).Observe(result.Confidence)
	m.candidates.WithLabelValues(profile).Observe(float64(result.CandidateCount))
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
