// Package metrics exposes Prometheus collectors for the news service and its
// HTTP surface.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tendant/simple-news/pkg/simplenews"
)

const namespace = "simple_news"

// Collector implements simplenews.Metrics and records HTTP traffic. Each
// Collector owns its registry so tests and multiple servers do not collide.
type Collector struct {
	registry *prometheus.Registry

	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	imagesReclaimed   prometheus.Counter
	cleanupFailures   prometheus.Counter
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	httpInFlight      prometheus.Gauge
}

var _ simplenews.Metrics = (*Collector)(nil)

// NewCollector creates a Collector with Go and process collectors registered
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of service operations by outcome.",
			},
			[]string{"op", "outcome"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of service operations.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
			},
			[]string{"op"},
		),
		imagesReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_reclaimed_total",
			Help:      "Images removed from the catalog because no article referenced them.",
		}),
		cleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blob_cleanup_failures_total",
			Help:      "Blobs that could not be deleted after their catalog row was removed.",
		}),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests handled.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
			},
			[]string{"method", "route"},
		),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
	}

	c.registry.MustRegister(
		c.operations,
		c.operationDuration,
		c.imagesReclaimed,
		c.cleanupFailures,
		c.httpRequests,
		c.httpDuration,
		c.httpInFlight,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return c
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler exposing the registered metrics
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveOperation(op string, duration time.Duration, err error) {
	c.operations.WithLabelValues(op, Outcome(err)).Inc()
	c.operationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func (c *Collector) ImagesReclaimed(n int) {
	if n > 0 {
		c.imagesReclaimed.Add(float64(n))
	}
}

func (c *Collector) CleanupFailed(key string) {
	c.cleanupFailures.Inc()
}

// Outcome maps an operation error onto a low-cardinality label value
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, simplenews.ErrInvalid):
		return "invalid"
	case errors.Is(err, simplenews.ErrNotFound):
		return "not_found"
	case errors.Is(err, simplenews.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

// Middleware records request counts and latencies labelled by chi route
// pattern. It must be mounted with chi's Use so the pattern is resolved by
// the time the handler returns.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		c.httpInFlight.Inc()
		defer c.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := routePattern(r)
		method := strings.ToUpper(r.Method)
		c.httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		c.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	// unmatched paths share one label to bound cardinality
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
