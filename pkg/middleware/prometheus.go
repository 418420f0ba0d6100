package middleware

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jvenchy/conduit/pkg/pipeline"
)

// Metrics holds the Prometheus collectors recorded by the PrometheusMetrics
// middleware.
type Metrics struct {
	DispatchesTotal *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
	Duration        *prometheus.HistogramVec
	InFlight        prometheus.Gauge
}

// NewMetrics creates the collector set and registers it with the given
// registerer. NewMetrics panics if a collector with the same name is already
// registered, matching prometheus.MustRegister semantics.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		DispatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatches_total",
				Help:      "Total number of pipeline dispatches.",
			},
			[]string{"method", "path", "status"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_errors_total",
				Help:      "Total number of dispatches that finished with a 4xx or 5xx status.",
			},
			[]string{"method", "path", "status"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Duration of pipeline dispatches.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		InFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "dispatches_in_flight",
				Help:      "Number of dispatches currently executing.",
			},
		),
	}

	reg.MustRegister(m.DispatchesTotal, m.ErrorsTotal, m.Duration, m.InFlight)
	return m
}

// PrometheusMetrics is a middleware that records dispatch counts, error
// counts, latency, and in-flight dispatches on the given collector set.
func PrometheusMetrics(metrics *Metrics) pipeline.MiddlewareFunc {
	return func(req *pipeline.Request, res *pipeline.Response, next pipeline.Next) {
		start := time.Now()
		metrics.InFlight.Inc()

		next()

		metrics.InFlight.Dec()

		status := strconv.Itoa(res.Status)
		metrics.DispatchesTotal.WithLabelValues(req.Method, req.Path, status).Inc()
		if res.Status >= 400 {
			metrics.ErrorsTotal.WithLabelValues(req.Method, req.Path, status).Inc()
		}
		metrics.Duration.WithLabelValues(req.Method, req.Path).Observe(time.Since(start).Seconds())
	}
}
