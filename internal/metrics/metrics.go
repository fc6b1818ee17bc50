package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewServerMetrics(reg prometheus.Registerer, service string) *ServerMetrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})

	reg.MustRegister(requests, latency)
	return &ServerMetrics{Requests: requests, LatencyMS: latency}
}

// CheckoutMetrics counts order submissions by outcome.
type CheckoutMetrics struct {
	Submissions *prometheus.CounterVec
}

func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "checkout",
		Name:      "submissions_total",
		Help:      "Order submissions by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(submissions)
	return &CheckoutMetrics{Submissions: submissions}
}

func (m *CheckoutMetrics) Observe(outcome string) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(outcome).Inc()
}

// ReconcileMetrics tracks the deferred status transition.
type ReconcileMetrics struct {
	Jobs          *prometheus.CounterVec
	CompletionLag prometheus.Histogram
}

func NewReconcileMetrics(reg prometheus.Registerer) *ReconcileMetrics {
	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reconciler",
		Name:      "jobs_total",
		Help:      "Reconciliation jobs by outcome.",
	}, []string{"outcome"})
	lag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "reconciler",
		Name:      "completion_lag_seconds",
		Help:      "Time between order creation and completion.",
		Buckets:   []float64{5, 10, 15, 30, 60, 120, 300, 900},
	})
	reg.MustRegister(jobs, lag)
	return &ReconcileMetrics{Jobs: jobs, CompletionLag: lag}
}

func (m *ReconcileMetrics) Observe(outcome string) {
	if m == nil {
		return
	}
	m.Jobs.WithLabelValues(outcome).Inc()
}

func (m *ReconcileMetrics) ObserveLag(d time.Duration) {
	if m == nil {
		return
	}
	m.CompletionLag.Observe(d.Seconds())
}

// Handler serves the metrics of gatherer, or of the default registry when nil.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
