package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the API client and the
// response orchestrator. A nil *Metrics is valid and records nothing.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RateLimitedTotal prometheus.Counter
	ActionsTotal     *prometheus.CounterVec
	RollbacksTotal   *prometheus.CounterVec
	ThreatsTotal     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from the default registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netresponse",
			Name:      "api_requests_total",
			Help:      "Physical requests sent to the management API, by method and outcome.",
		}, []string{"method", "outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "netresponse",
			Name:      "api_request_duration_seconds",
			Help:      "Latency of physical management API requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "netresponse",
			Name:      "api_rate_limited_total",
			Help:      "HTTP 429 responses received from the management API.",
		}),
		ActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netresponse",
			Name:      "security_actions_total",
			Help:      "Security actions recorded, by kind and terminal status.",
		}, []string{"kind", "status"}),
		RollbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netresponse",
			Name:      "rollbacks_total",
			Help:      "Automatic rollbacks executed, by terminal status.",
		}, []string{"status"}),
		ThreatsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netresponse",
			Name:      "threat_events_total",
			Help:      "Threat events consumed, by severity and policy outcome.",
		}, []string{"severity", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.RequestsTotal,
			m.RequestDuration,
			m.RateLimitedTotal,
			m.ActionsTotal,
			m.RollbacksTotal,
			m.ThreatsTotal,
		)
	}
	return m
}

// ObserveRequest records one physical request. status is 0 for transport failures.
func (m *Metrics) ObserveRequest(method string, status int, seconds float64) {
	if m == nil {
		return
	}
	outcome := "error"
	if status > 0 {
		outcome = strconv.Itoa(status)
	}
	m.RequestsTotal.WithLabelValues(method, outcome).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(seconds)
}

// IncRateLimited counts a 429 response.
func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

// IncAction counts a security action reaching a terminal status.
func (m *Metrics) IncAction(kind, status string) {
	if m == nil {
		return
	}
	m.ActionsTotal.WithLabelValues(kind, status).Inc()
}

// IncRollback counts an executed rollback.
func (m *Metrics) IncRollback(status string) {
	if m == nil {
		return
	}
	m.RollbacksTotal.WithLabelValues(status).Inc()
}

// IncThreat counts a consumed threat event.
func (m *Metrics) IncThreat(severity, outcome string) {
	if m == nil {
		return
	}
	m.ThreatsTotal.WithLabelValues(severity, outcome).Inc()
}
