package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the runtime's Prometheus surface. All collectors live in a
// private registry so tests can run side by side.
type Metrics struct {
	registry *prometheus.Registry

	goalDuration   *prometheus.HistogramVec
	goalTotal      *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	actionTotal    *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// NewMetrics creates a metrics set with its own registry, including the
// standard Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		goalDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "connex_goal_duration_seconds",
			Help:    "End-to-end goal execution duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"intent", "success"}),
		goalTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connex_goals_total",
			Help: "Total goals executed.",
		}, []string{"intent", "success"}),
		actionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "connex_action_duration_seconds",
			Help:    "Per-action execution duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"skill", "outcome"}),
		actionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "connex_actions_total",
			Help: "Total plan actions executed.",
		}, []string{"skill", "outcome"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "connex_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "code"}),
	}
	reg.MustRegister(m.goalDuration, m.goalTotal, m.actionDuration, m.actionTotal, m.httpDuration)
	return m
}

// ObserveGoal records one completed goal execution.
func (m *Metrics) ObserveGoal(intent string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	s := strconv.FormatBool(success)
	m.goalDuration.WithLabelValues(intent, s).Observe(d.Seconds())
	m.goalTotal.WithLabelValues(intent, s).Inc()
}

// ObserveAction records one plan action.
func (m *Metrics) ObserveAction(skill, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.actionDuration.WithLabelValues(skill, outcome).Observe(d.Seconds())
	m.actionTotal.WithLabelValues(skill, outcome).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, path string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, path, strconv.Itoa(code)).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
