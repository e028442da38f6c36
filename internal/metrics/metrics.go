// Package metrics provides Prometheus metrics for habit-tks.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the server. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	HabitActionsTotal *prometheus.CounterVec
	TierChangesTotal  *prometheus.CounterVec
	PushConnections   prometheus.Gauge
	PushMessagesTotal *prometheus.CounterVec
	HeartbeatTimeouts prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
	DBSizeBytes       prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "habit_http_requests_total",
				Help: "Total number of REST requests by method, route and status.",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "habit_http_request_duration_seconds",
				Help:    "REST request duration by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		HabitActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "habit_actions_total",
				Help: "Habit completions and skips by tier.",
			},
			[]string{"action", "tier"},
		),
		TierChangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "habit_tier_changes_total",
				Help: "Tier transitions by kind (upgrade, downgrade, manual) and target tier.",
			},
			[]string{"kind", "tier"},
		),
		PushConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "habit_push_connections",
				Help: "Number of registered push channel connections.",
			},
		),
		PushMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "habit_push_messages_total",
				Help: "Push messages by event type and delivery result.",
			},
			[]string{"type", "result"},
		),
		HeartbeatTimeouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "habit_push_heartbeat_timeouts_total",
				Help: "Connections closed after missing heartbeat probes.",
			},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "habit_errors_total",
				Help: "Total errors by module and type.",
			},
			[]string{"module", "type"},
		),
		DBSizeBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "habit_db_size_bytes",
				Help: "Size of the SQLite database file.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(m.RequestDuration)
	reg.MustRegister(m.HabitActionsTotal)
	reg.MustRegister(m.TierChangesTotal)
	reg.MustRegister(m.PushConnections)
	reg.MustRegister(m.PushMessagesTotal)
	reg.MustRegister(m.HeartbeatTimeouts)
	reg.MustRegister(m.ErrorsTotal)
	reg.MustRegister(m.DBSizeBytes)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (for tests).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest increments the request counter and observes its duration.
func (m *Metrics) RecordRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, route, status).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(seconds)
}

// RecordHabitAction counts a completion or skip.
func (m *Metrics) RecordHabitAction(action, tier string) {
	if m == nil {
		return
	}
	m.HabitActionsTotal.WithLabelValues(action, tier).Inc()
}

// RecordTierChange counts a tier transition.
func (m *Metrics) RecordTierChange(kind, tier string) {
	if m == nil {
		return
	}
	m.TierChangesTotal.WithLabelValues(kind, tier).Inc()
}

// SetPushConnections sets the registered connection count.
func (m *Metrics) SetPushConnections(count int) {
	if m == nil {
		return
	}
	m.PushConnections.Set(float64(count))
}

// RecordPush counts a push delivery attempt.
func (m *Metrics) RecordPush(eventType, result string) {
	if m == nil {
		return
	}
	m.PushMessagesTotal.WithLabelValues(eventType, result).Inc()
}

// RecordHeartbeatTimeout counts a connection dropped by the heartbeat.
func (m *Metrics) RecordHeartbeatTimeout() {
	if m == nil {
		return
	}
	m.HeartbeatTimeouts.Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(module, errType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(module, errType).Inc()
}

// SetDBSize sets the database size gauge.
func (m *Metrics) SetDBSize(bytes int64) {
	if m == nil {
		return
	}
	m.DBSizeBytes.Set(float64(bytes))
}
