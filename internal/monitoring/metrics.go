// Package monitoring exposes engine metrics via Prometheus
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks engine activity
type Metrics struct {
	registry *prometheus.Registry

	executionsTotal    *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	triggersTotal      *prometheus.CounterVec
	executionsInFlight prometheus.Gauge
	agentCallSeconds   prometheus.Histogram
}

// New creates a metrics set on a fresh registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		executionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "torale_executions_total",
			Help: "Executions by terminal status",
		}, []string{"status"}),
		notificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "torale_notifications_total",
			Help: "Notification dispatch attempts by outcome",
		}, []string{"outcome"}),
		triggersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "torale_triggers_total",
			Help: "Trigger deliveries by result",
		}, []string{"result"}),
		executionsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "torale_executions_in_flight",
			Help: "Executions currently pending or running",
		}),
		agentCallSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "torale_agent_call_seconds",
			Help:    "Agent gateway call latency",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
}

// ExecutionFinished records a terminal execution
func (m *Metrics) ExecutionFinished(status string) {
	m.executionsTotal.WithLabelValues(status).Inc()
}

// NotificationSent records a notification dispatch outcome
func (m *Metrics) NotificationSent(outcome string) {
	m.notificationsTotal.WithLabelValues(outcome).Inc()
}

// TriggerDelivered records a trigger result (fired, contended, skipped)
func (m *Metrics) TriggerDelivered(result string) {
	m.triggersTotal.WithLabelValues(result).Inc()
}

// ExecutionStarted marks an execution as in flight
func (m *Metrics) ExecutionStarted() {
	m.executionsInFlight.Inc()
}

// ExecutionDone marks an in-flight execution as finished
func (m *Metrics) ExecutionDone() {
	m.executionsInFlight.Dec()
}

// ObserveAgentCall records one gateway call duration
func (m *Metrics) ObserveAgentCall(d time.Duration) {
	m.agentCallSeconds.Observe(d.Seconds())
}

// Handler returns the /metrics HTTP handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
