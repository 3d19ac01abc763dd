package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vitalwatch"

// Metrics holds the collectors of one process. Instances are registered on
// their own registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	ReadingsIngested   *prometheus.CounterVec
	IngestFailures     prometheus.Counter
	AlertsRaised       prometheus.Counter
	ClassifierFallback prometheus.Counter
	Predictions        *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
	WSConnections      prometheus.Gauge
	RetentionDeleted   prometheus.Counter
	RetentionSweeps    *prometheus.CounterVec
	DeferredTasks      *prometheus.CounterVec
	NotifierFailures   prometheus.Counter
	MQTTMessages       *prometheus.CounterVec
}

// New creates and registers every collector.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ReadingsIngested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_ingested_total",
			Help:      "Readings persisted, by risk level",
		}, []string{"risk_level"}),
		IngestFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_failures_total",
			Help:      "Readings that could not be persisted",
		}),
		AlertsRaised: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_raised_total",
			Help:      "Critical alerts stored",
		}),
		ClassifierFallback: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "fallback_total",
			Help:      "Classifications served by the rule path",
		}),
		Predictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "predictions_total",
			Help:      "Classifications by risk level and source",
		}, []string{"risk_level", "source"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route", "status"}),
		WSConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Open WebSocket connections",
		}),
		RetentionDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "deleted_total",
			Help:      "Readings removed by retention",
		}),
		RetentionSweeps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retention",
			Name:      "sweeps_total",
			Help:      "Scheduled retention sweeps by outcome",
		}, []string{"outcome"}),
		DeferredTasks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tasks",
			Name:      "completed_total",
			Help:      "Deferred tasks by name and outcome",
		}, []string{"task", "outcome"}),
		NotifierFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "failures_total",
			Help:      "Alert notifications that failed to send",
		}),
		MQTTMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "messages_total",
			Help:      "MQTT messages by outcome",
		}, []string{"outcome"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveHTTP records one request.
func (m *Metrics) ObserveHTTP(method, route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPDuration.WithLabelValues(method, route, status).Observe(elapsed.Seconds())
}

// TaskResult records the outcome of a deferred task.
func (m *Metrics) TaskResult(name string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.DeferredTasks.WithLabelValues(name, outcome).Inc()
}
