package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "reservoir_"

	resultSuccess = "success"
	resultError   = "error"
)

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)

// Observer receives operation measurements from application services.
type Observer interface {
	ObserveOperation(operation, result string, duration time.Duration)
	IncGraphRejected(reason string)
	AddChanges(kind, action string, count int)
}

// Metrics is the Prometheus-backed Observer.
type Metrics struct {
	OperationsTotal  *prometheus.CounterVec
	OperationLatency *prometheus.HistogramVec
	GraphRejected    *prometheus.CounterVec
	ChangesTotal     *prometheus.CounterVec
}

// New constructs metrics and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "operations_total",
				Help: "Total core operations by name and result",
			},
			[]string{"operation", "result"},
		),
		OperationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "operation_latency_seconds",
				Help:    "Core operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "result"},
		),
		GraphRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "graph_rejected_total",
				Help: "Virtual outlet record sets rejected by reason",
			},
			[]string{"reason"},
		),
		ChangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "operational_changes_total",
				Help: "Operational changes written or removed by kind and action",
			},
			[]string{"kind", "action"},
		),
	}
	reg.MustRegister(
		m.OperationsTotal,
		m.OperationLatency,
		m.GraphRejected,
		m.ChangesTotal,
	)
	return m
}

// ObserveOperation records operation latency and result.
func (m *Metrics) ObserveOperation(operation, result string, duration time.Duration) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	m.OperationsTotal.WithLabelValues(operation, result).Inc()
	m.OperationLatency.WithLabelValues(operation, result).Observe(duration.Seconds())
}

// IncGraphRejected increments the graph rejection counter.
func (m *Metrics) IncGraphRejected(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.GraphRejected.WithLabelValues(reason).Inc()
}

// AddChanges adds count to the change counter.
func (m *Metrics) AddChanges(kind, action string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.ChangesTotal.WithLabelValues(kind, action).Add(float64(count))
}

// Nop discards measurements.
type Nop struct{}

func (Nop) ObserveOperation(string, string, time.Duration) {}
func (Nop) IncGraphRejected(string)                         {}
func (Nop) AddChanges(string, string, int)                  {}

// Result maps an error to a result label.
func Result(err error) string {
	if err != nil {
		return resultError
	}
	return resultSuccess
}
