// Package middleware provides cross-cutting observability for the pipeline:
// a Prometheus-backed MetricsCollector and an OpenTelemetry stage observer.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-bankprep/internal/ports"
)

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

// PrometheusMetrics implements the MetricsCollector interface using Prometheus.
// It tracks rows flowing through each pipeline stage, unseen categories,
// and model-serving latency.
type PrometheusMetrics struct {
	stageLatency      *prometheus.HistogramVec
	rows              *prometheus.CounterVec
	rowFailures       *prometheus.CounterVec
	unknownCategories *prometheus.CounterVec
	servingLatency    *prometheus.HistogramVec
	servingRequests   *prometheus.CounterVec
	operationCounter  *prometheus.CounterVec
	operationLatency  *prometheus.HistogramVec
	systemGauges      *prometheus.GaugeVec
}

// NewPrometheusMetrics creates the pipeline metrics and registers them with
// reg. A nil reg uses the default Prometheus registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		// Pipeline stage metrics.
		stageLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    ports.MetricStageLatency,
				Help:    "Duration of pipeline stages such as engineering, fitting, and transforming.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		rows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: ports.MetricRows,
				Help: "Rows processed by each pipeline stage.",
			},
			[]string{"stage", "status"},
		),
		rowFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: ports.MetricRowFailures,
				Help: "Rows rejected by each pipeline stage.",
			},
			[]string{"stage"},
		),
		unknownCategories: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: ports.MetricUnknownCategories,
				Help: "Categorical values not seen during fit, encoded as all-zero blocks.",
			},
			[]string{"feature"},
		),

		// Model serving metrics.
		servingLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    ports.MetricServingLatency,
				Help:    "Latency of model endpoint requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint", "status"},
		),
		servingRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: ports.MetricServingRequests,
				Help: "Model endpoint requests by outcome.",
			},
			[]string{"endpoint", "status"},
		),

		// Catch-all metrics for names without a dedicated vector.
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bankprep_operations_total",
				Help: "Other counted pipeline events.",
			},
			[]string{"metric"},
		),
		operationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bankprep_operation_values",
				Help:    "Other observed pipeline values.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"metric"},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bankprep_state",
				Help: "Current pipeline state values.",
			},
			[]string{"metric"},
		),
	}
}

func labelOr(labels map[string]string, key, fallback string) string {
	if v, ok := labels[key]; ok && v != "" {
		return v
	}
	return fallback
}

// RecordLatency implements the MetricsCollector interface by recording
// stage durations. operation is the stage name.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	_ map[string]string,
) {
	pm.stageLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case ports.MetricRows:
		pm.rows.WithLabelValues(
			labelOr(labels, "stage", "unknown"),
			labelOr(labels, "status", "success"),
		).Add(value)
	case ports.MetricRowFailures:
		pm.rowFailures.WithLabelValues(labelOr(labels, "stage", "unknown")).Add(value)
	case ports.MetricUnknownCategories:
		pm.unknownCategories.WithLabelValues(labelOr(labels, "feature", "unknown")).Add(value)
	case ports.MetricServingRequests:
		pm.servingRequests.WithLabelValues(
			labelOr(labels, "endpoint", "unknown"),
			labelOr(labels, "status", "unknown"),
		).Add(value)
	default:
		pm.operationCounter.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, _ map[string]string,
) {
	pm.systemGauges.WithLabelValues(metric).Set(value)
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case ports.MetricServingLatency:
		pm.servingLatency.WithLabelValues(
			labelOr(labels, "endpoint", "unknown"),
			labelOr(labels, "status", "unknown"),
		).Observe(value)
	case ports.MetricStageLatency:
		pm.stageLatency.WithLabelValues(labelOr(labels, "stage", "unknown")).Observe(value)
	default:
		pm.operationLatency.WithLabelValues(metric).Observe(value)
	}
}
