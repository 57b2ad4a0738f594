// Package middleware provides cross-cutting concerns for the reconciliation
// engine. It currently hosts the Prometheus adapter that backs the
// MetricsCollector port.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rkonrad/go-concord/internal/ports"
)

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. It exposes dedicated vectors for the reconciler's named
// metrics and generic operation/state vectors for everything else, giving
// real-time visibility into submission volume, consensus quality, and
// reconciliation latency.
type PrometheusMetrics struct {
	orderingsSubmitted *prometheus.CounterVec
	conflictsDetected  *prometheus.CounterVec
	reviewParticipants *prometheus.GaugeVec
	agreementScore     prometheus.Histogram
	diffSimilarity     prometheus.Histogram
	operationLatency   *prometheus.HistogramVec
	operationCounter   *prometheus.CounterVec
	systemGauges       *prometheus.GaugeVec
}

// NewPrometheusMetrics creates a new PrometheusMetrics instance and registers
// all required metrics in the global Prometheus registry. Call it once per
// process; promauto panics on duplicate registration.
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		// Review-specific metrics.
		orderingsSubmitted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orderings_submitted",
				Help: "Total number of orderings accepted across all reviews.",
			},
			[]string{"review"},
		),
		conflictsDetected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conflicts_detected",
				Help: "Total number of contested items reported by consensus runs.",
			},
			[]string{"review"},
		),
		reviewParticipants: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "review_participants",
				Help: "Participants contributing to the most recent consensus per review.",
			},
			[]string{"review"},
		),
		agreementScore: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agreement_score",
				Help:    "Distribution of inter-participant agreement scores.",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
		),
		diffSimilarity: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "diff_similarity",
				Help:    "Distribution of pairwise ordering similarity scores.",
				Buckets: prometheus.LinearBuckets(0, 10, 11),
			},
		),

		// General execution metrics for comprehensive observability.
		operationLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reconciler_operation_duration_seconds",
				Help:    "Execution time of reconciler operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "review"},
		),
		operationCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciler_operations_total",
				Help: "Total number of operations performed by the reconciler.",
			},
			[]string{"operation", "status", "review"},
		),
		systemGauges: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "reconciler_system_state",
				Help: "Current state values for the reconciler.",
			},
			[]string{"metric", "review"},
		),
	}
}

// reviewLabel extracts the review label, defaulting to "unknown" so metrics
// emitted outside a review context still land in a valid series.
func reviewLabel(labels map[string]string) string {
	if review, ok := labels["review"]; ok && review != "" {
		return review
	}
	return "unknown"
}

// RecordLatency implements the MetricsCollector interface by recording
// operation latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	pm.operationLatency.WithLabelValues(operation, reviewLabel(labels)).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	review := reviewLabel(labels)

	switch metric {
	case "orderings_submitted":
		pm.orderingsSubmitted.WithLabelValues(review).Add(value)
	case "conflicts_detected":
		pm.conflictsDetected.WithLabelValues(review).Add(value)
	case "validation_failures":
		pm.operationCounter.WithLabelValues("validate", "invalid", review).Add(value)
	default:
		pm.operationCounter.WithLabelValues(metric, "success", review).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	review := reviewLabel(labels)

	switch metric {
	case "review_participants":
		pm.reviewParticipants.WithLabelValues(review).Set(value)
	default:
		pm.systemGauges.WithLabelValues(metric, review).Set(value)
	}
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "agreement_score":
		pm.agreementScore.Observe(value)
	case "diff_similarity":
		pm.diffSimilarity.Observe(value)
	default:
		// Histograms without a dedicated series observe into the operation
		// duration vector keyed by the metric name.
		pm.operationLatency.WithLabelValues(metric, reviewLabel(labels)).Observe(value)
	}
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
