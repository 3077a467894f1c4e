package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder exports service metrics to a Prometheus registerer.
type PrometheusMetricsRecorder struct {
	operations    *prometheus.CounterVec
	durations     *prometheus.HistogramVec
	notifications *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder registers the talentcore collectors on reg.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	rec := &PrometheusMetricsRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talentcore",
			Name:      "operations_total",
			Help:      "Lifecycle operations by outcome code.",
		}, []string{"operation", "outcome"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "talentcore",
			Name:      "operation_duration_seconds",
			Help:      "Lifecycle operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "talentcore",
			Name:      "notifications_total",
			Help:      "Status change notifications by channel and result.",
		}, []string{"channel", "result"}),
	}
	for _, c := range []prometheus.Collector{rec.operations, rec.durations, rec.notifications} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation, outcome string, duration time.Duration) {
	r.operations.WithLabelValues(operation, outcome).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// Notification implements NotificationRecorder.
func (r *PrometheusMetricsRecorder) Notification(channel, result string) {
	r.notifications.WithLabelValues(channel, result).Inc()
}
