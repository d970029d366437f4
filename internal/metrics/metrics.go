// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "reportd"

var (
	// ExecutionsTotal counts finished report runs by type and status
	// (sent, failed).
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_executions_total",
			Help:      "Report executions by report type and outcome",
		},
		[]string{"report_type", "status"},
	)

	ExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_execution_duration_seconds",
			Help:      "Wall time of report executions",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
		[]string{"report_type"},
	)

	RegisteredSchedules = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "registered_schedules",
			Help:      "Schedules with a live trigger",
		},
	)

	// FiresSkipped counts trigger fires that did not start a run
	// (in_flight, unregistered).
	FiresSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_fires_skipped_total",
			Help:      "Trigger fires skipped by reason",
		},
		[]string{"reason"},
	)

	BootstrapFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bootstrap_failures_total",
			Help:      "Schedules that failed to register during bootstrap",
		},
	)

	StoreRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_retries_total",
			Help:      "Retried store calls by executor step",
		},
		[]string{"step"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Channel deliveries by channel and outcome",
		},
		[]string{"channel", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Control API request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	RequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Control API requests",
		},
		[]string{"method", "route", "status"},
	)
)

var initOnce sync.Once

func init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			ExecutionsTotal, ExecutionDuration, RegisteredSchedules, FiresSkipped,
			BootstrapFailures, StoreRetries, NotificationsTotal, RequestDuration, RequestTotal,
		)
	})
}

// ObserveExecution records one finished run.
func ObserveExecution(reportType, status string, took time.Duration) {
	ExecutionsTotal.WithLabelValues(reportType, status).Inc()
	ExecutionDuration.WithLabelValues(reportType).Observe(took.Seconds())
}

func IncFiresSkipped(reason string) { FiresSkipped.WithLabelValues(reason).Inc() }

func IncStoreRetry(step string) { StoreRetries.WithLabelValues(step).Inc() }

func IncNotification(channel, status string) {
	NotificationsTotal.WithLabelValues(channel, status).Inc()
}

// RecordRequest records one control API request. route is the chi route
// pattern, which keeps label cardinality bounded.
func RecordRequest(method, route string, statusCode int, took time.Duration) {
	status := strconv.Itoa(statusCode)
	RequestDuration.WithLabelValues(method, route, status).Observe(took.Seconds())
	RequestTotal.WithLabelValues(method, route, status).Inc()
}
