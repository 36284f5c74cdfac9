// Package monitormetrics exposes the scheduler's operational counters as
// Prometheus metrics (global, no unbounded label cardinality), grounded on
// the teacher's churn package (internal/ratelimiter/telemetry/churn/prom_counters.go):
// package-level collectors registered once in init, plain functions on the
// hot path instead of an injected recorder interface.
package monitormetrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	probesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsewatch_probes_total",
		Help: "Total probe attempts, by target kind and resulting status",
	}, []string{"kind", "status"})

	probeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pulsewatch_probe_duration_seconds",
		Help:    "Probe attempt latency by target kind",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	alertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsewatch_alerts_total",
		Help: "Alert gate outcomes, by delivered/undelivered reason",
	}, []string{"reason"})

	telemetryBacklog = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pulsewatch_telemetry_backlog_rows",
		Help: "Rows currently buffered in the telemetry sink (Sink A)",
	})

	telemetryDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pulsewatch_telemetry_dropped_rows_total",
		Help: "Rows dropped by the telemetry sink after exceeding MaxFailuresBeforeDrop",
	})

	mutationBacklog = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pulsewatch_mutation_backlog_targets",
		Help: "Distinct targets with a pending mutation in Sink B's admission map",
	})

	lockHeartbeatsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsewatch_lock_heartbeats_total",
		Help: "Region lock heartbeat outcomes, by region and result",
	}, []string{"region", "result"})

	targetsDisabledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsewatch_targets_disabled_total",
		Help: "Targets auto-disabled, by reason class",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(
		probesTotal, probeDuration, alertsTotal,
		telemetryBacklog, telemetryDropped, mutationBacklog,
		lockHeartbeatsTotal, targetsDisabledTotal,
	)
}

// RecordProbe records one probe attempt's outcome and latency.
func RecordProbe(kind, status string, d time.Duration) {
	probesTotal.WithLabelValues(kind, status).Inc()
	probeDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// RecordAlert records one alert gate verdict. reason is "" for a delivered alert.
func RecordAlert(reason string) {
	if reason == "" {
		reason = "delivered"
	}
	alertsTotal.WithLabelValues(reason).Inc()
}

// SetTelemetryBacklog reports the telemetry sink's current row count.
func SetTelemetryBacklog(n int) { telemetryBacklog.Set(float64(n)) }

// RecordTelemetryDropped records rows dropped after exhausting retries.
func RecordTelemetryDropped(n int) {
	if n > 0 {
		telemetryDropped.Add(float64(n))
	}
}

// SetMutationBacklog reports Sink B's current pending-target count.
func SetMutationBacklog(n int) { mutationBacklog.Set(float64(n)) }

// RecordLockHeartbeat records a heartbeat extend outcome for region.
func RecordLockHeartbeat(region string, ok bool) {
	result := "ok"
	if !ok {
		result = "lost"
	}
	lockHeartbeatsTotal.WithLabelValues(region, result).Inc()
}

// RecordTargetDisabled records an auto-disable event by reason class.
func RecordTargetDisabled(reasonClass string) {
	targetsDisabledTotal.WithLabelValues(reasonClass).Inc()
}

// Handler returns the promhttp handler for mounting under /metrics.
func Handler() http.Handler { return promhttp.Handler() }
