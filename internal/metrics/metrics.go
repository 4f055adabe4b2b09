// Package metrics provides Prometheus collectors for the ledger service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Keep labels low cardinality: no user ids or record ids.
var (
	// RecordMutationsTotal counts ledger writes by operation and result.
	RecordMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_record_mutations_total",
		Help: "Total number of ledger mutations, by operation and result.",
	}, []string{"op", "result"})

	// ReportRequestsTotal counts report computations by kind and cache outcome.
	ReportRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_report_requests_total",
		Help: "Total number of report requests, by report kind and cache outcome (hit/miss).",
	}, []string{"report", "cache"})

	// BackupOperationsTotal counts export and import runs by result.
	BackupOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_backup_operations_total",
		Help: "Total number of backup exports and imports, by direction and result.",
	}, []string{"direction", "result"})

	// BackupRecords observes how many records each backup carried.
	BackupRecords = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_backup_records",
		Help:    "Number of records per backup export or import.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{"direction"})

	// EventsPublishedTotal counts change notifications by result.
	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_events_published_total",
		Help: "Total number of record changed events published, by result.",
	}, []string{"result"})

	// AuthAttemptsTotal counts register and login attempts by outcome.
	AuthAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_auth_attempts_total",
		Help: "Total number of authentication attempts, by action and result.",
	}, []string{"action", "result"})

	// HTTPRequestDuration observes API latency by route pattern.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "HTTP request latency, by method, route pattern and status class.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// WorkerLastRefresh is the unix time of the last completed reconciliation.
	WorkerLastRefresh = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_worker_last_refresh_timestamp_seconds",
		Help: "Unix time of the last completed backup reconciliation.",
	})

	// SuspiciousRequestsTotal counts requests matching scanner patterns.
	SuspiciousRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_suspicious_requests_total",
		Help: "Total number of requests flagged by the scanner heuristics, by reason.",
	}, []string{"reason"})
)

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func RecordMutation(op string, err error) {
	RecordMutationsTotal.WithLabelValues(op, result(err)).Inc()
}

func RecordReport(report string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	ReportRequestsTotal.WithLabelValues(report, outcome).Inc()
}

// RecordBackup counts a backup run and, on success, its size.
func RecordBackup(direction string, records int, err error) {
	BackupOperationsTotal.WithLabelValues(direction, result(err)).Inc()
	if err == nil {
		BackupRecords.WithLabelValues(direction).Observe(float64(records))
	}
}

func RecordPublish(err error) {
	EventsPublishedTotal.WithLabelValues(result(err)).Inc()
}

func RecordAuth(action string, err error) {
	AuthAttemptsTotal.WithLabelValues(action, result(err)).Inc()
}

func ObserveHTTP(method, route, status string, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}

func MarkRefresh(t time.Time) {
	WorkerLastRefresh.Set(float64(t.Unix()))
}

func RecordSuspicious(reason string) {
	SuspiciousRequestsTotal.WithLabelValues(reason).Inc()
}
