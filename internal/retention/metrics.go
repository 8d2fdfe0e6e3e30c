package retention

import "github.com/prometheus/client_golang/prometheus"

var (
	sweepRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nl2sql_retention_runs_total",
			Help: "Total number of retention sweeps by status.",
		},
		[]string{"status"},
	)
	artifactsDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nl2sql_retention_artifacts_deleted_total",
			Help: "Total number of export artifacts deleted by reason.",
		},
		[]string{"reason"},
	)
	artifactBytesFreedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nl2sql_retention_bytes_freed_total",
			Help: "Total artifact bytes freed by retention sweeps.",
		},
	)
	sessionsEvictedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nl2sql_retention_sessions_evicted_total",
			Help: "Total number of idle sessions evicted.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		sweepRunsTotal,
		artifactsDeletedTotal,
		artifactBytesFreedTotal,
		sessionsEvictedTotal,
	)
}

func observeSweep(summary Summary, ok bool) {
	status := "completed"
	if !ok {
		status = "failed"
	}
	sweepRunsTotal.WithLabelValues(status).Inc()
	if summary.ExpiredDeleted > 0 {
		artifactsDeletedTotal.WithLabelValues("expired").Add(float64(summary.ExpiredDeleted))
	}
	if summary.OverflowDeleted > 0 {
		artifactsDeletedTotal.WithLabelValues("max_files").Add(float64(summary.OverflowDeleted))
	}
	if summary.BytesFreed > 0 {
		artifactBytesFreedTotal.Add(float64(summary.BytesFreed))
	}
	if summary.SessionsEvicted > 0 {
		sessionsEvictedTotal.Add(float64(summary.SessionsEvicted))
	}
}
