package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nl2sql_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nl2sql_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"method", "path", "status"},
	)
	questionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nl2sql_questions_total",
			Help: "Total number of answered questions by outcome.",
		},
		[]string{"outcome"},
	)
	translateLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nl2sql_translate_latency_ms",
			Help:    "Language model SQL generation latency in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000},
		},
	)
	validationRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nl2sql_validation_rejections_total",
			Help: "Total number of rejected SQL statements by violation kind.",
		},
		[]string{"kind"},
	)
	previewLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nl2sql_preview_latency_ms",
			Help:    "Preview query latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 5000, 30000},
		},
	)
	exportRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nl2sql_export_rows_total",
			Help: "Total number of rows written to CSV exports.",
		},
	)
	exportBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nl2sql_export_bytes_total",
			Help: "Total number of bytes written to CSV exports.",
		},
	)
	exportChunkRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nl2sql_export_chunk_rows",
			Help:    "Rows per export chunk write.",
			Buckets: []float64{10, 100, 1000, 5000, 10000, 25000, 50000, 100000},
		},
	)
	exportLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nl2sql_export_latency_ms",
			Help:    "Full CSV export latency in milliseconds.",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000, 30000, 120000, 600000},
		},
	)
	exportFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nl2sql_export_failures_total",
			Help: "Total number of failed CSV exports.",
		},
	)
	schemaLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nl2sql_schema_loads_total",
			Help: "Total number of schema metadata loads by result.",
		},
		[]string{"result"},
	)
	authFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nl2sql_auth_failures_total",
			Help: "Total number of rejected API requests by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		questionsTotal,
		translateLatencyMs,
		validationRejectionsTotal,
		previewLatencyMs,
		exportRowsTotal,
		exportBytesTotal,
		exportChunkRows,
		exportLatencyMs,
		exportFailuresTotal,
		schemaLoadsTotal,
		authFailuresTotal,
	)
}

func ObserveQuestion(outcome string) {
	questionsTotal.WithLabelValues(outcome).Inc()
}

func ObserveTranslate(elapsed time.Duration) {
	translateLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func IncrementValidationRejection(kind string) {
	validationRejectionsTotal.WithLabelValues(kind).Inc()
}

func ObservePreview(elapsed time.Duration) {
	previewLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveExport(rows, bytes int64, elapsed time.Duration) {
	if rows > 0 {
		exportRowsTotal.Add(float64(rows))
	}
	if bytes > 0 {
		exportBytesTotal.Add(float64(bytes))
	}
	exportLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func ObserveExportChunk(rows int) {
	exportChunkRows.Observe(float64(rows))
}

func IncrementExportFailure() {
	exportFailuresTotal.Inc()
}

func ObserveSchemaLoad(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	schemaLoadsTotal.WithLabelValues(result).Inc()
}

func IncrementAuthFailure(reason string) {
	authFailuresTotal.WithLabelValues(reason).Inc()
}
