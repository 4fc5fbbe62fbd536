package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	TransfersIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accumwatch_transfers_ingested_total",
			Help: "Total number of transfer events ingested",
		},
		[]string{"status"}, // success, duplicate, malformed, unknown_token
	)

	IngestBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "accumwatch_ingest_batch_duration_seconds",
			Help:    "Duration of a transfer ingestion batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Sweep metrics
	SweepsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accumwatch_sweeps_total",
			Help: "Total number of detection sweeps",
		},
		[]string{"status"}, // success, partial, error
	)

	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "accumwatch_sweep_duration_seconds",
			Help:    "Duration of a full detection sweep",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	// Signal metrics
	SignalsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accumwatch_signals_detected_total",
			Help: "Total number of accumulation signals persisted",
		},
		[]string{"type"}, // WHALE_INFLOW, EXCHANGE_OUTFLOW, ...
	)

	SignalsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accumwatch_signals_suppressed_total",
			Help: "Total number of candidate signals not persisted",
		},
		[]string{"reason"}, // below_threshold, duplicate, conflict
	)

	SignalScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "accumwatch_signal_scores",
			Help:    "Distribution of persisted signal scores (0-100 scale)",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 75, 80, 85, 90, 95, 100},
		},
	)

	// Alert metrics
	AlertsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "accumwatch_alerts_created_total",
			Help: "Total number of alert records created",
		},
	)

	AlertsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accumwatch_alerts_sent_total",
			Help: "Total number of alerts sent",
		},
		[]string{"status", "type"}, // success/error, telegram/smtp/log
	)

	// Feed API metrics
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accumwatch_api_requests_total",
			Help: "Total number of feed API requests",
		},
		[]string{"endpoint", "status"}, // /transfers, /tokens/stats, success/error
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "accumwatch_api_request_duration_seconds",
			Help:    "Duration of feed API requests",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)

	// Database metrics
	DatabaseQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accumwatch_database_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"}, // get/insert/update, success/error
	)

	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "accumwatch_database_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// Wallet performance metrics
	PerformanceCalculations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "accumwatch_performance_calculations_total",
			Help: "Total number of wallet performance calculation runs",
		},
	)

	WalletScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "accumwatch_wallet_scores",
			Help:    "Distribution of wallet performance scores (0-100 scale)",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 75, 80, 85, 90, 95, 100},
		},
	)

	// Screener metrics
	ScreenerQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accumwatch_screener_queries_total",
			Help: "Total number of screener queries served",
		},
		[]string{"preset", "status"}, // preset name or custom, success/error
	)

	// System health
	HealthChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accumwatch_health_checks_total",
			Help: "Total number of health check requests",
		},
		[]string{"status"}, // healthy/unhealthy
	)
)

// RecordIngest records the outcome of a single transfer event
func RecordIngest(status string) {
	TransfersIngested.WithLabelValues(status).Inc()
}

// RecordIngestBatch records timing for an ingestion batch
func RecordIngestBatch(start time.Time) {
	IngestBatchDuration.Observe(time.Since(start).Seconds())
}

// RecordSweep records the outcome and timing of a detection sweep
func RecordSweep(status string, start time.Time) {
	SweepsCompleted.WithLabelValues(status).Inc()
	SweepDuration.Observe(time.Since(start).Seconds())
}

// RecordSignal records a persisted signal and its score
func RecordSignal(signalType string, score float64) {
	SignalsDetected.WithLabelValues(signalType).Inc()
	SignalScores.Observe(score)
}

// RecordSuppressed records a candidate signal that was not persisted
func RecordSuppressed(reason string) {
	SignalsSuppressed.WithLabelValues(reason).Inc()
}

// RecordAlertSent records alert delivery metrics
func RecordAlertSent(success bool, alertType string) {
	status := "success"
	if !success {
		status = "error"
	}
	AlertsSent.WithLabelValues(status, alertType).Inc()
}

// RecordAPIRequest records feed API request metrics
func RecordAPIRequest(endpoint string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	APIRequests.WithLabelValues(endpoint, status).Inc()
	APIRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordDatabaseQuery records database query metrics
func RecordDatabaseQuery(operation string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	DatabaseQueries.WithLabelValues(operation, status).Inc()
	DatabaseQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHealthCheck records health check metrics
func RecordHealthCheck(healthy bool) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	HealthChecks.WithLabelValues(status).Inc()
}
