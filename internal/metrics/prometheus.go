package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for ingestion, caching, training and the API

var (
	// Upstream call metrics
	UpstreamCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courtcast_upstream_calls_total",
			Help: "Total number of upstream provider calls",
		},
		[]string{"endpoint", "status"},
	)

	UpstreamCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courtcast_upstream_call_duration_seconds",
			Help:    "Duration of upstream calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Cache metrics
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courtcast_cache_hits_total",
			Help: "Total number of cache hits",
		},
	)

	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courtcast_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	CacheErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courtcast_cache_errors_total",
			Help: "Cache operations that failed open",
		},
		[]string{"operation"},
	)

	CacheOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courtcast_cache_operation_duration_seconds",
			Help:    "Duration of cache operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// Ingestion metrics
	IngestionRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courtcast_ingestion_runs_total",
			Help: "Total number of ingestion runs",
		},
		[]string{"type", "status"},
	)

	IngestionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courtcast_ingestion_duration_seconds",
			Help:    "Duration of ingestion runs in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"type"},
	)

	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courtcast_records_total",
			Help: "Records processed by ingestion, by outcome",
		},
		[]string{"type", "outcome"},
	)

	LastSuccessfulSync = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courtcast_last_successful_sync_timestamp",
			Help: "Timestamp of last successful ingestion run",
		},
	)

	// Training and prediction metrics
	TrainingRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courtcast_training_runs_total",
			Help: "Total number of training runs",
		},
		[]string{"status"},
	)

	ValidationLoss = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courtcast_model_validation_loss",
			Help: "Best validation loss of the most recently trained model",
		},
	)

	PredictionsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courtcast_predictions_generated_total",
			Help: "Team predictions written",
		},
		[]string{"model_type"},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courtcast_http_requests_total",
			Help: "REST requests served",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "courtcast_http_request_duration_seconds",
			Help:    "REST request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Websocket metrics
	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "courtcast_websocket_clients",
			Help: "Connected websocket clients",
		},
	)

	WebsocketDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "courtcast_websocket_dropped_total",
			Help: "Websocket messages dropped for slow clients",
		},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "courtcast_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)

// RecordUpstreamCall records an upstream call metric
func RecordUpstreamCall(endpoint, status string, duration float64) {
	UpstreamCallsTotal.WithLabelValues(endpoint, status).Inc()
	UpstreamCallDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordCacheHit records a cache hit
func RecordCacheHit() {
	CacheHitsTotal.Inc()
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss() {
	CacheMissesTotal.Inc()
}

// RecordCacheError records a cache failure that was swallowed
func RecordCacheError(operation string) {
	CacheErrorsTotal.WithLabelValues(operation).Inc()
}

// RecordCacheOperation records a cache operation duration
func RecordCacheOperation(operation string, duration float64) {
	CacheOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordIngestion records a finished ingestion run
func RecordIngestion(ingestionType, status string, duration float64) {
	IngestionRunsTotal.WithLabelValues(ingestionType, status).Inc()
	IngestionDuration.WithLabelValues(ingestionType).Observe(duration)

	if status == "success" {
		LastSuccessfulSync.SetToCurrentTime()
	}
}

// RecordRecords adds per-outcome record counts for an ingestion type
func RecordRecords(ingestionType string, written, skipped, failed int) {
	RecordsTotal.WithLabelValues(ingestionType, "written").Add(float64(written))
	RecordsTotal.WithLabelValues(ingestionType, "skipped").Add(float64(skipped))
	RecordsTotal.WithLabelValues(ingestionType, "failed").Add(float64(failed))
}

// RecordTraining records a training run and its best validation loss
func RecordTraining(status string, valLoss float64) {
	TrainingRunsTotal.WithLabelValues(status).Inc()
	if status == "success" {
		ValidationLoss.Set(valLoss)
	}
}

// RecordPredictions records written predictions
func RecordPredictions(modelType string, n int) {
	PredictionsGenerated.WithLabelValues(modelType).Add(float64(n))
}

// RecordHTTPRequest records a served REST request
func RecordHTTPRequest(route, method, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(route, method, status).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(duration)
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// SetWebsocketClients records the connected client count
func SetWebsocketClients(n int) {
	WebsocketClients.Set(float64(n))
}

// RecordWebsocketDrop counts a message a client could not take
func RecordWebsocketDrop() {
	WebsocketDropped.Inc()
}
