package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analyst_bot_messages_received_total",
		Help: "Total number of updates received",
	}, []string{"type"})

	messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analyst_bot_messages_processed_total",
		Help: "Total number of updates processed",
	}, []string{"status"})

	commandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analyst_bot_commands_executed_total",
		Help: "Total number of commands executed",
	}, []string{"command"})

	aiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "analyst_bot_ai_request_duration_seconds",
		Help:    "Duration of completion passes",
		Buckets: prometheus.DefBuckets,
	}, []string{"model", "status"})

	aiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analyst_bot_ai_requests_total",
		Help: "Total number of completion passes",
	}, []string{"model", "status"})

	modelRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analyst_bot_model_rotations_total",
		Help: "Total number of fallback advances to the next model",
	})

	filesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analyst_bot_files_processed_total",
		Help: "Total number of uploaded files processed",
	}, []string{"format", "status"})

	replyChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analyst_bot_reply_chunks_total",
		Help: "Total number of Telegram messages sent for replies",
	})

	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analyst_bot_cache_hits_total",
		Help: "Total number of answer cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analyst_bot_cache_misses_total",
		Help: "Total number of answer cache misses",
	})

	rateLimitExceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analyst_bot_rate_limit_exceeded_total",
		Help: "Total number of requests rejected by the rate limiter",
	})

	storageOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analyst_bot_storage_operations_total",
		Help: "Total number of storage operations",
	}, []string{"operation", "status"})

	storageOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "analyst_bot_storage_operation_duration_seconds",
		Help:    "Duration of storage operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	activeUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "analyst_bot_active_users",
		Help: "Number of users with an active rate-limit bucket",
	})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordMessageReceived records a received update by type
func (m *Metrics) RecordMessageReceived(updateType string) {
	messagesReceived.WithLabelValues(updateType).Inc()
}

// RecordMessageProcessed records a processed update
func (m *Metrics) RecordMessageProcessed(status string) {
	messagesProcessed.WithLabelValues(status).Inc()
}

// RecordCommandExecuted records an executed command
func (m *Metrics) RecordCommandExecuted(command string) {
	commandsExecuted.WithLabelValues(command).Inc()
}

// RecordAIRequest records a completion pass with the model that answered
func (m *Metrics) RecordAIRequest(model, status string, duration time.Duration) {
	aiRequestDuration.WithLabelValues(model, status).Observe(duration.Seconds())
	aiRequestsTotal.WithLabelValues(model, status).Inc()
}

// AddModelRotations records fallback advances made during a pass
func (m *Metrics) AddModelRotations(count int) {
	if count > 0 {
		modelRotations.Add(float64(count))
	}
}

// RecordFileProcessed records an uploaded file by detected format
func (m *Metrics) RecordFileProcessed(format, status string) {
	filesProcessed.WithLabelValues(format, status).Inc()
}

// AddReplyChunks records how many Telegram messages a reply took
func (m *Metrics) AddReplyChunks(count int) {
	if count > 0 {
		replyChunks.Add(float64(count))
	}
}

// RecordCacheHit records an answer cache hit
func (m *Metrics) RecordCacheHit() {
	cacheHits.Inc()
}

// RecordCacheMiss records an answer cache miss
func (m *Metrics) RecordCacheMiss() {
	cacheMisses.Inc()
}

// RecordRateLimitExceeded records a rejected request
func (m *Metrics) RecordRateLimitExceeded() {
	rateLimitExceeded.Inc()
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(operation, status string, duration time.Duration) {
	storageOperations.WithLabelValues(operation, status).Inc()
	storageOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetActiveUsers sets the active user gauge
func (m *Metrics) SetActiveUsers(count float64) {
	activeUsers.Set(count)
}

// StartMetricsServer starts the metrics HTTP server
func StartMetricsServer(port int, path string) error {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler())

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
