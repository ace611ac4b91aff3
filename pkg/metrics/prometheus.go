// Package metrics provides Prometheus metrics for the teamelo rating engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector exposed by teamelo.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	deltaBuckets     []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Rating engine
	gamesProcessed    prometheus.Counter
	gamesDuplicate    prometheus.Counter
	playersRegistered prometheus.Counter
	totalPlayers      prometheus.Gauge
	ratingDelta       prometheus.Histogram
	replayDuration    prometheus.Histogram

	// Balancer
	balanceRequests   prometheus.Counter
	balanceCandidates prometheus.Counter
	balanceLatency    prometheus.Histogram
	balanceErrors     *prometheus.CounterVec

	// Calibration
	calibrationEvaluations prometheus.Counter

	// Ingest queue
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueEnqueued prometheus.Counter
	queueRejected *prometheus.CounterVec
	workerLatency prometheus.Histogram
	workerErrors  prometheus.Counter
	workersActive prometheus.Gauge

	// Snapshots
	snapshotOps      *prometheus.CounterVec
	snapshotDuration *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec

	// Runtime
	systemMemory     prometheus.Gauge
	systemGoroutines prometheus.Gauge
	systemGCPause    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // process-wide collectors

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // served by /healthz

func init() { //nolint:gochecknoinits // register collectors once per process
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "teamelo",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		deltaBuckets:     []float64{-120, -90, -60, -30, -15, -5, 0, 5, 15, 30, 60, 90, 120},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.gamesProcessed = auto.NewCounter(m.counterOpts("games_processed_total", "Total number of games applied to the rating store"))
	m.gamesDuplicate = auto.NewCounter(m.counterOpts("games_duplicate_total", "Total number of game submissions ignored because the game id was already applied"))
	m.playersRegistered = auto.NewCounter(m.counterOpts("players_registered_total", "Players inserted at the default rating on first appearance in a game"))
	m.totalPlayers = auto.NewGauge(m.gaugeOpts("players", "Number of players currently held by the rating store"))
	m.ratingDelta = auto.NewHistogram(m.histogramOpts("rating_delta", "Rating delta applied to team1 per game", m.deltaBuckets))
	m.replayDuration = auto.NewHistogram(m.histogramOpts("replay_duration_seconds", "Wall time of a full historical replay", m.histogramBuckets))

	m.balanceRequests = auto.NewCounter(m.counterOpts("balance_requests_total", "Total number of balanced split searches"))
	m.balanceCandidates = auto.NewCounter(m.counterOpts("balance_candidates_total", "Half-size combinations scored by the balancer"))
	m.balanceLatency = auto.NewHistogram(m.histogramOpts("balance_duration_seconds", "Wall time of a balanced split search", m.histogramBuckets))
	m.balanceErrors = auto.NewCounterVec(m.counterOpts("balance_errors_total", "Rejected balance requests by reason"), []string{"reason"})

	m.calibrationEvaluations = auto.NewCounter(m.counterOpts("calibration_evaluations_total", "Objective evaluations performed while fitting the K factor"))

	m.queueSize = auto.NewGauge(m.gaugeOpts("ingest_queue_size", "Games waiting in the ingest queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("ingest_queue_capacity", "Capacity of the ingest queue"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("ingest_enqueued_total", "Games accepted into the ingest queue"))
	m.queueRejected = auto.NewCounterVec(m.counterOpts("ingest_rejected_total", "Games refused by the ingest queue by reason"), []string{"reason"})
	m.workerLatency = auto.NewHistogram(m.histogramOpts("ingest_apply_duration_milliseconds", "Time to apply one queued game", m.histogramBuckets))
	m.workerErrors = auto.NewCounter(m.counterOpts("ingest_errors_total", "Queued games that failed to apply"))
	m.workersActive = auto.NewGauge(m.gaugeOpts("ingest_workers", "Running ingest workers"))

	m.snapshotOps = auto.NewCounterVec(m.counterOpts("snapshot_operations_total", "Snapshot save/load operations by backend, op and result"), []string{"backend", "op", "result"})
	m.snapshotDuration = auto.NewHistogramVec(m.histogramOpts("snapshot_duration_seconds", "Snapshot save/load duration", m.histogramBuckets), []string{"backend", "op"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets), []string{"endpoint", "method", "status_code"})
	m.errorsByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total", "HTTP responses with status >= 400 by endpoint"), []string{"endpoint", "method", "error_type"})

	m.systemMemory = auto.NewGauge(m.gaugeOpts("system_memory_bytes", "Heap bytes allocated by the process"))
	m.systemGoroutines = auto.NewGauge(m.gaugeOpts("system_goroutines", "Number of live goroutines"))
	m.systemGCPause = auto.NewHistogram(m.histogramOpts("system_gc_pause_milliseconds", "Average GC pause per cycle in milliseconds", m.histogramBuckets))
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

// UpdateQueueSize sets the number of queued games.
func UpdateQueueSize(n int) {
	globalManager.queueSize.Set(float64(n))
}

// UpdateQueueCapacity sets the ingest queue capacity.
func UpdateQueueCapacity(n int) {
	globalManager.queueCapacity.Set(float64(n))
}

// RecordQueueEnqueue counts one accepted game.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueRejected counts one refused game. reason is closed, full or cancelled.
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// RecordWorkerLatency observes the time to apply one queued game.
func RecordWorkerLatency(ms float64) {
	globalManager.workerLatency.Observe(ms)
}

// RecordWorkerError counts one queued game that failed to apply.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// UpdateWorkerActiveCount sets the number of running ingest workers.
func UpdateWorkerActiveCount(n int) {
	globalManager.workersActive.Set(float64(n))
}

// RecordGameProcessed counts one applied game and observes its delta.
func RecordGameProcessed(delta float64) {
	globalManager.gamesProcessed.Inc()
	globalManager.ratingDelta.Observe(delta)
}

// RecordGameDuplicate counts a game submission skipped as already applied.
func RecordGameDuplicate() {
	globalManager.gamesDuplicate.Inc()
}

// RecordPlayersRegistered adds n implicitly registered players.
func RecordPlayersRegistered(n int) {
	if n > 0 {
		globalManager.playersRegistered.Add(float64(n))
	}
}

// UpdateTotalPlayers sets the rating store size.
func UpdateTotalPlayers(n int) {
	globalManager.totalPlayers.Set(float64(n))
}

// RecordReplayDuration observes a replay's wall time in seconds.
func RecordReplayDuration(seconds float64) {
	globalManager.replayDuration.Observe(seconds)
}

// RecordBalance records a completed split search.
func RecordBalance(candidates uint64, seconds float64) {
	globalManager.balanceRequests.Inc()
	globalManager.balanceCandidates.Add(float64(candidates))
	globalManager.balanceLatency.Observe(seconds)
}

// RecordBalanceError counts a rejected split search.
func RecordBalanceError(reason string) {
	globalManager.balanceErrors.WithLabelValues(reason).Inc()
}

// RecordCalibrationEvaluation counts one objective evaluation.
func RecordCalibrationEvaluation() {
	globalManager.calibrationEvaluations.Inc()
}

// RecordSnapshot records a snapshot operation. result is "ok" or "error".
func RecordSnapshot(backend, op, result string, seconds float64) {
	globalManager.snapshotOps.WithLabelValues(backend, op, result).Inc()
	globalManager.snapshotDuration.WithLabelValues(backend, op).Observe(seconds)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByEndpoint counts an error response.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the allocated heap bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemory.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the live goroutine count.
func UpdateSystemGoroutineCount(n int) {
	globalManager.systemGoroutines.Set(float64(n))
}

// RecordSystemGCPauseTime observes the average GC pause in milliseconds.
func RecordSystemGCPauseTime(ms float64) {
	globalManager.systemGCPause.Observe(ms)
}

// GetRegistry returns the registry holding teamelo's collectors.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
