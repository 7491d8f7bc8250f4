package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// Config configures metric const labels.
type Config struct {
	ServiceName string
	Environment string
}

const (
	PipelineReanalysis = "reanalysis"
	PipelineDiscovery  = "discovery"
	PipelineCompetitor = "competitor"
	PipelineSourcing   = "sourcing"
)

const (
	PipelineErrorReasonDeadlineExceeded = "deadline_exceeded"
	PipelineErrorReasonMarketplace      = "marketplace"
	PipelineErrorReasonDB               = "db"
	PipelineErrorReasonUniqueViolation  = "unique_violation"
	PipelineErrorReasonUnknown          = "unknown"
)

const (
	FetchOutcomeOK       = "ok"
	FetchOutcomeNotFound = "not_found"
	FetchOutcomeError    = "error"
)

// PipelineMetrics captures pipeline health signals.
type PipelineMetrics struct {
	runs             *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	runErrors        *prometheus.CounterVec
	itemsProcessed   *prometheus.CounterVec
	fetchOutcomes    *prometheus.CounterVec
	snapshotsWritten prometheus.Counter
	snapshotsDeduped prometheus.Counter
	alertsEmitted    prometheus.Counter
	queueJobs        *prometheus.CounterVec
	queueJobFailures *prometheus.CounterVec
}

var (
	pipelineMetricsOnce sync.Once
	pipelineMetrics     *PipelineMetrics
)

// Pipeline returns the singleton pipeline metrics registry.
func Pipeline() *PipelineMetrics {
	return PipelineWithConfig(Config{})
}

// PipelineWithConfig returns the singleton pipeline metrics registry using config labels.
func PipelineWithConfig(cfg Config) *PipelineMetrics {
	pipelineMetricsOnce.Do(func() {
		pipelineMetrics = newPipelineMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return pipelineMetrics
}

// ResetPipelineMetricsForTest resets the pipeline metrics singleton for tests.
func ResetPipelineMetricsForTest() {
	pipelineMetricsOnce = sync.Once{}
	pipelineMetrics = nil
}

func newPipelineMetrics(registerer prometheus.Registerer, cfg Config) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "marketpulse"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "marketpulse_pipeline_runs_total",
		Help:        "Pipeline runs by pipeline name.",
		ConstLabels: constLabels,
	}, []string{"pipeline"})
	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "marketpulse_pipeline_duration_seconds",
		Help:        "Pipeline run latency.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300, 600},
		ConstLabels: constLabels,
	}, []string{"pipeline"})
	runErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "marketpulse_pipeline_errors_total",
		Help:        "Pipeline errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"pipeline", "reason"})
	itemsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "marketpulse_pipeline_items_total",
		Help:        "Items processed per pipeline to gauge throughput.",
		ConstLabels: constLabels,
	}, []string{"pipeline"})
	fetchOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "marketpulse_fetch_outcomes_total",
		Help:        "Marketplace detail fetch outcomes.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	snapshotsWritten := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "marketpulse_snapshots_written_total",
		Help:        "Product snapshots persisted.",
		ConstLabels: constLabels,
	})
	snapshotsDeduped := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "marketpulse_snapshots_deduped_total",
		Help:        "Snapshots skipped by the minimum gap guard.",
		ConstLabels: constLabels,
	})
	alertsEmitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "marketpulse_alerts_emitted_total",
		Help:        "Competitor price alerts emitted.",
		ConstLabels: constLabels,
	})
	queueJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "marketpulse_queue_jobs_total",
		Help:        "Queue jobs consumed per queue.",
		ConstLabels: constLabels,
	}, []string{"queue"})
	queueJobFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "marketpulse_queue_job_failures_total",
		Help:        "Queue job handler failures per queue.",
		ConstLabels: constLabels,
	}, []string{"queue"})

	registerer.MustRegister(
		runs,
		runDuration,
		runErrors,
		itemsProcessed,
		fetchOutcomes,
		snapshotsWritten,
		snapshotsDeduped,
		alertsEmitted,
		queueJobs,
		queueJobFailures,
	)

	return &PipelineMetrics{
		runs:             runs,
		runDuration:      runDuration,
		runErrors:        runErrors,
		itemsProcessed:   itemsProcessed,
		fetchOutcomes:    fetchOutcomes,
		snapshotsWritten: snapshotsWritten,
		snapshotsDeduped: snapshotsDeduped,
		alertsEmitted:    alertsEmitted,
		queueJobs:        queueJobs,
		queueJobFailures: queueJobFailures,
	}
}

// IncRun increments the run counter for a pipeline.
func (m *PipelineMetrics) IncRun(pipeline string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(pipeline).Inc()
}

// ObserveRunDuration records pipeline run latency in seconds.
func (m *PipelineMetrics) ObserveRunDuration(pipeline string, duration time.Duration) {
	if m == nil || m.runDuration == nil {
		return
	}
	m.runDuration.WithLabelValues(pipeline).Observe(duration.Seconds())
}

// IncRunError increments the pipeline error counter with classification.
func (m *PipelineMetrics) IncRunError(pipeline string, err error) {
	if m == nil || m.runErrors == nil || err == nil {
		return
	}
	m.runErrors.WithLabelValues(pipeline, ClassifyPipelineErrorReason(err)).Inc()
}

// AddItemsProcessed adds to the items processed counter for a pipeline.
func (m *PipelineMetrics) AddItemsProcessed(pipeline string, count int) {
	if m == nil || m.itemsProcessed == nil || count <= 0 {
		return
	}
	m.itemsProcessed.WithLabelValues(pipeline).Add(float64(count))
}

// IncFetchOutcome increments the fetch outcome counter.
func (m *PipelineMetrics) IncFetchOutcome(outcome string) {
	if m == nil || m.fetchOutcomes == nil {
		return
	}
	m.fetchOutcomes.WithLabelValues(outcome).Inc()
}

// IncSnapshotWritten increments the snapshot persisted counter.
func (m *PipelineMetrics) IncSnapshotWritten() {
	if m == nil || m.snapshotsWritten == nil {
		return
	}
	m.snapshotsWritten.Inc()
}

// IncSnapshotDeduped increments the snapshot dedup counter.
func (m *PipelineMetrics) IncSnapshotDeduped() {
	if m == nil || m.snapshotsDeduped == nil {
		return
	}
	m.snapshotsDeduped.Inc()
}

// IncAlertEmitted increments the alert counter.
func (m *PipelineMetrics) IncAlertEmitted() {
	if m == nil || m.alertsEmitted == nil {
		return
	}
	m.alertsEmitted.Inc()
}

// IncQueueJob increments the jobs consumed counter for a queue.
func (m *PipelineMetrics) IncQueueJob(queue string) {
	if m == nil || m.queueJobs == nil {
		return
	}
	m.queueJobs.WithLabelValues(queue).Inc()
}

// IncQueueJobFailure increments the handler failure counter for a queue.
func (m *PipelineMetrics) IncQueueJobFailure(queue string) {
	if m == nil || m.queueJobFailures == nil {
		return
	}
	m.queueJobFailures.WithLabelValues(queue).Inc()
}

// ClassifyPipelineErrorReason maps pipeline errors to low-cardinality reasons.
func ClassifyPipelineErrorReason(err error) string {
	if err == nil {
		return PipelineErrorReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return PipelineErrorReasonDeadlineExceeded
	}
	if isUniqueViolation(err) {
		return PipelineErrorReasonUniqueViolation
	}
	if isDBError(err) {
		return PipelineErrorReasonDB
	}
	return PipelineErrorReasonUnknown
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return hasPGCode(err, "23505")
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
