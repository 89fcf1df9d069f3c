// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "transcription_icd_coder"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Row metrics
	RowsTotal      prometheus.Counter
	RowsSucceeded  prometheus.Counter
	RowsFailed     *prometheus.CounterVec
	MatchesSkipped prometheus.Counter

	// Batch metrics
	BatchDuration    prometheus.Histogram
	BatchRows        prometheus.Gauge
	LastRunTimestamp prometheus.Gauge

	// LLM metrics
	LLMLatency *prometheus.HistogramVec
	LLMErrors  *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RowsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Total number of transcription rows processed",
		}),
		RowsSucceeded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_succeeded_total",
			Help:      "Total number of rows where every attempted stage succeeded",
		}),
		RowsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_failed_total",
			Help:      "Total number of rows that failed, by pipeline stage",
		}, []string{"stage"}),
		MatchesSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_skipped_total",
			Help:      "Rows where no treatment was extracted so code matching was skipped",
		}),

		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Duration of a full batch run in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		BatchRows: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_rows",
			Help:      "Number of input rows in the current batch",
		}),
		LastRunTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last batch finished",
		}),

		LLMLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_latency_seconds",
			Help:      "Completion service call latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "function"}),
		LLMErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_errors_total",
			Help:      "Total number of completion service errors",
		}, []string{"provider", "function", "error_type"}),

		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordBatchStart records the size of a batch about to run.
func (m *Metrics) RecordBatchStart(rows int) {
	m.BatchRows.Set(float64(rows))
}

// RecordBatchEnd records a finished batch.
func (m *Metrics) RecordBatchEnd(durationSeconds float64, finishedUnix float64) {
	m.BatchDuration.Observe(durationSeconds)
	m.LastRunTimestamp.Set(finishedUnix)
}

// RecordRow records one processed row. An empty stage means success.
func (m *Metrics) RecordRow(failedStage string) {
	m.RowsTotal.Inc()
	if failedStage == "" {
		m.RowsSucceeded.Inc()
		return
	}
	m.RowsFailed.WithLabelValues(failedStage).Inc()
}

// RecordMatchSkipped records a row with no treatment to match.
func (m *Metrics) RecordMatchSkipped() {
	m.MatchesSkipped.Inc()
}

// RecordLLMCall records a completion call. An empty errorType means success.
func (m *Metrics) RecordLLMCall(provider, function string, latencySeconds float64, errorType string) {
	m.LLMLatency.WithLabelValues(provider, function).Observe(latencySeconds)
	if errorType != "" {
		m.LLMErrors.WithLabelValues(provider, function, errorType).Inc()
	}
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// Push sends everything gathered by g to a Prometheus Pushgateway.
// Batch jobs exit before a scrape would happen, so results are pushed.
func Push(ctx context.Context, url, job string, g prometheus.Gatherer) error {
	return push.New(url, job).Gatherer(g).PushContext(ctx)
}
