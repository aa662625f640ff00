package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the sync pipeline.
type Metrics struct {
	Registry         *prometheus.Registry
	SyncsTotal       *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	RowsUploaded     *prometheus.CounterVec
	CoercionWarnings *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	syncs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheetsync_syncs_total",
			Help: "Completed per-kind sync runs by result.",
		},
		[]string{"kind", "result"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sheetsync_stage_duration_seconds",
			Help:    "Duration of each pipeline stage.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind", "stage"},
	)
	rowsUploaded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheetsync_rows_uploaded_total",
			Help: "Rows written to worksheets.",
		},
		[]string{"kind"},
	)
	coercionWarnings := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheetsync_coercion_warnings_total",
			Help: "Columns left unconverted by a failed type coercion.",
		},
		[]string{"kind"},
	)

	registry.MustRegister(syncs, stageDuration, rowsUploaded, coercionWarnings)

	return &Metrics{
		Registry:         registry,
		SyncsTotal:       syncs,
		StageDuration:    stageDuration,
		RowsUploaded:     rowsUploaded,
		CoercionWarnings: coercionWarnings,
	}
}

// IncSync records the outcome of one resource kind's run.
func (m *Metrics) IncSync(kind string, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.SyncsTotal.WithLabelValues(kind, result).Inc()
}

// ObserveStage records the duration of a pipeline stage.
func (m *Metrics) ObserveStage(kind, stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(kind, stage).Observe(d.Seconds())
}

// AddRows records the number of rows uploaded for a kind.
func (m *Metrics) AddRows(kind string, rows int) {
	if m == nil {
		return
	}
	m.RowsUploaded.WithLabelValues(kind).Add(float64(rows))
}

// AddCoercionWarnings records unconverted columns for a kind.
func (m *Metrics) AddCoercionWarnings(kind string, count int) {
	if m == nil || count == 0 {
		return
	}
	m.CoercionWarnings.WithLabelValues(kind).Add(float64(count))
}
