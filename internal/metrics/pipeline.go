package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline Prometheus metrics.
var (
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragchat",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each external call in the answer pipeline",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage", "provider"},
	)

	StageErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragchat",
			Name:      "stage_errors_total",
			Help:      "Total failed pipeline stages by failure kind",
		},
		[]string{"stage", "provider", "kind"},
	)

	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragchat",
			Name:      "turns_total",
			Help:      "Total conversation turns by outcome",
		},
		[]string{"status"}, // "answered" / "failed" / "rejected"
	)

	SearchHits = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ragchat",
			Name:      "search_hits",
			Help:      "Number of hits returned by the vector index per query",
			Buckets:   []float64{0, 1, 2, 5, 10},
		},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "ragchat",
			Name:      "active_sessions",
			Help:      "Number of open conversation sessions",
		},
	)
)

var registerPipelineOnce sync.Once

// RegisterPipelineMetrics registers the pipeline metrics with the default registry.
// Safe to call more than once.
func RegisterPipelineMetrics() {
	registerPipelineOnce.Do(func() {
		prometheus.MustRegister(StageDuration)
		prometheus.MustRegister(StageErrorsTotal)
		prometheus.MustRegister(TurnsTotal)
		prometheus.MustRegister(SearchHits)
		prometheus.MustRegister(ActiveSessions)
	})
}
