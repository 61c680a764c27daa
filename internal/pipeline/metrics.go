package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// StageMetrics tracks per-stage latency and throughput, grounded on the
// teacher's promauto-built histogram/counter pattern
// (internal/hft/metrics/baseline_metrics.go).
type StageMetrics struct {
	Latency    prometheus.Histogram
	Throughput prometheus.Counter
	Faults     prometheus.Counter
}

func NewStageMetrics(stage string) *StageMetrics {
	return &StageMetrics{
		Latency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "exchange_core_stage_latency_microseconds",
			Help:    "Per-command processing latency for a pipeline stage.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
			ConstLabels: prometheus.Labels{
				"stage": stage,
			},
		}),
		Throughput: promauto.NewCounter(prometheus.CounterOpts{
			Name: "exchange_core_stage_commands_total",
			Help: "Total commands processed by a pipeline stage.",
			ConstLabels: prometheus.Labels{
				"stage": stage,
			},
		}),
		Faults: promauto.NewCounter(prometheus.CounterOpts{
			Name: "exchange_core_stage_faults_total",
			Help: "Total recovered panics in a pipeline stage.",
			ConstLabels: prometheus.Labels{
				"stage": stage,
			},
		}),
	}
}

// Observe records one processed command's latency and increments throughput.
func (m *StageMetrics) Observe(start time.Time) {
	m.Latency.Observe(float64(time.Since(start).Microseconds()))
	m.Throughput.Inc()
}
