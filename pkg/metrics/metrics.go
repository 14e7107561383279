// Package metrics holds the Prometheus collectors for upload sessions and
// pipeline runs. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	activeSessions  prometheus.Gauge
	sessionOutcomes *prometheus.CounterVec
	chunksAccepted  prometheus.Counter
	chunkBytes      prometheus.Counter
	runOutcomes     *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	runCost         prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "notebot",
			Name:      "upload_sessions_active",
			Help:      "Upload sessions currently tracked.",
		}),
		sessionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notebot",
			Name:      "upload_sessions_finished_total",
			Help:      "Upload sessions removed from the table, by final state.",
		}, []string{"state"}),
		chunksAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "notebot",
			Name:      "chunks_accepted_total",
			Help:      "Chunks written to the chunk store.",
		}),
		chunkBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "notebot",
			Name:      "chunk_bytes_total",
			Help:      "Bytes written to the chunk store.",
		}),
		runOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notebot",
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by outcome and failing stage.",
		}, []string{"outcome", "stage"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "notebot",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Time spent in each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 16),
		}, []string{"stage"}),
		runCost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "notebot",
			Name:      "pipeline_cost_dollars_total",
			Help:      "Accumulated provider cost of successful runs.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.activeSessions,
			m.sessionOutcomes,
			m.chunksAccepted,
			m.chunkBytes,
			m.runOutcomes,
			m.stageDuration,
			m.runCost,
		)
	}
	return m
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) SessionClosed(state string) {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
	m.sessionOutcomes.WithLabelValues(state).Inc()
}

func (m *Metrics) ChunkAccepted(size int) {
	if m == nil {
		return
	}
	m.chunksAccepted.Inc()
	m.chunkBytes.Add(float64(size))
}

func (m *Metrics) StageFinished(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) RunSucceeded(totalCost float64) {
	if m == nil {
		return
	}
	m.runOutcomes.WithLabelValues("succeeded", "").Inc()
	m.runCost.Add(totalCost)
}

func (m *Metrics) RunFailed(stage string) {
	if m == nil {
		return
	}
	m.runOutcomes.WithLabelValues("failed", stage).Inc()
}
