// Package metrics tracks service-level prediction and explanation counters.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xai_predictions_total",
			Help: "Predictions served, labeled by predicted outcome.",
		},
		[]string{"outcome"},
	)

	PredictionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xai_prediction_errors_total",
			Help: "Failed prediction requests, labeled by error kind.",
		},
		[]string{"kind"},
	)

	ExplanationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "xai_explanations_total",
		Help: "Explanations served.",
	})

	ExplanationsDegraded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xai_explanations_degraded_total",
			Help: "Explanations served with one method degraded to zero.",
		},
		[]string{"method"},
	)

	PredictionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "xai_prediction_duration_seconds",
		Help:    "Wall time of the assemble-and-predict pipeline.",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		PredictionsTotal,
		PredictionErrors,
		ExplanationsTotal,
		ExplanationsDegraded,
		PredictionDuration,
	)
}

// Snapshot is a point-in-time copy of the service counters, exposed on the
// admin stats endpoint alongside the Prometheus registry.
type Snapshot struct {
	TotalPredictions   int64     `json:"total_predictions"`
	TotalExplanations  int64     `json:"total_explanations"`
	TotalErrors        int64     `json:"total_errors"`
	LastPredictionTime time.Time `json:"last_prediction_time"`
	AverageLatency     float64   `json:"average_latency"`
}

// ServiceMetrics tracks mutex-guarded service counters.
type ServiceMetrics struct {
	mu sync.RWMutex

	totalPredictions   int64
	totalExplanations  int64
	totalErrors        int64
	lastPredictionTime time.Time
	totalLatency       float64
}

// NewServiceMetrics creates an empty snapshot.
func NewServiceMetrics() *ServiceMetrics {
	return &ServiceMetrics{}
}

// RecordPrediction folds one served prediction into the counters.
func (m *ServiceMetrics) RecordPrediction(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalPredictions++
	m.totalLatency += latency.Seconds()
	m.lastPredictionTime = time.Now()
}

// RecordExplanation folds one served explanation into the counters.
func (m *ServiceMetrics) RecordExplanation() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalExplanations++
}

// RecordError counts one failed request.
func (m *ServiceMetrics) RecordError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalErrors++
}

// Snapshot returns a copy safe for serialization.
func (m *ServiceMetrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		TotalPredictions:   m.totalPredictions,
		TotalExplanations:  m.totalExplanations,
		TotalErrors:        m.totalErrors,
		LastPredictionTime: m.lastPredictionTime,
	}
	if m.totalPredictions > 0 {
		snap.AverageLatency = m.totalLatency / float64(m.totalPredictions)
	}
	return snap
}
