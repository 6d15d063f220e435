package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestServiceMetricsRecording(t *testing.T) {
	m := NewServiceMetrics()

	m.RecordPrediction(100 * time.Millisecond)
	m.RecordPrediction(300 * time.Millisecond)
	m.RecordExplanation()
	m.RecordError()

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.TotalPredictions)
	assert.Equal(t, int64(1), snap.TotalExplanations)
	assert.Equal(t, int64(1), snap.TotalErrors)
	assert.InDelta(t, 0.2, snap.AverageLatency, 1e-9)
	assert.False(t, snap.LastPredictionTime.IsZero())
}

func TestServiceMetricsConcurrentAccess(t *testing.T) {
	m := NewServiceMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordPrediction(10 * time.Millisecond)
			m.RecordExplanation()
			_ = m.Snapshot()
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	assert.Equal(t, int64(50), snap.TotalPredictions)
	assert.Equal(t, int64(50), snap.TotalExplanations)
}
