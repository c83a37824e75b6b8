package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New()
	m.ObserveProbe("available", 0.3)
	m.ObserveProbe("taken", 0.5)
	m.ObserveProbe("taken", 0.7)
	m.CandidateGenerated("L_DD")
	m.BatchCompleted()
	m.ProducerFailed()
	m.SetExclusionSize(42)
	m.SetCurrentBatch(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.probes.WithLabelValues("available")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.probes.WithLabelValues("taken")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.generated.WithLabelValues("L_DD")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.batchesCompleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.producerFailures))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.exclusionSize))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.currentBatch))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.BatchCompleted()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "handlegen_batch_completed_total 1")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveProbe("taken", 1)
	m.CandidateGenerated("x")
	m.BatchCompleted()
	m.ProducerFailed()
	m.SetExclusionSize(1)
	m.SetCurrentBatch(1)
	assert.Nil(t, m.Registry())
}
