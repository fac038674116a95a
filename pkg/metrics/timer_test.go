package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	require.NotNil(t, timer)

	time.Sleep(20 * time.Millisecond)
	first := timer.Duration()
	assert.GreaterOrEqual(t, first, 20*time.Millisecond)

	time.Sleep(5 * time.Millisecond)
	assert.Greater(t, timer.Duration(), first, "duration keeps growing")
}

func TestTimerObserve(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_drain_duration_seconds",
		Help: "Test histogram",
	})
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "test_provisioner_call_duration_seconds",
		Help: "Test histogram vector",
	}, []string{"op"})

	timer := NewTimer()
	timer.ObserveDuration(histogram)
	timer.ObserveDurationVec(vec, "plan")
	timer.ObserveDurationVec(vec, "plan")
	timer.ObserveDurationVec(vec, "apply")

	assert.Equal(t, 1, testutil.CollectAndCount(histogram))
	assert.Equal(t, 2, testutil.CollectAndCount(vec), "one series per op")
}
