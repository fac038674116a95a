package metrics

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetCurrentState(t *testing.T) {
	all := []string{"ALL_OLD", "CANARY_NEW", "HALF_AND_HALF", "CANARY_OLD", "ALL_NEW"}

	SetCurrentState("CANARY_NEW", all)
	assert.Equal(t, 1.0, testutil.ToFloat64(CurrentState.WithLabelValues("CANARY_NEW")))
	assert.Equal(t, 0.0, testutil.ToFloat64(CurrentState.WithLabelValues("ALL_OLD")))

	SetCurrentState("HALF_AND_HALF", all)
	assert.Equal(t, 0.0, testutil.ToFloat64(CurrentState.WithLabelValues("CANARY_NEW")))
	assert.Equal(t, 1.0, testutil.ToFloat64(CurrentState.WithLabelValues("HALF_AND_HALF")))
}

func TestWriteTextfile(t *testing.T) {
	RolloutsTotal.WithLabelValues("completed").Inc()

	path := filepath.Join(t.TempDir(), "fleetroll.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "fleetroll_rollouts_total")
}

func TestWriteTextfileMissingDir(t *testing.T) {
	err := WriteTextfile(filepath.Join(t.TempDir(), "missing", "fleetroll.prom"))
	assert.Error(t, err)
}

func TestPush(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	require.NoError(t, Push(server.URL, "fleetroll"))
	assert.Equal(t, "/metrics/job/fleetroll", gotPath)
}
