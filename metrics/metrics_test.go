package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveBatchSubmitted(t *testing.T) {
	ok := testutil.ToFloat64(taskBatchesSubmittedTotal.WithLabelValues("append", OutcomeOK))
	failed := testutil.ToFloat64(taskBatchesSubmittedTotal.WithLabelValues("append", OutcomeError))

	ObserveBatchSubmitted("append", nil)
	ObserveBatchSubmitted("append", nil)
	ObserveBatchSubmitted("append", errors.New("boom"))

	assert.InDelta(t, ok+2, testutil.ToFloat64(taskBatchesSubmittedTotal.WithLabelValues("append", OutcomeOK)), 0)
	assert.InDelta(t, failed+1, testutil.ToFloat64(taskBatchesSubmittedTotal.WithLabelValues("append", OutcomeError)), 0)
}

func TestObserveTasksPlanned(t *testing.T) {
	before := testutil.ToFloat64(tasksPlannedTotal.WithLabelValues("split-tiles"))
	ObserveTasksPlanned("split-tiles", 7)
	assert.InDelta(t, before+7, testutil.ToFloat64(tasksPlannedTotal.WithLabelValues("split-tiles")), 0)
}

func TestPush(t *testing.T) {
	ObserveJobManagerRequest("create", 20*time.Millisecond)

	var path string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.NoError(t, Push(srv.URL, "tasker"))
	assert.Equal(t, "/metrics/job/tasker", path)
	assert.NotEmpty(t, body)
}
