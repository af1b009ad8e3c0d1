package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	collector := NewCollector(false)

	assert.NotNil(t, collector, "NewCollector should return a non-nil collector")
	assert.NotNil(t, collector.jobsSubmitted, "jobsSubmitted counter should be initialized")
	assert.NotNil(t, collector.jobsRejected, "jobsRejected counter should be initialized")
	assert.NotNil(t, collector.jobDuration, "jobDuration histogram should be initialized")
	assert.NotNil(t, collector.tickInterval, "tickInterval gauge should be initialized")
}

func TestCollectorsAreIndependent(t *testing.T) {
	// 每個 Collector 自帶 Registry，重複建立不應 panic
	assert.NotPanics(t, func() {
		a := NewCollector(true)
		b := NewCollector(true)
		a.RecordSubmitted()
		assert.Equal(t, 1.0, testutil.ToFloat64(a.jobsSubmitted))
		assert.Equal(t, 0.0, testutil.ToFloat64(b.jobsSubmitted))
	})
}

func TestRecordRejected(t *testing.T) {
	collector := NewCollector(false)

	collector.RecordRejected(ReasonQueueFull)
	collector.RecordRejected(ReasonQueueFull)
	collector.RecordRejected(ReasonInvalidInput)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.jobsRejected.WithLabelValues(ReasonQueueFull)))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.jobsRejected.WithLabelValues(ReasonInvalidInput)))
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.jobsRejected.WithLabelValues(ReasonInvalidAlgorithm)))
}

func TestRecordLifecycle(t *testing.T) {
	collector := NewCollector(false)

	collector.RecordSubmitted()
	collector.RecordDispatch()
	collector.RecordCompleted("md5", 10*time.Millisecond)
	collector.RecordFailed("slow", 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.jobsSubmitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.jobsDispatched))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.jobsCompleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.jobsFailed))
	// 只有 md5 有觀測值
	assert.Equal(t, 1, testutil.CollectAndCount(collector.jobDuration))
}

func TestUpdateQueueStats(t *testing.T) {
	collector := NewCollector(false)

	testCases := []struct {
		name     string
		queued   int
		inFlight int
		history  int
	}{
		{"zero values", 0, 0, 0},
		{"normal values", 10, 4, 120},
		{"full history", 3, 8, 500},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			collector.UpdateQueueStats(tc.queued, tc.inFlight, tc.history)
			assert.Equal(t, float64(tc.queued), testutil.ToFloat64(collector.jobsQueued))
			assert.Equal(t, float64(tc.inFlight), testutil.ToFloat64(collector.jobsInFlight))
			assert.Equal(t, float64(tc.history), testutil.ToFloat64(collector.historySize))
		})
	}
}

func TestSetInterval(t *testing.T) {
	collector := NewCollector(false)
	collector.SetInterval(250 * time.Millisecond)
	assert.Equal(t, 0.25, testutil.ToFloat64(collector.tickInterval))
}

func TestConcurrentMetricUpdates(t *testing.T) {
	collector := NewCollector(false)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				collector.RecordSubmitted()
				collector.RecordDispatch()
				collector.UpdateQueueStats(j, j, j)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000.0, testutil.ToFloat64(collector.jobsSubmitted))
	assert.Equal(t, 1000.0, testutil.ToFloat64(collector.jobsDispatched))
}

func TestHandler(t *testing.T) {
	collector := NewCollector(false)
	collector.RecordSubmitted()

	srv := httptest.NewServer(collector.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "hashqueue_jobs_submitted_total 1")
}
