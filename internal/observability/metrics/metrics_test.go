package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRow(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordRow("")
	m.RecordRow("")
	m.RecordRow("extraction")
	m.RecordRow("matching")

	assert.Equal(t, 4.0, testutil.ToFloat64(m.RowsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RowsSucceeded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RowsFailed.WithLabelValues("extraction")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RowsFailed.WithLabelValues("matching")))
}

func TestRecordLLMCall(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordLLMCall("openai", "match_icd_code", 0.3, "")
	m.RecordLLMCall("openai", "match_icd_code", 0.1, "timeout")

	assert.Equal(t, 1, testutil.CollectAndCount(m.LLMLatency))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMErrors.WithLabelValues("openai", "match_icd_code", "timeout")))
}

func TestRecordBatch(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordBatchStart(12)
	m.RecordMatchSkipped()
	m.RecordBatchEnd(3.5, 1700000000)

	assert.Equal(t, 12.0, testutil.ToFloat64(m.BatchRows))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MatchesSkipped))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.LastRunTimestamp))
}

func TestRecordKafkaPublish(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordKafkaPublish("coded", "coded", nil, 0.01)
	m.RecordKafkaPublish("coded", "coded", io.ErrUnexpectedEOF, 0.01)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.KafkaPublishTotal.WithLabelValues("coded", "coded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.KafkaPublishErrors.WithLabelValues("coded", "coded")))
}

func TestPush(t *testing.T) {
	var (
		mu     sync.Mutex
		path   string
		body   string
		method string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		path, method, body = r.URL.Path, r.Method, string(data)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.RecordRow("")

	err := Push(context.Background(), srv.URL, "icd-batch", reg)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.True(t, strings.HasSuffix(path, "/metrics/job/icd-batch"), "unexpected path %s", path)
	assert.NotEmpty(t, body)
}
