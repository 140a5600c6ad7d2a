package observability

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

func TestRecordRun(t *testing.T) {
	m := NewMetrics("test")

	m.RecordRun("api", nil, 2*time.Second)
	m.RecordRun("api", errors.New("boom"), time.Second)
	m.RecordRun("cli", nil, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BacktestRunsTotal.WithLabelValues("api", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BacktestRunsTotal.WithLabelValues("api", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BacktestRunsTotal.WithLabelValues("cli", "success")))
	assert.Positive(t, testutil.ToFloat64(m.LastSuccessfulRun))
}

func TestRecordCounters(t *testing.T) {
	m := NewMetrics("test")

	m.RecordStep(false)
	m.RecordStep(false)
	m.RecordStep(true)
	m.RecordTrade("Sold")
	m.RecordTrade("Held")
	m.RecordTrade("Held")
	m.RecordSkip("train")
	m.RecordCache("hit")
	m.RecordJob("baseline", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.StepsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StepsTotal.WithLabelValues("skipped")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TradesTotal.WithLabelValues("Held")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SkipsTotal.WithLabelValues("train")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRunsTotal.WithLabelValues("baseline", "success")))
}

func TestIndependentRegistries(t *testing.T) {
	// 인스턴스마다 별도 registry → 중복 등록 panic 없음
	a := NewMetrics("test")
	b := NewMetrics("test")

	a.RecordTrade("Sold")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.TradesTotal.WithLabelValues("Sold")))
}

func TestHandler(t *testing.T) {
	m := NewMetrics("test")
	m.RecordRequest("/api/backtest", http.StatusOK, 10*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `test_http_requests_total{code="OK",route="/api/backtest"} 1`)
}
