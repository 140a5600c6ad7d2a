package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkercarrus/cluster-trading-strategy/internal/observability"
	"github.com/parkercarrus/cluster-trading-strategy/pkg/logger"
)

type countingJob struct {
	name     string
	schedule string
	failures int32 // fail this many times before succeeding
	calls    atomic.Int32
}

func (j *countingJob) Name() string     { return j.name }
func (j *countingJob) Schedule() string { return j.schedule }
func (j *countingJob) Run(ctx context.Context) error {
	if n := j.calls.Add(1); n <= j.failures {
		return errors.New("transient")
	}
	return nil
}

func TestAddJob(t *testing.T) {
	s := New(logger.NewNop())

	require.NoError(t, s.AddJob(&countingJob{name: "a", schedule: "0 0 6 * * 1-5"}))
	assert.Error(t, s.AddJob(&countingJob{name: "a", schedule: "@daily"}), "duplicate")
	assert.Error(t, s.AddJob(&countingJob{name: "b", schedule: "not a cron"}))

	require.NoError(t, s.AddJob(&countingJob{name: "c", schedule: "@hourly"}))
	assert.Equal(t, []string{"a", "c"}, s.GetAllJobs())

	require.NoError(t, s.RemoveJob("c"))
	assert.Error(t, s.RemoveJob("c"))
	assert.Equal(t, []string{"a"}, s.GetAllJobs())
}

func TestRunJobRetries(t *testing.T) {
	metrics := observability.NewMetrics("test")
	s := New(logger.NewNop(), WithRetry(2, time.Millisecond), WithMetrics(metrics))

	job := &countingJob{name: "flaky", schedule: "@daily", failures: 2}
	require.NoError(t, s.AddJob(job))

	res, err := s.RunJob(context.Background(), "flaky")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, int32(3), job.calls.Load())

	_, err = s.RunJob(context.Background(), "missing")
	assert.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("flaky", "success")))
}

func TestRunJobGivesUp(t *testing.T) {
	s := New(logger.NewNop(), WithRetry(1, time.Millisecond))

	job := &countingJob{name: "broken", schedule: "@daily", failures: 100}
	require.NoError(t, s.AddJob(job))

	res, err := s.RunJob(context.Background(), "broken")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "transient", res.Error)
	assert.Equal(t, int32(2), job.calls.Load())

	stats := s.GetJobStats()["broken"]
	assert.Equal(t, 1, stats.TotalRuns)
	assert.Equal(t, 1, stats.FailureCount)
	assert.Zero(t, stats.SuccessRate)
	require.NotNil(t, stats.LastFailure)
	assert.Nil(t, stats.LastSuccess)

	history, err := s.GetJobHistory("broken")
	require.NoError(t, err)
	assert.Len(t, history.GetFailedResults(), 1)

	_, err = s.GetJobHistory("missing")
	assert.Error(t, err)
}

func TestRunJobStopsOnCancel(t *testing.T) {
	s := New(logger.NewNop(), WithRetry(5, time.Hour))
	job := &countingJob{name: "slow", schedule: "@daily", failures: 100}
	require.NoError(t, s.AddJob(job))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := s.RunJob(ctx, "slow")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, int32(1), job.calls.Load())
}

func TestStartStop(t *testing.T) {
	s := New(logger.NewNop())
	require.NoError(t, s.AddJob(&countingJob{name: "a", schedule: "@daily"}))

	s.Start()
	assert.False(t, s.NextRun("a").IsZero())
	assert.True(t, s.NextRun("missing").IsZero())
	s.Stop()
}

func TestJobHistory(t *testing.T) {
	h := &JobHistory{}
	_, ok := h.Last()
	assert.False(t, ok)
	assert.Zero(t, h.GetSuccessRate())

	for i := 0; i < historyLimit+5; i++ {
		h.AddResult(JobResult{JobName: "x", Success: i%2 == 0})
	}
	assert.Len(t, h.Results, historyLimit)
	assert.InDelta(t, 0.5, h.GetSuccessRate(), 1e-12)
}
