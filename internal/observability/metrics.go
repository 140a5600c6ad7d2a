// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	registry *prometheus.Registry

	// Backtest metrics
	BacktestRunsTotal *prometheus.CounterVec
	BacktestDuration  prometheus.Histogram
	StepsTotal        *prometheus.CounterVec
	TradesTotal       *prometheus.CounterVec
	SkipsTotal        *prometheus.CounterVec
	CacheLookups      *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RateLimited         prometheus.Counter

	// Scheduler metrics
	JobRunsTotal *prometheus.CounterVec

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "cluster_trading"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		BacktestRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "runs_total",
			Help:      "Total number of backtest runs by source and status",
		}, []string{"source", "status"}),
		BacktestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "duration_seconds",
			Help:      "Backtest execution duration in seconds",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		}),
		StepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "steps_total",
			Help:      "Walk-forward steps by outcome",
		}, []string{"outcome"}),
		TradesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "trades_total",
			Help:      "Reconciled trades by status",
		}, []string{"status"}),
		SkipsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "skips_total",
			Help:      "Recoverable skips by stage",
		}, []string{"stage"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by outcome",
		}, []string{"outcome"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		}),

		JobRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by job and status",
		}, []string{"job", "status"}),

		LastSuccessfulRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_backtest_timestamp",
			Help:      "Unix timestamp of last successful backtest",
		}),
	}
}

// Registry exposes the underlying registry (tests gather from it)
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRun records one finished backtest.
func (m *Metrics) RecordRun(source string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.BacktestRunsTotal.WithLabelValues(source, status).Inc()
	m.BacktestDuration.Observe(d.Seconds())
	if err == nil {
		m.LastSuccessfulRun.SetToCurrentTime()
	}
}

// RecordStep counts a walk-forward step as completed or skipped.
func (m *Metrics) RecordStep(skipped bool) {
	if skipped {
		m.StepsTotal.WithLabelValues("skipped").Inc()
		return
	}
	m.StepsTotal.WithLabelValues("completed").Inc()
}

// RecordTrade counts a reconciled trade by status (Sold, Held).
func (m *Metrics) RecordTrade(status string) {
	m.TradesTotal.WithLabelValues(status).Inc()
}

// RecordSkip counts a recoverable skip by stage.
func (m *Metrics) RecordSkip(stage string) {
	m.SkipsTotal.WithLabelValues(stage).Inc()
}

// RecordCache counts a cache lookup (hit, miss, error).
func (m *Metrics) RecordCache(outcome string) {
	m.CacheLookups.WithLabelValues(outcome).Inc()
}

// RecordRequest records one HTTP request.
func (m *Metrics) RecordRequest(route string, code int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(route, http.StatusText(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// RecordJob records one scheduled job run.
func (m *Metrics) RecordJob(job string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.JobRunsTotal.WithLabelValues(job, status).Inc()
}
