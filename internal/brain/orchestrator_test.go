package brain

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkercarrus/cluster-trading-strategy/internal/backtest"
	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
	"github.com/parkercarrus/cluster-trading-strategy/internal/observability"
	"github.com/parkercarrus/cluster-trading-strategy/internal/s0_data"
	"github.com/parkercarrus/cluster-trading-strategy/internal/s0_data/s0test"
	"github.com/parkercarrus/cluster-trading-strategy/pkg/logger"
)

// memCache round-trips through JSON like the redis cache does
type memCache struct {
	data map[string][]byte
	sets int
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dest)
}

func (c *memCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = b
	c.sets++
	return nil
}

type memStore struct {
	runs   []backtest.RunRecord
	trades int
	rows   int
	err    error
}

func (s *memStore) SaveRun(_ context.Context, run backtest.RunRecord, trades []contracts.TradeRecord, ledger []contracts.LedgerRow) error {
	if s.err != nil {
		return s.err
	}
	s.runs = append(s.runs, run)
	s.trades += len(trades)
	s.rows += len(ledger)
	return nil
}

func testPanel(t *testing.T) *s0_data.Panel {
	jump := s0test.Date("2022-06-15")
	funds := map[string][]float64{"A": {1}, "B": {10}, "C": {11}}
	return s0test.Panel(t, s0test.Fixture{
		Calendar: s0test.Calendar(t, map[string]string{
			"2022_Q1": "2022-02-15",
			"2022_Q2": "2022-05-16",
			"2022_Q3": "2022-08-15",
			"2022_Q4": "2022-11-15",
		}),
		Start: s0test.Date("2022-01-03"),
		End:   s0test.Date("2023-03-31"),
		Prices: map[string]s0test.PriceFunc{
			"A":   s0test.Step(jump, 10, 20),
			"B":   s0test.Step(jump, 20, 10),
			"C":   s0test.Step(jump, 30, 15),
			"SPY": s0test.Linear(s0test.Date("2022-01-03"), 400, 0.1),
		},
		Columns: []string{"pe"},
		Fundamentals: map[string]map[string][]float64{
			"2022_Q1": funds,
			"2022_Q2": funds,
			"2022_Q3": funds,
			"2022_Q4": funds,
		},
	})
}

func testConfig() RunConfig {
	p := backtest.DefaultParams()
	p.K = 1
	p.SellThreshold = 0.5
	p.ClusterCount = 1
	p.Trees = 25
	p.Workers = 2
	return RunConfig{
		Params: p,
		Ledger: backtest.LedgerOptions{InitialCapital: 1000, ConfidenceWeighting: true},
		Source: "test",
	}
}

func TestRunComputesAndPersists(t *testing.T) {
	cache, store := newMemCache(), &memStore{}
	metrics := observability.NewMetrics("test")
	o := NewOrchestrator(backtest.NewEngine(testPanel(t), logger.NewNop()), logger.NewNop(),
		WithCache(cache, time.Hour), WithStore(store), WithMetrics(metrics))

	steps := 0
	res, err := o.Run(context.Background(), testConfig(), backtest.StepObserverFunc(func(backtest.StepReport) {
		steps++
	}))
	require.NoError(t, err)

	assert.Equal(t, 2, steps)
	assert.False(t, res.Cached)
	assert.NotEqual(t, uuid.Nil, res.RunID)
	require.NotEmpty(t, res.Trades)
	require.NotEmpty(t, res.Rows)
	assert.Equal(t, 1000.0, res.Rows[0].PortfolioValue)
	assert.Positive(t, res.Metrics.NetReturn)
	assert.Equal(t, len(res.Trades), res.Summary.TotalTrades)
	require.Len(t, res.Benchmark, len(res.Rows))

	require.Len(t, store.runs, 1)
	assert.Equal(t, res.ConfigHash, store.runs[0].ParamsHash)
	assert.Equal(t, res.RunID, store.runs[0].RunID)
	assert.Equal(t, len(res.Rows), store.rows)
	assert.Equal(t, 1, cache.sets)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.BacktestRunsTotal.WithLabelValues("test", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.StepsTotal.WithLabelValues("completed")))
}

func TestRunServesCache(t *testing.T) {
	cache, store := newMemCache(), &memStore{}
	o := NewOrchestrator(backtest.NewEngine(testPanel(t), logger.NewNop()), logger.NewNop(),
		WithCache(cache, time.Hour), WithStore(store))

	first, err := o.Run(context.Background(), testConfig())
	require.NoError(t, err)

	called := false
	second, err := o.Run(context.Background(), testConfig(), backtest.StepObserverFunc(func(backtest.StepReport) {
		called = true
	}))
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.False(t, called)
	assert.Len(t, store.runs, 1)
	assert.Equal(t, first.RunID, second.RunID)
	assert.Equal(t, first.ConfigHash, second.ConfigHash)
	require.Len(t, second.Trades, len(first.Trades))
	for i := range first.Trades {
		assert.Equal(t, first.Trades[i].Symbol, second.Trades[i].Symbol)
		assert.InDelta(t, first.Trades[i].Return, second.Trades[i].Return, 1e-12)
	}
	assert.Len(t, second.Rows, len(first.Rows))

	// NoCache → 재계산
	cfg := testConfig()
	cfg.NoCache = true
	third, err := o.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.False(t, third.Cached)
	assert.Len(t, store.runs, 2)
}

func TestRunDeterministic(t *testing.T) {
	o := NewOrchestrator(backtest.NewEngine(testPanel(t), logger.NewNop()), logger.NewNop())

	a, err := o.Run(context.Background(), testConfig())
	require.NoError(t, err)
	b, err := o.Run(context.Background(), testConfig())
	require.NoError(t, err)

	assert.NotEqual(t, a.RunID, b.RunID)
	assert.Equal(t, a.ConfigHash, b.ConfigHash)
	assert.Equal(t, a.Trades, b.Trades)
	assert.Equal(t, a.Rows, b.Rows)
}

func TestRunRejectsBadConfig(t *testing.T) {
	metrics := observability.NewMetrics("test")
	o := NewOrchestrator(backtest.NewEngine(testPanel(t), logger.NewNop()), logger.NewNop(), WithMetrics(metrics))

	cfg := testConfig()
	cfg.Ledger.InitialCapital = 0
	_, err := o.Run(context.Background(), cfg)
	assert.ErrorIs(t, err, contracts.ErrConfiguration)

	cfg = testConfig()
	cfg.Params.K = 0
	_, err = o.Run(context.Background(), cfg)
	assert.ErrorIs(t, err, contracts.ErrConfiguration)

	for _, capital := range []float64{math.NaN(), math.Inf(1)} {
		cfg = testConfig()
		cfg.Ledger.InitialCapital = capital
		_, err = o.Run(context.Background(), cfg)
		assert.ErrorIs(t, err, contracts.ErrConfiguration, "capital %v", capital)
	}

	cfg = testConfig()
	cfg.Params.SellThreshold = math.NaN()
	_, err = o.Run(context.Background(), cfg)
	assert.ErrorIs(t, err, contracts.ErrConfiguration)

	assert.Equal(t, 5.0, testutil.ToFloat64(metrics.BacktestRunsTotal.WithLabelValues("test", "error")))
}

func TestRunStoreFailure(t *testing.T) {
	store := &memStore{err: errors.New("db down")}
	o := NewOrchestrator(backtest.NewEngine(testPanel(t), logger.NewNop()), logger.NewNop(), WithStore(store))

	_, err := o.Run(context.Background(), testConfig())
	assert.ErrorContains(t, err, "db down")
}

func TestHashTracksLedgerOptions(t *testing.T) {
	a := testConfig()
	b := testConfig()
	b.Ledger.InitialCapital = 2000

	ha, err := Hash(a)
	require.NoError(t, err)
	hb, err := Hash(b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)

	// RunID와 Source는 결과에 영향 없음
	b = testConfig()
	b.Source = "api"
	hb, _ = Hash(b)
	assert.Equal(t, ha, hb)
}
