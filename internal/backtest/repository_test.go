package backtest

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
	"github.com/parkercarrus/cluster-trading-strategy/internal/s0_data/s0test"
	"github.com/parkercarrus/cluster-trading-strategy/pkg/database/migrations"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = migrations.Run(ctx, pool)
	require.NoError(t, err)
	return pool
}

func TestRepositorySaveAndLoadRun(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewRepository(pool)
	ctx := context.Background()

	params := DefaultParams()
	params.K = 3
	metrics := contracts.Metrics{NetReturn: 0.21, CAGR: 0.1, SharpeRatio: math.NaN(), Days: 730}
	summary := contracts.TradeSummary{AvgReturn: 0.1, TotalTrades: 2, HeldTrades: 1}

	trades := []contracts.TradeRecord{
		{
			Quarter: "2022_Q1", Symbol: "AAA",
			PurchaseDate: s0test.Date("2022-05-16"), SellDate: s0test.Date("2022-08-15"),
			StartPrice: 10, EndPrice: 12, Return: 0.2,
			BaselineReturn: 0.05, StratEdge: 0.15, Confidence: 0.8,
		},
		{
			Quarter: "2022_Q1", Symbol: "BBB",
			PurchaseDate: s0test.Date("2022-05-16"), SellDate: s0test.Date("2022-11-15"),
			StartPrice: 20, EndPrice: 20, Return: 0,
			BaselineReturn: math.NaN(), StratEdge: math.NaN(), Confidence: math.NaN(),
			Held: true,
		},
	}
	ledger := []contracts.LedgerRow{
		{Date: s0test.Date("2022-05-16"), PortfolioValue: 100000, Cash: 0, Invested: 100000, NumPositions: 2},
		{Date: s0test.Date("2022-05-17"), PortfolioValue: 101000, Cash: 0, Invested: 101000, NumPositions: 2},
	}

	older := RunRecord{RunID: uuid.New(), ParamsHash: "h1", Params: params, Skipped: 4}
	require.NoError(t, repo.SaveRun(ctx, older, nil, nil))

	run := RunRecord{
		RunID:      uuid.New(),
		ParamsHash: "h1",
		Params:     params,
		Metrics:    &metrics,
		Summary:    &summary,
		Skipped:    1,
	}
	require.NoError(t, repo.SaveRun(ctx, run, trades, ledger))

	latest, err := repo.LatestRun(ctx, "h1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, run.RunID, latest.RunID)
	assert.Equal(t, params, latest.Params)
	assert.Equal(t, 1, latest.Skipped)
	require.NotNil(t, latest.Metrics)
	assert.Equal(t, 0.21, latest.Metrics.NetReturn)
	assert.True(t, math.IsNaN(latest.Metrics.SharpeRatio))
	require.NotNil(t, latest.Summary)
	assert.Equal(t, 2, latest.Summary.TotalTrades)

	gotTrades, err := repo.LoadTrades(ctx, run.RunID)
	require.NoError(t, err)
	require.Len(t, gotTrades, 2)
	assert.Equal(t, "AAA", gotTrades[0].Symbol)
	assert.InDelta(t, 0.15, gotTrades[0].StratEdge, 1e-12)
	assert.True(t, gotTrades[0].PurchaseDate.Equal(trades[0].PurchaseDate))
	assert.True(t, gotTrades[1].Held)
	assert.True(t, math.IsNaN(gotTrades[1].StratEdge))
	assert.True(t, math.IsNaN(gotTrades[1].Confidence))

	gotLedger, err := repo.LoadLedger(ctx, run.RunID)
	require.NoError(t, err)
	require.Len(t, gotLedger, 2)
	assert.Equal(t, 101000.0, gotLedger[1].PortfolioValue)
	assert.Equal(t, 2, gotLedger[1].NumPositions)
}

func TestRepositoryLatestRunMissing(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewRepository(pool)

	run, err := repo.LatestRun(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, run)
}
