package s0_data

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/parkercarrus/cluster-trading-strategy/internal/calendar"
	"github.com/parkercarrus/cluster-trading-strategy/pkg/database/migrations"
)

// setupTestDB starts a disposable postgres and applies the embedded migrations
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

func TestRepositoryRoundTrip(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewRepository(pool)
	ctx := context.Background()

	n, err := repo.SavePrices(ctx,
		NewSeries("AAA", []Point{{day("2022-05-16"), 10}, {day("2022-05-17"), 11}}),
		NewSeries("SPY", []Point{{day("2022-05-16"), 400}}),
	)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	q := calendar.MustParse("2022_Q1")
	table, err := NewFundamentalsTable(q, []string{"pe", "roe"}, []FundamentalRow{
		{Symbol: "AAA", Values: []float64{12, math.NaN()}},
		{Symbol: "SPY", Values: []float64{20, 0.2}},
	})
	require.NoError(t, err)
	_, err = repo.SaveFundamentals(ctx, table)
	require.NoError(t, err)

	panel, err := repo.Load(ctx, calendar.Default())
	require.NoError(t, err)

	last, err := panel.Prices.Last("AAA")
	require.NoError(t, err)
	assert.Equal(t, 11.0, last.Price)

	loaded, err := panel.Fundamentals.Table(q)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "SPY"}, loaded.Symbols())

	v, ok := loaded.Project("AAA", []string{"pe", "roe"})
	require.True(t, ok)
	assert.Equal(t, 12.0, v[0])
	assert.True(t, math.IsNaN(v[1]))
}
