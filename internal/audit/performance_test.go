package audit

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
	"github.com/parkercarrus/cluster-trading-strategy/internal/s0_data"
)

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func ledgerOf(dates []string, values []float64) []contracts.LedgerRow {
	out := make([]contracts.LedgerRow, len(values))
	for i, v := range values {
		out[i] = contracts.LedgerRow{Date: day(dates[i]), PortfolioValue: v, Cash: v}
	}
	return out
}

func TestComputeMetricsTwoYears(t *testing.T) {
	ledger := ledgerOf(
		[]string{"2022-01-03", "2023-01-03", "2024-01-03"},
		[]float64{100000, 110000, 121000},
	)

	m := ComputeMetrics(ledger, nil)
	assert.InDelta(t, 0.21, m.NetReturn, 1e-12)
	assert.InDelta(t, 0.1, m.CAGR, 1e-3)
	assert.Equal(t, 730, m.Days)
	assert.Equal(t, 0.0, m.MaxDrawdown)
	assert.True(t, math.IsNaN(m.BenchmarkedReturn))

	// two identical 10% steps have zero dispersion
	assert.True(t, math.IsNaN(m.SharpeRatio))
}

func TestComputeMetricsSharpe(t *testing.T) {
	ledger := ledgerOf(
		[]string{"2023-01-02", "2023-01-03", "2023-01-04", "2023-01-05"},
		[]float64{100, 110, 99, 108.9},
	)
	m := ComputeMetrics(ledger, nil)

	returns := []float64{0.1, -0.1, 0.1}
	mean := 0.1 / 3
	std := math.Sqrt((2*math.Pow(0.1-mean, 2) + math.Pow(-0.1-mean, 2)) / 2)
	assert.InDelta(t, mean/std*math.Sqrt(252), m.SharpeRatio, 1e-9)
	assert.InDelta(t, std*math.Sqrt(252), m.Volatility, 1e-9)
	assert.InDelta(t, 0.1, m.MaxDrawdown, 1e-12)
	assert.Len(t, DailyReturns(ledger), len(returns))
}

func TestComputeMetricsBenchmark(t *testing.T) {
	spy := s0_data.NewSeries("SPY", []s0_data.Point{
		{Date: day("2021-12-31"), Price: 50},
		{Date: day("2022-01-04"), Price: 100},
		{Date: day("2023-12-29"), Price: 110},
		{Date: day("2024-02-01"), Price: 500},
	})
	ledger := ledgerOf(
		[]string{"2022-01-03", "2023-01-03", "2024-01-03"},
		[]float64{100000, 110000, 121000},
	)

	m := ComputeMetrics(ledger, spy)
	// 100 at-or-after the start, 110 at-or-before the end
	assert.InDelta(t, 0.21-0.1, m.BenchmarkedReturn, 1e-12)
}

func TestComputeMetricsDegenerate(t *testing.T) {
	m := ComputeMetrics(nil, nil)
	assert.True(t, math.IsNaN(m.NetReturn))
	assert.True(t, math.IsNaN(m.CAGR))

	one := ledgerOf([]string{"2023-01-02"}, []float64{100})
	m = ComputeMetrics(one, nil)
	assert.Equal(t, 0.0, m.NetReturn)
	assert.True(t, math.IsNaN(m.CAGR))
	assert.True(t, math.IsNaN(m.SharpeRatio))
}

func TestSummarize(t *testing.T) {
	trades := []contracts.TradeRecord{
		{Quarter: "2022_Q2", Symbol: "A", Return: 0.2, BaselineReturn: 0.1, StratEdge: 0.1},
		{Quarter: "2022_Q2", Symbol: "B", Return: -0.1, BaselineReturn: 0.1, StratEdge: -0.2, Held: true},
		{Quarter: "2022_Q3", Symbol: "C", Return: 0.3, BaselineReturn: math.NaN(), StratEdge: math.NaN()},
	}

	s := Summarize(trades)
	assert.Equal(t, 3, s.TotalTrades)
	assert.Equal(t, 1, s.HeldTrades)
	assert.InDelta(t, 0.4/3, s.AvgReturn, 1e-12)
	assert.InDelta(t, 0.1, s.AvgBaseline, 1e-12)
	assert.InDelta(t, -0.05, s.AvgEdge, 1e-12)
	assert.InDelta(t, 2.0/3, s.WinRate, 1e-12)
	require.False(t, math.IsNaN(s.EdgeSharpe))
	assert.InDelta(t, -0.05/math.Sqrt(0.045), s.EdgeSharpe, 1e-9)

	empty := Summarize(nil)
	assert.Equal(t, 0, empty.TotalTrades)
	assert.True(t, math.IsNaN(empty.AvgReturn))
}

func TestByQuarterAndContributors(t *testing.T) {
	trades := []contracts.TradeRecord{
		{Quarter: "2022_Q3", Symbol: "C", Return: 0.3, StratEdge: 0.25, BaselineReturn: 0.05},
		{Quarter: "2022_Q2", Symbol: "A", Return: 0.2, StratEdge: 0.1, BaselineReturn: 0.1},
		{Quarter: "2022_Q2", Symbol: "B", Return: -0.1, StratEdge: -0.2, BaselineReturn: 0.1},
		{Quarter: "2022_Q3", Symbol: "D", Return: 0.1, StratEdge: math.NaN(), BaselineReturn: math.NaN()},
	}

	byQ := ByQuarter(trades)
	require.Len(t, byQ, 2)
	assert.Equal(t, "2022_Q2", byQ[0].Quarter)
	assert.Equal(t, 2, byQ[0].Trades)
	assert.InDelta(t, -0.05, byQ[0].AvgEdge, 1e-12)
	assert.InDelta(t, 0.25, byQ[1].AvgEdge, 1e-12)

	top := TopContributors(trades, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "C", top[0].Symbol)
	assert.Equal(t, "A", top[1].Symbol)

	bottom := BottomContributors(trades, 5)
	require.Len(t, bottom, 3)
	assert.Equal(t, "B", bottom[0].Symbol)
}
