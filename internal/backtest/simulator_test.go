package backtest

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
	"github.com/parkercarrus/cluster-trading-strategy/internal/s0_data"
	"github.com/parkercarrus/cluster-trading-strategy/internal/s0_data/s0test"
)

func series(symbol string, points map[string]float64) *s0_data.Series {
	var pts []s0_data.Point
	for d, p := range points {
		pts = append(pts, s0_data.Point{Date: s0test.Date(d), Price: p})
	}
	return s0_data.NewSeries(symbol, pts)
}

func ledgerPrices() *s0_data.PricePanel {
	return s0_data.NewPricePanel(
		series("X", map[string]float64{"2023-01-02": 10, "2023-01-03": 11, "2023-01-04": 12}),
		series("Y", map[string]float64{"2023-01-02": 20, "2023-01-03": 20, "2023-01-04": 22, "2023-01-06": 25}),
	)
}

func trade(symbol, buy, sell string, start, end, confidence float64) contracts.TradeRecord {
	return contracts.TradeRecord{
		Quarter:        "2022_Q4",
		Symbol:         symbol,
		PurchaseDate:   s0test.Date(buy),
		SellDate:       s0test.Date(sell),
		StartPrice:     start,
		EndPrice:       end,
		Return:         (end - start) / start,
		Confidence:     confidence,
		BaselineReturn: math.NaN(),
		StratEdge:      math.NaN(),
	}
}

func TestSimulateLedgerConfidenceWeighted(t *testing.T) {
	trades := []contracts.TradeRecord{
		trade("X", "2023-01-02", "2023-01-04", 10, 12, 0.75),
		trade("Y", "2023-01-02", "2023-01-06", 20, 25, 0.25),
	}

	res, err := SimulateLedger(trades, ledgerPrices(), 1000)
	require.NoError(t, err)
	require.Len(t, res.Rows, 5)

	want := []float64{1000, 1075, 1175, 1175, 1212.5}
	for i, row := range res.Rows {
		assert.InDelta(t, want[i], row.PortfolioValue, 1e-9, "day %d", i)
		assert.InDelta(t, row.Cash+row.Invested, row.PortfolioValue, 1e-6)
		assert.GreaterOrEqual(t, row.Cash, 0.0)
	}
	assert.Equal(t, 2, res.Rows[0].NumPositions)
	assert.InDelta(t, 900, res.Rows[2].Cash, 1e-9)
	assert.Equal(t, 1, res.Rows[2].NumPositions)
	assert.Equal(t, 0, res.Rows[4].NumPositions)

	final, ok := res.Final()
	require.True(t, ok)
	assert.InDelta(t, 1212.5, final.Cash, 1e-9)
}

func TestSimulateLedgerEqualSplitWithoutConfidence(t *testing.T) {
	trades := []contracts.TradeRecord{
		trade("X", "2023-01-02", "2023-01-04", 10, 12, 0.75),
		trade("Y", "2023-01-02", "2023-01-06", 20, 25, math.NaN()),
	}

	res, err := SimulateLedger(trades, ledgerPrices(), 1000)
	require.NoError(t, err)

	// 50 shares of X, 25 of Y
	assert.InDelta(t, 50*11+25*20, res.Rows[1].PortfolioValue, 1e-9)

	res, err = SimulateLedgerWith(trades[:1], ledgerPrices(), LedgerOptions{InitialCapital: 1000})
	require.NoError(t, err)
	assert.InDelta(t, 1200, res.Rows[2].Cash, 1e-9)
}

func TestSimulateLedgerBusinessDays(t *testing.T) {
	prices := s0_data.NewPricePanel(
		series("X", map[string]float64{"2023-01-06": 10, "2023-01-09": 11, "2023-01-10": 12}),
	)
	trades := []contracts.TradeRecord{trade("X", "2023-01-06", "2023-01-10", 10, 12, 1)}

	res, err := SimulateLedger(trades, prices, 100)
	require.NoError(t, err)

	require.Len(t, res.Rows, 3)
	for i := 1; i < len(res.Rows); i++ {
		assert.True(t, res.Rows[i].Date.After(res.Rows[i-1].Date))
		wd := res.Rows[i].Date.Weekday()
		assert.NotEqual(t, time.Saturday, wd)
		assert.NotEqual(t, time.Sunday, wd)
	}
	assert.InDelta(t, 120, res.Rows[2].PortfolioValue, 1e-9)
}

func TestSimulateLedgerKeepsUnpricedCloseOpen(t *testing.T) {
	trades := []contracts.TradeRecord{trade("Z", "2023-01-02", "2023-01-03", 5, 5, 1)}

	res, err := SimulateLedger(trades, ledgerPrices(), 100)
	require.NoError(t, err)

	last, _ := res.Final()
	assert.Equal(t, 1, last.NumPositions)
	assert.InDelta(t, 100, last.PortfolioValue, 1e-9) // marked at the buy price
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, contracts.StageLedger, res.Skipped[0].Stage)
	assert.Equal(t, "data_gap", res.Skipped[0].Kind)
}

func TestSimulateLedgerErrors(t *testing.T) {
	_, err := SimulateLedger(nil, ledgerPrices(), 100)
	assert.True(t, errors.Is(err, contracts.ErrInsufficientData))

	trades := []contracts.TradeRecord{trade("X", "2023-01-02", "2023-01-04", 10, 12, 1)}
	for _, capital := range []float64{0, -100, math.NaN(), math.Inf(1)} {
		_, err = SimulateLedger(trades, ledgerPrices(), capital)
		assert.ErrorIs(t, err, contracts.ErrConfiguration, "capital %v", capital)
	}

	_, err = BenchmarkLedger(ledgerPrices(), "Y", s0test.Date("2023-01-02"), s0test.Date("2023-01-06"), math.NaN())
	assert.ErrorIs(t, err, contracts.ErrConfiguration)
}

func TestBenchmarkLedger(t *testing.T) {
	rows, err := BenchmarkLedger(ledgerPrices(), "Y", s0test.Date("2023-01-02"), s0test.Date("2023-01-06"), 1000)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.InDelta(t, 1000, rows[0].PortfolioValue, 1e-9)
	assert.InDelta(t, 1100, rows[3].PortfolioValue, 1e-9) // no print on the 5th
	assert.InDelta(t, 1250, rows[4].PortfolioValue, 1e-9)
}
