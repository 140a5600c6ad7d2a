package s0_data

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkercarrus/cluster-trading-strategy/internal/calendar"
	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
)

func TestFundamentalsTableSortsAndDedupes(t *testing.T) {
	q := calendar.MustParse("2022_Q1")
	table, err := NewFundamentalsTable(q, []string{"pe", "roe"}, []FundamentalRow{
		{Symbol: "MSFT", Values: []float64{30, 0.4}},
		{Symbol: "AAPL", Values: []float64{25, 1.5}},
		{Symbol: "MSFT", Values: []float64{99, 99}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL", "MSFT"}, table.Symbols())

	v, ok := table.Project("MSFT", []string{"roe", "missing"})
	require.True(t, ok)
	assert.Equal(t, 0.4, v[0])
	assert.True(t, math.IsNaN(v[1]))

	_, ok = table.Project("GOOG", []string{"pe"})
	assert.False(t, ok)
}

func TestFundamentalsTableRejectsBadShape(t *testing.T) {
	q := calendar.MustParse("2022_Q1")
	_, err := NewFundamentalsTable(q, []string{"pe"}, []FundamentalRow{{Symbol: "A", Values: []float64{1, 2}}})
	assert.Error(t, err)

	_, err = NewFundamentalsTable(q, []string{"pe", "pe"}, nil)
	assert.Error(t, err)
}

func TestCommonColumns(t *testing.T) {
	q1, q2 := calendar.MustParse("2022_Q1"), calendar.MustParse("2022_Q2")
	t1, _ := NewFundamentalsTable(q1, []string{"pe", "roe", "debt"}, nil)
	t2, _ := NewFundamentalsTable(q2, []string{"roe", "pe"}, nil)
	panel := NewFundamentalsPanel(t1, t2)

	cols, err := panel.CommonColumns([]calendar.Quarter{q1, q2}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"pe", "roe"}, cols)

	cols, err = panel.CommonColumns([]calendar.Quarter{q1, q2}, []string{"roe", "debt"})
	require.NoError(t, err)
	assert.Equal(t, []string{"roe"}, cols)

	_, err = panel.CommonColumns([]calendar.Quarter{q1, q2}, []string{"debt"})
	assert.True(t, errors.Is(err, contracts.ErrInsufficientData))

	_, err = panel.CommonColumns([]calendar.Quarter{calendar.MustParse("2023_Q1")}, nil)
	assert.True(t, errors.Is(err, contracts.ErrDataGap))

	assert.Equal(t, []calendar.Quarter{q1, q2}, panel.Quarters())
}
