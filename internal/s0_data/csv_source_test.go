package s0_data

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkercarrus/cluster-trading-strategy/internal/calendar"
)

const priceCSV = `date,AAA,BBB,SPY
2022-05-16,10,20,400
2022-05-17,,21,401
2022-05-18,12,,402
`

const fundamentalsCSV = `symbol,date,currentRatio,returnOnEquity
BBB,2022-03-31,1.2,0.10
AAA,2022-03-31,0.8,
AAA,2022-03-31,9,9
`

func TestReadPriceCSV(t *testing.T) {
	panel, err := ReadPriceCSV(strings.NewReader(priceCSV))
	require.NoError(t, err)

	assert.Equal(t, []string{"AAA", "BBB", "SPY"}, panel.Symbols())
	p, err := panel.PriceAtOrBefore("AAA", day("2022-05-17"))
	require.NoError(t, err)
	assert.Equal(t, 10.0, p.Price)

	p, err = panel.Last("BBB")
	require.NoError(t, err)
	assert.Equal(t, 21.0, p.Price)
}

func TestReadFundamentalsCSV(t *testing.T) {
	table, err := ReadFundamentalsCSV(calendar.MustParse("2022_Q1"), strings.NewReader(fundamentalsCSV))
	require.NoError(t, err)

	// date column is not numeric and is dropped
	assert.Equal(t, []string{"currentRatio", "returnOnEquity"}, table.Columns)
	assert.Equal(t, []string{"AAA", "BBB"}, table.Symbols())

	v, ok := table.Project("AAA", table.Columns)
	require.True(t, ok)
	assert.Equal(t, 0.8, v[0])
	assert.True(t, math.IsNaN(v[1]))
}

func TestReadFundamentalsCSVNeedsSymbol(t *testing.T) {
	_, err := ReadFundamentalsCSV(calendar.MustParse("2022_Q1"), strings.NewReader("ticker,pe\nA,1\n"))
	assert.Error(t, err)
}

func TestCSVSourceLoad(t *testing.T) {
	dir := t.TempDir()
	fundDir := filepath.Join(dir, "fundamentals")
	require.NoError(t, os.MkdirAll(fundDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prices.csv"), []byte(priceCSV), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(fundDir, "2022_Q1.csv"), []byte(fundamentalsCSV), 0o644))

	panel, err := NewCSVSource(filepath.Join(dir, "prices.csv"), fundDir).Load(context.Background(), calendar.Default())
	require.NoError(t, err)

	assert.Equal(t, []calendar.Quarter{calendar.MustParse("2022_Q1")}, panel.Fundamentals.Quarters())

	universe, err := panel.Universe(calendar.MustParse("2022_Q1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, universe)

	_, err = panel.Universe(calendar.MustParse("2022_Q2"))
	assert.Error(t, err)
}
