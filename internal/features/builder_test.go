package features

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkercarrus/cluster-trading-strategy/internal/calendar"
	"github.com/parkercarrus/cluster-trading-strategy/internal/cluster"
	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
	"github.com/parkercarrus/cluster-trading-strategy/internal/s0_data"
	"github.com/parkercarrus/cluster-trading-strategy/internal/s0_data/s0test"
)

var (
	q1 = calendar.MustParse("2022_Q1")
	q2 = calendar.MustParse("2022_Q2")
	q3 = calendar.MustParse("2022_Q3")
	q4 = calendar.MustParse("2022_Q4")

	origin = s0test.Date("2022-05-02")
)

func fixtureDef(t *testing.T) s0test.Fixture {
	return s0test.Fixture{
		Calendar: s0test.Calendar(t, map[string]string{
			"2022_Q1": "2022-05-16",
			"2022_Q2": "2022-08-15",
			"2022_Q3": "2022-11-15",
			"2022_Q4": "2023-02-15",
		}),
		Start: origin,
		End:   s0test.Date("2023-06-30"),
		Prices: map[string]s0test.PriceFunc{
			"AAA": s0test.Linear(origin, 10, 0.1),
			"BBB": s0test.Linear(origin, 20, 0),
			"CCC": s0test.Linear(origin, 5, 0.05),
		},
		Columns: []string{"pe", "roe"},
		Fundamentals: map[string]map[string][]float64{
			"2022_Q1": {"AAA": {10, 0.1}, "BBB": {20, 0.2}, "CCC": {30, 0.3}},
			"2022_Q2": {"AAA": {12, 0.1}, "BBB": {20, 0.25}, "CCC": {28, 0.3}},
			"2022_Q3": {"AAA": {11, 0.2}, "BBB": {21, 0.2}, "CCC": {29, 0.3}},
			"2022_Q4": {"AAA": {11, 0.2}, "BBB": {21, 0.2}, "CCC": {29, 0.3}},
		},
	}
}

func newBuilder(panel *s0_data.Panel, clusters int) *Builder {
	opts := DefaultOptions()
	opts.ClusterCount = clusters
	return NewBuilder(panel, cluster.NewKMeans(42), opts)
}

func rowOf(t *testing.T, table *Table, symbol string) Row {
	t.Helper()
	for _, r := range table.Rows {
		if r.Symbol == symbol {
			return r
		}
	}
	t.Fatalf("symbol %s not in table", symbol)
	return Row{}
}

func TestFeatureNames(t *testing.T) {
	assert.Equal(t,
		[]string{"pe", "roe", "pe_centroid_dist", "roe_centroid_dist", "pe_delta", "roe_delta"},
		FeatureNames([]string{"pe", "roe"}))
}

func TestWindowReturn(t *testing.T) {
	pts := []s0_data.Point{{Price: 10}, {Price: 11}, {Price: 12}}

	r, err := WindowReturn(pts, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, r, 1e-12)

	r, err = WindowReturn(pts, 2)
	require.NoError(t, err)
	assert.InDelta(t, (11.5-10.5)/10.5, r, 1e-12)

	_, err = WindowReturn(pts[:1], 1)
	assert.True(t, errors.Is(err, contracts.ErrDataGap))

	_, err = WindowReturn(pts, 7)
	assert.True(t, errors.Is(err, contracts.ErrDataGap))
}

func TestBuildFeaturesAndRelativeLabel(t *testing.T) {
	fx := fixtureDef(t)
	panel := s0test.Panel(t, fx)
	b := newBuilder(panel, 1)

	table, err := b.Build(context.Background(), q1, fx.Columns, true)
	require.NoError(t, err)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, []string{"AAA", "BBB", "CCC"}, table.Symbols())
	assert.Len(t, table.Columns, 6)

	a := rowOf(t, table, "AAA")
	want := []float64{10, 0.1, -10, -0.1, 2, (0.1 - 0.65/3) + 0.1}
	for j, v := range want {
		assert.InDelta(t, v, a.Features[j], 1e-9, "feature %d", j)
	}

	// label window: first obs on/after 2022-08-15, last obs on/before 2022-11-13
	start, end := s0test.Date("2022-08-15"), s0test.Date("2022-11-11")
	ret := func(sym string) float64 {
		fn := fx.Prices[sym]
		return (fn(end) - fn(start)) / fn(start)
	}
	assert.InDelta(t, ret("AAA")-(ret("BBB")+ret("CCC"))/2, a.Label, 1e-9)
	assert.InDelta(t, ret("BBB")-(ret("AAA")+ret("CCC"))/2, rowOf(t, table, "BBB").Label, 1e-9)
}

// Prices dated before the successor quarter's rebalance date must not move labels.
func TestLabelHasNoLookahead(t *testing.T) {
	fx := fixtureDef(t)
	base, err := newBuilder(s0test.Panel(t, fx), 1).Build(context.Background(), q1, fx.Columns, true)
	require.NoError(t, err)

	cutoff := s0test.Date("2022-08-15")
	for sym, fn := range fx.Prices {
		orig := fn
		fx.Prices[sym] = func(d time.Time) float64 {
			if d.Before(cutoff) {
				return orig(d) * 7
			}
			return orig(d)
		}
	}
	mutated, err := newBuilder(s0test.Panel(t, fx), 1).Build(context.Background(), q1, fx.Columns, true)
	require.NoError(t, err)

	require.Equal(t, base.Symbols(), mutated.Symbols())
	for i := range base.Rows {
		assert.Equal(t, base.Rows[i].Label, mutated.Rows[i].Label)
	}
}

func TestOutrightLabelWindow(t *testing.T) {
	fx := fixtureDef(t)
	b := newBuilder(s0test.Panel(t, fx), 1)

	table, err := b.Build(context.Background(), q1, fx.Columns, false)
	require.NoError(t, err)
	require.Len(t, table.Rows, 3)

	// BBB is flat, so its outright return is exactly zero
	assert.InDelta(t, 0, rowOf(t, table, "BBB").Label, 1e-12)
	assert.Greater(t, rowOf(t, table, "AAA").Label, 0.0)

	// q2 has no third successor; the window falls back to start + 180 days
	_, err = b.Build(context.Background(), q2, fx.Columns, false)
	require.NoError(t, err)

	// q3 has no second successor at all
	_, err = b.Build(context.Background(), q3, fx.Columns, false)
	assert.True(t, errors.Is(err, contracts.ErrInsufficientData))
}

func TestRowsWithoutSuccessorFundamentalsAreDropped(t *testing.T) {
	fx := fixtureDef(t)
	delete(fx.Fundamentals["2022_Q2"], "CCC")
	b := newBuilder(s0test.Panel(t, fx), 1)

	table, err := b.Build(context.Background(), q1, fx.Columns, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, table.Symbols())
	require.NotEmpty(t, table.Skipped)
	assert.Equal(t, "CCC", table.Skipped[0].Symbol)

	for _, r := range table.Rows {
		for _, v := range r.Features {
			assert.False(t, math.IsNaN(v))
		}
		assert.False(t, math.IsNaN(r.Label))
	}
}

func TestScoringTable(t *testing.T) {
	fx := fixtureDef(t)
	b := newBuilder(s0test.Panel(t, fx), 1)

	table, err := b.BuildScoring(context.Background(), q3, fx.Columns)
	require.NoError(t, err)
	assert.Len(t, table.Rows, 3)

	_, err = b.BuildScoring(context.Background(), q4, fx.Columns)
	assert.True(t, errors.Is(err, contracts.ErrInsufficientData))
}

func TestTooFewSymbolsForClusters(t *testing.T) {
	fx := fixtureDef(t)
	b := newBuilder(s0test.Panel(t, fx), 5)

	_, err := b.Build(context.Background(), q1, fx.Columns, true)
	assert.True(t, errors.Is(err, contracts.ErrInsufficientData))
}

func TestColumnsFundamentalsOnly(t *testing.T) {
	fx := fixtureDef(t)
	fx.Columns = []string{"currentRatio", "pe"}
	for _, rows := range fx.Fundamentals {
		for sym, v := range rows {
			rows[sym] = []float64{1, v[0]}
		}
	}
	b := newBuilder(s0test.Panel(t, fx), 1)

	cols, err := b.Columns([]calendar.Quarter{q1, q2}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"currentRatio"}, cols)

	cols, err = b.Columns([]calendar.Quarter{q1, q2}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"currentRatio", "pe"}, cols)
}
