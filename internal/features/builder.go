// Package features assembles the per-quarter feature and label tables the
// ranking model trains on.
package features

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/parkercarrus/cluster-trading-strategy/internal/calendar"
	"github.com/parkercarrus/cluster-trading-strategy/internal/cluster"
	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
	"github.com/parkercarrus/cluster-trading-strategy/internal/s0_data"
)

const (
	suffixCentroid = "_centroid_dist"
	suffixDelta    = "_delta"
)

// Options tunes clustering and label windows
type Options struct {
	ClusterCount    int // peer groups per quarter
	WindowDays      int // label window length in calendar days
	RelativeAvgDays int // observations averaged at each end of a relative window
	OutrightAvgDays int // observations averaged at each end of an outright window
}

// DefaultOptions mirrors the research setup: 15 clusters, 90 day windows
func DefaultOptions() Options {
	return Options{ClusterCount: 15, WindowDays: 90, RelativeAvgDays: 1, OutrightAvgDays: 7}
}

// Row is one symbol's features and (for training tables) label
type Row struct {
	Symbol   string
	Cluster  int
	Features []float64
	Label    float64
}

// Table is a quarter's feature/label table, fully populated
type Table struct {
	Quarter calendar.Quarter
	Columns []string
	Rows    []Row
	Skipped []contracts.Skip
}

// Matrix returns X and y in row order
func (t *Table) Matrix() ([][]float64, []float64) {
	X := make([][]float64, len(t.Rows))
	y := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		X[i] = r.Features
		y[i] = r.Label
	}
	return X, y
}

// Symbols returns symbols in row order
func (t *Table) Symbols() []string {
	out := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Symbol
	}
	return out
}

// FeatureNames expands raw column names into the full feature layout:
// raw, then centroid distance, then one-quarter delta
func FeatureNames(columns []string) []string {
	out := make([]string, 0, 3*len(columns))
	out = append(out, columns...)
	for _, c := range columns {
		out = append(out, c+suffixCentroid)
	}
	for _, c := range columns {
		out = append(out, c+suffixDelta)
	}
	return out
}

// Builder turns panel data into feature tables. It holds no cross-quarter state.
type Builder struct {
	panel       *s0_data.Panel
	partitioner cluster.Partitioner
	opts        Options
}

// NewBuilder creates a feature builder over a loaded panel
func NewBuilder(panel *s0_data.Panel, partitioner cluster.Partitioner, opts Options) *Builder {
	def := DefaultOptions()
	if opts.ClusterCount <= 0 {
		opts.ClusterCount = def.ClusterCount
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = def.WindowDays
	}
	if opts.RelativeAvgDays <= 0 {
		opts.RelativeAvgDays = def.RelativeAvgDays
	}
	if opts.OutrightAvgDays <= 0 {
		opts.OutrightAvgDays = def.OutrightAvgDays
	}
	return &Builder{panel: panel, partitioner: partitioner, opts: opts}
}

// Columns picks the raw fundamental columns shared by every quarter a step touches.
// fundamentalsOnly restricts them to the named ratio set.
func (b *Builder) Columns(quarters []calendar.Quarter, fundamentalsOnly bool) ([]string, error) {
	var restrict []string
	if fundamentalsOnly {
		restrict = s0_data.FundamentalColumns
	}
	return b.panel.Fundamentals.CommonColumns(quarters, restrict)
}

// Build produces the labeled training table for quarter q
func (b *Builder) Build(ctx context.Context, q calendar.Quarter, columns []string, relative bool) (*Table, error) {
	return b.build(ctx, q, columns, true, relative)
}

// BuildScoring produces the feature-only table used to rank quarter q
func (b *Builder) BuildScoring(ctx context.Context, q calendar.Quarter, columns []string) (*Table, error) {
	return b.build(ctx, q, columns, false, false)
}

func (b *Builder) build(ctx context.Context, q calendar.Quarter, columns []string, labeled, relative bool) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cal := b.panel.Calendar
	next, err := cal.Successor(q)
	if err != nil {
		return nil, fmt.Errorf("%w: %s has no successor quarter: %v", contracts.ErrInsufficientData, q, err)
	}
	t0, err := b.panel.Fundamentals.Table(q)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrInsufficientData, err)
	}
	t1, err := b.panel.Fundamentals.Table(next)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrInsufficientData, err)
	}

	universe, err := b.panel.Universe(q)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrInsufficientData, err)
	}

	raw := make([][]float64, len(universe))
	for i, s := range universe {
		raw[i], _ = t0.Project(s, columns)
	}

	labels, err := b.partitioner.Partition(ctx, raw, b.opts.ClusterCount)
	if err != nil {
		return nil, fmt.Errorf("partition %s: %w", q, err)
	}

	table := &Table{Quarter: q, Columns: FeatureNames(columns)}

	var window labelWindow
	if labeled {
		window, err = b.window(q, relative)
		if err != nil {
			return nil, err
		}
	}

	features := make([][]float64, len(universe))
	targets := make([]float64, len(universe))
	for i := range targets {
		targets[i] = math.NaN()
	}

	for _, members := range cluster.Groups(labels) {
		if len(members) == 0 {
			continue
		}

		rows0 := make([][]float64, len(members))
		rows1 := make([][]float64, len(members))
		for m, idx := range members {
			rows0[m] = raw[idx]
			if v, ok := t1.Project(universe[idx], columns); ok {
				rows1[m] = v
			} else {
				rows1[m] = nanVector(len(columns))
			}
		}
		d0 := cluster.CentroidDistance(rows0)
		d1 := cluster.CentroidDistance(rows1)

		for m, idx := range members {
			f := make([]float64, 0, 3*len(columns))
			f = append(f, raw[idx]...)
			f = append(f, d0[m]...)
			for j := range columns {
				f = append(f, d1[m][j]-d0[m][j])
			}
			features[idx] = f
		}

		if labeled {
			b.labelCluster(universe, members, window, relative, targets, table)
		}
	}

	for i, s := range universe {
		if !allFinite(features[i]) {
			table.Skipped = append(table.Skipped, contracts.NewSkip(contracts.StageFeatures, q.String(), s, time.Time{},
				fmt.Errorf("%w: incomplete features", contracts.ErrDataGap)))
			continue
		}
		if labeled && math.IsNaN(targets[i]) {
			continue
		}
		table.Rows = append(table.Rows, Row{
			Symbol:   s,
			Cluster:  labels[i],
			Features: features[i],
			Label:    targets[i],
		})
	}

	if len(table.Rows) == 0 {
		return table, fmt.Errorf("%w: no complete rows for %s", contracts.ErrInsufficientData, q)
	}
	return table, nil
}

func nanVector(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = math.NaN()
	}
	return v
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
