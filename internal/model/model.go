// Package model trains the per-quarter ranking classifiers.
package model

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
)

// Trainer fits a ranking model on one quarter's features and continuous labels.
// Labels are binarized internally: rows above the Quantile of y are the positive class.
type Trainer interface {
	Fit(ctx context.Context, X [][]float64, y []float64) (Scorer, error)
}

// Scorer returns one score in [0,1] per row: the model's confidence that the
// row belongs to the top-performing class
type Scorer interface {
	Score(X [][]float64) ([]float64, error)
}

// Options configures any registered model
type Options struct {
	Seed     int64
	Trees    int
	MaxDepth int
	Quantile float64
	Workers  int
}

// DefaultOptions: 100 trees of depth 10, top quartile positive
func DefaultOptions(seed int64) Options {
	return Options{Seed: seed, Trees: 100, MaxDepth: 10, Quantile: 0.75}
}

// DefaultModel is used when a run names no model
const DefaultModel = "RandomForest"

type factory func(Options) Trainer

var registry = map[string]factory{
	"RandomForest":       func(o Options) Trainer { return NewRandomForest(o) },
	"LogisticRegression": func(o Options) Trainer { return NewLogistic(o) },
}

// New looks up a model by identifier
func New(id string, opts Options) (Trainer, error) {
	if id == "" {
		id = DefaultModel
	}
	f, ok := registry[id]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported model %q (have %v)", contracts.ErrConfiguration, id, Names())
	}
	if opts.Quantile <= 0 || opts.Quantile >= 1 {
		opts.Quantile = 0.75
	}
	return f(opts), nil
}

// Names lists registered model identifiers
func Names() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Quantile is the linearly interpolated q-quantile of values
// (the same definition pandas uses by default)
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	h := float64(len(sorted)-1) * q
	lo := int(math.Floor(h))
	if lo >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}

// Binarize marks rows strictly above the q-quantile as 1
func Binarize(y []float64, q float64) []int {
	threshold := Quantile(y, q)
	out := make([]int, len(y))
	for i, v := range y {
		if v > threshold {
			out[i] = 1
		}
	}
	return out
}

func validateInput(X [][]float64, y []float64) error {
	if len(X) == 0 {
		return fmt.Errorf("%w: empty training set", contracts.ErrInsufficientData)
	}
	if len(X) != len(y) {
		return fmt.Errorf("training set has %d rows and %d labels", len(X), len(y))
	}
	dim := len(X[0])
	for i, row := range X {
		if len(row) != dim {
			return fmt.Errorf("row %d has %d features, want %d", i, len(row), dim)
		}
	}
	return nil
}

// constant scores every row with the training class prior.
// Used when the training labels contain a single class.
type constant struct {
	dim   int
	value float64
}

func (c constant) Score(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, row := range X {
		if len(row) != c.dim {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", i, len(row), c.dim)
		}
		out[i] = c.value
	}
	return out, nil
}

func singleClass(labels []int) (bool, float64) {
	pos := 0
	for _, l := range labels {
		pos += l
	}
	if pos == 0 {
		return true, 0
	}
	if pos == len(labels) {
		return true, 1
	}
	return false, 0
}
