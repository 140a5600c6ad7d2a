package model

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Logistic is an L2-regularized logistic regression on standardized features,
// fit by full-batch gradient descent. It has no randomness.
type Logistic struct {
	opts       Options
	iterations int
	rate       float64
	l2         float64
}

// NewLogistic creates a logistic regression trainer
func NewLogistic(opts Options) *Logistic {
	return &Logistic{opts: opts, iterations: 500, rate: 0.1, l2: 1e-3}
}

// Fit implements Trainer
func (l *Logistic) Fit(ctx context.Context, X [][]float64, y []float64) (Scorer, error) {
	if err := validateInput(X, y); err != nil {
		return nil, err
	}
	labels := Binarize(y, l.opts.Quantile)
	dim := len(X[0])
	if single, p := singleClass(labels); single {
		return constant{dim: dim, value: p}, nil
	}

	mean := make([]float64, dim)
	scale := make([]float64, dim)
	col := make([]float64, len(X))
	for j := 0; j < dim; j++ {
		for i, row := range X {
			col[i] = row[j]
		}
		m, sd := stat.MeanStdDev(col, nil)
		if sd == 0 || math.IsNaN(sd) {
			sd = 1
		}
		mean[j], scale[j] = m, sd
	}

	Z := make([][]float64, len(X))
	for i, row := range X {
		Z[i] = standardize(row, mean, scale)
	}

	w := make([]float64, dim)
	bias := 0.0
	grad := make([]float64, dim)
	n := float64(len(Z))
	for iter := 0; iter < l.iterations; iter++ {
		if iter%50 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		for j := range grad {
			grad[j] = l.l2 * w[j]
		}
		gb := 0.0
		for i, z := range Z {
			diff := sigmoid(floats.Dot(w, z)+bias) - float64(labels[i])
			floats.AddScaled(grad, diff/n, z)
			gb += diff / n
		}
		floats.AddScaled(w, -l.rate, grad)
		bias -= l.rate * gb
	}

	return &logisticScorer{mean: mean, scale: scale, w: w, bias: bias}, nil
}

type logisticScorer struct {
	mean, scale, w []float64
	bias           float64
}

func (s *logisticScorer) Score(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, row := range X {
		if len(row) != len(s.w) {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", i, len(row), len(s.w))
		}
		out[i] = sigmoid(floats.Dot(s.w, standardize(row, s.mean, s.scale)) + s.bias)
	}
	return out, nil
}

func standardize(row, mean, scale []float64) []float64 {
	z := make([]float64, len(row))
	for j, v := range row {
		z[j] = (v - mean[j]) / scale[j]
	}
	return z
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
