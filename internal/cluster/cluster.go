// Package cluster groups a quarter's symbols into peer groups and measures
// each member's distance from its group's centroid.
package cluster

import (
	"context"
	"math"
)

// Partitioner assigns every row of X to one of k groups.
// Implementations must be deterministic for a fixed configuration.
type Partitioner interface {
	Partition(ctx context.Context, X [][]float64, k int) ([]int, error)
}

// Centroid is the column-wise mean of rows, ignoring NaN cells.
// A column with no observed value yields NaN.
func Centroid(rows [][]float64) []float64 {
	if len(rows) == 0 {
		return nil
	}
	dim := len(rows[0])
	sum := make([]float64, dim)
	count := make([]int, dim)
	for _, r := range rows {
		for j, v := range r {
			if math.IsNaN(v) {
				continue
			}
			sum[j] += v
			count[j]++
		}
	}

	out := make([]float64, dim)
	for j := range out {
		if count[j] == 0 {
			out[j] = math.NaN()
			continue
		}
		out[j] = sum[j] / float64(count[j])
	}
	return out
}

// CentroidDistance returns each row minus the centroid of rows
func CentroidDistance(rows [][]float64) [][]float64 {
	c := Centroid(rows)
	out := make([][]float64, len(rows))
	for i, r := range rows {
		d := make([]float64, len(r))
		for j, v := range r {
			d[j] = v - c[j]
		}
		out[i] = d
	}
	return out
}

// Groups returns member row indices per label, in label order
func Groups(labels []int) [][]int {
	maxLabel := -1
	for _, l := range labels {
		if l > maxLabel {
			maxLabel = l
		}
	}
	out := make([][]int, maxLabel+1)
	for i, l := range labels {
		out[l] = append(out[l], i)
	}
	return out
}
