package cluster

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
)

// KMeans is Lloyd's algorithm with k-means++ seeding, best of NInit restarts
type KMeans struct {
	Seed    int64
	NInit   int
	MaxIter int
	Tol     float64
}

// NewKMeans returns a KMeans with the usual defaults (10 restarts, 300 iterations)
func NewKMeans(seed int64) *KMeans {
	return &KMeans{Seed: seed, NInit: 10, MaxIter: 300, Tol: 1e-4}
}

// Partition implements Partitioner. Labels are renumbered in order of first
// appearance so the same grouping always yields the same ids.
func (km *KMeans) Partition(ctx context.Context, X [][]float64, k int) ([]int, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: cluster count must be positive, got %d", contracts.ErrConfiguration, k)
	}
	if len(X) < k {
		return nil, fmt.Errorf("%w: %d rows for %d clusters", contracts.ErrInsufficientData, len(X), k)
	}

	data := imputeColumnMeans(X)
	rng := rand.New(rand.NewSource(km.Seed))

	nInit := km.NInit
	if nInit <= 0 {
		nInit = 1
	}

	var (
		best        []int
		bestInertia = math.Inf(1)
	)
	for run := 0; run < nInit; run++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		centers := seedPlusPlus(data, k, rng)
		labels, inertia := km.lloyd(data, centers)
		if inertia < bestInertia {
			best, bestInertia = labels, inertia
		}
	}

	return canonical(best), nil
}

func (km *KMeans) lloyd(data [][]float64, centers [][]float64) ([]int, float64) {
	k := len(centers)
	dim := len(data[0])
	labels := make([]int, len(data))

	maxIter := km.MaxIter
	if maxIter <= 0 {
		maxIter = 300
	}

	var inertia float64
	for iter := 0; iter < maxIter; iter++ {
		inertia = assign(data, centers, labels)

		next := make([][]float64, k)
		counts := make([]int, k)
		for c := range next {
			next[c] = make([]float64, dim)
		}
		for i, row := range data {
			floats.Add(next[labels[i]], row)
			counts[labels[i]]++
		}

		shift := 0.0
		for c := range next {
			if counts[c] == 0 {
				// empty cluster: move it onto the point farthest from its center
				far := farthestPoint(data, centers, labels)
				copy(next[c], data[far])
				labels[far] = c
			} else {
				floats.Scale(1/float64(counts[c]), next[c])
			}
			shift += floats.Distance(centers[c], next[c], 2)
			centers[c] = next[c]
		}

		if shift <= km.Tol {
			inertia = assign(data, centers, labels)
			break
		}
	}
	return labels, inertia
}

// assign labels each row with its nearest center (lowest index wins ties)
// and returns the total squared distance
func assign(data, centers [][]float64, labels []int) float64 {
	total := 0.0
	for i, row := range data {
		best, bestDist := 0, math.Inf(1)
		for c, center := range centers {
			d := sqDist(row, center)
			if d < bestDist {
				best, bestDist = c, d
			}
		}
		labels[i] = best
		total += bestDist
	}
	return total
}

func farthestPoint(data, centers [][]float64, labels []int) int {
	far, farDist := 0, -1.0
	for i, row := range data {
		if d := sqDist(row, centers[labels[i]]); d > farDist {
			far, farDist = i, d
		}
	}
	return far
}

// seedPlusPlus picks k initial centers with probability proportional to D(x)^2
func seedPlusPlus(data [][]float64, k int, rng *rand.Rand) [][]float64 {
	centers := make([][]float64, 0, k)
	centers = append(centers, append([]float64(nil), data[rng.Intn(len(data))]...))

	dist := make([]float64, len(data))
	for len(centers) < k {
		total := 0.0
		for i, row := range data {
			best := math.Inf(1)
			for _, c := range centers {
				if d := sqDist(row, c); d < best {
					best = d
				}
			}
			dist[i] = best
			total += best
		}

		var pick int
		if total == 0 {
			// all remaining points coincide with a center
			pick = rng.Intn(len(data))
		} else {
			target := rng.Float64() * total
			acc := 0.0
			pick = len(data) - 1
			for i, d := range dist {
				acc += d
				if acc >= target && d > 0 {
					pick = i
					break
				}
			}
		}
		centers = append(centers, append([]float64(nil), data[pick]...))
	}
	return centers
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

// imputeColumnMeans replaces non-finite cells with the mean of the column's
// finite cells (0 when there are none). Only used for partitioning.
func imputeColumnMeans(X [][]float64) [][]float64 {
	dim := len(X[0])
	sum := make([]float64, dim)
	count := make([]int, dim)
	for _, row := range X {
		for j, v := range row {
			if isFinite(v) {
				sum[j] += v
				count[j]++
			}
		}
	}

	out := make([][]float64, len(X))
	for i, row := range X {
		r := make([]float64, len(row))
		for j, v := range row {
			switch {
			case isFinite(v):
				r[j] = v
			case count[j] > 0:
				r[j] = sum[j] / float64(count[j])
			}
		}
		out[i] = r
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func canonical(labels []int) []int {
	remap := make(map[int]int)
	out := make([]int, len(labels))
	for i, l := range labels {
		id, ok := remap[l]
		if !ok {
			id = len(remap)
			remap[l] = id
		}
		out[i] = id
	}
	return out
}
