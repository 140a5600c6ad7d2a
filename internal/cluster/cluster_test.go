package cluster

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
)

func TestCentroidSkipsNaN(t *testing.T) {
	c := Centroid([][]float64{
		{1, 10, math.NaN()},
		{3, math.NaN(), math.NaN()},
	})
	assert.Equal(t, 2.0, c[0])
	assert.Equal(t, 10.0, c[1])
	assert.True(t, math.IsNaN(c[2]))
	assert.Nil(t, Centroid(nil))
}

func TestCentroidDistance(t *testing.T) {
	rows := [][]float64{{1, 4}, {3, 8}}
	d := CentroidDistance(rows)
	assert.Equal(t, [][]float64{{-1, -2}, {1, 2}}, d)

	// distances of a cluster sum to zero per column
	rows = [][]float64{{1, 2}, {5, -3}, {9, 7}}
	d = CentroidDistance(rows)
	for j := 0; j < 2; j++ {
		sum := 0.0
		for _, r := range d {
			sum += r[j]
		}
		assert.InDelta(t, 0, sum, 1e-12)
	}
}

func TestGroups(t *testing.T) {
	g := Groups([]int{0, 1, 0, 2})
	assert.Equal(t, [][]int{{0, 2}, {1}, {3}}, g)
}

func twoBlobs() [][]float64 {
	return [][]float64{
		{0, 0}, {0.1, 0.2}, {-0.1, 0.1},
		{10, 10}, {10.2, 9.9}, {9.8, 10.1},
	}
}

func TestKMeansSeparatesBlobs(t *testing.T) {
	labels, err := NewKMeans(42).Partition(context.Background(), twoBlobs(), 2)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 0, 0, 1, 1, 1}, labels)
}

func TestKMeansDeterministic(t *testing.T) {
	X := [][]float64{
		{1, 5}, {2, 4}, {8, 1}, {9, 2}, {5, 5}, {4, 6}, {7, 7}, {0, 1},
	}
	a, err := NewKMeans(7).Partition(context.Background(), X, 3)
	require.NoError(t, err)
	b, err := NewKMeans(7).Partition(context.Background(), X, 3)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// every row belongs to exactly one cluster
	assert.Len(t, a, len(X))
	for _, l := range a {
		assert.GreaterOrEqual(t, l, 0)
		assert.Less(t, l, 3)
	}
}

func TestKMeansImputesMissing(t *testing.T) {
	X := twoBlobs()
	X[1][0] = math.NaN()
	X[4][1] = math.Inf(1)

	labels, err := NewKMeans(1).Partition(context.Background(), X, 2)
	require.NoError(t, err)
	assert.Equal(t, labels[0], labels[2])
	assert.Equal(t, labels[3], labels[5])
	assert.NotEqual(t, labels[0], labels[3])
}

func TestKMeansErrors(t *testing.T) {
	_, err := NewKMeans(1).Partition(context.Background(), [][]float64{{1}}, 2)
	assert.True(t, errors.Is(err, contracts.ErrInsufficientData))

	_, err = NewKMeans(1).Partition(context.Background(), [][]float64{{1}}, 0)
	assert.True(t, errors.Is(err, contracts.ErrConfiguration))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewKMeans(1).Partition(ctx, twoBlobs(), 2)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestKMeansIdenticalRows(t *testing.T) {
	X := [][]float64{{1, 1}, {1, 1}, {1, 1}}
	labels, err := NewKMeans(3).Partition(context.Background(), X, 2)
	require.NoError(t, err)
	assert.Len(t, labels, 3)
}
