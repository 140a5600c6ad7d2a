package model

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// RandomForest is a bagged ensemble of gini CART trees with sqrt(p) feature
// sampling per split. Trees are seeded by index so parallel and serial
// training produce identical forests.
type RandomForest struct {
	opts Options
}

// NewRandomForest creates a forest trainer
func NewRandomForest(opts Options) *RandomForest {
	if opts.Trees <= 0 {
		opts.Trees = 100
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 10
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &RandomForest{opts: opts}
}

// Fit implements Trainer
func (rf *RandomForest) Fit(ctx context.Context, X [][]float64, y []float64) (Scorer, error) {
	if err := validateInput(X, y); err != nil {
		return nil, err
	}
	labels := Binarize(y, rf.opts.Quantile)
	dim := len(X[0])
	if single, p := singleClass(labels); single {
		return constant{dim: dim, value: p}, nil
	}

	trees := make([]*tree, rf.opts.Trees)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rf.opts.Workers)
	for i := range trees {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(treeSeed(rf.opts.Seed, i)))
			trees[i] = growTree(X, labels, rf.opts.MaxDepth, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &forest{dim: dim, trees: trees}, nil
}

func treeSeed(seed int64, i int) int64 {
	z := uint64(seed) + uint64(i+1)*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return int64(z ^ (z >> 31))
}

type forest struct {
	dim   int
	trees []*tree
}

// Score averages the positive-class probability across trees
func (f *forest) Score(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, row := range X {
		if len(row) != f.dim {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", i, len(row), f.dim)
		}
		sum := 0.0
		for _, t := range f.trees {
			sum += t.predict(row)
		}
		out[i] = sum / float64(len(f.trees))
	}
	return out, nil
}

type node struct {
	feature     int
	threshold   float64
	left, right int
	value       float64 // positive fraction at this node
	leaf        bool
}

type tree struct {
	nodes []node
}

func (t *tree) predict(x []float64) float64 {
	n := 0
	for !t.nodes[n].leaf {
		if x[t.nodes[n].feature] <= t.nodes[n].threshold {
			n = t.nodes[n].left
		} else {
			n = t.nodes[n].right
		}
	}
	return t.nodes[n].value
}

type grower struct {
	X        [][]float64
	y        []int
	maxDepth int
	mtry     int
	rng      *rand.Rand
	nodes    []node
}

// growTree fits one tree on a bootstrap sample
func growTree(X [][]float64, y []int, maxDepth int, rng *rand.Rand) *tree {
	n := len(X)
	sample := make([]int, n)
	for i := range sample {
		sample[i] = rng.Intn(n)
	}

	dim := len(X[0])
	mtry := int(math.Sqrt(float64(dim)))
	if mtry < 1 {
		mtry = 1
	}

	g := &grower{X: X, y: y, maxDepth: maxDepth, mtry: mtry, rng: rng}
	g.grow(sample, 0)
	return &tree{nodes: g.nodes}
}

func (g *grower) grow(idx []int, depth int) int {
	pos := 0
	for _, i := range idx {
		pos += g.y[i]
	}
	id := len(g.nodes)
	g.nodes = append(g.nodes, node{value: float64(pos) / float64(len(idx)), leaf: true})

	if depth >= g.maxDepth || pos == 0 || pos == len(idx) || len(idx) < 2 {
		return id
	}

	feature, threshold, ok := g.bestSplit(idx, pos)
	if !ok {
		return id
	}

	var left, right []int
	for _, i := range idx {
		if g.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	g.nodes[id].leaf = false
	g.nodes[id].feature = feature
	g.nodes[id].threshold = threshold
	l := g.grow(left, depth+1)
	r := g.grow(right, depth+1)
	g.nodes[id].left = l
	g.nodes[id].right = r
	return id
}

// bestSplit scans mtry random features, continuing past mtry only while no
// valid split has been found
func (g *grower) bestSplit(idx []int, pos int) (int, float64, bool) {
	n := float64(len(idx))
	parent := gini(float64(pos), n)

	bestFeature, bestThreshold := -1, 0.0
	bestImpurity := parent

	sorted := make([]int, len(idx))
	for tried, f := range g.rng.Perm(len(g.X[0])) {
		if tried >= g.mtry && bestFeature >= 0 {
			break
		}

		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, b int) bool { return g.X[sorted[a]][f] < g.X[sorted[b]][f] })

		leftPos := 0.0
		for k := 1; k < len(sorted); k++ {
			leftPos += float64(g.y[sorted[k-1]])
			lo, hi := g.X[sorted[k-1]][f], g.X[sorted[k]][f]
			if lo >= hi {
				continue
			}
			nl := float64(k)
			nr := n - nl
			impurity := (nl*gini(leftPos, nl) + nr*gini(float64(pos)-leftPos, nr)) / n
			if impurity < bestImpurity-1e-12 {
				bestImpurity = impurity
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
				if bestThreshold >= hi {
					bestThreshold = lo
				}
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}

func gini(pos, n float64) float64 {
	if n == 0 {
		return 0
	}
	p := pos / n
	return 2 * p * (1 - p)
}
