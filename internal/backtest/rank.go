package backtest

import (
	"math"
	"sort"

	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
	"github.com/parkercarrus/cluster-trading-strategy/internal/features"
)

// Rank orders scored rows by descending score, ties broken by symbol
func Rank(rows []features.Row, scores []float64) []contracts.RankedSymbol {
	out := make([]contracts.RankedSymbol, len(rows))
	for i, r := range rows {
		out[i] = contracts.RankedSymbol{Symbol: r.Symbol, Score: scores[i], Cluster: r.Cluster}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		return out[a].Symbol < out[b].Symbol
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// TopK returns the first min(k, N) entries of a ranking
func TopK(ranking []contracts.RankedSymbol, k int) []contracts.RankedSymbol {
	if k > len(ranking) {
		k = len(ranking)
	}
	if k < 0 {
		k = 0
	}
	return ranking[:k]
}

// Bottom returns the set of symbols in the lowest floor(N × fraction) of a ranking
func Bottom(ranking []contracts.RankedSymbol, fraction float64) map[string]bool {
	n := 0
	if fraction > 0 {
		n = int(math.Floor(float64(len(ranking)) * math.Min(fraction, 1)))
	}
	out := make(map[string]bool, n)
	for _, r := range ranking[len(ranking)-n:] {
		out[r.Symbol] = true
	}
	return out
}
