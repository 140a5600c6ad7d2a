package audit

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
)

// Summarize reduces a reconciled trade table. NaN baselines and edges are left out of their averages.
func Summarize(trades []contracts.TradeRecord) contracts.TradeSummary {
	s := contracts.TradeSummary{
		AvgReturn:   math.NaN(),
		AvgBaseline: math.NaN(),
		AvgEdge:     math.NaN(),
		EdgeSharpe:  math.NaN(),
		WinRate:     math.NaN(),
		TotalTrades: len(trades),
	}
	if len(trades) == 0 {
		return s
	}

	returns := make([]float64, 0, len(trades))
	var baselines, edges []float64
	wins := 0
	for _, t := range trades {
		returns = append(returns, t.Return)
		if t.Return > 0 {
			wins++
		}
		if t.Held {
			s.HeldTrades++
		}
		if !math.IsNaN(t.BaselineReturn) {
			baselines = append(baselines, t.BaselineReturn)
		}
		if !math.IsNaN(t.StratEdge) {
			edges = append(edges, t.StratEdge)
		}
	}

	s.AvgReturn = stat.Mean(returns, nil)
	s.WinRate = float64(wins) / float64(len(trades))
	if len(baselines) > 0 {
		s.AvgBaseline = stat.Mean(baselines, nil)
	}
	if len(edges) > 0 {
		s.AvgEdge = stat.Mean(edges, nil)
	}
	if len(edges) >= 2 {
		mean, std := stat.MeanStdDev(edges, nil)
		if std > degenerateStd {
			s.EdgeSharpe = mean / std
		}
	}
	return s
}

// QuarterAttribution groups trades by the quarter that opened them
type QuarterAttribution struct {
	Quarter   string  `json:"quarter"`
	Trades    int     `json:"trades"`
	AvgReturn float64 `json:"avg_return"`
	Baseline  float64 `json:"baseline"`
	AvgEdge   float64 `json:"avg_edge"`
}

// ByQuarter summarizes trades per opening quarter, in quarter order
func ByQuarter(trades []contracts.TradeRecord) []QuarterAttribution {
	groups := make(map[string][]contracts.TradeRecord)
	for _, t := range trades {
		groups[t.Quarter] = append(groups[t.Quarter], t)
	}

	out := make([]QuarterAttribution, 0, len(groups))
	for q, ts := range groups {
		sum := Summarize(ts)
		out = append(out, QuarterAttribution{
			Quarter:   q,
			Trades:    len(ts),
			AvgReturn: sum.AvgReturn,
			Baseline:  sum.AvgBaseline,
			AvgEdge:   sum.AvgEdge,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Quarter < out[j].Quarter })
	return out
}

// TopContributors returns the n trades with the largest edge
func TopContributors(trades []contracts.TradeRecord, n int) []contracts.TradeRecord {
	sorted := sortedByEdge(trades)
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}

// BottomContributors returns the n trades with the smallest edge, worst first
func BottomContributors(trades []contracts.TradeRecord, n int) []contracts.TradeRecord {
	sorted := sortedByEdge(trades)
	if n > len(sorted) {
		n = len(sorted)
	}
	out := make([]contracts.TradeRecord, n)
	for i := 0; i < n; i++ {
		out[i] = sorted[len(sorted)-1-i]
	}
	return out
}

// sortedByEdge orders by descending edge; NaN edges are dropped
func sortedByEdge(trades []contracts.TradeRecord) []contracts.TradeRecord {
	out := make([]contracts.TradeRecord, 0, len(trades))
	for _, t := range trades {
		if !math.IsNaN(t.StratEdge) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StratEdge > out[j].StratEdge })
	return out
}
