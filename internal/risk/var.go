package risk

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// HistoricalVaR 과거 수익률 기반 VaR 계산 (Historical Simulation)
// returns: 일별 수익률 (양수=이익, 음수=손실)
func HistoricalVaR(returns []float64, confidence float64) VaRResult {
	if len(returns) == 0 {
		return VaRResult{Confidence: confidence}
	}

	// 오름차순: 손실이 앞에
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	return sortedVaR(sorted, confidence)
}

// sortedVaR: VaR는 (1-confidence) 백분위수, CVaR는 그 이하 tail 평균
func sortedVaR(sorted []float64, confidence float64) VaRResult {
	idx := int(math.Floor((1 - confidence) * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	return VaRResult{
		Confidence: confidence,
		VaR:        lossOf(sorted[idx]),
		CVaR:       lossOf(stat.Mean(sorted[:idx+1], nil)),
	}
}

// ParametricVaR 정규분포 가정 VaR/CVaR
// VaR = z·σ − μ, CVaR = σ·φ(z)/(1−c) − μ
func ParametricVaR(mean, stdDev, confidence float64) VaRResult {
	std := distuv.UnitNormal
	z := std.Quantile(confidence)

	return VaRResult{
		Confidence: confidence,
		VaR:        lossOf(mean - z*stdDev),
		CVaR:       lossOf(mean - stdDev*std.Prob(z)/(1-confidence)),
	}
}

// Percentiles 선형 보간 백분위수 (sorted 오름차순)
func Percentiles(sorted []float64, ps []int) map[int]float64 {
	out := make(map[int]float64, len(ps))
	if len(sorted) == 0 {
		return out
	}
	for _, p := range ps {
		out[p] = stat.Quantile(float64(p)/100, stat.LinInterp, sorted, nil)
	}
	return out
}

// lossOf 손실을 양수로 (이익이면 0)
func lossOf(r float64) float64 {
	if r < 0 {
		return -r
	}
	return 0
}
