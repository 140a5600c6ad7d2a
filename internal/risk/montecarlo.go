package risk

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
)

var reportedPercentiles = []int{1, 5, 25, 50, 75, 95, 99}

// Simulator Monte Carlo 시뮬레이터
// The seed is always honoured so the same ledger gives the same distribution.
type Simulator struct {
	config Config
	rng    *rand.Rand
}

// NewSimulator 새 시뮬레이터 생성
func NewSimulator(config Config) *Simulator {
	return &Simulator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Simulate draws NumSimulations paths of HoldingPeriod days and compounds each
func (s *Simulator) Simulate(ctx context.Context, daily []float64) (*MonteCarloResult, error) {
	if len(daily) == 0 {
		return nil, fmt.Errorf("empty return series")
	}

	var draw func() float64
	switch s.config.Method {
	case MethodParametricNormal:
		mean, std := stat.MeanStdDev(daily, nil)
		draw = func() float64 { return mean + std*s.rng.NormFloat64() }
	default:
		// 과거 수익률을 랜덤하게 재샘플링
		draw = func() float64 { return daily[s.rng.Intn(len(daily))] }
	}

	paths := make([]float64, s.config.NumSimulations)
	for i := range paths {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		cum := 1.0
		for d := 0; d < s.config.HoldingPeriod; d++ {
			cum *= 1 + draw()
		}
		paths[i] = cum - 1
	}

	return s.summarize(paths, len(daily)), nil
}

func (s *Simulator) summarize(paths []float64, samples int) *MonteCarloResult {
	sort.Float64s(paths)
	mean, std := stat.MeanStdDev(paths, nil)
	if len(paths) < 2 {
		std = 0
	}

	losses := sort.SearchFloat64s(paths, 0) // paths < 0

	res := &MonteCarloResult{
		Method:           s.config.Method,
		NumSimulations:   len(paths),
		HoldingPeriod:    s.config.HoldingPeriod,
		InputSampleCount: samples,
		MeanReturn:       mean,
		StdDev:           std,
		ProbLoss:         float64(losses) / float64(len(paths)),
		Percentiles:      Percentiles(paths, reportedPercentiles),
	}
	for _, c := range s.config.ConfidenceLevels {
		res.VaR = append(res.VaR, sortedVaR(paths, c))
	}
	return res
}
