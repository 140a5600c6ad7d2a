package backtest

import (
	"fmt"

	"github.com/parkercarrus/cluster-trading-strategy/internal/calendar"
	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
	"github.com/parkercarrus/cluster-trading-strategy/internal/model"
)

// Params configures one walk-forward run.
// Each run gets its own copy; nothing here is shared between runs.
type Params struct {
	K                int     // buys per step
	RandomState      int64   // model seed
	SellThreshold    float64 // bottom fraction of the ranking that closes positions
	FundamentalsOnly bool
	Relative         bool // cluster-relative labels instead of outright returns
	Model            string

	ClusterCount int   // peer groups per quarter
	ClusterSeed  int64 // k-means seed
	WindowDays   int   // label window length

	Trees    int
	MaxDepth int
	Workers  int // parallel tree training; 0 = GOMAXPROCS

	// Optional sub-range of the calendar; zero values mean the calendar bounds
	StartQuarter calendar.Quarter
	EndQuarter   calendar.Quarter

	Benchmark string
}

// DefaultParams mirrors the research defaults
func DefaultParams() Params {
	return Params{
		K:             10,
		RandomState:   17,
		SellThreshold: 0.3,
		Relative:      true,
		Model:         model.DefaultModel,
		ClusterCount:  15,
		ClusterSeed:   42,
		WindowDays:    90,
		Trees:         100,
		MaxDepth:      10,
		Benchmark:     "SPY",
	}
}

// Validate rejects configurations that must abort before any computation
func (p Params) Validate() error {
	if p.K <= 0 {
		return fmt.Errorf("%w: k must be positive, got %d", contracts.ErrConfiguration, p.K)
	}
	if !(p.SellThreshold >= 0 && p.SellThreshold <= 1) {
		return fmt.Errorf("%w: sell threshold must be in [0,1], got %v", contracts.ErrConfiguration, p.SellThreshold)
	}
	if p.ClusterCount < 0 {
		return fmt.Errorf("%w: cluster count must not be negative", contracts.ErrConfiguration)
	}
	if p.Trees < 0 || p.MaxDepth < 0 || p.Workers < 0 {
		return fmt.Errorf("%w: model sizes must not be negative", contracts.ErrConfiguration)
	}
	if _, err := model.New(p.Model, model.Options{}); err != nil {
		return err
	}
	return nil
}

func (p Params) modelOptions() model.Options {
	return model.Options{
		Seed:     p.RandomState,
		Trees:    p.Trees,
		MaxDepth: p.MaxDepth,
		Quantile: 0.75,
		Workers:  p.Workers,
	}
}

func (p Params) benchmark() string {
	if p.Benchmark == "" {
		return "SPY"
	}
	return p.Benchmark
}
