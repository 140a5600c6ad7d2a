package strategyconfig

import (
	"time"

	"github.com/parkercarrus/cluster-trading-strategy/internal/backtest"
	"github.com/parkercarrus/cluster-trading-strategy/internal/calendar"
)

// Config는 클러스터 랭킹 전략의 전체 설정
type Config struct {
	Meta       Meta       `yaml:"meta" json:"meta"`
	Clustering Clustering `yaml:"clustering" json:"clustering"`
	Model      Model      `yaml:"model" json:"model"`
	Labels     Labels     `yaml:"labels" json:"labels"`
	Selection  Selection  `yaml:"selection" json:"selection"`
	Portfolio  Portfolio  `yaml:"portfolio" json:"portfolio"`
	Benchmark  Benchmark  `yaml:"benchmark" json:"benchmark"`
	Range      Range      `yaml:"range" json:"range"`
	Calendar   []Quarter  `yaml:"calendar,omitempty" json:"calendar,omitempty"`
}

// Meta 메타 정보
type Meta struct {
	StrategyID string `yaml:"strategy_id" json:"strategy_id"`
	Version    string `yaml:"version" json:"version"`
}

// Clustering 분기별 피어 그룹
type Clustering struct {
	K    int   `yaml:"k" json:"k"`
	Seed int64 `yaml:"seed" json:"seed"`
}

// Model 랭킹 모델
type Model struct {
	ID          string `yaml:"id" json:"id"` // RandomForest, LogisticRegression
	RandomState int64  `yaml:"random_state" json:"random_state"`
	Trees       int    `yaml:"trees" json:"trees"`
	MaxDepth    int    `yaml:"max_depth" json:"max_depth"`
	Workers     int    `yaml:"workers" json:"workers"`
}

// Labels 학습 라벨
type Labels struct {
	Relative   bool `yaml:"relative" json:"relative"`
	WindowDays int  `yaml:"window_days" json:"window_days"`
}

// Selection 매수/매도 규칙
type Selection struct {
	TopK             int     `yaml:"top_k" json:"top_k"`
	SellThreshold    float64 `yaml:"sell_threshold" json:"sell_threshold"`
	FundamentalsOnly bool    `yaml:"fundamentals_only" json:"fundamentals_only"`
}

// Portfolio 원장 시뮬레이션
type Portfolio struct {
	InitialCapital      float64 `yaml:"initial_capital" json:"initial_capital"`
	ConfidenceWeighting bool    `yaml:"confidence_weighting" json:"confidence_weighting"`
}

type Benchmark struct {
	Symbol string `yaml:"symbol" json:"symbol"`
}

// Range 분기 구간 (비어 있으면 캘린더 전체)
type Range struct {
	StartQuarter string `yaml:"start_quarter,omitempty" json:"start_quarter,omitempty"`
	EndQuarter   string `yaml:"end_quarter,omitempty" json:"end_quarter,omitempty"`
}

// Quarter is one calendar entry: label and rebalance date (YYYY-MM-DD)
type Quarter struct {
	Quarter string `yaml:"quarter" json:"quarter"`
	Date    string `yaml:"date" json:"date"`
}

// Default returns the research configuration
func Default() *Config {
	p := backtest.DefaultParams()
	return &Config{
		Meta:       Meta{StrategyID: "cluster_rf", Version: "1.0.0"},
		Clustering: Clustering{K: p.ClusterCount, Seed: p.ClusterSeed},
		Model: Model{
			ID:          p.Model,
			RandomState: p.RandomState,
			Trees:       p.Trees,
			MaxDepth:    p.MaxDepth,
		},
		Labels:    Labels{Relative: p.Relative, WindowDays: p.WindowDays},
		Selection: Selection{TopK: p.K, SellThreshold: p.SellThreshold},
		Portfolio: Portfolio{InitialCapital: 100000, ConfidenceWeighting: true},
		Benchmark: Benchmark{Symbol: p.Benchmark},
	}
}

// Params converts the strategy into run parameters
func (c *Config) Params() (backtest.Params, error) {
	p := backtest.Params{
		K:                c.Selection.TopK,
		RandomState:      c.Model.RandomState,
		SellThreshold:    c.Selection.SellThreshold,
		FundamentalsOnly: c.Selection.FundamentalsOnly,
		Relative:         c.Labels.Relative,
		Model:            c.Model.ID,
		ClusterCount:     c.Clustering.K,
		ClusterSeed:      c.Clustering.Seed,
		WindowDays:       c.Labels.WindowDays,
		Trees:            c.Model.Trees,
		MaxDepth:         c.Model.MaxDepth,
		Workers:          c.Model.Workers,
		Benchmark:        c.Benchmark.Symbol,
	}

	var err error
	if c.Range.StartQuarter != "" {
		if p.StartQuarter, err = calendar.ParseQuarter(c.Range.StartQuarter); err != nil {
			return p, ValidationError{"range.start_quarter", err.Error()}
		}
	}
	if c.Range.EndQuarter != "" {
		if p.EndQuarter, err = calendar.ParseQuarter(c.Range.EndQuarter); err != nil {
			return p, ValidationError{"range.end_quarter", err.Error()}
		}
	}
	return p, nil
}

// FromParams is the inverse of Params, used to key cached runs
func FromParams(p backtest.Params, capital float64, confidenceWeighting bool) *Config {
	cfg := &Config{
		Meta:       Meta{StrategyID: "custom"},
		Clustering: Clustering{K: p.ClusterCount, Seed: p.ClusterSeed},
		Model: Model{
			ID:          p.Model,
			RandomState: p.RandomState,
			Trees:       p.Trees,
			MaxDepth:    p.MaxDepth,
		},
		Labels:    Labels{Relative: p.Relative, WindowDays: p.WindowDays},
		Selection: Selection{TopK: p.K, SellThreshold: p.SellThreshold, FundamentalsOnly: p.FundamentalsOnly},
		Portfolio: Portfolio{InitialCapital: capital, ConfidenceWeighting: confidenceWeighting},
		Benchmark: Benchmark{Symbol: p.Benchmark},
	}
	if !p.StartQuarter.IsZero() {
		cfg.Range.StartQuarter = p.StartQuarter.String()
	}
	if !p.EndQuarter.IsZero() {
		cfg.Range.EndQuarter = p.EndQuarter.String()
	}
	return cfg
}

// BuildCalendar returns the configured calendar, or the built-in one when none is set
func (c *Config) BuildCalendar() (*calendar.Calendar, error) {
	if len(c.Calendar) == 0 {
		return calendar.Default(), nil
	}
	m := make(map[string]string, len(c.Calendar))
	for _, q := range c.Calendar {
		m[q.Quarter] = q.Date
	}
	return calendar.FromMap(m)
}

// RunSnapshot ties a stored run to the exact strategy that produced it
type RunSnapshot struct {
	ConfigHash string    `json:"config_hash"`
	ConfigYAML string    `json:"config_yaml"`
	StrategyID string    `json:"strategy_id"`
	CreatedAt  time.Time `json:"created_at"`
}
