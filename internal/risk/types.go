package risk

// VaRConvention VaR 부호 규약
// ⭐ SSOT: Loss를 양수로 표현 (VaR=0.05 → 5% 손실 가능)
const VaRConvention = "loss_positive"

// VaRResult VaR 계산 결과
// - VaR=0.05 → 신뢰수준에서 최대 5% 손실 가능
// - CVaR=0.07 → tail에서 평균 7% 손실 예상
type VaRResult struct {
	Confidence float64 `json:"confidence"` // 신뢰수준 (예: 0.95, 0.99)
	VaR        float64 `json:"var"`        // Value at Risk (손실, 양수)
	CVaR       float64 `json:"cvar"`       // Conditional VaR (Expected Shortfall, 양수)
}

// MonteCarloMethod 시뮬레이션 방법
type MonteCarloMethod string

const (
	MethodHistoricalBootstrap MonteCarloMethod = "historical_bootstrap" // 일별 수익률 Bootstrap
	MethodParametricNormal    MonteCarloMethod = "parametric_normal"    // 정규분포 가정
)

// Config 리스크 분석 설정
// ⭐ SSOT: 재현성을 위해 모든 설정을 결과에 기록
type Config struct {
	Method           MonteCarloMethod `json:"method"`
	NumSimulations   int              `json:"num_simulations"`
	HoldingPeriod    int              `json:"holding_period"` // business days per simulated path
	ConfidenceLevels []float64        `json:"confidence_levels"`
	Seed             int64            `json:"seed"`
	MinSamples       int              `json:"min_samples"` // fail-closed below this many daily returns
}

// DefaultConfig uses one trading month as the horizon
func DefaultConfig(seed int64) Config {
	return Config{
		Method:           MethodHistoricalBootstrap,
		NumSimulations:   2000,
		HoldingPeriod:    21,
		ConfidenceLevels: []float64{0.95, 0.99},
		Seed:             seed,
		MinSamples:       30,
	}
}

// MonteCarloResult Monte Carlo 시뮬레이션 결과 (holding period 누적 수익률 분포)
type MonteCarloResult struct {
	Method           MonteCarloMethod `json:"method"`
	NumSimulations   int              `json:"num_simulations"`
	HoldingPeriod    int              `json:"holding_period"`
	InputSampleCount int              `json:"input_sample_count"`
	MeanReturn       float64          `json:"mean_return"`
	StdDev           float64          `json:"std_dev"`
	ProbLoss         float64          `json:"prob_loss"` // share of paths ending below zero
	VaR              []VaRResult      `json:"var"`
	Percentiles      map[int]float64  `json:"percentiles"` // 1, 5, 25, 50, 75, 95, 99
}

// Report is the risk profile of one backtest ledger
type Report struct {
	Config     Config            `json:"config"`
	Samples    int               `json:"samples"` // daily returns used
	Historical []VaRResult       `json:"historical"`
	Parametric []VaRResult       `json:"parametric"`
	MonteCarlo *MonteCarloResult `json:"monte_carlo"`
}

// At returns the historical VaR at a confidence level
func (r *Report) At(confidence float64) (VaRResult, bool) {
	for _, v := range r.Historical {
		if v.Confidence == confidence {
			return v, true
		}
	}
	return VaRResult{}, false
}
