// Package risk measures tail risk of a simulated portfolio ledger:
// historical and parametric VaR/CVaR of daily returns, plus a Monte Carlo
// distribution of holding-period returns.
package risk

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
)

// ErrInvalidConfig marks an unusable risk configuration
var ErrInvalidConfig = errors.New("invalid risk configuration")

// Validate 설정 검증
func (c Config) Validate() error {
	if c.NumSimulations <= 0 {
		return fmt.Errorf("%w: NumSimulations must be > 0", ErrInvalidConfig)
	}
	if c.HoldingPeriod <= 0 {
		return fmt.Errorf("%w: HoldingPeriod must be > 0", ErrInvalidConfig)
	}
	if c.MinSamples < 2 {
		return fmt.Errorf("%w: MinSamples must be >= 2", ErrInvalidConfig)
	}
	if len(c.ConfidenceLevels) == 0 {
		return fmt.Errorf("%w: ConfidenceLevels cannot be empty", ErrInvalidConfig)
	}
	for _, cl := range c.ConfidenceLevels {
		if cl <= 0 || cl >= 1 {
			return fmt.Errorf("%w: ConfidenceLevel must be between 0 and 1", ErrInvalidConfig)
		}
	}
	switch c.Method {
	case MethodHistoricalBootstrap, MethodParametricNormal:
	default:
		return fmt.Errorf("%w: unknown method %q", ErrInvalidConfig, c.Method)
	}
	return nil
}

// DailyReturns converts portfolio values into simple day-over-day returns.
// Days following a non-positive value are dropped.
func DailyReturns(ledger []contracts.LedgerRow) []float64 {
	if len(ledger) < 2 {
		return nil
	}
	out := make([]float64, 0, len(ledger)-1)
	for i := 1; i < len(ledger); i++ {
		prev := ledger[i-1].PortfolioValue
		if prev <= 0 {
			continue
		}
		out = append(out, ledger[i].PortfolioValue/prev-1)
	}
	return out
}

// Analyze builds the risk report of a ledger.
// Fewer than MinSamples daily returns is ErrInsufficientData (fail-closed).
// ⭐ SSOT: 리스크 지표 계산은 여기서만
func Analyze(ctx context.Context, ledger []contracts.LedgerRow, cfg Config) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	returns := DailyReturns(ledger)
	if len(returns) < cfg.MinSamples {
		return nil, fmt.Errorf("%w: risk needs %d daily returns, got %d",
			contracts.ErrInsufficientData, cfg.MinSamples, len(returns))
	}

	mean, std := stat.MeanStdDev(returns, nil)
	report := &Report{
		Config:  cfg,
		Samples: len(returns),
	}
	for _, c := range cfg.ConfidenceLevels {
		report.Historical = append(report.Historical, HistoricalVaR(returns, c))
		report.Parametric = append(report.Parametric, ParametricVaR(mean, std, c))
	}

	mc, err := NewSimulator(cfg).Simulate(ctx, returns)
	if err != nil {
		return nil, fmt.Errorf("monte carlo: %w", err)
	}
	report.MonteCarlo = mc
	return report, nil
}
