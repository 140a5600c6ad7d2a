// Package audit reduces ledgers and trade tables into performance statistics.
package audit

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
	"github.com/parkercarrus/cluster-trading-strategy/internal/s0_data"
)

const (
	tradingDaysPerYear = 252
	daysPerYear        = 365.25
	degenerateStd      = 1e-12
)

// PriceLookup is the benchmark series; *s0_data.Series satisfies it
type PriceLookup interface {
	PriceOnOrAfter(d time.Time) (s0_data.Point, error)
	PriceAtOrBefore(d time.Time) (s0_data.Point, error)
}

// ComputeMetrics summarizes a ledger. It never fails: undefined statistics are NaN.
// benchmark may be nil, in which case BenchmarkedReturn is NaN.
// ⭐ SSOT: 성과 지표 계산은 여기서만
func ComputeMetrics(ledger []contracts.LedgerRow, benchmark PriceLookup) contracts.Metrics {
	m := contracts.Metrics{
		NetReturn:         math.NaN(),
		BenchmarkedReturn: math.NaN(),
		CAGR:              math.NaN(),
		SharpeRatio:       math.NaN(),
		Volatility:        math.NaN(),
		MaxDrawdown:       math.NaN(),
	}
	if len(ledger) == 0 {
		return m
	}

	first, last := ledger[0], ledger[len(ledger)-1]
	m.Days = int(math.Round(last.Date.Sub(first.Date).Hours() / 24))

	if first.PortfolioValue > 0 {
		m.NetReturn = (last.PortfolioValue - first.PortfolioValue) / first.PortfolioValue
	}
	if m.Days > 0 && !math.IsNaN(m.NetReturn) {
		m.CAGR = math.Pow(1+m.NetReturn, daysPerYear/float64(m.Days)) - 1
	}

	returns := DailyReturns(ledger)
	if len(returns) >= 2 {
		mean, std := stat.MeanStdDev(returns, nil)
		m.Volatility = std * math.Sqrt(tradingDaysPerYear)
		if std > degenerateStd {
			m.SharpeRatio = mean / std * math.Sqrt(tradingDaysPerYear)
		}
	}
	m.MaxDrawdown = MaxDrawdown(ledger)

	if benchmark != nil {
		if br, ok := benchmarkReturn(benchmark, first.Date, last.Date); ok {
			m.BenchmarkedReturn = m.NetReturn - br
		}
	}
	return m
}

// DailyReturns is the percent change of portfolio value between consecutive rows
func DailyReturns(ledger []contracts.LedgerRow) []float64 {
	if len(ledger) < 2 {
		return nil
	}
	out := make([]float64, 0, len(ledger)-1)
	for i := 1; i < len(ledger); i++ {
		prev := ledger[i-1].PortfolioValue
		if prev == 0 {
			continue
		}
		out = append(out, ledger[i].PortfolioValue/prev-1)
	}
	return out
}

// MaxDrawdown is the largest peak-to-trough decline as a positive fraction
func MaxDrawdown(ledger []contracts.LedgerRow) float64 {
	if len(ledger) == 0 {
		return math.NaN()
	}

	maxDrawdown := 0.0
	peak := ledger[0].PortfolioValue
	for _, row := range ledger {
		if row.PortfolioValue > peak {
			peak = row.PortfolioValue
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - row.PortfolioValue) / peak; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}
	return maxDrawdown
}

// benchmarkReturn uses the first price at or after start and the last at or before end
func benchmarkReturn(b PriceLookup, start, end time.Time) (float64, bool) {
	s, err := b.PriceOnOrAfter(start)
	if err != nil {
		return 0, false
	}
	e, err := b.PriceAtOrBefore(end)
	if err != nil || e.Date.Before(s.Date) {
		return 0, false
	}
	return (e.Price - s.Price) / s.Price, true
}
