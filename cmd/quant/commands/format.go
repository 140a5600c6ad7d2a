package commands

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/parkercarrus/cluster-trading-strategy/internal/audit"
	"github.com/parkercarrus/cluster-trading-strategy/internal/backtest"
	"github.com/parkercarrus/cluster-trading-strategy/internal/brain"
	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// 모든 커맨드가 동일한 출력 포맷을 사용하도록 통일
// ═══════════════════════════════════════════════════════════

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintDoubleSeparator prints a double-line separator
func PrintDoubleSeparator() {
	fmt.Println("═══════════════════════════════════════════════════════════")
}

// PrintHeader prints a titled block
func PrintHeader(title string) {
	fmt.Println()
	PrintDoubleSeparator()
	fmt.Printf("  %s\n", title)
	PrintSeparator()
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Println()
	fmt.Printf("⚠️  %s\n", message)
	fmt.Println()
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Printf("❌ %s\n", message)
}

// PrintInfo prints an info message
func PrintInfo(message string) {
	fmt.Printf("ℹ️  %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Println(strings.Repeat("─", totalWidth))
}

// PrintTableRow prints a table row
func PrintTableRow(values []string, widths []int) {
	for i, val := range values {
		fmt.Printf("%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}

// formatPercent renders a fraction as a percentage; NaN prints n/a
func formatPercent(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", v*100)
}

// formatRatio renders an unscaled statistic such as Sharpe
func formatRatio(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", v)
}

// formatMoney renders a currency amount with thousands separators
func formatMoney(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	s := fmt.Sprintf("%.2f", math.Abs(v))
	intPart, frac := s[:len(s)-3], s[len(s)-3:]

	var b strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if v < 0 {
		return "-" + b.String() + frac
	}
	return b.String() + frac
}

// printStep prints one walk-forward step as it completes
func printStep(rep backtest.StepReport) {
	if rep.Skipped {
		fmt.Printf("[Step %d] train=%s feat=%s eval=%s  skipped: %s\n",
			rep.Index+1, rep.Train, rep.Feature, rep.Eval, rep.Reason)
		return
	}
	fmt.Printf("[Step %d] train=%s feat=%s eval=%s  rows=%d buys=%d sells=%d\n",
		rep.Index+1, rep.Train, rep.Feature, rep.Eval, rep.TrainRows, len(rep.Buys), len(rep.Sells))
}

// printResult prints the metrics and trade summary of a run
func printResult(r *brain.RunResult) {
	PrintHeader("Backtest Result")
	PrintKeyValue("Run ID", r.RunID.String(), 18)
	PrintKeyValue("Config hash", shortHash(r.ConfigHash), 18)
	PrintKeyValue("Cached", fmt.Sprintf("%t", r.Cached), 18)
	PrintKeyValue("Duration", r.Duration.Round(time.Millisecond).String(), 18)
	PrintSeparator()

	printMetrics(r.Metrics, r.Rows)
	PrintSeparator()
	printSummary(r.Summary, len(r.Skipped))
	printAttribution(r.Trades)

	if rep := r.Risk; rep != nil {
		PrintSeparator()
		for _, v := range rep.Historical {
			PrintKeyValue(fmt.Sprintf("VaR %.0f%% (1d)", v.Confidence*100), fmt.Sprintf("%s / CVaR %s", formatPercent(v.VaR), formatPercent(v.CVaR)), 18)
		}
		if mc := rep.MonteCarlo; mc != nil {
			PrintKeyValue(fmt.Sprintf("MC %dd p5/p50", mc.HoldingPeriod), fmt.Sprintf("%s / %s", formatPercent(mc.Percentiles[5]), formatPercent(mc.Percentiles[50])), 18)
			PrintKeyValue("MC P(loss)", formatPercent(mc.ProbLoss), 18)
		}
	}
	PrintDoubleSeparator()
}

func printMetrics(m contracts.Metrics, rows []contracts.LedgerRow) {
	PrintKeyValue("Net return", formatPercent(m.NetReturn), 18)
	PrintKeyValue("Benchmarked", formatPercent(m.BenchmarkedReturn), 18)
	PrintKeyValue("CAGR", formatPercent(m.CAGR), 18)
	PrintKeyValue("Sharpe", formatRatio(m.SharpeRatio), 18)
	PrintKeyValue("Volatility", formatPercent(m.Volatility), 18)
	PrintKeyValue("Max drawdown", formatPercent(m.MaxDrawdown), 18)
	PrintKeyValue("Days", fmt.Sprintf("%d", m.Days), 18)
	if n := len(rows); n > 0 {
		PrintKeyValue("Final value", formatMoney(rows[n-1].PortfolioValue), 18)
	}
}

func printSummary(s contracts.TradeSummary, skipped int) {
	PrintKeyValue("Trades", fmt.Sprintf("%d (%d held)", s.TotalTrades, s.HeldTrades), 18)
	PrintKeyValue("Win rate", formatPercent(s.WinRate), 18)
	PrintKeyValue("Avg return", formatPercent(s.AvgReturn), 18)
	PrintKeyValue("Avg edge", formatPercent(s.AvgEdge), 18)
	PrintKeyValue("Skipped events", fmt.Sprintf("%d", skipped), 18)
}

func shortHash(h string) string {
	return h[:min(12, len(h))]
}

// printAttribution prints per-quarter edge and the best/worst trades
func printAttribution(trades []contracts.TradeRecord) {
	if len(trades) == 0 {
		return
	}

	widths := []int{10, 8, 12, 12, 12}
	fmt.Println()
	PrintTableHeader([]string{"QUARTER", "TRADES", "AVG RETURN", "BASELINE", "AVG EDGE"}, widths)
	for _, q := range audit.ByQuarter(trades) {
		PrintTableRow([]string{
			q.Quarter,
			fmt.Sprintf("%d", q.Trades),
			formatPercent(q.AvgReturn),
			formatPercent(q.Baseline),
			formatPercent(q.AvgEdge),
		}, widths)
	}

	n := min(3, len(trades))
	fmt.Println()
	for _, t := range audit.TopContributors(trades, n) {
		PrintKeyValue("  best "+t.Symbol, fmt.Sprintf("%s edge (%s)", formatPercent(t.StratEdge), t.Quarter), 18)
	}
	for _, t := range audit.BottomContributors(trades, n) {
		PrintKeyValue("  worst "+t.Symbol, fmt.Sprintf("%s edge (%s)", formatPercent(t.StratEdge), t.Quarter), 18)
	}
}
