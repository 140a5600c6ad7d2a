package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/parkercarrus/cluster-trading-strategy/internal/backtest"
	"github.com/parkercarrus/cluster-trading-strategy/internal/brain"
	"github.com/parkercarrus/cluster-trading-strategy/internal/calendar"
	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
	"github.com/parkercarrus/cluster-trading-strategy/internal/risk"
	"github.com/parkercarrus/cluster-trading-strategy/pkg/config"
	"github.com/parkercarrus/cluster-trading-strategy/pkg/logger"
)

// Runner is satisfied by *brain.Orchestrator
type Runner interface {
	Run(ctx context.Context, cfg brain.RunConfig, observers ...backtest.StepObserver) (*brain.RunResult, error)
}

// BacktestHandler runs custom backtests on request
// ⭐ SSOT: 백테스트 API 핸들러는 이 구조체에서만
type BacktestHandler struct {
	runner   Runner
	defaults config.BacktestConfig
	logger   *logger.Logger
}

// NewBacktestHandler creates a new backtest handler
func NewBacktestHandler(runner Runner, defaults config.BacktestConfig, log *logger.Logger) *BacktestHandler {
	return &BacktestHandler{
		runner:   runner,
		defaults: defaults,
		logger:   log,
	}
}

// LedgerEntry is one ledger row plus the benchmark curve on the same day
type LedgerEntry struct {
	Date           string   `json:"date"`
	PortfolioValue float64  `json:"portfolio_value"`
	Cash           float64  `json:"cash"`
	Invested       float64  `json:"invested"`
	NumPositions   int      `json:"num_positions"`
	Benchmark      *float64 `json:"SPY,omitempty"`
}

// BacktestResponse is the /api/backtest payload
type BacktestResponse struct {
	RunID        string                  `json:"run_id"`
	Cached       bool                    `json:"cached"`
	Metrics      contracts.Metrics       `json:"metrics"` // percent values except sharpe_ratio
	Summary      contracts.TradeSummary  `json:"summary"`
	Ledger       []LedgerEntry           `json:"ledger"`
	Transactions []contracts.TradeRecord `json:"transactions"`
	Skipped      int                     `json:"skipped"`
	Risk         *risk.Report            `json:"risk,omitempty"` // fractions, loss positive
}

// GetBacktest runs a backtest with query parameters
// GET /api/backtest?k=10&initial_capital=100000&random_state=17&model_strategy=Random%20Forest&
// sell_threshold=0.3&start_quarter=2021_Q1&end_quarter=2024_Q4&fundamentals_only=false&relative=true
func (h *BacktestHandler) GetBacktest(w http.ResponseWriter, r *http.Request) {
	cfg, err := ParseRunConfig(r.URL.Query(), h.defaults)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg.Source = "api"

	h.logger.WithFields(map[string]interface{}{
		"k":              cfg.Params.K,
		"capital":        cfg.Ledger.InitialCapital,
		"model":          cfg.Params.Model,
		"sell_threshold": cfg.Params.SellThreshold,
		"start":          quarterLabel(cfg.Params.StartQuarter),
		"end":            quarterLabel(cfg.Params.EndQuarter),
	}).Info("Backtest request received")

	result, err := h.runner.Run(r.Context(), cfg)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.logger.WithError(err).Error("Backtest failed")
		}
		respondError(w, status, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, NewBacktestResponse(result))
}

// NewBacktestResponse shapes a run for the dashboard
func NewBacktestResponse(result *brain.RunResult) BacktestResponse {
	trades := result.Trades
	if trades == nil {
		trades = []contracts.TradeRecord{}
	}
	return BacktestResponse{
		RunID:        result.RunID.String(),
		Cached:       result.Cached,
		Metrics:      PercentMetrics(result.Metrics),
		Summary:      result.Summary,
		Ledger:       ledgerEntries(result.Rows, result.Benchmark),
		Transactions: trades,
		Skipped:      len(result.Skipped),
		Risk:         result.Risk,
	}
}

// PercentMetrics scales return-like metrics to percent
func PercentMetrics(m contracts.Metrics) contracts.Metrics {
	m.NetReturn *= 100
	m.BenchmarkedReturn *= 100
	m.CAGR *= 100
	m.Volatility *= 100
	m.MaxDrawdown *= 100
	return m
}

func ledgerEntries(rows, bench []contracts.LedgerRow) []LedgerEntry {
	byDate := make(map[time.Time]float64, len(bench))
	for _, b := range bench {
		byDate[b.Date] = b.PortfolioValue
	}

	out := make([]LedgerEntry, 0, len(rows))
	for _, row := range rows {
		e := LedgerEntry{
			Date:           row.Date.Format(calendar.DateLayout),
			PortfolioValue: row.PortfolioValue,
			Cash:           row.Cash,
			Invested:       row.Invested,
			NumPositions:   row.NumPositions,
		}
		if v, ok := byDate[row.Date]; ok && !math.IsNaN(v) {
			v := v
			e.Benchmark = &v
		}
		out = append(out, e)
	}
	return out
}

// ParseRunConfig reads backtest parameters from a query string.
// Missing parameters fall back to the configured defaults.
func ParseRunConfig(q url.Values, d config.BacktestConfig) (brain.RunConfig, error) {
	p := backtest.DefaultParams()
	p.K = d.K
	p.RandomState = d.RandomState
	p.SellThreshold = d.SellThreshold
	if d.Model != "" {
		p.Model = d.Model
	}
	if d.Benchmark != "" {
		p.Benchmark = d.Benchmark
	}
	ledger := backtest.LedgerOptions{InitialCapital: d.InitialCapital, ConfidenceWeighting: true}

	var err error
	if v := q.Get("k"); v != "" {
		if p.K, err = strconv.Atoi(v); err != nil {
			return brain.RunConfig{}, fmt.Errorf("invalid k %q", v)
		}
	}
	if v := q.Get("initial_capital"); v != "" {
		if ledger.InitialCapital, err = strconv.ParseFloat(v, 64); err != nil {
			return brain.RunConfig{}, fmt.Errorf("invalid initial_capital %q", v)
		}
	}
	if v := q.Get("random_state"); v != "" {
		if p.RandomState, err = strconv.ParseInt(v, 10, 64); err != nil {
			return brain.RunConfig{}, fmt.Errorf("invalid random_state %q", v)
		}
	}
	if v := q.Get("sell_threshold"); v != "" {
		if p.SellThreshold, err = strconv.ParseFloat(v, 64); err != nil {
			return brain.RunConfig{}, fmt.Errorf("invalid sell_threshold %q", v)
		}
	}
	if v := q.Get("model_strategy"); v != "" {
		// "Random Forest" → "RandomForest"
		p.Model = strings.ReplaceAll(v, " ", "")
	}
	if v := q.Get("start_quarter"); v != "" {
		if p.StartQuarter, err = calendar.ParseQuarter(v); err != nil {
			return brain.RunConfig{}, fmt.Errorf("invalid start_quarter: %w", err)
		}
	}
	if v := q.Get("end_quarter"); v != "" {
		if p.EndQuarter, err = calendar.ParseQuarter(v); err != nil {
			return brain.RunConfig{}, fmt.Errorf("invalid end_quarter: %w", err)
		}
	}
	if v := q.Get("fundamentals_only"); v != "" {
		if p.FundamentalsOnly, err = strconv.ParseBool(v); err != nil {
			return brain.RunConfig{}, fmt.Errorf("invalid fundamentals_only %q", v)
		}
	}
	if v := q.Get("relative"); v != "" {
		if p.Relative, err = strconv.ParseBool(v); err != nil {
			return brain.RunConfig{}, fmt.Errorf("invalid relative %q", v)
		}
	}
	if v := q.Get("confidence_weighting"); v != "" {
		if ledger.ConfidenceWeighting, err = strconv.ParseBool(v); err != nil {
			return brain.RunConfig{}, fmt.Errorf("invalid confidence_weighting %q", v)
		}
	}

	if err := p.Validate(); err != nil {
		return brain.RunConfig{}, err
	}
	if !(ledger.InitialCapital > 0) || math.IsInf(ledger.InitialCapital, 0) {
		return brain.RunConfig{}, fmt.Errorf("%w: initial_capital must be positive", contracts.ErrConfiguration)
	}
	return brain.RunConfig{Params: p, Ledger: ledger}, nil
}

// quarterLabel is empty for an unset quarter (calendar bound)
func quarterLabel(q calendar.Quarter) string {
	if q.IsZero() {
		return ""
	}
	return q.String()
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, contracts.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
