// Package brain composes a full backtest: walk-forward run, ledger
// simulation, performance metrics, caching and persistence.
package brain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/parkercarrus/cluster-trading-strategy/internal/audit"
	"github.com/parkercarrus/cluster-trading-strategy/internal/backtest"
	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
	"github.com/parkercarrus/cluster-trading-strategy/internal/observability"
	"github.com/parkercarrus/cluster-trading-strategy/internal/risk"
	"github.com/parkercarrus/cluster-trading-strategy/internal/strategyconfig"
	"github.com/parkercarrus/cluster-trading-strategy/pkg/logger"
	"github.com/parkercarrus/cluster-trading-strategy/pkg/redis"
)

// ResultCache is satisfied by *redis.Cache
type ResultCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// RunStore is satisfied by *backtest.Repository
type RunStore interface {
	SaveRun(ctx context.Context, run backtest.RunRecord, trades []contracts.TradeRecord, ledger []contracts.LedgerRow) error
}

// Orchestrator coordinates run → simulate → evaluate
// ⭐ SSOT: 백테스트 파이프라인 조율은 여기서만
type Orchestrator struct {
	engine  *backtest.Engine
	cache   ResultCache
	ttl     time.Duration
	store   RunStore
	metrics *observability.Metrics
	logger  *logger.Logger
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithCache stores finished results under the strategy hash
func WithCache(c ResultCache, ttl time.Duration) Option {
	return func(o *Orchestrator) {
		o.cache = c
		o.ttl = ttl
	}
}

// WithStore persists every computed run
func WithStore(s RunStore) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithMetrics records run counters
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(engine *backtest.Engine, log *logger.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{engine: engine, logger: log, ttl: redis.TTLBacktest}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunConfig holds configuration for one run
type RunConfig struct {
	RunID   uuid.UUID // zero → generated
	Params  backtest.Params
	Ledger  backtest.LedgerOptions
	Source  string // api, cli, scheduler, ws
	NoCache bool
}

// RunResult is everything a caller needs to report a run
type RunResult struct {
	RunID      uuid.UUID               `json:"run_id"`
	ConfigHash string                  `json:"config_hash"`
	Params     backtest.Params         `json:"params"`
	Ledger     backtest.LedgerOptions  `json:"ledger_options"`
	Metrics    contracts.Metrics       `json:"metrics"`
	Summary    contracts.TradeSummary  `json:"summary"`
	Trades     []contracts.TradeRecord `json:"trades"`
	Rows       []contracts.LedgerRow   `json:"ledger"`
	Benchmark  []contracts.LedgerRow   `json:"benchmark,omitempty"`
	Risk       *risk.Report            `json:"risk,omitempty"`
	Steps      []backtest.StepReport   `json:"-"`
	Skipped    []contracts.Skip        `json:"skipped"`
	Cached     bool                    `json:"cached"`
	Duration   time.Duration           `json:"duration"`
	CreatedAt  time.Time               `json:"created_at"`
}

// Hash keys a run by everything that changes its output
func Hash(cfg RunConfig) (string, error) {
	return strategyconfig.Hash(strategyconfig.FromParams(cfg.Params, cfg.Ledger.InitialCapital, cfg.Ledger.ConfidenceWeighting))
}

// Run executes one backtest. Observers receive every step as it completes;
// they are not called when the result comes from cache.
func (o *Orchestrator) Run(ctx context.Context, cfg RunConfig, observers ...backtest.StepObserver) (result *RunResult, err error) {
	startTime := time.Now()
	if cfg.RunID == uuid.Nil {
		cfg.RunID = uuid.New()
	}
	if cfg.Source == "" {
		cfg.Source = "cli"
	}
	log := o.logger.WithRun(cfg.RunID.String())

	defer func() {
		if o.metrics != nil {
			o.metrics.RecordRun(cfg.Source, err, time.Since(startTime))
		}
	}()

	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if !(cfg.Ledger.InitialCapital > 0) || math.IsInf(cfg.Ledger.InitialCapital, 0) {
		return nil, fmt.Errorf("%w: initial capital must be positive", contracts.ErrConfiguration)
	}

	hash, err := Hash(cfg)
	if err != nil {
		return nil, fmt.Errorf("hash config: %w", err)
	}

	if cached := o.lookup(ctx, log, hash, cfg.NoCache); cached != nil {
		return cached, nil
	}

	log.WithFields(map[string]interface{}{
		"config_hash": hash,
		"source":      cfg.Source,
		"capital":     cfg.Ledger.InitialCapital,
	}).Info("Starting backtest run")

	if o.metrics != nil {
		observers = append(observers, backtest.StepObserverFunc(func(r backtest.StepReport) {
			o.metrics.RecordStep(r.Skipped)
		}))
	}

	run, err := o.engine.Run(ctx, cfg.Params, observers...)
	if err != nil {
		return nil, fmt.Errorf("walk-forward: %w", err)
	}

	result = &RunResult{
		RunID:      cfg.RunID,
		ConfigHash: hash,
		Params:     cfg.Params,
		Ledger:     cfg.Ledger,
		Trades:     run.Trades,
		Steps:      run.Steps,
		Skipped:    run.Skipped,
		Summary:    audit.Summarize(run.Trades),
		CreatedAt:  time.Now().UTC(),
	}

	panel := o.engine.Panel()
	ledger, err := backtest.SimulateLedgerWith(run.Trades, panel.Prices, cfg.Ledger)
	switch {
	case err == nil:
		result.Rows = ledger.Rows
		result.Skipped = append(result.Skipped, ledger.Skipped...)
	case contracts.IsRecoverable(err):
		// 거래 없음 → 빈 원장, 지표는 NaN
		result.Skipped = append(result.Skipped, contracts.NewSkip(contracts.StageLedger, "", "", time.Time{}, err))
	default:
		return nil, fmt.Errorf("simulate ledger: %w", err)
	}

	var bench audit.PriceLookup
	symbol := cfg.Params.Benchmark
	if symbol == "" {
		symbol = backtest.DefaultParams().Benchmark
	}
	if series, err := panel.Prices.Series(symbol); err == nil {
		bench = series
	}
	result.Metrics = audit.ComputeMetrics(result.Rows, bench)

	if n := len(result.Rows); n > 0 {
		curve, err := backtest.BenchmarkLedger(panel.Prices, symbol, result.Rows[0].Date, result.Rows[n-1].Date, cfg.Ledger.InitialCapital)
		if err != nil {
			log.WithError(err).Warn("Benchmark curve unavailable")
		} else {
			result.Benchmark = curve
		}
	}

	if len(result.Rows) > 0 {
		report, err := risk.Analyze(ctx, result.Rows, risk.DefaultConfig(cfg.Params.RandomState))
		switch {
		case err == nil:
			result.Risk = report
		case contracts.IsRecoverable(err):
			log.WithError(err).Debug("Risk report skipped")
		default:
			return nil, fmt.Errorf("risk: %w", err)
		}
	}

	result.Duration = time.Since(startTime)
	o.record(result)

	if o.store != nil {
		record := backtest.RunRecord{
			RunID:      result.RunID,
			ParamsHash: hash,
			Params:     cfg.Params,
			Metrics:    &result.Metrics,
			Summary:    &result.Summary,
			Skipped:    len(result.Skipped),
			CreatedAt:  result.CreatedAt,
		}
		if err := o.store.SaveRun(ctx, record, result.Trades, result.Rows); err != nil {
			return nil, fmt.Errorf("save run: %w", err)
		}
	}

	if o.cache != nil {
		if err := o.cache.Set(ctx, redis.BacktestKey(hash), result, o.ttl); err != nil {
			log.WithError(err).Warn("Failed to cache backtest result")
		}
	}

	log.WithFields(map[string]interface{}{
		"duration":   result.Duration.Seconds(),
		"trades":     len(result.Trades),
		"ledger":     len(result.Rows),
		"skipped":    len(result.Skipped),
		"net_return": result.Metrics.NetReturn,
	}).Info("Backtest run completed")

	return result, nil
}

// lookup returns a cached result or nil. Cache errors never fail a run.
func (o *Orchestrator) lookup(ctx context.Context, log *logger.Logger, hash string, skip bool) *RunResult {
	if o.cache == nil || skip {
		return nil
	}

	var cached RunResult
	hit, err := o.cache.Get(ctx, redis.BacktestKey(hash), &cached)
	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		log.WithError(err).Warn("Cache lookup failed")
		o.recordCache("error")
		return nil
	case err != nil || !hit:
		o.recordCache("miss")
		return nil
	}

	o.recordCache("hit")
	cached.Cached = true
	log.WithField("config_hash", hash).Info("Serving cached backtest")
	return &cached
}

func (o *Orchestrator) recordCache(outcome string) {
	if o.metrics != nil {
		o.metrics.RecordCache(outcome)
	}
}

func (o *Orchestrator) record(r *RunResult) {
	if o.metrics == nil {
		return
	}
	for _, t := range r.Trades {
		status := "Sold"
		if t.Held {
			status = "Held"
		}
		o.metrics.RecordTrade(status)
	}
	for _, s := range r.Skipped {
		o.metrics.RecordSkip(string(s.Stage))
	}
}
