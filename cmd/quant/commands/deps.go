package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/parkercarrus/cluster-trading-strategy/internal/audit"
	"github.com/parkercarrus/cluster-trading-strategy/internal/backtest"
	"github.com/parkercarrus/cluster-trading-strategy/internal/brain"
	"github.com/parkercarrus/cluster-trading-strategy/internal/calendar"
	"github.com/parkercarrus/cluster-trading-strategy/internal/observability"
	"github.com/parkercarrus/cluster-trading-strategy/internal/s0_data"
	"github.com/parkercarrus/cluster-trading-strategy/internal/strategyconfig"
	"github.com/parkercarrus/cluster-trading-strategy/pkg/config"
	"github.com/parkercarrus/cluster-trading-strategy/pkg/database"
	"github.com/parkercarrus/cluster-trading-strategy/pkg/logger"
	"github.com/parkercarrus/cluster-trading-strategy/pkg/redis"
)

// keyPrefix namespaces redis cache and rate limit keys
const keyPrefix = "cluster_trading"

// app holds the dependencies built from process config
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	db      *database.DB // nil when DATABASE_URL is unset
	redis   *redis.Client
	metrics *observability.Metrics // nil when METRICS_ENABLED=false
}

// loadConfig reads env config and applies the global flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("env") {
		cfg.Env = env
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// newApp connects to Postgres (when configured) and Redis (no-op when disabled)
func newApp(cmd *cobra.Command, needDB bool) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: logger.New(cfg)}

	if cfg.Database.URL != "" {
		if a.db, err = database.New(cfg); err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.log.Debug("Connected to database")
	} else if needDB {
		return nil, fmt.Errorf("DATABASE_URL is required for this command")
	}

	if a.redis, err = redis.New(cfg); err != nil {
		a.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	if cfg.MetricsEnabled {
		a.metrics = observability.NewMetrics(keyPrefix)
	}
	return a, nil
}

// Close releases the connections
func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

// strategy loads the strategy file, or builds one from the env defaults when path is empty
func (a *app) strategy(path string) (*strategyconfig.Config, error) {
	var strat *strategyconfig.Config
	if path == "" {
		strat = defaultStrategy(a.cfg.Backtest)
	} else {
		var err error
		if strat, _, err = strategyconfig.Load(path); err != nil {
			return nil, err
		}
	}

	for _, w := range strategyconfig.Warn(strat) {
		a.log.WithFields(map[string]interface{}{
			"code":     w.Code,
			"strategy": strat.Meta.StrategyID,
		}).Warn(w.Message)
	}
	return strat, nil
}

func defaultStrategy(d config.BacktestConfig) *strategyconfig.Config {
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

	return strategyconfig.FromParams(p, d.InitialCapital, true)
}

// source picks the panel source named by DATA_SOURCE
func (a *app) source() (s0_data.Source, error) {
	switch a.cfg.Data.Source {
	case "postgres":
		if a.db == nil {
			return nil, fmt.Errorf("DATA_SOURCE=postgres needs DATABASE_URL")
		}
		return s0_data.NewRepository(a.db.Pool), nil
	default:
		return s0_data.NewCSVSource(a.cfg.Data.PricePath(), a.cfg.Data.FundamentalsPath()), nil
	}
}

// loadPanel reads the full price and fundamentals panel once
func (a *app) loadPanel(ctx context.Context, cal *calendar.Calendar) (*s0_data.Panel, error) {
	src, err := a.source()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	panel, err := src.Load(ctx, cal)
	if err != nil {
		return nil, fmt.Errorf("load panel: %w", err)
	}

	a.log.WithFields(map[string]interface{}{
		"source":   a.cfg.Data.Source,
		"symbols":  len(panel.Prices.Symbols()),
		"quarters": cal.Len(),
		"duration": time.Since(start).String(),
	}).Info("Panel loaded")
	return panel, nil
}

// orchestrator wires cache, metrics and (when persist is set) the run store
func (a *app) orchestrator(panel *s0_data.Panel, persist bool) (*brain.Orchestrator, error) {
	var opts []brain.Option
	if a.metrics != nil {
		opts = append(opts, brain.WithMetrics(a.metrics))
	}
	if a.redis.Enabled() {
		opts = append(opts, brain.WithCache(redis.NewCache(a.redis, keyPrefix), redis.TTLBacktest))
	}
	if persist {
		if a.db == nil {
			return nil, fmt.Errorf("persisting runs needs DATABASE_URL")
		}
		opts = append(opts, brain.WithStore(backtest.NewRepository(a.db.Pool)))
	}
	return brain.NewOrchestrator(backtest.NewEngine(panel, a.log), a.log, opts...), nil
}

// benchmarkSeries returns nil when the panel has no benchmark column
func benchmarkSeries(panel *s0_data.Panel, symbol string) audit.PriceLookup {
	s, err := panel.Prices.Series(symbol)
	if err != nil {
		return nil
	}
	return s
}

// panelRunner reloads the panel on every run so scheduled jobs see fresh data
type panelRunner struct {
	app     *app
	cal     *calendar.Calendar
	persist bool
}

func (r *panelRunner) Run(ctx context.Context, cfg brain.RunConfig, observers ...backtest.StepObserver) (*brain.RunResult, error) {
	panel, err := r.app.loadPanel(ctx, r.cal)
	if err != nil {
		return nil, err
	}
	orch, err := r.app.orchestrator(panel, r.persist)
	if err != nil {
		return nil, err
	}
	return orch.Run(ctx, cfg, observers...)
}
