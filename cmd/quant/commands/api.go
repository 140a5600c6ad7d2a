package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/parkercarrus/cluster-trading-strategy/internal/api"
	"github.com/parkercarrus/cluster-trading-strategy/internal/api/handlers"
	"github.com/parkercarrus/cluster-trading-strategy/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

패널은 시작 시 한 번 로드되고, 모든 요청이 공유합니다.

Endpoints:
  GET  /health                  - Health check
  GET  /metrics                 - Prometheus metrics
  GET  /api/backtest            - 백테스트 실행 (query params)
  GET  /api/uploadLedger        - 기준 원장 (scheduler 산출물)
  GET  /api/uploadTransactions  - 기준 거래 내역
  GET  /api/uploadMetrics       - 기준 성과 지표
  GET  /ws/backtest             - 단계별 스트리밍 (websocket)

Example:
  go run ./cmd/quant api
  go run ./cmd/quant api --port 8080 --with-scheduler`,
	RunE: runAPIServer,
}

var (
	apiPort          string
	apiWithScheduler bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT)")
	apiCmd.Flags().BoolVar(&apiWithScheduler, "with-scheduler", false, "기준 백테스트 cron을 같은 프로세스에서 실행")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	// 1. Config, logger, connections
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg, log := a.cfg, a.log
	if apiPort != "" {
		cfg.Port = apiPort
	}

	log.WithFields(map[string]interface{}{
		"port":   cfg.Port,
		"env":    cfg.Env,
		"source": cfg.Data.Source,
		"redis":  a.redis.Enabled(),
		"db":     a.db != nil,
	}).Info("Initializing API server")

	// 2. Strategy + panel
	strat, err := a.strategy(cfg.Backtest.StrategyFile)
	if err != nil {
		return err
	}
	cal, err := strat.BuildCalendar()
	if err != nil {
		return err
	}
	panel, err := a.loadPanel(cmd.Context(), cal)
	if err != nil {
		return err
	}

	// 3. Orchestrator (runs are persisted whenever a database is configured)
	orch, err := a.orchestrator(panel, a.db != nil)
	if err != nil {
		return err
	}

	// 4. Handlers
	backtestHandler := handlers.NewBacktestHandler(orch, cfg.Backtest, log)
	h := api.Handlers{
		Backtest: backtestHandler,
		Stream:   handlers.NewStreamHandler(backtestHandler, log),
		Baseline: handlers.NewBaselineHandler(cfg.Scheduler.OutputDir, benchmarkSeries(panel, cfg.Backtest.Benchmark), log),
	}

	// 5. Router + server
	limiter := api.NewRateLimiter(cfg.API.RateLimit, cfg.API.Burst, redis.NewRateLimiter(a.redis, keyPrefix))
	router := api.NewRouter(h, api.RouterOptions{
		Metrics:     a.metrics,
		Limiter:     limiter,
		CORSOrigins: cfg.API.CORSOrigins,
	}, log)
	server := api.New(cfg, log, router)

	// 6. Optional in-process scheduler sharing the loaded panel
	if apiWithScheduler {
		sched, err := newScheduler(a, orch, strat, cal)
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	// 7. Start server with graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	case <-quit:
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
