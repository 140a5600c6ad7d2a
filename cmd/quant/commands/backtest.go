package commands

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/parkercarrus/cluster-trading-strategy/internal/audit"
	"github.com/parkercarrus/cluster-trading-strategy/internal/backtest"
	"github.com/parkercarrus/cluster-trading-strategy/internal/brain"
	"github.com/parkercarrus/cluster-trading-strategy/internal/calendar"
	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
	"github.com/parkercarrus/cluster-trading-strategy/internal/strategyconfig"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Walk-forward 백테스트",
	Long: `분기 단위 walk-forward 백테스트를 실행합니다.

각 단계:
- train 분기 펀더멘털로 클러스터링 + 라벨 생성
- 모델 학습 후 feature 분기 종목 랭킹
- 상위 K개 매수, 하위 sell_threshold 비율 매도 (eval 분기 기준일)

Example:
  go run ./cmd/quant backtest run
  go run ./cmd/quant backtest run --k 5 --capital 50000 --model LogisticRegression
  go run ./cmd/quant backtest run --strategy config/strategy/cluster_rf_v1.yaml --out trades.csv
  go run ./cmd/quant backtest last --k 5`,
}

var (
	backtestRunCmd = &cobra.Command{
		Use:   "run",
		Short: "백테스트 실행",
		Long: `백테스트를 실행하고 성과 지표를 출력합니다.

파라미터 우선순위: 플래그 > --strategy 파일 > 환경변수 (BACKTEST_*)

Flags:
  --k                  매수 종목 수
  --capital            초기 자본
  --seed               모델 random state
  --sell-threshold     매도 하위 비율 [0,1]
  --fundamentals-only  가격 기반 피처 제외
  --relative           클러스터 상대 수익률 라벨
  --model              RandomForest | LogisticRegression
  --from, --to         분기 범위 (예: 2021_Q1)
  --out                거래 CSV 경로 (- 는 stdout)
  --ledger-out         원장 CSV 경로
  --persist            결과를 Postgres에 저장`,
		RunE: runBacktest,
	}

	backtestLastCmd = &cobra.Command{
		Use:   "last",
		Short: "저장된 최근 실행 조회",
		Long: `같은 파라미터로 저장된 가장 최근 실행을 Postgres에서 불러옵니다.

run 과 같은 플래그를 받으며, 파라미터 해시로 조회합니다 (DATABASE_URL 필요).`,
		RunE: showLastRun,
	}

	// Flags
	btK                int
	btCapital          float64
	btSeed             int64
	btSellThreshold    float64
	btFundamentalsOnly bool
	btRelative         bool
	btModel            string
	btFrom             string
	btTo               string
	btStrategy         string
	btOut              string
	btLedgerOut        string
	btPersist          bool
)

func init() {
	rootCmd.AddCommand(backtestCmd)
	backtestCmd.AddCommand(backtestRunCmd)
	backtestCmd.AddCommand(backtestLastCmd)
	bindBacktestFlags(backtestRunCmd)
	bindBacktestFlags(backtestLastCmd)
}

func bindBacktestFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVar(&btK, "k", 10, "buys per step")
	f.Float64Var(&btCapital, "capital", 100000, "initial capital")
	f.Int64Var(&btSeed, "seed", 17, "model random state")
	f.Float64Var(&btSellThreshold, "sell-threshold", 0.3, "bottom fraction of the ranking to sell")
	f.BoolVar(&btFundamentalsOnly, "fundamentals-only", false, "drop price-derived features")
	f.BoolVar(&btRelative, "relative", true, "cluster-relative labels")
	f.StringVar(&btModel, "model", "RandomForest", "model id")
	f.StringVar(&btFrom, "from", "", "first quarter (YYYY_QN)")
	f.StringVar(&btTo, "to", "", "last quarter (YYYY_QN)")
	f.StringVar(&btStrategy, "strategy", "", "strategy YAML (default STRATEGY_FILE)")
	f.StringVar(&btOut, "out", "", "trades CSV path, - for stdout")
	f.StringVar(&btLedgerOut, "ledger-out", "", "ledger CSV path, - for stdout")
	f.BoolVar(&btPersist, "persist", false, "save the run to Postgres")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, btPersist)
	if err != nil {
		return err
	}
	defer a.Close()

	path := btStrategy
	if path == "" {
		path = a.cfg.Backtest.StrategyFile
	}
	strat, err := a.strategy(path)
	if err != nil {
		return err
	}

	runCfg, err := backtestRunConfig(cmd, strat)
	if err != nil {
		return err
	}
	snapshot, err := strategyconfig.NewRunSnapshot(strat, nil)
	if err != nil {
		return fmt.Errorf("snapshot strategy: %w", err)
	}
	a.log.WithFields(map[string]interface{}{
		"strategy":    snapshot.StrategyID,
		"config_hash": snapshot.ConfigHash,
		"yaml":        snapshot.ConfigYAML,
	}).Debug("Strategy snapshot")

	cal, err := strat.BuildCalendar()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	panel, err := a.loadPanel(ctx, cal)
	if err != nil {
		return err
	}
	orch, err := a.orchestrator(panel, btPersist)
	if err != nil {
		return err
	}

	PrintHeader("Walk-forward Backtest")
	PrintKeyValue("Strategy", fmt.Sprintf("%s (%s)", snapshot.StrategyID, shortHash(snapshot.ConfigHash)), 18)
	PrintKeyValue("Model", runCfg.Params.Model, 18)
	PrintKeyValue("K", fmt.Sprintf("%d", runCfg.Params.K), 18)
	PrintKeyValue("Sell threshold", fmt.Sprintf("%.2f", runCfg.Params.SellThreshold), 18)
	PrintKeyValue("Initial capital", formatMoney(runCfg.Ledger.InitialCapital), 18)
	PrintSeparator()

	result, err := orch.Run(ctx, runCfg, backtest.StepObserverFunc(printStep))
	if err != nil {
		PrintError(err.Error())
		return err
	}
	printResult(result)

	if err := writeOutput(btOut, func(w io.Writer) error {
		return backtest.WriteTradesCSV(w, result.Trades)
	}); err != nil {
		return fmt.Errorf("write trades: %w", err)
	}
	if err := writeOutput(btLedgerOut, func(w io.Writer) error {
		return backtest.WriteLedgerCSV(w, result.Rows)
	}); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	if btPersist {
		PrintSuccess("Run saved to Postgres")
	}
	return nil
}

// showLastRun prints the newest stored run whose parameters match the flags
func showLastRun(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	path := btStrategy
	if path == "" {
		path = a.cfg.Backtest.StrategyFile
	}
	strat, err := a.strategy(path)
	if err != nil {
		return err
	}
	runCfg, err := backtestRunConfig(cmd, strat)
	if err != nil {
		return err
	}
	hash, err := brain.Hash(runCfg)
	if err != nil {
		return fmt.Errorf("hash config: %w", err)
	}

	ctx := cmd.Context()
	repo := backtest.NewRepository(a.db.Pool)
	run, err := repo.LatestRun(ctx, hash)
	if err != nil {
		return err
	}
	if run == nil {
		PrintWarning(fmt.Sprintf("No stored run for config %s", shortHash(hash)))
		return nil
	}

	trades, err := repo.LoadTrades(ctx, run.RunID)
	if err != nil {
		return err
	}
	rows, err := repo.LoadLedger(ctx, run.RunID)
	if err != nil {
		return err
	}

	PrintHeader("Stored Backtest Run")
	PrintKeyValue("Run ID", run.RunID.String(), 18)
	PrintKeyValue("Config hash", shortHash(run.ParamsHash), 18)
	PrintKeyValue("Created", run.CreatedAt.Local().Format("2006-01-02 15:04:05"), 18)
	PrintSeparator()

	if run.Metrics != nil {
		printMetrics(*run.Metrics, rows)
		PrintSeparator()
	}
	summary := audit.Summarize(trades)
	if run.Summary != nil {
		summary = *run.Summary
	}
	printSummary(summary, run.Skipped)
	printAttribution(trades)
	PrintDoubleSeparator()

	if err := writeOutput(btOut, func(w io.Writer) error {
		return backtest.WriteTradesCSV(w, trades)
	}); err != nil {
		return fmt.Errorf("write trades: %w", err)
	}
	if err := writeOutput(btLedgerOut, func(w io.Writer) error {
		return backtest.WriteLedgerCSV(w, rows)
	}); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

// backtestRunConfig starts from the strategy and applies only the flags set on the command line
func backtestRunConfig(cmd *cobra.Command, strat *strategyconfig.Config) (brain.RunConfig, error) {
	p, err := strat.Params()
	if err != nil {
		return brain.RunConfig{}, err
	}
	ledger := backtest.LedgerOptions{
		InitialCapital:      strat.Portfolio.InitialCapital,
		ConfidenceWeighting: strat.Portfolio.ConfidenceWeighting,
	}

	f := cmd.Flags()
	if f.Changed("k") {
		p.K = btK
	}
	if f.Changed("capital") {
		ledger.InitialCapital = btCapital
	}
	if f.Changed("seed") {
		p.RandomState = btSeed
	}
	if f.Changed("sell-threshold") {
		p.SellThreshold = btSellThreshold
	}
	if f.Changed("fundamentals-only") {
		p.FundamentalsOnly = btFundamentalsOnly
	}
	if f.Changed("relative") {
		p.Relative = btRelative
	}
	if f.Changed("model") {
		p.Model = strings.ReplaceAll(btModel, " ", "")
	}
	if f.Changed("from") {
		if p.StartQuarter, err = calendar.ParseQuarter(btFrom); err != nil {
			return brain.RunConfig{}, fmt.Errorf("%w: --from: %v", contracts.ErrConfiguration, err)
		}
	}
	if f.Changed("to") {
		if p.EndQuarter, err = calendar.ParseQuarter(btTo); err != nil {
			return brain.RunConfig{}, fmt.Errorf("%w: --to: %v", contracts.ErrConfiguration, err)
		}
	}

	if err := p.Validate(); err != nil {
		return brain.RunConfig{}, err
	}
	if !(ledger.InitialCapital > 0) || math.IsInf(ledger.InitialCapital, 0) {
		return brain.RunConfig{}, fmt.Errorf("%w: capital must be positive", contracts.ErrConfiguration)
	}
	return brain.RunConfig{Params: p, Ledger: ledger, Source: "cli"}, nil
}

// writeOutput writes to path, stdout for "-", nothing for ""
func writeOutput(path string, write func(io.Writer) error) error {
	switch path {
	case "":
		return nil
	case "-":
		return write(os.Stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	PrintSuccess(fmt.Sprintf("Wrote %s", path))
	return nil
}
