package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/parkercarrus/cluster-trading-strategy/internal/backtest"
	"github.com/parkercarrus/cluster-trading-strategy/internal/calendar"
	"github.com/parkercarrus/cluster-trading-strategy/internal/s0_data"
	"github.com/parkercarrus/cluster-trading-strategy/internal/scheduler"
	"github.com/parkercarrus/cluster-trading-strategy/internal/scheduler/jobs"
	"github.com/parkercarrus/cluster-trading-strategy/internal/strategyconfig"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 관리합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행

Example:
  go run ./cmd/quant scheduler start
  go run ./cmd/quant scheduler list
  go run ./cmd/quant scheduler run baseline`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- baseline: 평일 06:00 (BASELINE_CRON) 기본 전략 백테스트 → ledger.csv, transactions.csv
- panel_sync: 평일 05:30 (PANEL_SYNC_CRON) CSV 패널 → Postgres (DATABASE_URL 설정 시)

스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	a, sched, err := initScheduler(cmd)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	sched.Start()

	PrintSuccess("Scheduler started")
	printJobs(sched)
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, sched, err := initScheduler(cmd)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	printJobs(sched)
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	a, sched, err := initScheduler(cmd)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	PrintInfo(fmt.Sprintf("Running job: %s", jobName))
	result, err := sched.RunJob(ctx, jobName)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}
	if !result.Success {
		PrintError(fmt.Sprintf("%s failed after %s: %s", jobName, result.Duration, result.Error))
		return fmt.Errorf("job %s failed", jobName)
	}

	PrintSuccess(fmt.Sprintf("%s completed in %s", jobName, result.Duration))
	return nil
}

func printJobs(sched *scheduler.Scheduler) {
	stats := sched.GetJobStats()
	widths := []int{12, 18, 20}

	fmt.Println()
	PrintTableHeader([]string{"JOB", "SCHEDULE", "NEXT RUN"}, widths)
	for _, name := range sched.GetAllJobs() {
		next := "-"
		if t := sched.NextRun(name); !t.IsZero() {
			next = t.Format("2006-01-02 15:04:05")
		}
		PrintTableRow([]string{name, stats[name].Schedule, next}, widths)
	}
}

// initScheduler builds a scheduler whose baseline job reloads the panel on every run
func initScheduler(cmd *cobra.Command) (*app, *scheduler.Scheduler, error) {
	a, err := newApp(cmd, false)
	if err != nil {
		return nil, nil, err
	}

	strat, err := a.strategy(a.cfg.Backtest.StrategyFile)
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	cal, err := strat.BuildCalendar()
	if err != nil {
		a.Close()
		return nil, nil, err
	}

	runner := &panelRunner{app: a, cal: cal, persist: a.db != nil}
	sched, err := newScheduler(a, runner, strat, cal)
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, sched, nil
}

// newScheduler registers the baseline job and, with a database, the panel sync job
func newScheduler(a *app, runner jobs.Runner, strat *strategyconfig.Config, cal *calendar.Calendar) (*scheduler.Scheduler, error) {
	cfg := a.cfg

	params, err := strat.Params()
	if err != nil {
		return nil, err
	}
	ledger := backtest.LedgerOptions{
		InitialCapital:      strat.Portfolio.InitialCapital,
		ConfidenceWeighting: strat.Portfolio.ConfidenceWeighting,
	}

	var opts []scheduler.Option
	if a.metrics != nil {
		opts = append(opts, scheduler.WithMetrics(a.metrics))
	}
	sched := scheduler.New(a.log, opts...)

	baseline := jobs.NewBaselineJob(runner, params, ledger, cfg.Scheduler.OutputDir, cfg.Scheduler.BaselineCron, a.log)
	if err := sched.AddJob(baseline); err != nil {
		return nil, err
	}

	// CSV → Postgres 동기화는 CSV가 원본일 때만 의미 있음
	if a.db != nil && cfg.Data.Source == "csv" {
		source := s0_data.NewCSVSource(cfg.Data.PricePath(), cfg.Data.FundamentalsPath())
		sync := jobs.NewPanelSyncJob(source, s0_data.NewRepository(a.db.Pool), cal, cfg.Scheduler.PanelSyncCron, a.log)
		if err := sched.AddJob(sync); err != nil {
			return nil, err
		}
	}
	return sched, nil
}
