package jobs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/parkercarrus/cluster-trading-strategy/internal/backtest"
	"github.com/parkercarrus/cluster-trading-strategy/internal/brain"
	"github.com/parkercarrus/cluster-trading-strategy/pkg/logger"
)

// Runner is satisfied by *brain.Orchestrator
type Runner interface {
	Run(ctx context.Context, cfg brain.RunConfig, observers ...backtest.StepObserver) (*brain.RunResult, error)
}

// Artifact names served by /api/uploadLedger and /api/uploadTransactions
const (
	LedgerFile       = "ledger.csv"
	TransactionsFile = "transactions.csv"
)

// BaselineJob reruns the default strategy and refreshes the dashboard CSVs
type BaselineJob struct {
	runner   Runner
	params   backtest.Params
	ledger   backtest.LedgerOptions
	outDir   string
	schedule string
	logger   *logger.Logger
}

// NewBaselineJob creates a new baseline refresh job
func NewBaselineJob(runner Runner, params backtest.Params, ledger backtest.LedgerOptions, outDir, schedule string, log *logger.Logger) *BaselineJob {
	return &BaselineJob{
		runner:   runner,
		params:   params,
		ledger:   ledger,
		outDir:   outDir,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *BaselineJob) Name() string {
	return "baseline"
}

// Schedule returns the cron schedule
func (j *BaselineJob) Schedule() string {
	return j.schedule
}

// Run executes the baseline backtest and writes ledger.csv and transactions.csv
func (j *BaselineJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled baseline backtest")

	result, err := j.runner.Run(ctx, brain.RunConfig{
		Params:  j.params,
		Ledger:  j.ledger,
		Source:  "scheduler",
		NoCache: true,
	})
	if err != nil {
		return fmt.Errorf("baseline run: %w", err)
	}

	if err := os.MkdirAll(j.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := writeAtomic(filepath.Join(j.outDir, LedgerFile), func(w io.Writer) error {
		return backtest.WriteLedgerCSV(w, result.Rows)
	}); err != nil {
		return err
	}
	if err := writeAtomic(filepath.Join(j.outDir, TransactionsFile), func(w io.Writer) error {
		return backtest.WriteTradesCSV(w, result.Trades)
	}); err != nil {
		return err
	}

	j.logger.WithFields(map[string]interface{}{
		"run_id":     result.RunID.String(),
		"trades":     len(result.Trades),
		"ledger":     len(result.Rows),
		"net_return": result.Metrics.NetReturn,
		"out_dir":    j.outDir,
	}).Info("Baseline refreshed")

	return nil
}

// writeAtomic writes to a temp file in the same directory and renames it,
// so readers never see a half-written CSV
func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp.Name(), path)
}
