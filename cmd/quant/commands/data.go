package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/parkercarrus/cluster-trading-strategy/internal/s0_data"
	"github.com/parkercarrus/cluster-trading-strategy/internal/scheduler/jobs"
)

// dataCmd groups panel maintenance commands
var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "패널 데이터 관리",
}

var dataImportCmd = &cobra.Command{
	Use:   "import",
	Short: "CSV 패널을 Postgres로 가져오기",
	Long: `DATA_DIR 의 가격/펀더멘털 CSV를 읽어 Postgres에 upsert 합니다.
먼저 'quant migrate' 를 실행해야 합니다.

Example:
  DATABASE_URL=postgres://... go run ./cmd/quant data import`,
	RunE: runDataImport,
}

func init() {
	rootCmd.AddCommand(dataCmd)
	dataCmd.AddCommand(dataImportCmd)
}

func runDataImport(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	strat, err := a.strategy(a.cfg.Backtest.StrategyFile)
	if err != nil {
		return err
	}
	cal, err := strat.BuildCalendar()
	if err != nil {
		return err
	}

	start := time.Now()
	source := s0_data.NewCSVSource(a.cfg.Data.PricePath(), a.cfg.Data.FundamentalsPath())
	panel, err := source.Load(cmd.Context(), cal)
	if err != nil {
		return fmt.Errorf("load csv panel: %w", err)
	}

	prices, fundamentals, err := jobs.SyncPanel(cmd.Context(), panel, s0_data.NewRepository(a.db.Pool))
	if err != nil {
		PrintError(err.Error())
		return err
	}

	PrintHeader("Panel Import")
	PrintKeyValue("Symbols", fmt.Sprintf("%d", len(panel.Prices.Symbols())), 14)
	PrintKeyValue("Price rows", fmt.Sprintf("%d", prices), 14)
	PrintKeyValue("Fundamentals", fmt.Sprintf("%d", fundamentals), 14)
	PrintKeyValue("Duration", time.Since(start).Round(time.Millisecond).String(), 14)
	PrintDoubleSeparator()
	return nil
}
