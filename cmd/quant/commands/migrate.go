package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parkercarrus/cluster-trading-strategy/pkg/database/migrations"
)

// migrateCmd applies the embedded SQL migrations
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "DB 마이그레이션 적용",
	Long: `임베드된 SQL 마이그레이션을 순서대로 적용합니다.
모든 마이그레이션은 idempotent 하므로 반복 실행해도 안전합니다.

스키마:
  data.prices, data.fundamentals   - 패널 (DATA_SOURCE=postgres)
  backtest.runs, backtest.trades, backtest.ledger - 실행 결과

Example:
  DATABASE_URL=postgres://... go run ./cmd/quant migrate`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.Close()

	applied, err := migrations.Run(cmd.Context(), a.db.Pool)
	for _, name := range applied {
		PrintSuccess(name)
	}
	if err != nil {
		PrintError(err.Error())
		return err
	}

	a.log.WithField("migrations", len(applied)).Info("Migrations applied")
	fmt.Printf("\n%d migration(s) applied\n", len(applied))
	return nil
}
