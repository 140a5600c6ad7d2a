package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	env     string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "Cluster trading strategy - walk-forward cluster backtester",
	Long: `Cluster Trading Strategy CLI

분기별 walk-forward 백테스터.
펀더멘털로 종목을 클러스터링하고, 모델 랭킹으로 매수/매도 후
일별 원장과 성과 지표를 계산합니다.

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant backtest run --k 10 --capital 100000
  go run ./cmd/quant api
  go run ./cmd/quant scheduler start
  go run ./cmd/quant migrate`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
