package contracts

// Metrics summarizes a simulated ledger. Undefined values are NaN.
type Metrics struct {
	NetReturn         float64 `json:"net_return"`
	BenchmarkedReturn float64 `json:"benchmarked_return"`
	CAGR              float64 `json:"cagr"`
	SharpeRatio       float64 `json:"sharpe_ratio"`
	Volatility        float64 `json:"volatility"`
	MaxDrawdown       float64 `json:"max_drawdown"`
	Days              int     `json:"days"`
}

// TradeSummary summarizes a reconciled trade table
type TradeSummary struct {
	AvgReturn   float64 `json:"avg_return"`
	AvgBaseline float64 `json:"avg_baseline"`
	AvgEdge     float64 `json:"avg_edge"`
	EdgeSharpe  float64 `json:"edge_sharpe"`
	TotalTrades int     `json:"total_trades"`
	HeldTrades  int     `json:"held_trades"`
	WinRate     float64 `json:"win_rate"`
}
