package contracts

import (
	"math"
	"time"
)

// TradeRecord is one reconciled round trip.
// ⭐ SSOT: 백테스트 → 원장 시뮬레이터 → 성과 분석으로 전달되는 거래 단위
type TradeRecord struct {
	Quarter        string    `json:"quarter"`
	PurchaseDate   time.Time `json:"purchase_date"`
	SellDate       time.Time `json:"sell_date"`
	BaselineReturn float64   `json:"baseline_return"` // NaN when the benchmark had no price
	Symbol         string    `json:"symbol"`
	StartPrice     float64   `json:"start_price"`
	EndPrice       float64   `json:"end_price"`
	Return         float64   `json:"return"`
	StratEdge      float64   `json:"strat_edge"`
	Confidence     float64   `json:"confidence"` // NaN when the model gave no score
	Held           bool      `json:"held"`       // no sell event; closed at last known price
}

// HasConfidence reports whether the trade carries a usable model score
func (t TradeRecord) HasConfidence() bool {
	return !math.IsNaN(t.Confidence) && t.Confidence > 0
}

// LedgerRow is one business day of the simulated portfolio
type LedgerRow struct {
	Date           time.Time `json:"date"`
	PortfolioValue float64   `json:"portfolio_value"`
	Cash           float64   `json:"cash"`
	Invested       float64   `json:"invested"`
	NumPositions   int       `json:"num_positions"`
}

// RankedSymbol is one row of a quarter's model ranking
type RankedSymbol struct {
	Symbol  string  `json:"symbol"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"` // 1 = best
	Cluster int     `json:"cluster"`
}
