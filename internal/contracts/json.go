package contracts

import (
	"encoding/json"
	"math"
	"time"
)

// JSON has no NaN; undefined values are encoded as null and decoded back to NaN.

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func fromNullable(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

type tradeJSON struct {
	Quarter        string   `json:"quarter"`
	PurchaseDate   string   `json:"purchase_date"`
	SellDate       string   `json:"sell_date"`
	BaselineReturn *float64 `json:"baseline_return"`
	Symbol         string   `json:"symbol"`
	StartPrice     float64  `json:"start_price"`
	EndPrice       float64  `json:"end_price"`
	Return         float64  `json:"return"`
	StratEdge      *float64 `json:"strat_edge"`
	Confidence     *float64 `json:"confidence"`
	Held           bool     `json:"held"`
}

const jsonDate = "2006-01-02"

func (t TradeRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(tradeJSON{
		Quarter:        t.Quarter,
		PurchaseDate:   t.PurchaseDate.Format(jsonDate),
		SellDate:       t.SellDate.Format(jsonDate),
		BaselineReturn: nullable(t.BaselineReturn),
		Symbol:         t.Symbol,
		StartPrice:     t.StartPrice,
		EndPrice:       t.EndPrice,
		Return:         t.Return,
		StratEdge:      nullable(t.StratEdge),
		Confidence:     nullable(t.Confidence),
		Held:           t.Held,
	})
}

func (t *TradeRecord) UnmarshalJSON(b []byte) error {
	var v tradeJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	purchase, err := time.Parse(jsonDate, v.PurchaseDate)
	if err != nil {
		return err
	}
	sell, err := time.Parse(jsonDate, v.SellDate)
	if err != nil {
		return err
	}
	*t = TradeRecord{
		Quarter:        v.Quarter,
		PurchaseDate:   purchase,
		SellDate:       sell,
		BaselineReturn: fromNullable(v.BaselineReturn),
		Symbol:         v.Symbol,
		StartPrice:     v.StartPrice,
		EndPrice:       v.EndPrice,
		Return:         v.Return,
		StratEdge:      fromNullable(v.StratEdge),
		Confidence:     fromNullable(v.Confidence),
		Held:           v.Held,
	}
	return nil
}

type ledgerJSON struct {
	Date           string  `json:"date"`
	PortfolioValue float64 `json:"portfolio_value"`
	Cash           float64 `json:"cash"`
	Invested       float64 `json:"invested"`
	NumPositions   int     `json:"num_positions"`
}

func (r LedgerRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(ledgerJSON{
		Date:           r.Date.Format(jsonDate),
		PortfolioValue: r.PortfolioValue,
		Cash:           r.Cash,
		Invested:       r.Invested,
		NumPositions:   r.NumPositions,
	})
}

func (r *LedgerRow) UnmarshalJSON(b []byte) error {
	var v ledgerJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	d, err := time.Parse(jsonDate, v.Date)
	if err != nil {
		return err
	}
	*r = LedgerRow{Date: d, PortfolioValue: v.PortfolioValue, Cash: v.Cash, Invested: v.Invested, NumPositions: v.NumPositions}
	return nil
}

type metricsJSON struct {
	NetReturn         *float64 `json:"net_return"`
	BenchmarkedReturn *float64 `json:"benchmarked_return"`
	CAGR              *float64 `json:"cagr"`
	SharpeRatio       *float64 `json:"sharpe_ratio"`
	Volatility        *float64 `json:"volatility"`
	MaxDrawdown       *float64 `json:"max_drawdown"`
	Days              int      `json:"days"`
}

func (m Metrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(metricsJSON{
		NetReturn:         nullable(m.NetReturn),
		BenchmarkedReturn: nullable(m.BenchmarkedReturn),
		CAGR:              nullable(m.CAGR),
		SharpeRatio:       nullable(m.SharpeRatio),
		Volatility:        nullable(m.Volatility),
		MaxDrawdown:       nullable(m.MaxDrawdown),
		Days:              m.Days,
	})
}

func (m *Metrics) UnmarshalJSON(b []byte) error {
	var v metricsJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*m = Metrics{
		NetReturn:         fromNullable(v.NetReturn),
		BenchmarkedReturn: fromNullable(v.BenchmarkedReturn),
		CAGR:              fromNullable(v.CAGR),
		SharpeRatio:       fromNullable(v.SharpeRatio),
		Volatility:        fromNullable(v.Volatility),
		MaxDrawdown:       fromNullable(v.MaxDrawdown),
		Days:              v.Days,
	}
	return nil
}

type summaryJSON struct {
	AvgReturn   *float64 `json:"avg_return"`
	AvgBaseline *float64 `json:"avg_baseline"`
	AvgEdge     *float64 `json:"avg_edge"`
	EdgeSharpe  *float64 `json:"edge_sharpe"`
	TotalTrades int      `json:"total_trades"`
	HeldTrades  int      `json:"held_trades"`
	WinRate     *float64 `json:"win_rate"`
}

func (s TradeSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(summaryJSON{
		AvgReturn:   nullable(s.AvgReturn),
		AvgBaseline: nullable(s.AvgBaseline),
		AvgEdge:     nullable(s.AvgEdge),
		EdgeSharpe:  nullable(s.EdgeSharpe),
		TotalTrades: s.TotalTrades,
		HeldTrades:  s.HeldTrades,
		WinRate:     nullable(s.WinRate),
	})
}

func (s *TradeSummary) UnmarshalJSON(b []byte) error {
	var v summaryJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = TradeSummary{
		AvgReturn:   fromNullable(v.AvgReturn),
		AvgBaseline: fromNullable(v.AvgBaseline),
		AvgEdge:     fromNullable(v.AvgEdge),
		EdgeSharpe:  fromNullable(v.EdgeSharpe),
		TotalTrades: v.TotalTrades,
		HeldTrades:  v.HeldTrades,
		WinRate:     fromNullable(v.WinRate),
	}
	return nil
}
