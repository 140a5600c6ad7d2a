package backtest

import (
	"fmt"
	"math"
	"time"

	"github.com/parkercarrus/cluster-trading-strategy/internal/calendar"
	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
	"github.com/parkercarrus/cluster-trading-strategy/internal/s0_data"
)

// LedgerOptions configures the portfolio simulation
type LedgerOptions struct {
	InitialCapital      float64
	ConfidenceWeighting bool // weight same-day buys by confidence when every one has it
}

// LedgerResult is the daily ledger and the events it had to skip
type LedgerResult struct {
	Rows    []contracts.LedgerRow
	Skipped []contracts.Skip
}

// Final returns the last ledger row
func (r *LedgerResult) Final() (contracts.LedgerRow, bool) {
	if len(r.Rows) == 0 {
		return contracts.LedgerRow{}, false
	}
	return r.Rows[len(r.Rows)-1], true
}

// holding is a share-accounted simulated position
type holding struct {
	trade    int
	symbol   string
	shares   float64
	buyPrice float64
	sellDate time.Time
}

// SimulateLedger replays trades with confidence weighting enabled
func SimulateLedger(trades []contracts.TradeRecord, prices *s0_data.PricePanel, capital float64) (*LedgerResult, error) {
	return SimulateLedgerWith(trades, prices, LedgerOptions{InitialCapital: capital, ConfidenceWeighting: true})
}

// SimulateLedgerWith replays trades over every business day from the first
// purchase to the last sale. Each day closes due positions, then opens due
// trades out of the cash on hand, then marks everything to market.
// ⭐ SSOT: 현금/포지션 회계는 여기서만
func SimulateLedgerWith(trades []contracts.TradeRecord, prices *s0_data.PricePanel, opts LedgerOptions) (*LedgerResult, error) {
	if !(opts.InitialCapital > 0) || math.IsInf(opts.InitialCapital, 0) {
		return nil, fmt.Errorf("%w: initial capital must be positive, got %v", contracts.ErrConfiguration, opts.InitialCapital)
	}
	if len(trades) == 0 {
		return nil, fmt.Errorf("%w: no trades to simulate", contracts.ErrInsufficientData)
	}

	start, end := calendar.Day(trades[0].PurchaseDate), calendar.Day(trades[0].SellDate)
	for _, t := range trades {
		if d := calendar.Day(t.PurchaseDate); d.Before(start) {
			start = d
		}
		if d := calendar.Day(t.SellDate); d.After(end) {
			end = d
		}
	}

	result := &LedgerResult{}
	cash := opts.InitialCapital
	var positions []holding
	opened := make([]bool, len(trades))
	reported := make(map[int]bool)

	for _, today := range businessDays(start, end) {
		// 1. close
		kept := positions[:0]
		for _, pos := range positions {
			if pos.sellDate.After(today) {
				kept = append(kept, pos)
				continue
			}
			price, ok := prices.PriceOn(pos.symbol, today)
			if !ok {
				pt, err := prices.PriceAtOrBefore(pos.symbol, today)
				if err != nil {
					if !reported[pos.trade] {
						reported[pos.trade] = true
						result.Skipped = append(result.Skipped, contracts.NewSkip(contracts.StageLedger, trades[pos.trade].Quarter, pos.symbol, today, err))
					}
					kept = append(kept, pos)
					continue
				}
				price = pt.Price
			}
			cash += pos.shares * price
		}
		positions = kept

		// 2. open
		var due []int
		for i, t := range trades {
			if !opened[i] && !calendar.Day(t.PurchaseDate).After(today) {
				due = append(due, i)
			}
		}
		if len(due) > 0 {
			weights := allocationWeights(trades, due, opts.ConfidenceWeighting)
			available := cash
			for j, i := range due {
				opened[i] = true
				t := trades[i]
				if !(t.StartPrice > 0) {
					result.Skipped = append(result.Skipped, contracts.NewSkip(contracts.StageLedger, t.Quarter, t.Symbol, today,
						fmt.Errorf("%w: no usable buy price", contracts.ErrDataGap)))
					continue
				}
				alloc := available * weights[j]
				if alloc > cash {
					alloc = cash
				}
				cash -= alloc
				positions = append(positions, holding{
					trade:    i,
					symbol:   t.Symbol,
					shares:   alloc / t.StartPrice,
					buyPrice: t.StartPrice,
					sellDate: calendar.Day(t.SellDate),
				})
			}
			if cash < 0 && cash > -1e-9 {
				cash = 0
			}
		}

		// 3. mark to market
		invested := 0.0
		for _, pos := range positions {
			invested += pos.shares * markPrice(prices, pos, today)
		}
		result.Rows = append(result.Rows, contracts.LedgerRow{
			Date:           today,
			PortfolioValue: cash + invested,
			Cash:           cash,
			Invested:       invested,
			NumPositions:   len(positions),
		})
	}

	return result, nil
}

func allocationWeights(trades []contracts.TradeRecord, due []int, confidence bool) []float64 {
	weights := make([]float64, len(due))
	if confidence {
		total := 0.0
		all := true
		for _, i := range due {
			if !trades[i].HasConfidence() {
				all = false
				break
			}
			total += trades[i].Confidence
		}
		if all && total > 0 {
			for j, i := range due {
				weights[j] = trades[i].Confidence / total
			}
			return weights
		}
	}
	for j := range weights {
		weights[j] = 1 / float64(len(due))
	}
	return weights
}

func markPrice(prices *s0_data.PricePanel, pos holding, day time.Time) float64 {
	if p, ok := prices.PriceOn(pos.symbol, day); ok {
		return p
	}
	if pt, err := prices.PriceAtOrBefore(pos.symbol, day); err == nil {
		return pt.Price
	}
	return pos.buyPrice
}

func businessDays(start, end time.Time) []time.Time {
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out = append(out, d)
		}
	}
	return out
}

// BenchmarkLedger is the buy-and-hold curve of one symbol over the same
// business days, starting from the same capital
func BenchmarkLedger(prices *s0_data.PricePanel, symbol string, start, end time.Time, capital float64) ([]contracts.LedgerRow, error) {
	if !(capital > 0) || math.IsInf(capital, 0) {
		return nil, fmt.Errorf("%w: capital must be positive", contracts.ErrConfiguration)
	}
	first, err := prices.PriceOnOrAfter(symbol, calendar.Day(start))
	if err != nil {
		return nil, err
	}
	shares := capital / first.Price

	var rows []contracts.LedgerRow
	for _, d := range businessDays(calendar.Day(start), calendar.Day(end)) {
		if d.Before(first.Date) {
			rows = append(rows, contracts.LedgerRow{Date: d, PortfolioValue: capital, Cash: capital})
			continue
		}
		pt, err := prices.PriceAtOrBefore(symbol, d)
		if err != nil {
			return nil, err
		}
		v := shares * pt.Price
		rows = append(rows, contracts.LedgerRow{Date: d, PortfolioValue: v, Invested: v, NumPositions: 1})
	}
	return rows, nil
}
