package backtest

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/parkercarrus/cluster-trading-strategy/internal/calendar"
	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
	"github.com/parkercarrus/cluster-trading-strategy/internal/s0_data"
)

// Baselines computes the benchmark's buy-and-hold return from each quarter's
// rebalance date (first price at or after) to the benchmark's last price.
// Quarters without a benchmark price are left out and reported as skips.
func Baselines(panel *s0_data.Panel, quarters []calendar.Quarter, benchmark string) (map[string]float64, []contracts.Skip) {
	out := make(map[string]float64, len(quarters))
	var skips []contracts.Skip

	last, err := panel.Prices.Last(benchmark)
	if err != nil {
		for _, q := range quarters {
			skips = append(skips, contracts.NewSkip(contracts.StageBaseline, q.String(), benchmark, time.Time{}, err))
		}
		return out, skips
	}

	for _, q := range quarters {
		d, err := panel.Calendar.DateOf(q)
		if err != nil {
			skips = append(skips, contracts.NewSkip(contracts.StageBaseline, q.String(), benchmark, time.Time{}, err))
			continue
		}
		start, err := panel.Prices.PriceOnOrAfter(benchmark, d)
		if err != nil {
			skips = append(skips, contracts.NewSkip(contracts.StageBaseline, q.String(), benchmark, d, err))
			continue
		}
		out[q.String()] = (last.Price - start.Price) / start.Price
	}
	return out, skips
}

// Reconcile pairs every buy with the first sell of the same symbol dated
// strictly after it. Unmatched buys are held to the symbol's last price.
// Every buy yields exactly one trade; edge is NaN when the quarter has no baseline.
func Reconcile(buys, sells []Event, prices *s0_data.PricePanel, baselines map[string]float64) ([]contracts.TradeRecord, []contracts.Skip) {
	var skips []contracts.Skip

	sellsBySymbol := make(map[string][]Event)
	for _, s := range sells {
		sellsBySymbol[s.Symbol] = append(sellsBySymbol[s.Symbol], s)
	}
	for sym := range sellsBySymbol {
		list := sellsBySymbol[sym]
		sort.SliceStable(list, func(a, b int) bool { return list[a].Date.Before(list[b].Date) })
	}

	trades := make([]contracts.TradeRecord, 0, len(buys))
	for _, b := range buys {
		t := contracts.TradeRecord{
			Quarter:        b.Quarter,
			PurchaseDate:   b.Date,
			Symbol:         b.Symbol,
			StartPrice:     b.Price,
			Confidence:     b.Confidence,
			BaselineReturn: math.NaN(),
		}

		matched := false
		for _, s := range sellsBySymbol[b.Symbol] {
			if s.Date.After(b.Date) {
				t.SellDate, t.EndPrice = s.Date, s.Price
				matched = true
				break
			}
		}
		if !matched {
			t.Held = true
			last, err := prices.Last(b.Symbol)
			if err != nil || last.Date.Before(b.Date) {
				if err == nil {
					err = fmt.Errorf("%w: last price precedes purchase", contracts.ErrDataGap)
				}
				skips = append(skips, contracts.NewSkip(contracts.StageReconcile, b.Quarter, b.Symbol, b.Date, err))
				last = s0_data.Point{Date: b.Date, Price: b.Price}
			}
			t.SellDate, t.EndPrice = last.Date, last.Price
		}

		t.Return = (t.EndPrice - t.StartPrice) / t.StartPrice
		if base, ok := baselines[b.Quarter]; ok {
			t.BaselineReturn = base
		}
		t.StratEdge = t.Return - t.BaselineReturn
		trades = append(trades, t)
	}

	sort.SliceStable(trades, func(a, b int) bool {
		if !trades[a].PurchaseDate.Equal(trades[b].PurchaseDate) {
			return trades[a].PurchaseDate.Before(trades[b].PurchaseDate)
		}
		return trades[a].Symbol < trades[b].Symbol
	})
	return trades, skips
}
