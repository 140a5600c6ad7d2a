package s0_data

import (
	"fmt"
	"math"
	"sort"

	"github.com/parkercarrus/cluster-trading-strategy/internal/calendar"
	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
)

// FundamentalColumns is the ratio set used when a run asks for fundamentals only
var FundamentalColumns = []string{
	"currentRatio",
	"quickRatio",
	"returnOnEquity",
	"returnOnAssets",
	"netProfitMargin",
	"priceEarningsRatio",
	"priceBookValueRatio",
	"priceToSalesRatio",
	"freeCashFlowPerShare",
	"operatingCashFlowPerShare",
	"cashFlowToDebtRatio",
	"debtEquityRatio",
	"longTermDebtToCapitalization",
	"assetTurnover",
	"inventoryTurnover",
}

// FundamentalRow is one symbol's ratios for a quarter
type FundamentalRow struct {
	Symbol string
	Values []float64 // aligned with the table's Columns, NaN = missing
}

// FundamentalsTable holds one quarter's rows, sorted by symbol, one row per symbol
type FundamentalsTable struct {
	Quarter calendar.Quarter
	Columns []string
	Rows    []FundamentalRow

	colIndex map[string]int
	rowIndex map[string]int
}

// NewFundamentalsTable sorts rows by symbol and keeps the first row of any duplicate
func NewFundamentalsTable(q calendar.Quarter, columns []string, rows []FundamentalRow) (*FundamentalsTable, error) {
	t := &FundamentalsTable{
		Quarter:  q,
		Columns:  append([]string(nil), columns...),
		colIndex: make(map[string]int, len(columns)),
		rowIndex: make(map[string]int, len(rows)),
	}
	for i, c := range columns {
		if _, dup := t.colIndex[c]; dup {
			return nil, fmt.Errorf("fundamentals %s: duplicate column %s", q, c)
		}
		t.colIndex[c] = i
	}

	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		if len(r.Values) != len(columns) {
			return nil, fmt.Errorf("fundamentals %s: row %s has %d values, want %d", q, r.Symbol, len(r.Values), len(columns))
		}
		if r.Symbol == "" || seen[r.Symbol] {
			continue
		}
		seen[r.Symbol] = true
		t.Rows = append(t.Rows, FundamentalRow{Symbol: r.Symbol, Values: append([]float64(nil), r.Values...)})
	}
	sort.SliceStable(t.Rows, func(i, j int) bool { return t.Rows[i].Symbol < t.Rows[j].Symbol })
	for i, r := range t.Rows {
		t.rowIndex[r.Symbol] = i
	}

	return t, nil
}

// Symbols returns the table's symbols in sorted order
func (t *FundamentalsTable) Symbols() []string {
	out := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Symbol
	}
	return out
}

// HasColumn reports whether the table carries the named column
func (t *FundamentalsTable) HasColumn(name string) bool {
	_, ok := t.colIndex[name]
	return ok
}

// Project returns symbol's values for the given columns, NaN where absent.
// ok is false when the symbol has no row in this quarter.
func (t *FundamentalsTable) Project(symbol string, columns []string) ([]float64, bool) {
	i, ok := t.rowIndex[symbol]
	if !ok {
		return nil, false
	}
	row := t.Rows[i].Values
	out := make([]float64, len(columns))
	for j, c := range columns {
		if k, ok := t.colIndex[c]; ok {
			out[j] = row[k]
		} else {
			out[j] = math.NaN()
		}
	}
	return out, true
}

// FundamentalsPanel maps quarters to their tables
type FundamentalsPanel struct {
	tables map[calendar.Quarter]*FundamentalsTable
}

// NewFundamentalsPanel indexes tables by quarter
func NewFundamentalsPanel(tables ...*FundamentalsTable) *FundamentalsPanel {
	p := &FundamentalsPanel{tables: make(map[calendar.Quarter]*FundamentalsTable, len(tables))}
	for _, t := range tables {
		p.tables[t.Quarter] = t
	}
	return p
}

// Table returns the quarter's table or ErrDataGap
func (p *FundamentalsPanel) Table(q calendar.Quarter) (*FundamentalsTable, error) {
	t, ok := p.tables[q]
	if !ok {
		return nil, fmt.Errorf("%w: no fundamentals for %s", contracts.ErrDataGap, q)
	}
	return t, nil
}

// Quarters returns the quarters that have a table, in order
func (p *FundamentalsPanel) Quarters() []calendar.Quarter {
	out := make([]calendar.Quarter, 0, len(p.tables))
	for q := range p.tables {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// CommonColumns returns the columns present in every listed quarter, in the
// order of the first table. When restrict is non-empty only those names are kept.
func (p *FundamentalsPanel) CommonColumns(quarters []calendar.Quarter, restrict []string) ([]string, error) {
	if len(quarters) == 0 {
		return nil, fmt.Errorf("%w: no quarters", contracts.ErrInsufficientData)
	}

	first, err := p.Table(quarters[0])
	if err != nil {
		return nil, err
	}
	candidates := first.Columns
	if len(restrict) > 0 {
		candidates = restrict
	}

	var out []string
	for _, c := range candidates {
		keep := true
		for _, q := range quarters {
			t, err := p.Table(q)
			if err != nil {
				return nil, err
			}
			if !t.HasColumn(c) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no shared feature columns across %v", contracts.ErrInsufficientData, quarters)
	}
	return out, nil
}
