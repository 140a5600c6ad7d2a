package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/parkercarrus/cluster-trading-strategy/internal/calendar"
	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
)

// TradeColumns is the exported trade table layout
var TradeColumns = []string{
	"quarter", "purchase_date", "sell_date", "baseline_return", "symbol",
	"start_price", "end_price", "return", "strat_edge", "confidence",
}

// LedgerColumns is the exported ledger layout
var LedgerColumns = []string{"date", "portfolio_value", "cash", "invested", "num_positions"}

// WriteTradesCSV writes one row per trade. NaN cells are written empty.
func WriteTradesCSV(w io.Writer, trades []contracts.TradeRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TradeColumns); err != nil {
		return err
	}
	for _, t := range trades {
		rec := []string{
			t.Quarter,
			t.PurchaseDate.Format(calendar.DateLayout),
			t.SellDate.Format(calendar.DateLayout),
			formatFloat(t.BaselineReturn),
			t.Symbol,
			formatFloat(t.StartPrice),
			formatFloat(t.EndPrice),
			formatFloat(t.Return),
			formatFloat(t.StratEdge),
			formatFloat(t.Confidence),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteLedgerCSV writes one row per business day
func WriteLedgerCSV(w io.Writer, rows []contracts.LedgerRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(LedgerColumns); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Date.Format(calendar.DateLayout),
			formatFloat(r.PortfolioValue),
			formatFloat(r.Cash),
			formatFloat(r.Invested),
			strconv.Itoa(r.NumPositions),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTradesCSV parses a table written by WriteTradesCSV.
// Held is not part of the layout and reads back false.
func ReadTradesCSV(r io.Reader) ([]contracts.TradeRecord, error) {
	records, err := readTable(r, TradeColumns[:9])
	if err != nil {
		return nil, err
	}

	out := make([]contracts.TradeRecord, 0, len(records))
	for i, rec := range records {
		var t contracts.TradeRecord
		var errs []error
		t.Quarter = rec["quarter"]
		t.Symbol = rec["symbol"]
		t.PurchaseDate, err = time.Parse(calendar.DateLayout, rec["purchase_date"])
		errs = append(errs, err)
		t.SellDate, err = time.Parse(calendar.DateLayout, rec["sell_date"])
		errs = append(errs, err)
		t.BaselineReturn = parseFloat(rec["baseline_return"])
		t.StartPrice = parseFloat(rec["start_price"])
		t.EndPrice = parseFloat(rec["end_price"])
		t.Return = parseFloat(rec["return"])
		t.StratEdge = parseFloat(rec["strat_edge"])
		t.Confidence = parseFloat(rec["confidence"])
		for _, e := range errs {
			if e != nil {
				return nil, fmt.Errorf("trade row %d: %w", i+1, e)
			}
		}
		out = append(out, t)
	}
	return out, nil
}

// ReadLedgerCSV parses a table written by WriteLedgerCSV
func ReadLedgerCSV(r io.Reader) ([]contracts.LedgerRow, error) {
	records, err := readTable(r, LedgerColumns)
	if err != nil {
		return nil, err
	}

	out := make([]contracts.LedgerRow, 0, len(records))
	for i, rec := range records {
		d, err := time.Parse(calendar.DateLayout, rec["date"])
		if err != nil {
			return nil, fmt.Errorf("ledger row %d: %w", i+1, err)
		}
		n, err := strconv.Atoi(rec["num_positions"])
		if err != nil {
			return nil, fmt.Errorf("ledger row %d: %w", i+1, err)
		}
		out = append(out, contracts.LedgerRow{
			Date:           d,
			PortfolioValue: parseFloat(rec["portfolio_value"]),
			Cash:           parseFloat(rec["cash"]),
			Invested:       parseFloat(rec["invested"]),
			NumPositions:   n,
		})
	}
	return out, nil
}

func readTable(r io.Reader, required []string) ([]map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty table", contracts.ErrInsufficientData)
	}

	header := rows[0]
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}
	for _, c := range required {
		if _, ok := index[c]; !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}

	out := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(map[string]string, len(index))
		for name, i := range index {
			if i < len(row) {
				rec[name] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

func formatFloat(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
