package s0_data

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/parkercarrus/cluster-trading-strategy/internal/calendar"
)

// CSVSource reads a wide price file and one fundamentals file per quarter
// (<dir>/2021_Q1.csv ...). Quarters without a file are simply absent.
type CSVSource struct {
	PricePath       string
	FundamentalsDir string
}

// NewCSVSource creates a CSV-backed panel source
func NewCSVSource(pricePath, fundamentalsDir string) *CSVSource {
	return &CSVSource{PricePath: pricePath, FundamentalsDir: fundamentalsDir}
}

// Load implements Source
func (s *CSVSource) Load(ctx context.Context, cal *calendar.Calendar) (*Panel, error) {
	f, err := os.Open(s.PricePath)
	if err != nil {
		return nil, fmt.Errorf("open price file: %w", err)
	}
	defer f.Close()

	prices, err := ReadPriceCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.PricePath, err)
	}

	var tables []*FundamentalsTable
	for _, q := range cal.Quarters() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(s.FundamentalsDir, q.String()+".csv")
		ff, err := os.Open(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("open fundamentals %s: %w", path, err)
		}
		t, err := ReadFundamentalsCSV(q, ff)
		ff.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		tables = append(tables, t)
	}

	return NewPanel(cal, prices, NewFundamentalsPanel(tables...))
}

var dateLayouts = []string{calendar.DateLayout, "2006-01-02 15:04:05", time.RFC3339, "01/02/2006"}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return calendar.Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// parseCell returns NaN for empty or non-numeric cells
func parseCell(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "null") {
		return math.NaN(), true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN(), false
	}
	return v, true
}

// ReadPriceCSV parses "date,SYM1,SYM2,..." rows into a PricePanel
func ReadPriceCSV(r io.Reader) (*PricePanel, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("price header needs a date column and at least one symbol")
	}

	symbols := header[1:]
	points := make([][]Point, len(symbols))
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+1, err)
		}
		line++

		d, err := parseDate(rec[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		for i := range symbols {
			if i+1 >= len(rec) {
				break
			}
			if v, ok := parseCell(rec[i+1]); ok && !math.IsNaN(v) {
				points[i] = append(points[i], Point{Date: d, Price: v})
			}
		}
	}

	series := make([]*Series, 0, len(symbols))
	for i, sym := range symbols {
		sym = strings.TrimSpace(sym)
		if sym == "" {
			continue
		}
		series = append(series, NewSeries(sym, points[i]))
	}
	return NewPricePanel(series...), nil
}

// ReadFundamentalsCSV parses one quarter's fundamentals. The "symbol" column
// identifies rows; columns holding any non-numeric value are ignored.
func ReadFundamentalsCSV(q calendar.Quarter, r io.Reader) (*FundamentalsTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty fundamentals file")
	}

	header := records[0]
	symbolCol := -1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), "symbol") {
			symbolCol = i
			break
		}
	}
	if symbolCol < 0 {
		return nil, fmt.Errorf("fundamentals file has no symbol column")
	}

	numeric := make([]bool, len(header))
	for i := range header {
		numeric[i] = i != symbolCol && strings.TrimSpace(header[i]) != ""
	}
	for _, rec := range records[1:] {
		for i := range header {
			if !numeric[i] || i >= len(rec) {
				continue
			}
			if _, ok := parseCell(rec[i]); !ok {
				numeric[i] = false
			}
		}
	}

	var columns []string
	var colIdx []int
	for i, h := range header {
		if numeric[i] {
			columns = append(columns, strings.TrimSpace(h))
			colIdx = append(colIdx, i)
		}
	}

	rows := make([]FundamentalRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		if symbolCol >= len(rec) {
			continue
		}
		values := make([]float64, len(colIdx))
		for j, i := range colIdx {
			if i < len(rec) {
				values[j], _ = parseCell(rec[i])
			} else {
				values[j] = math.NaN()
			}
		}
		rows = append(rows, FundamentalRow{Symbol: strings.TrimSpace(rec[symbolCol]), Values: values})
	}

	return NewFundamentalsTable(q, columns, rows)
}
