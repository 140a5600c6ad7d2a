package s0_data

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkercarrus/cluster-trading-strategy/internal/calendar"
)

// Repository stores and loads the panel in PostgreSQL (data.prices, data.fundamentals)
// ⭐ SSOT: 패널 데이터 저장소는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new panel repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const batchSize = 5000

// SavePrices upserts every observation of the given series
func (r *Repository) SavePrices(ctx context.Context, series ...*Series) (int, error) {
	query := `
		INSERT INTO data.prices (symbol, trade_date, close_price)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol, trade_date) DO UPDATE SET
			close_price = EXCLUDED.close_price
	`

	batch := &pgx.Batch{}
	total := 0
	for _, s := range series {
		for i := range s.dates {
			batch.Queue(query, s.Symbol, s.dates[i], s.prices[i])
			if batch.Len() >= batchSize {
				if err := r.sendBatch(ctx, batch); err != nil {
					return total, err
				}
				total += batchSize
				batch = &pgx.Batch{}
			}
		}
	}
	n := batch.Len()
	if err := r.sendBatch(ctx, batch); err != nil {
		return total, err
	}
	return total + n, nil
}

// SaveFundamentals upserts a quarter table in long form; NaN is stored as NULL
func (r *Repository) SaveFundamentals(ctx context.Context, t *FundamentalsTable) (int, error) {
	query := `
		INSERT INTO data.fundamentals (quarter, symbol, metric, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (quarter, symbol, metric) DO UPDATE SET
			value = EXCLUDED.value
	`

	batch := &pgx.Batch{}
	for _, row := range t.Rows {
		for j, col := range t.Columns {
			var v *float64
			if !math.IsNaN(row.Values[j]) {
				val := row.Values[j]
				v = &val
			}
			batch.Queue(query, t.Quarter.String(), row.Symbol, col, v)
		}
	}
	n := batch.Len()
	if err := r.sendBatch(ctx, batch); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *Repository) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec %d: %w", i, err)
		}
	}
	return nil
}

// Load implements Source
func (r *Repository) Load(ctx context.Context, cal *calendar.Calendar) (*Panel, error) {
	prices, err := r.loadPrices(ctx)
	if err != nil {
		return nil, err
	}

	var tables []*FundamentalsTable
	for _, q := range cal.Quarters() {
		t, err := r.loadFundamentals(ctx, q)
		if err != nil {
			return nil, err
		}
		if t != nil {
			tables = append(tables, t)
		}
	}

	return NewPanel(cal, prices, NewFundamentalsPanel(tables...))
}

func (r *Repository) loadPrices(ctx context.Context) (*PricePanel, error) {
	query := `
		SELECT symbol, trade_date, close_price
		FROM data.prices
		ORDER BY symbol, trade_date
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	bySymbol := make(map[string][]Point)
	var order []string
	for rows.Next() {
		var (
			symbol string
			date   time.Time
			price  float64
		)
		if err := rows.Scan(&symbol, &date, &price); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		if _, ok := bySymbol[symbol]; !ok {
			order = append(order, symbol)
		}
		bySymbol[symbol] = append(bySymbol[symbol], Point{Date: date, Price: price})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	series := make([]*Series, 0, len(order))
	for _, s := range order {
		series = append(series, NewSeries(s, bySymbol[s]))
	}
	return NewPricePanel(series...), nil
}

// loadFundamentals pivots the long table back into a quarter table.
// Returns nil when the quarter has no rows.
func (r *Repository) loadFundamentals(ctx context.Context, q calendar.Quarter) (*FundamentalsTable, error) {
	query := `
		SELECT symbol, metric, value
		FROM data.fundamentals
		WHERE quarter = $1
		ORDER BY symbol, metric
	`

	rows, err := r.pool.Query(ctx, query, q.String())
	if err != nil {
		return nil, fmt.Errorf("query fundamentals %s: %w", q, err)
	}
	defer rows.Close()

	colIdx := make(map[string]int)
	var columns []string
	cells := make(map[string]map[string]float64)
	var symbols []string
	for rows.Next() {
		var (
			symbol, metric string
			value          *float64
		)
		if err := rows.Scan(&symbol, &metric, &value); err != nil {
			return nil, fmt.Errorf("scan fundamentals: %w", err)
		}
		if _, ok := colIdx[metric]; !ok {
			colIdx[metric] = len(columns)
			columns = append(columns, metric)
		}
		if _, ok := cells[symbol]; !ok {
			cells[symbol] = make(map[string]float64)
			symbols = append(symbols, symbol)
		}
		v := math.NaN()
		if value != nil {
			v = *value
		}
		cells[symbol][metric] = v
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		return nil, nil
	}

	out := make([]FundamentalRow, 0, len(symbols))
	for _, s := range symbols {
		values := make([]float64, len(columns))
		for j, c := range columns {
			v, ok := cells[s][c]
			if !ok {
				v = math.NaN()
			}
			values[j] = v
		}
		out = append(out, FundamentalRow{Symbol: s, Values: values})
	}
	return NewFundamentalsTable(q, columns, out)
}
