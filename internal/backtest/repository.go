package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
)

// RunRecord is the stored header of one run
type RunRecord struct {
	RunID      uuid.UUID
	ParamsHash string
	Params     Params
	Metrics    *contracts.Metrics
	Summary    *contracts.TradeSummary
	Skipped    int
	CreatedAt  time.Time
}

// Repository persists runs, trades and ledgers (backtest.*)
// ⭐ SSOT: 백테스트 결과 저장은 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new backtest repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveRun writes the run header, its trades and its ledger in one transaction
func (r *Repository) SaveRun(ctx context.Context, run RunRecord, trades []contracts.TradeRecord, ledger []contracts.LedgerRow) error {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	var metrics, summary []byte
	if run.Metrics != nil {
		if metrics, err = json.Marshal(run.Metrics); err != nil {
			return fmt.Errorf("marshal metrics: %w", err)
		}
	}
	if run.Summary != nil {
		if summary, err = json.Marshal(run.Summary); err != nil {
			return fmt.Errorf("marshal summary: %w", err)
		}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO backtest.runs (run_id, params_hash, params, metrics, summary, skipped)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, run.RunID, run.ParamsHash, params, metrics, summary, run.Skipped)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	batch := &pgx.Batch{}
	for i, t := range trades {
		batch.Queue(`
			INSERT INTO backtest.trades (
				run_id, seq, quarter, purchase_date, sell_date, symbol,
				start_price, end_price, trade_return, baseline_return, strat_edge, confidence, held
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`, run.RunID, i, t.Quarter, t.PurchaseDate, t.SellDate, t.Symbol,
			t.StartPrice, t.EndPrice, t.Return, nullFloat(t.BaselineReturn), nullFloat(t.StratEdge), nullFloat(t.Confidence), t.Held)
	}
	for _, row := range ledger {
		batch.Queue(`
			INSERT INTO backtest.ledger (run_id, trade_date, portfolio_value, cash, invested, num_positions)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, run.RunID, row.Date, row.PortfolioValue, row.Cash, row.Invested, row.NumPositions)
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("batch exec %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	return tx.Commit(ctx)
}

// LatestRun returns the newest run stored for a parameter hash
func (r *Repository) LatestRun(ctx context.Context, paramsHash string) (*RunRecord, error) {
	var (
		run              RunRecord
		params           []byte
		metrics, summary []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT run_id, params_hash, params, metrics, summary, skipped, created_at
		FROM backtest.runs
		WHERE params_hash = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, paramsHash).Scan(&run.RunID, &run.ParamsHash, &params, &metrics, &summary, &run.Skipped, &run.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}

	if err := json.Unmarshal(params, &run.Params); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	if metrics != nil {
		run.Metrics = &contracts.Metrics{}
		if err := json.Unmarshal(metrics, run.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics: %w", err)
		}
	}
	if summary != nil {
		run.Summary = &contracts.TradeSummary{}
		if err := json.Unmarshal(summary, run.Summary); err != nil {
			return nil, fmt.Errorf("decode summary: %w", err)
		}
	}
	return &run, nil
}

// LoadTrades returns a run's trades in stored order
func (r *Repository) LoadTrades(ctx context.Context, runID uuid.UUID) ([]contracts.TradeRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT quarter, purchase_date, sell_date, symbol, start_price, end_price,
		       trade_return, baseline_return, strat_edge, confidence, held
		FROM backtest.trades
		WHERE run_id = $1
		ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []contracts.TradeRecord
	for rows.Next() {
		var (
			t                      contracts.TradeRecord
			base, edge, confidence *float64
		)
		if err := rows.Scan(&t.Quarter, &t.PurchaseDate, &t.SellDate, &t.Symbol, &t.StartPrice, &t.EndPrice,
			&t.Return, &base, &edge, &confidence, &t.Held); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.BaselineReturn, t.StratEdge, t.Confidence = orNaN(base), orNaN(edge), orNaN(confidence)
		out = append(out, t)
	}
	return out, rows.Err()
}

// LoadLedger returns a run's ledger in date order
func (r *Repository) LoadLedger(ctx context.Context, runID uuid.UUID) ([]contracts.LedgerRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT trade_date, portfolio_value, cash, invested, num_positions
		FROM backtest.ledger
		WHERE run_id = $1
		ORDER BY trade_date
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []contracts.LedgerRow
	for rows.Next() {
		var row contracts.LedgerRow
		if err := rows.Scan(&row.Date, &row.PortfolioValue, &row.Cash, &row.Invested, &row.NumPositions); err != nil {
			return nil, fmt.Errorf("scan ledger: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func nullFloat(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func orNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}
