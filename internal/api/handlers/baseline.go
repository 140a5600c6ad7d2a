package handlers

import (
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/parkercarrus/cluster-trading-strategy/internal/audit"
	"github.com/parkercarrus/cluster-trading-strategy/internal/backtest"
	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
	"github.com/parkercarrus/cluster-trading-strategy/pkg/logger"
)

// Baseline artifact names written by the scheduler job
const (
	LedgerFile       = "ledger.csv"
	TransactionsFile = "transactions.csv"
)

// BaselineHandler serves the latest scheduled baseline run from disk
type BaselineHandler struct {
	dir       string
	benchmark audit.PriceLookup // nil → benchmarked_return is null
	logger    *logger.Logger
}

// NewBaselineHandler creates a new baseline handler
func NewBaselineHandler(dir string, benchmark audit.PriceLookup, log *logger.Logger) *BaselineHandler {
	return &BaselineHandler{
		dir:       dir,
		benchmark: benchmark,
		logger:    log,
	}
}

// UploadLedger returns the baseline ledger
// GET /api/uploadLedger
func (h *BaselineHandler) UploadLedger(w http.ResponseWriter, r *http.Request) {
	rows, ok := h.readLedger(w)
	if !ok {
		return
	}
	if rows == nil {
		rows = []contracts.LedgerRow{}
	}
	respondJSON(w, http.StatusOK, rows)
}

// UploadTransactions returns the baseline trades
// GET /api/uploadTransactions
func (h *BaselineHandler) UploadTransactions(w http.ResponseWriter, r *http.Request) {
	f, ok := h.open(w, TransactionsFile)
	if !ok {
		return
	}
	defer f.Close()

	trades, err := backtest.ReadTradesCSV(f)
	if err != nil {
		h.logger.WithError(err).Error("Failed to read baseline transactions")
		respondError(w, http.StatusInternalServerError, "Failed to read baseline transactions")
		return
	}
	if trades == nil {
		trades = []contracts.TradeRecord{}
	}
	respondJSON(w, http.StatusOK, trades)
}

// UploadMetrics returns metrics of the baseline ledger in percent
// GET /api/uploadMetrics
func (h *BaselineHandler) UploadMetrics(w http.ResponseWriter, r *http.Request) {
	rows, ok := h.readLedger(w)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, PercentMetrics(audit.ComputeMetrics(rows, h.benchmark)))
}

func (h *BaselineHandler) readLedger(w http.ResponseWriter) ([]contracts.LedgerRow, bool) {
	f, ok := h.open(w, LedgerFile)
	if !ok {
		return nil, false
	}
	defer f.Close()

	rows, err := backtest.ReadLedgerCSV(f)
	if err != nil {
		h.logger.WithError(err).Error("Failed to read baseline ledger")
		respondError(w, http.StatusInternalServerError, "Failed to read baseline ledger")
		return nil, false
	}
	return rows, true
}

func (h *BaselineHandler) open(w http.ResponseWriter, name string) (*os.File, bool) {
	f, err := os.Open(filepath.Join(h.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		respondError(w, http.StatusNotFound, "Baseline not generated yet")
		return nil, false
	}
	if err != nil {
		h.logger.WithError(err).Error("Failed to open baseline artifact")
		respondError(w, http.StatusInternalServerError, "Failed to open baseline artifact")
		return nil, false
	}
	return f, true
}
