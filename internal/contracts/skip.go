package contracts

import (
	"errors"
	"fmt"
	"time"
)

// Stage identifies where a skip happened
type Stage string

const (
	StageFeatures  Stage = "features"
	StageTrain     Stage = "train"
	StageBuy       Stage = "buy"
	StageSell      Stage = "sell"
	StageReconcile Stage = "reconcile"
	StageBaseline  Stage = "baseline"
	StageLedger    Stage = "ledger"
)

// Skip records one item dropped by a recoverable error
type Skip struct {
	Stage   Stage     `json:"stage"`
	Quarter string    `json:"quarter,omitempty"`
	Symbol  string    `json:"symbol,omitempty"`
	Date    time.Time `json:"date,omitempty"`
	Kind    string    `json:"kind"` // data_gap, insufficient_data
	Reason  string    `json:"reason"`
}

// NewSkip classifies err into a Skip record
func NewSkip(stage Stage, quarter, symbol string, date time.Time, err error) Skip {
	kind := "other"
	switch {
	case errors.Is(err, ErrDataGap):
		kind = "data_gap"
	case errors.Is(err, ErrInsufficientData):
		kind = "insufficient_data"
	}
	return Skip{
		Stage:   stage,
		Quarter: quarter,
		Symbol:  symbol,
		Date:    date,
		Kind:    kind,
		Reason:  err.Error(),
	}
}

func (s Skip) String() string {
	return fmt.Sprintf("%s[%s] %s %s: %s", s.Stage, s.Kind, s.Quarter, s.Symbol, s.Reason)
}
