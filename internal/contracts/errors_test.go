package contracts

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRecoverable(t *testing.T) {
	assert.True(t, IsRecoverable(fmt.Errorf("price for X: %w", ErrDataGap)))
	assert.True(t, IsRecoverable(fmt.Errorf("quarter: %w", ErrInsufficientData)))
	assert.False(t, IsRecoverable(fmt.Errorf("k: %w", ErrConfiguration)))
	assert.False(t, IsRecoverable(ErrOutOfRange))
}

func TestNewSkipKind(t *testing.T) {
	d := time.Date(2022, 5, 16, 0, 0, 0, 0, time.UTC)
	s := NewSkip(StageBuy, "2022_Q1", "AAPL", d, fmt.Errorf("no price: %w", ErrDataGap))
	assert.Equal(t, "data_gap", s.Kind)
	assert.Equal(t, StageBuy, s.Stage)
	assert.Contains(t, s.String(), "AAPL")

	s = NewSkip(StageTrain, "2022_Q1", "", time.Time{}, fmt.Errorf("empty: %w", ErrInsufficientData))
	assert.Equal(t, "insufficient_data", s.Kind)
}

func TestTradeHasConfidence(t *testing.T) {
	assert.True(t, TradeRecord{Confidence: 0.4}.HasConfidence())
	assert.False(t, TradeRecord{Confidence: math.NaN()}.HasConfidence())
	assert.False(t, TradeRecord{Confidence: 0}.HasConfidence())
}
