package contracts

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradeRecordJSONNullsNaN(t *testing.T) {
	tr := TradeRecord{
		Quarter:        "2022_Q2",
		PurchaseDate:   time.Date(2022, 8, 15, 0, 0, 0, 0, time.UTC),
		SellDate:       time.Date(2022, 11, 15, 0, 0, 0, 0, time.UTC),
		BaselineReturn: math.NaN(),
		Symbol:         "AAA",
		StartPrice:     10,
		EndPrice:       20,
		Return:         1,
		StratEdge:      math.NaN(),
		Confidence:     0.8,
	}

	b, err := json.Marshal(tr)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"baseline_return":null`)
	assert.Contains(t, string(b), `"purchase_date":"2022-08-15"`)

	var back TradeRecord
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, math.IsNaN(back.BaselineReturn))
	assert.True(t, math.IsNaN(back.StratEdge))
	assert.Equal(t, 0.8, back.Confidence)
	assert.True(t, back.PurchaseDate.Equal(tr.PurchaseDate))
}

func TestMetricsJSONNullsNaN(t *testing.T) {
	m := Metrics{NetReturn: 0.21, SharpeRatio: math.NaN(), Days: 731}
	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"sharpe_ratio":null`)

	var back Metrics
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, 0.21, back.NetReturn)
	assert.True(t, math.IsNaN(back.SharpeRatio))
	assert.Equal(t, 731, back.Days)
}
