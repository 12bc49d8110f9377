package rebalancing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/rebalancer/internal/domain"
)

func TestConvertSummary(t *testing.T) {
	s := Summary{Currency: "USD", Deposit: 100.5, TotalValue: 1000, UsableValue: 900, MarketBudget: 243, AsIsTotal: 10.01, ToBeTotal: 240.3}

	won := ConvertSummary(s, 1186.5)
	assert.Equal(t, Summary{
		Currency:     "KRW",
		Deposit:      119_243,
		TotalValue:   1_186_500,
		UsableValue:  1_067_850,
		MarketBudget: 288_319,
		AsIsTotal:    11_876,
		ToBeTotal:    285_115,
	}, won)
}

func TestConvertRows(t *testing.T) {
	rows := []PlanRow{{
		Code: "SPY", Market: domain.MarketNYSE, Current: 450.5, Weight: 1, QuoteUnit: 0.01,
		AsIsQuantity: 2, AsIsValue: 901, PlannedShare: 1, PlannedValue: 1000.5,
		ToBeQuantity: 2, ToBeValue: 901, Difference: 0,
	}}

	won := ConvertRows(rows, 1000)
	assert.Equal(t, 450_500.0, won[0].Current)
	assert.Equal(t, 1_000_500.0, won[0].PlannedValue)
	assert.Equal(t, int64(2), won[0].ToBeQuantity)
	assert.Equal(t, 0.01, won[0].QuoteUnit)
	assert.Equal(t, 450.5, rows[0].Current, "input is not modified")
}
