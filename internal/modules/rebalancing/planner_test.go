package rebalancing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/rebalancer/internal/domain"
	testutil "github.com/aristath/rebalancer/internal/testing"
)

func halfBudget() domain.AllocationSettings {
	return domain.AllocationSettings{Usable: 1, Domestic: 0.5, Overseas: 0.25}
}

func twoEntryInput() PlanInput {
	return PlanInput{
		Settings: halfBudget(),
		Target:   domain.TargetDomestic,
		Account:  domain.AccountSummary{Deposit: 600_000},
		Entries: []domain.PortfolioEntry{
			{Code: "A", Name: "Alpha", Market: domain.MarketKRX, Current: 10_000, QuoteUnit: 100, Weight: 1, Use: true},
			{Code: "B", Name: "Beta", Market: domain.MarketKRX, Current: 5_000, QuoteUnit: 50, Weight: 1, Use: true},
		},
	}
}

func TestPlan_EqualWeights(t *testing.T) {
	summary, rows, err := Plan(twoEntryInput())
	require.NoError(t, err)

	assert.Equal(t, 300_000.0, summary.MarketBudget)
	require.Len(t, rows, 2)

	assert.Equal(t, 0.5, rows[0].PlannedShare)
	assert.Equal(t, 150_000.0, rows[0].PlannedValue)
	assert.Equal(t, int64(15), rows[0].ToBeQuantity)
	assert.Equal(t, int64(30), rows[1].ToBeQuantity)
	assert.Equal(t, int64(15), rows[0].Difference)
	assert.Equal(t, 100.0, rows[0].QuoteUnit)
	assert.Equal(t, 300_000.0, summary.ToBeTotal)
	assert.Equal(t, "KRW", summary.Currency)
}

func TestPlan_Properties(t *testing.T) {
	in := PlanInput{
		Settings:   domain.DefaultAllocationSettings(),
		Target:     domain.TargetDomestic,
		Additional: 2_500_000,
		Account:    *testutil.DomesticAccount(),
		Entries: []domain.PortfolioEntry{
			{Code: "005930", Market: domain.MarketKRX, Current: 70_300, QuoteUnit: 100, Weight: 3},
			{Code: "035420", Market: domain.MarketKRX, Current: 187_500, QuoteUnit: 500, Weight: 1.5},
			{Code: "069500", Market: domain.MarketKRX, Current: 34_215, QuoteUnit: 5, Weight: 0.7},
			{Code: "ZERO", Market: domain.MarketKRX, Current: 1_000, QuoteUnit: 1, Weight: 0},
		},
	}

	summary, rows, err := Plan(in)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	var shareSum, toBeSum float64
	for _, r := range rows {
		shareSum += r.PlannedShare
		toBeSum += r.ToBeValue
		assert.Equal(t, r.Current*float64(r.ToBeQuantity), r.ToBeValue, r.Code)
		assert.Equal(t, r.ToBeQuantity-r.AsIsQuantity, r.Difference, r.Code)
	}
	assert.InDelta(t, 1.0, shareSum, 1e-9)
	assert.Equal(t, toBeSum, summary.ToBeTotal)
	assert.Equal(t, int64(0), rows[3].ToBeQuantity, "zero weight plans nothing")

	// Rounding may overshoot the budget by at most half a share per row.
	var slack float64
	for _, e := range in.Entries {
		slack += e.Current / 2
	}
	assert.LessOrEqual(t, summary.ToBeTotal, summary.MarketBudget+slack)

	again, rowsAgain, err := Plan(in)
	require.NoError(t, err)
	assert.Equal(t, summary, again)
	assert.Equal(t, rows, rowsAgain)
}

func TestPlan_HoldingsOutsidePortfolio(t *testing.T) {
	in := PlanInput{
		Settings: domain.DefaultAllocationSettings(),
		Target:   domain.TargetDomestic,
		Account:  *testutil.DomesticAccount(),
		Entries: []domain.PortfolioEntry{
			{Code: "005930", Market: domain.MarketKRX, Current: 70_000, QuoteUnit: 100, Weight: 1},
		},
	}

	summary, rows, err := Plan(in)
	require.NoError(t, err)

	// 000660 is held but not in the portfolio: it neither counts nor gets a row.
	assert.Equal(t, 1_700_000.0, summary.TotalValue)
	assert.InDelta(t, 1_530_000.0, summary.UsableValue, 1e-6)
	assert.InDelta(t, 290_700.0, summary.MarketBudget, 1e-6)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, int64(10), row.AsIsQuantity)
	assert.Equal(t, 700_000.0, row.AsIsValue)
	assert.Equal(t, int64(4), row.ToBeQuantity)
	assert.Equal(t, int64(-6), row.Difference)
	assert.Equal(t, 280_000.0, row.ToBeValue)
	assert.Equal(t, 290_700.0, row.PlannedValue, "domestic amounts are whole won")
	assert.Equal(t, 700_000.0, summary.AsIsTotal)
}

func TestPlan_RoundsHalfAwayFromZero(t *testing.T) {
	in := PlanInput{
		Settings: halfBudget(),
		Target:   domain.TargetDomestic,
		Account:  domain.AccountSummary{Deposit: 5_000},
		Entries:  []domain.PortfolioEntry{{Code: "A", Market: domain.MarketKRX, Current: 1_000, QuoteUnit: 1, Weight: 1}},
	}

	_, rows, err := Plan(in)
	require.NoError(t, err)
	assert.Equal(t, int64(3), rows[0].ToBeQuantity, "2.5 shares round up")
}

func TestPlan_OverseasKeepsFractions(t *testing.T) {
	in := PlanInput{
		Settings: domain.AllocationSettings{Usable: 1, Domestic: 0.25, Overseas: 0.5},
		Target:   domain.TargetOverseas,
		Account:  domain.AccountSummary{Deposit: 5_000},
		Entries:  []domain.PortfolioEntry{{Code: "SPY", Market: domain.MarketNYSE, Current: 450.55, QuoteUnit: 0.01, Weight: 1}},
	}

	summary, rows, err := Plan(in)
	require.NoError(t, err)
	assert.Equal(t, "USD", summary.Currency)
	assert.Equal(t, int64(6), rows[0].ToBeQuantity)
	assert.Equal(t, 450.55, rows[0].Current)
	assert.InDelta(t, 2_703.3, rows[0].ToBeValue, 1e-9)
	assert.Equal(t, 2_500.0, rows[0].PlannedValue)
}

func TestPlan_FractionalHolding(t *testing.T) {
	in := PlanInput{
		Settings: domain.AllocationSettings{Usable: 1, Domestic: 0.25, Overseas: 0.5},
		Target:   domain.TargetOverseas,
		Account: domain.AccountSummary{
			Deposit:  5_000,
			Holdings: []domain.Holding{{Code: "SPY", Market: domain.MarketNYSE, Quantity: 2.6, Value: 2.6 * 450.55}},
		},
		Entries: []domain.PortfolioEntry{{Code: "SPY", Market: domain.MarketNYSE, Current: 450.55, QuoteUnit: 0.01, Weight: 1}},
	}

	_, rows, err := Plan(in)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t, int64(3), rows[0].AsIsQuantity, "2.6 shares count as 3")
	assert.Equal(t, int64(7), rows[0].ToBeQuantity)
	assert.Equal(t, int64(4), rows[0].Difference)
	assert.InDelta(t, 1_171.43, rows[0].AsIsValue, 1e-9)
}

func TestPlan_ConfigurationErrors(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(in *PlanInput)
	}{
		{"all weights zero", func(in *PlanInput) {
			in.Entries[0].Weight = 0
			in.Entries[1].Weight = 0
		}},
		{"negative weight", func(in *PlanInput) { in.Entries[0].Weight = -1 }},
		{"missing price", func(in *PlanInput) { in.Entries[1].Current = 0 }},
		{"fractions sum to one", func(in *PlanInput) {
			in.Settings = domain.AllocationSettings{Usable: 1, Domestic: 0.5, Overseas: 0.5}
		}},
		{"usable above one", func(in *PlanInput) { in.Settings.Usable = 1.2 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in := twoEntryInput()
			tc.mutate(&in)

			_, rows, err := Plan(in)
			assert.ErrorIs(t, err, domain.ErrConfiguration)
			assert.Nil(t, rows)
		})
	}
}

func TestPlan_NoEntries(t *testing.T) {
	in := twoEntryInput()
	in.Entries = nil

	summary, rows, err := Plan(in)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, 300_000.0, summary.MarketBudget)
}

func TestHoldingValue(t *testing.T) {
	usd := domain.Holding{Code: "SPY", Market: domain.MarketNYSE, Value: 100}
	krw := domain.Holding{Code: "005930", Market: domain.MarketKRX, Value: 130_000}

	testCases := []struct {
		name    string
		holding domain.Holding
		in      PlanInput
		want    float64
		wantErr bool
	}{
		{"same currency", krw, PlanInput{Target: domain.TargetDomestic, Overall: true, Rate: 1300}, 130_000, false},
		{"not overall", usd, PlanInput{Target: domain.TargetDomestic, Rate: 1300}, 100, false},
		{"usd into won", usd, PlanInput{Target: domain.TargetDomestic, Overall: true, Rate: 1300}, 130_000, false},
		{"won into usd", krw, PlanInput{Target: domain.TargetOverseas, Overall: true, Rate: 1300}, 100, false},
		{"no rate", usd, PlanInput{Target: domain.TargetDomestic, Overall: true}, 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := holdingValue(tc.holding, tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, domain.ErrConfiguration)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}
