package rebalancing

import (
	"github.com/aristath/rebalancer/internal/domain"
)

// PlanRow is one instrument's computed allocation.
type PlanRow struct {
	Code         string            `json:"product_code"`
	Name         string            `json:"product_name"`
	Market       domain.MarketCode `json:"market_code"`
	Current      float64           `json:"current"`
	Weight       float64           `json:"weight"`
	QuoteUnit    float64           `json:"quote_unit"`
	AsIsQuantity int64             `json:"asis_count"`
	AsIsValue    float64           `json:"asis_amount"`
	PlannedShare float64           `json:"planned_rate"`
	PlannedValue float64           `json:"planned_amount"`
	ToBeQuantity int64             `json:"tobe_count"`
	ToBeValue    float64           `json:"tobe_amount"`
	Difference   int64             `json:"difference"`
}

// Side returns the order direction implied by the difference.
// The second result is false when there is nothing to trade.
func (r PlanRow) Side() (domain.OrderSide, bool) {
	switch {
	case r.Difference > 0:
		return domain.SideBuy, true
	case r.Difference < 0:
		return domain.SideSell, true
	}
	return "", false
}

// Summary holds the aggregate figures of one planning run.
type Summary struct {
	Currency     string  `json:"currency"`
	Deposit      float64 `json:"deposit"`
	TotalValue   float64 `json:"total_amount"`
	UsableValue  float64 `json:"available_total_amount"`
	MarketBudget float64 `json:"planned_budge"`
	AsIsTotal    float64 `json:"asis_total_amount"`
	ToBeTotal    float64 `json:"tobe_total_amount"`
}

// PlanInput carries everything the planner reads. Nothing is fetched.
type PlanInput struct {
	Settings domain.AllocationSettings
	Target   domain.Target
	// Additional is capital held elsewhere, in the target currency.
	Additional float64
	Account    domain.AccountSummary
	Entries    []domain.PortfolioEntry
	// Rate is home-currency (KRW) units per USD.
	Rate float64
	// Overall counts holdings outside the target currency, converted with Rate.
	Overall bool
}
