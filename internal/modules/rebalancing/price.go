package rebalancing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aristath/rebalancer/internal/domain"
)

// ResolvePrice returns the order price for a row under the strategy.
// Zero means a market order. N_DIFF shifts the price n ticks toward the
// other side of the book: below current for buys, above for sells. The
// result lands on the quote-unit grid, rounded away from the current price.
func ResolvePrice(row PlanRow, strategy domain.PriceStrategy, nDiff int) (float64, error) {
	switch strategy {
	case domain.StrategyMarket:
		return 0, nil

	case domain.StrategyNDiff:
		if nDiff < 1 {
			return 0, &domain.ConfigurationError{Field: "n_diff", Reason: fmt.Sprintf("must be at least 1, got %d", nDiff)}
		}
		tick := row.QuoteUnit
		if tick <= 0 {
			tick = domain.QuoteUnit(row.Market, row.Current)
		}

		current := decimal.NewFromFloat(row.Current)
		step := decimal.NewFromFloat(tick)
		offset := step.Mul(decimal.NewFromInt(int64(nDiff)))

		var price decimal.Decimal
		switch side, _ := row.Side(); side {
		case domain.SideBuy:
			price = current.Sub(offset).Div(step).Floor().Mul(step)
		case domain.SideSell:
			price = current.Add(offset).Div(step).Ceil().Mul(step)
		default:
			return row.Current, nil
		}

		if !price.IsPositive() {
			return 0, &domain.ConfigurationError{Field: "n_diff", Reason: fmt.Sprintf("%d ticks below %s is not a valid price", nDiff, current)}
		}
		f, _ := price.Float64()
		return f, nil

	case domain.StrategyRegression:
		return 0, &domain.NotImplementedStrategyError{Strategy: strategy}
	}

	return 0, &domain.ConfigurationError{Field: "how", Reason: fmt.Sprintf("unknown price strategy %q", strategy)}
}
