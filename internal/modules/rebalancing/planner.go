// Package rebalancing turns holdings, target weights and a budget into a
// per-instrument buy/sell plan, and derives order prices from plan rows.
package rebalancing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/aristath/rebalancer/internal/domain"
)

// Plan computes the rebalance summary and one row per included entry.
//
// Only holdings of included entries count toward the total value; others
// are ignored. Quantities are rounded half away from zero, and fractional
// holdings are compared as whole units.
// Domestic monetary columns are truncated to whole won.
func Plan(in PlanInput) (Summary, []PlanRow, error) {
	if err := in.Settings.Validate(); err != nil {
		return Summary{}, nil, err
	}

	included := make(map[string]bool, len(in.Entries))
	weights := make([]float64, 0, len(in.Entries))
	for _, e := range in.Entries {
		if e.Weight < 0 {
			return Summary{}, nil, &domain.ConfigurationError{Field: "weight", Reason: fmt.Sprintf("%s has a negative weight", e.Code)}
		}
		if e.Current <= 0 {
			return Summary{}, nil, &domain.ConfigurationError{Field: "current", Reason: fmt.Sprintf("%s has no current price", e.Code)}
		}
		included[e.Code] = true
		weights = append(weights, e.Weight)
	}

	holdings := make(map[string]domain.Holding, len(in.Account.Holdings))
	holdingValues := make([]float64, 0, len(in.Account.Holdings))
	for _, h := range in.Account.Holdings {
		if !included[h.Code] {
			continue
		}
		value, err := holdingValue(h, in)
		if err != nil {
			return Summary{}, nil, err
		}
		holdings[h.Code] = h
		holdingValues = append(holdingValues, value)
	}

	domestic := in.Target == domain.TargetDomestic
	money := func(v float64) float64 {
		if domestic {
			return math.Trunc(v)
		}
		return v
	}

	summary := Summary{
		Currency: in.Target.Currency(),
		Deposit:  in.Account.Deposit,
	}
	summary.TotalValue = in.Additional + in.Account.Deposit + floats.Sum(holdingValues)
	summary.UsableValue = summary.TotalValue * in.Settings.Usable
	summary.MarketBudget = summary.UsableValue * in.Settings.MarketFraction(in.Target)

	if len(in.Entries) == 0 {
		return summary, []PlanRow{}, nil
	}

	totalWeight := floats.Sum(weights)
	if totalWeight == 0 {
		return Summary{}, nil, &domain.ConfigurationError{Field: "weight", Reason: "included weights sum to zero"}
	}

	rows := make([]PlanRow, 0, len(in.Entries))
	asIs := make([]float64, 0, len(in.Entries))
	toBe := make([]float64, 0, len(in.Entries))
	for _, e := range in.Entries {
		h := holdings[e.Code]
		current := money(e.Current)

		share := e.Weight / totalWeight
		planned := summary.MarketBudget * share
		quantity := int64(math.Round(planned / e.Current))
		held := int64(math.Round(h.Quantity))

		row := PlanRow{
			Code:         e.Code,
			Name:         e.Name,
			Market:       e.Market,
			Current:      current,
			Weight:       e.Weight,
			QuoteUnit:    e.QuoteUnit,
			AsIsQuantity: held,
			AsIsValue:    h.Value,
			PlannedShare: share,
			PlannedValue: money(planned),
			ToBeQuantity: quantity,
			ToBeValue:    current * float64(quantity),
			Difference:   quantity - held,
		}
		if row.QuoteUnit <= 0 {
			row.QuoteUnit = domain.QuoteUnit(e.Market, e.Current)
		}

		rows = append(rows, row)
		asIs = append(asIs, row.AsIsValue)
		toBe = append(toBe, row.ToBeValue)
	}

	summary.AsIsTotal = floats.Sum(asIs)
	summary.ToBeTotal = floats.Sum(toBe)

	return summary, rows, nil
}

// holdingValue returns the holding's value in the target currency.
func holdingValue(h domain.Holding, in PlanInput) (float64, error) {
	if !in.Overall || h.Market.Currency() == in.Target.Currency() {
		return h.Value, nil
	}
	if in.Rate <= 0 {
		return 0, &domain.ConfigurationError{Field: "currency_rate", Reason: "a positive rate is required to convert foreign holdings"}
	}
	if in.Target == domain.TargetDomestic {
		return h.Value * in.Rate, nil
	}
	return h.Value / in.Rate, nil
}
